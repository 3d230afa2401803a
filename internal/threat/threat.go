// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package threat scans requests for injection, traversal, and scripted
// attack signatures. The scanner is stateless; every decision is a pure
// function of the request's URL, user agent, and body.
package threat

import (
	"regexp"

	"github.com/quillhq/quill/internal/metrics"
)

// Severity ranks how dangerous a matched pattern is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase label used in logs and metrics.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Pattern classes.
const (
	ClassSQLInjection    = "sql_injection"
	ClassScriptInjection = "script_injection"
	ClassPathTraversal   = "path_traversal"
	ClassSchemeAbuse     = "scheme_abuse"
	ClassAttackPath      = "attack_path"
	ClassAttackTool      = "attack_tool"
)

// rule is one entry in the signature table.
type rule struct {
	pattern  *regexp.Regexp
	class    string
	severity Severity
}

// rules is the signature battery, compiled once at package load. SQL and
// script shapes are high severity because a single hit is near-certain
// hostile intent; traversal and probing shapes are medium because they also
// appear in broken but benign clients.
var rules = []rule{
	// SQL injection shapes.
	{regexp.MustCompile(`(?i)('|%27)\s*(or|and)\s+[\w'"]+\s*=\s*[\w'"]+`), ClassSQLInjection, SeverityHigh},
	{regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`), ClassSQLInjection, SeverityHigh},
	{regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|truncate)\b.*\b(from|into|table)\b`), ClassSQLInjection, SeverityHigh},
	{regexp.MustCompile(`(?i);\s*(drop|delete|truncate)\b`), ClassSQLInjection, SeverityHigh},
	{regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep)\s*\(`), ClassSQLInjection, SeverityHigh},
	{regexp.MustCompile(`(--|#|/\*)\s*$`), ClassSQLInjection, SeverityLow},

	// Script and markup injection shapes.
	{regexp.MustCompile(`(?i)<\s*script[^>]*>`), ClassScriptInjection, SeverityHigh},
	{regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus)\s*=`), ClassScriptInjection, SeverityHigh},
	{regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg)[^>]*>`), ClassScriptInjection, SeverityHigh},
	{regexp.MustCompile(`(?i)\beval\s*\(`), ClassScriptInjection, SeverityHigh},
	{regexp.MustCompile(`(?i)document\.(cookie|write|location)`), ClassScriptInjection, SeverityHigh},

	// Protocol scheme abuse.
	{regexp.MustCompile(`(?i)javascript\s*:`), ClassSchemeAbuse, SeverityHigh},
	{regexp.MustCompile(`(?i)data\s*:[^,]*(text/html|base64)[^,]*,.*<`), ClassSchemeAbuse, SeverityHigh},
	{regexp.MustCompile(`(?i)vbscript\s*:`), ClassSchemeAbuse, SeverityHigh},

	// Path traversal.
	{regexp.MustCompile(`\.\./|\.\.\\`), ClassPathTraversal, SeverityMedium},
	{regexp.MustCompile(`(?i)(%2e%2e|%252e)(%2f|%5c|/)`), ClassPathTraversal, SeverityMedium},
	{regexp.MustCompile(`(?i)/etc/(passwd|shadow|hosts)`), ClassPathTraversal, SeverityMedium},

	// Known probe targets.
	{regexp.MustCompile(`(?i)/(wp-admin|wp-login|phpmyadmin|\.env|\.git/)`), ClassAttackPath, SeverityMedium},
	{regexp.MustCompile(`(?i)\.(php|asp|aspx|jsp|cgi)(\?|$)`), ClassAttackPath, SeverityLow},

	// Attack tooling user agents.
	{regexp.MustCompile(`(?i)\b(sqlmap|nikto|nmap|masscan|metasploit|hydra|gobuster|dirbuster|wpscan|nessus|acunetix|burp)\b`), ClassAttackTool, SeverityMedium},
}

// Match is one triggered rule.
type Match struct {
	// Class names the pattern family that fired.
	Class string `json:"class"`

	// Severity is the rule's severity.
	Severity Severity `json:"severity"`

	// Location says which part of the request matched: url, user_agent,
	// or body.
	Location string `json:"location"`
}

// Report is the outcome of one scan.
type Report struct {
	// Suspicious is true when at least one rule fired.
	Suspicious bool `json:"suspicious"`

	// Matches lists every triggered rule.
	Matches []Match `json:"matches,omitempty"`

	// Severity is the highest severity across all matches.
	Severity Severity `json:"severity"`
}

// Reject reports whether the scan outcome warrants blocking the request.
// Only high severity blocks; medium and low are logged and the request
// proceeds, erring toward availability on ambiguous signals.
func (r *Report) Reject() bool {
	return r.Suspicious && r.Severity >= SeverityHigh
}

// Classes returns the distinct classes that fired, in match order.
func (r *Report) Classes() []string {
	seen := make(map[string]struct{}, len(r.Matches))
	var classes []string
	for _, m := range r.Matches {
		if _, ok := seen[m.Class]; ok {
			continue
		}
		seen[m.Class] = struct{}{}
		classes = append(classes, m.Class)
	}
	return classes
}

// Input is the scannable slice of one request.
type Input struct {
	// URL is the request path plus raw query.
	URL string

	// UserAgent is the User-Agent header value.
	UserAgent string

	// Body is a best-effort copy of a JSON request body. Empty for safe
	// methods and non-JSON payloads.
	Body string
}

// Scan runs the full battery against the input and aggregates matches.
func Scan(in Input) *Report {
	report := &Report{Severity: SeverityLow}

	scanPart := func(text, location string) {
		if text == "" {
			return
		}
		for _, r := range rules {
			// UA rules only make sense against the UA and vice versa.
			if (r.class == ClassAttackTool) != (location == "user_agent") {
				continue
			}
			if !r.pattern.MatchString(text) {
				continue
			}
			report.Suspicious = true
			report.Matches = append(report.Matches, Match{
				Class:    r.class,
				Severity: r.severity,
				Location: location,
			})
			if r.severity > report.Severity {
				report.Severity = r.severity
			}
			metrics.ThreatMatches.WithLabelValues(r.class, r.severity.String()).Inc()
		}
	}

	scanPart(in.URL, "url")
	scanPart(in.UserAgent, "user_agent")
	scanPart(in.Body, "body")

	return report
}
