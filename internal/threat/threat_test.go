// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package threat

import "testing"

func TestScanCleanRequest(t *testing.T) {
	t.Parallel()

	report := Scan(Input{
		URL:       "/api/v1/articles?q=hello+world",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0",
	})

	if report.Suspicious {
		t.Fatalf("ordinary search flagged: %+v", report.Matches)
	}
	if report.Reject() {
		t.Fatal("clean request must not be rejected")
	}
}

func TestScanSQLInjection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{"classic tautology", "/api/v1/articles?q=' OR 1=1"},
		{"union select", "/search?q=1 UNION SELECT username,password FROM users"},
		{"stacked drop", "/search?q=x'; DROP TABLE articles"},
		{"timing probe", "/search?q=1 AND sleep(5)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			report := Scan(Input{URL: tc.url})
			if !report.Suspicious {
				t.Fatalf("%q not flagged", tc.url)
			}
			if report.Severity < SeverityHigh {
				t.Errorf("severity = %s, want high", report.Severity)
			}
			if !report.Reject() {
				t.Error("high severity must reject")
			}
		})
	}
}

func TestScanScriptInjection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Input
	}{
		{"script tag in query", Input{URL: "/comment?text=<script>alert(1)</script>"}},
		{"event handler in body", Input{Body: `{"bio":"<img src=x onerror=alert(1)>"}`}},
		{"javascript scheme", Input{URL: "/redirect?to=javascript:alert(1)"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			report := Scan(tc.in)
			if !report.Reject() {
				t.Fatalf("script injection not rejected: %+v", report)
			}
		})
	}
}

func TestScanPathTraversal(t *testing.T) {
	t.Parallel()

	report := Scan(Input{URL: "/files?name=../../../etc/passwd"})

	if !report.Suspicious {
		t.Fatal("traversal not flagged")
	}
	if report.Severity < SeverityMedium {
		t.Errorf("severity = %s, want at least medium", report.Severity)
	}
	if report.Reject() {
		t.Error("medium severity logs but does not reject")
	}
}

func TestScanAttackToolUserAgent(t *testing.T) {
	t.Parallel()

	report := Scan(Input{
		URL:       "/api/v1/articles",
		UserAgent: "sqlmap/1.7-dev (https://sqlmap.org)",
	})

	if !report.Suspicious {
		t.Fatal("attack tool user agent not flagged")
	}

	found := false
	for _, m := range report.Matches {
		if m.Class == ClassAttackTool && m.Location == "user_agent" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected attack_tool match in user_agent, got %+v", report.Matches)
	}
}

func TestScanToolNameInURLDoesNotFireUARule(t *testing.T) {
	t.Parallel()

	// An article about nmap is content, not an attack.
	report := Scan(Input{URL: "/api/v1/articles?q=nmap tutorial"})

	for _, m := range report.Matches {
		if m.Class == ClassAttackTool {
			t.Fatalf("attack tool rule fired outside user agent: %+v", m)
		}
	}
}

func TestScanAggregatesSeverity(t *testing.T) {
	t.Parallel()

	report := Scan(Input{URL: "/files?name=../../../etc/passwd&q=' OR 1=1"})

	if report.Severity != SeverityHigh {
		t.Errorf("severity = %s, want high to dominate", report.Severity)
	}
	if len(report.Classes()) < 2 {
		t.Errorf("classes = %v, want traversal and sql_injection", report.Classes())
	}
}

func TestSeverityString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityLow, "low"},
		{SeverityMedium, "medium"},
		{SeverityHigh, "high"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.sev.String(); got != tc.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tc.sev, got, tc.want)
		}
	}
}
