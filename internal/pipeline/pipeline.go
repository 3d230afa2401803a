// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

// Package pipeline sequences the request-level defenses: client identity
// extraction, bypass check, rate limiting, threat scanning, and CSRF
// verification. Each request ends Admitted or Rejected; a defect inside the
// pipeline itself always ends Admitted, because a bug in the defense layer
// must not become a self-inflicted outage.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quillhq/quill/internal/clientid"
	"github.com/quillhq/quill/internal/csrf"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/metrics"
	"github.com/quillhq/quill/internal/monitor"
	"github.com/quillhq/quill/internal/ratelimit"
	"github.com/quillhq/quill/internal/respond"
	"github.com/quillhq/quill/internal/threat"
)

// Stages, used in logs and metrics.
const (
	StageBypass    = "bypass"
	StageRateLimit = "rate_limit"
	StageThreat    = "threat_scan"
	StageCSRF      = "csrf"
	StageAdmitted  = "admitted"
	StageInternal  = "internal"
)

// maxScanBody caps how much of a JSON body the threat scanner reads.
const maxScanBody = 64 << 10

// Config configures the pipeline.
type Config struct {
	// BypassPaths are prefixes that skip every check: health probes,
	// metrics scrapes, static assets.
	BypassPaths []string `json:"bypass_paths"`

	// AuthPaths are prefixes billed against the stricter auth tier.
	AuthPaths []string `json:"auth_paths"`

	// Timeout bounds the whole check sequence. On expiry the request is
	// admitted; the checks must never hang a caller.
	Timeout time.Duration `json:"timeout"`

	// UseFingerprint mixes the user agent into the client identity.
	UseFingerprint bool `json:"use_fingerprint"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		BypassPaths: []string{"/health", "/metrics"},
		AuthPaths:   []string{"/api/v1/auth/"},
		Timeout:     250 * time.Millisecond,
	}
}

// Pipeline is the per-request defense sequence. Construct once and share.
type Pipeline struct {
	cfg       Config
	limiter   *ratelimit.Limiter
	guard     *csrf.Guard
	monitor   *monitor.Monitor
	extractor clientid.Extractor
}

// New creates a pipeline over the shared defense components.
func New(cfg Config, limiter *ratelimit.Limiter, guard *csrf.Guard, mon *monitor.Monitor) *Pipeline {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BypassPaths == nil {
		cfg.BypassPaths = def.BypassPaths
	}
	if cfg.AuthPaths == nil {
		cfg.AuthPaths = def.AuthPaths
	}

	return &Pipeline{
		cfg:       cfg,
		limiter:   limiter,
		guard:     guard,
		monitor:   mon,
		extractor: clientid.Extractor{UseFingerprint: cfg.UseFingerprint},
	}
}

// decision is the outcome of the check sequence.
type decision struct {
	allowed bool
	stage   string
	err     *respond.Error
	rate    *ratelimit.Result
}

// Middleware wires the pipeline in front of next.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.isBypassPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		d := p.run(r)
		metrics.RecordPipelineDecision(d.allowed, d.stage, time.Since(start))

		if !d.allowed {
			p.writeRejection(w, r, d)
			return
		}

		if d.rate != nil {
			setRateHeaders(w.Header(), d.rate)
		}
		next.ServeHTTP(w, r)
	})
}

// run executes the checks in a worker goroutine so the caller can abandon
// them at the timeout. The body prefix is captured and spliced back before
// the worker starts; from then on the worker only reads the request and
// never touches the ResponseWriter, so a worker finishing late cannot race
// the admitted handler. A panic or a timeout both fail open with an
// UNEXPECTED event on record.
func (p *Pipeline) run(r *http.Request) decision {
	ctx := r.Context()
	identity := p.extractor.FromRequest(r)
	body := p.captureBody(r)

	done := make(chan decision, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Ctx(ctx).Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("panic inside defense pipeline")
				p.logUnexpected(ctx, identity, "pipeline panic")
				metrics.PipelineFailOpen.WithLabelValues("panic").Inc()
				done <- decision{allowed: true, stage: StageInternal}
			}
		}()
		done <- p.decide(r, identity, body)
	}()

	select {
	case d := <-done:
		return d
	case <-time.After(p.cfg.Timeout):
		logging.Ctx(ctx).Warn().
			Str("path", r.URL.Path).
			Dur("timeout", p.cfg.Timeout).
			Msg("defense pipeline timed out, admitting request")
		p.logUnexpected(ctx, identity, "pipeline timeout")
		metrics.PipelineFailOpen.WithLabelValues("timeout").Inc()
		return decision{allowed: true, stage: StageInternal}
	}
}

// decide runs the ordered checks. First rejection wins and short-circuits
// everything after it.
func (p *Pipeline) decide(r *http.Request, identity clientid.Identity, body string) decision {
	ctx := r.Context()

	// Rate limit.
	tier := p.tierFor(r)
	rateRes, err := p.limiter.Check(ctx, identity.Key(), tier)
	if err != nil {
		// Unknown tier is a wiring bug; admit and record it.
		p.logUnexpected(ctx, identity, err.Error())
		metrics.PipelineFailOpen.WithLabelValues("limiter_error").Inc()
		return decision{allowed: true, stage: StageInternal}
	}
	if rateRes.Degraded {
		p.monitor.LogEvent(ctx, monitor.SecurityEvent{
			Type:      monitor.EventRateLimiterDegraded,
			Severity:  monitor.SeverityMedium,
			SourceIP:  identity.IP,
			UserAgent: logging.TruncateUserAgent(identity.UserAgent),
			Details:   map[string]string{"tier": tier},
		})
	}
	if !rateRes.Allowed {
		p.monitor.LogEvent(ctx, monitor.SecurityEvent{
			Type:      monitor.EventRateLimitExceeded,
			Severity:  monitor.SeverityMedium,
			SourceIP:  identity.IP,
			UserAgent: logging.TruncateUserAgent(identity.UserAgent),
			Details:   map[string]string{"tier": tier, "path": r.URL.Path},
		})
		return decision{
			stage: StageRateLimit,
			err:   respond.NewError(respond.KindRateLimit, "", nil),
			rate:  rateRes,
		}
	}

	// Threat scan.
	report := threat.Scan(threat.Input{
		URL:       scanURL(r),
		UserAgent: identity.UserAgent,
		Body:      body,
	})
	if report.Suspicious {
		p.monitor.LogEvent(ctx, monitor.SecurityEvent{
			Type:      monitor.EventThreatMatch,
			Severity:  monitor.Severity(report.Severity.String()),
			SourceIP:  identity.IP,
			UserAgent: logging.TruncateUserAgent(identity.UserAgent),
			Details: map[string]string{
				"classes": strings.Join(report.Classes(), ","),
				"path":    r.URL.Path,
			},
		})
	}
	if report.Reject() {
		return decision{
			stage: StageThreat,
			err:   respond.NewError(respond.KindAuthorization, "", nil),
			rate:  rateRes,
		}
	}

	// CSRF.
	if err := p.guard.VerifyRequest(r); err != nil {
		p.monitor.LogEvent(ctx, monitor.SecurityEvent{
			Type:      monitor.EventCSRFFailure,
			Severity:  monitor.SeverityMedium,
			SourceIP:  identity.IP,
			UserAgent: logging.TruncateUserAgent(identity.UserAgent),
			Details:   map[string]string{"reason": err.Error(), "path": r.URL.Path},
		})
		return decision{
			stage: StageCSRF,
			err:   respond.NewError(respond.KindCSRF, "", err),
			rate:  rateRes,
		}
	}

	return decision{allowed: true, stage: StageAdmitted, rate: rateRes}
}

// writeRejection emits the envelope for a rejected request.
func (p *Pipeline) writeRejection(w http.ResponseWriter, r *http.Request, d decision) {
	if d.rate != nil {
		setRateHeaders(w.Header(), d.rate)
		if d.stage == StageRateLimit {
			retry := int(d.rate.RetryAfter().Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	}

	requestID := logging.RequestIDFromContext(r.Context())
	respond.Write(w, d.err, requestID)
}

// logUnexpected records an internal pipeline failure as an event.
func (p *Pipeline) logUnexpected(ctx context.Context, identity clientid.Identity, detail string) {
	p.monitor.LogEvent(ctx, monitor.SecurityEvent{
		Type:     monitor.EventUnexpectedError,
		Severity: monitor.SeverityHigh,
		SourceIP: identity.IP,
		Details:  map[string]string{"detail": detail},
	})
}

// tierFor selects the limiter tier: auth endpoints are strictest, writes
// next, everything else rides the global tier.
func (p *Pipeline) tierFor(r *http.Request) string {
	for _, prefix := range p.cfg.AuthPaths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return ratelimit.TierAuth
		}
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ratelimit.TierGlobal
	default:
		return ratelimit.TierWrite
	}
}

func (p *Pipeline) isBypassPath(path string) bool {
	for _, prefix := range p.cfg.BypassPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// scanURL is the path plus query. The decoded query rides along so
// percent-encoding cannot smuggle a signature past the scanner.
func scanURL(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	s := r.URL.Path + "?" + r.URL.RawQuery
	if decoded, err := url.QueryUnescape(r.URL.RawQuery); err == nil && decoded != r.URL.RawQuery {
		s += "\n" + decoded
	}
	return s
}

// captureBody returns a bounded copy of a JSON body for unsafe methods and
// splices the bytes back so the handler still sees the full stream. Must run
// before the decision worker starts: it is the only place the pipeline
// mutates the request, and on a timeout the handler reads the body while the
// abandoned worker is still running. Non-JSON payloads are left untouched.
func (p *Pipeline) captureBody(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return ""
	}
	if r.Body == nil || !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxScanBody))
	if err != nil {
		return ""
	}
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), rest}

	return string(buf)
}

// setRateHeaders annotates a response with the window state.
func setRateHeaders(h http.Header, res *ratelimit.Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
