// Package vulnscan implements the vuln_scan phase. Web targets are checked for
// header, CORS and exposure weaknesses and their bodies are run through the
// gitleaks detector; host:port targets are checked for exposed services.
package vulnscan

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ domain.Collaborator = (*Scanner)(nil)

const (
	defaultSeverities  = "medium,high,critical"
	defaultRateLimit   = 150
	targetConcurrency  = 10
	maxBodyRead        = 1 << 20
	detectorBufferSize = 32
)

// Scanner checks high value targets for common weaknesses.
type Scanner struct {
	client *http.Client
	dialer *net.Dialer

	detectorOnce sync.Once
	detector     *detect.Detector
	detectorErr  error
	// detectMu serializes detector use; the detector accumulates findings
	// internally and is not safe for concurrent scans.
	detectMu sync.Mutex

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scanner) { s.client = client }
}

// WithDialTimeout sets the timeout for service checks.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.dialer.Timeout = d }
}

// New creates a Scanner. The gitleaks detector is built on first use.
func New(log *logger.Logger, tracer trace.Tracer, opts ...Option) *Scanner {
	s := &Scanner{
		client: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dialer: &net.Dialer{Timeout: 3 * time.Second},
		logger: log.With("component", "vuln_scan"),
		tracer: tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newDetector initializes the gitleaks detector from its embedded default
// configuration.
func newDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewBufferString(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read embedded config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate ViperConfig to Config: %w", err)
	}
	return detect.NewDetector(cfg), nil
}

func (s *Scanner) secretDetector() (*detect.Detector, error) {
	s.detectorOnce.Do(func() {
		s.detector, s.detectorErr = newDetector()
	})
	return s.detector, s.detectorErr
}

// Run implements domain.Collaborator.
func (s *Scanner) Run(ctx context.Context, in domain.PhaseInput) (domain.Payload, error) {
	ctx, span := s.tracer.Start(ctx, "vuln_scan.run",
		trace.WithAttributes(attribute.Int("targets", len(in.Targets))),
	)
	defer span.End()

	filter, err := ParseSeverityFilter(in.Settings.GetString(domain.SettingVulnSeverity, defaultSeverities))
	if err != nil {
		span.RecordError(err)
		return summarize(nil, 0, len(in.Targets)), err
	}
	secrets := in.Settings.GetBool(domain.SettingVulnSecrets, true)
	rps := in.Settings.GetInt(domain.SettingVulnRateLimit, defaultRateLimit)
	if rps <= 0 {
		rps = defaultRateLimit
	}
	limiter := common.PerSecond(rps)

	var (
		mu       sync.Mutex
		findings []Finding
		failures []string
		done     int
	)

	var g errgroup.Group
	g.SetLimit(targetConcurrency)
	for _, target := range in.Targets {
		g.Go(func() error {
			var (
				found []Finding
				err   error
			)
			if err = limiter.Wait(ctx); err == nil {
				if strings.Contains(target, "://") {
					found, err = s.scanWeb(ctx, target, secrets)
				} else {
					found, err = serviceChecks(ctx, s.dialer, target)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			findings = append(findings, found...)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", target, err))
				s.logger.Debug(ctx, "Target check failed", "target", target, "error", err)
			}
			in.ReportProgress(domain.Payload{"targets_done": done, "targets_total": len(in.Targets), "findings": len(findings)})
			return nil
		})
	}
	_ = g.Wait()

	reported := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if filter.Allows(f.Severity) {
			reported = append(reported, f)
		}
	}
	slices.SortFunc(reported, func(a, b Finding) int {
		return cmp.Or(
			cmp.Compare(b.Severity, a.Severity),
			strings.Compare(a.Target, b.Target),
			strings.Compare(a.Check, b.Check),
		)
	})

	summary := summarize(reported, len(findings)-len(reported), len(in.Targets))
	if len(failures) > 0 {
		summary["errors"] = failures
	}
	span.SetAttributes(attribute.Int("total_vulns", len(reported)))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("vulnerability scan interrupted: %w", err)
	}
	if len(in.Targets) > 0 && len(failures) == len(in.Targets) {
		return summary, fmt.Errorf("vulnerability scan could not reach any of %d targets", len(in.Targets))
	}
	s.logger.Info(ctx, "Vulnerability scan finished", "targets", len(in.Targets), "total_vulns", len(reported))
	return summary, nil
}

func (s *Scanner) scanWeb(ctx context.Context, target string, secrets bool) ([]Finding, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "recon-armada/1.0")
	req.Header.Set("Origin", probeOrigin)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	findings := headerChecks(u, resp)
	findings = append(findings, bodyChecks(u, resp.StatusCode, body)...)
	if secrets && resp.StatusCode == http.StatusOK && len(body) > 0 {
		leaks, err := s.detectSecrets(ctx, u, body)
		if err != nil {
			s.logger.Warn(ctx, "Secret detection failed", "target", target, "error", err)
		}
		findings = append(findings, leaks...)
	}
	return findings, nil
}

func (s *Scanner) detectSecrets(ctx context.Context, target *url.URL, body []byte) ([]Finding, error) {
	detector, err := s.secretDetector()
	if err != nil {
		return nil, err
	}

	_, span := s.tracer.Start(ctx, "vuln_scan.detect_secrets")
	defer span.End()

	s.detectMu.Lock()
	leaks, err := detector.DetectReader(bytes.NewReader(body), detectorBufferSize)
	s.detectMu.Unlock()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([]Finding, 0, len(leaks))
	for _, l := range leaks {
		out = append(out, Finding{
			Target:   target.String(),
			Check:    "secret-exposure",
			Title:    "Exposed secret: " + l.Description,
			Severity: SeverityHigh,
			Evidence: fmt.Sprintf("rule %s at line %d", l.RuleID, l.StartLine),
		})
	}
	span.SetAttributes(attribute.Int("findings", len(out)))
	return out, nil
}

// summarize builds the phase summary with per-severity counts.
func summarize(reported []Finding, suppressed, targets int) domain.Payload {
	counts := make(map[Severity]int, len(severityNames))
	rows := make([]domain.Payload, 0, len(reported))
	for _, f := range reported {
		counts[f.Severity]++
		rows = append(rows, domain.Payload{
			"target":   f.Target,
			"check":    f.Check,
			"title":    f.Title,
			"severity": f.Severity.String(),
			"evidence": f.Evidence,
		})
	}

	return domain.Payload{
		"vulnerabilities": rows,
		"total_vulns":     len(reported),
		"critical":        counts[SeverityCritical],
		"high":            counts[SeverityHigh],
		"medium":          counts[SeverityMedium],
		"low":             counts[SeverityLow],
		"info":            counts[SeverityInfo],
		"suppressed":      suppressed,
		"targets_scanned": targets,
	}
}
