// Package httpprobe implements the http_probe phase: every discovered host is
// requested over HTTPS and then plain HTTP, and hosts that answer at all are
// reported as active along with the base URL that answered.
package httpprobe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ domain.Collaborator = (*Prober)(nil)

const (
	defaultConcurrency = 50
	defaultRateLimit   = 100
	maxBodyRead        = 512 << 10
	maxRedirects       = 5
)

// Prober checks which hosts serve HTTP.
type Prober struct {
	client  *http.Client
	schemes []string

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) { p.client = client }
}

// WithSchemes sets the schemes tried for each host, in order.
func WithSchemes(schemes ...string) Option {
	return func(p *Prober) { p.schemes = schemes }
}

// New creates a Prober. The default client does not verify certificates.
func New(log *logger.Logger, tracer trace.Tracer, opts ...Option) *Prober {
	p := &Prober{
		client:  defaultClient(10 * time.Second),
		schemes: []string{"https", "http"},
		logger:  log.With("component", "http_probe"),
		tracer:  tracer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS10} //nolint:gosec
	transport.MaxIdleConnsPerHost = 4
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// probeResult is one answering host.
type probeResult struct {
	Host          string
	URL           string
	FinalURL      string
	Status        int
	Title         string
	Server        string
	ContentType   string
	ContentLength int64
}

func (r probeResult) payload() domain.Payload {
	return domain.Payload{
		"host":           r.Host,
		"url":            r.URL,
		"final_url":      r.FinalURL,
		"status":         r.Status,
		"title":          r.Title,
		"server":         r.Server,
		"content_type":   r.ContentType,
		"content_length": r.ContentLength,
	}
}

// Run implements domain.Collaborator.
func (p *Prober) Run(ctx context.Context, in domain.PhaseInput) (domain.Payload, error) {
	ctx, span := p.tracer.Start(ctx, "http_probe.run",
		trace.WithAttributes(attribute.Int("targets", len(in.Targets))),
	)
	defer span.End()

	concurrency := in.Settings.GetInt(domain.SettingProbeConcurrency, defaultConcurrency)
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	rps := in.Settings.GetInt(domain.SettingProbeRateLimit, defaultRateLimit)
	if rps <= 0 {
		rps = defaultRateLimit
	}
	limiter := common.PerSecond(rps)

	var (
		mu      sync.Mutex
		results []probeResult
		probed  int
	)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, host := range in.Targets {
		g.Go(func() error {
			res, ok := p.probeHost(ctx, limiter, host)

			mu.Lock()
			defer mu.Unlock()
			probed++
			if ok {
				results = append(results, res)
			}
			in.ReportProgress(domain.Payload{"probed": probed, "total": len(in.Targets), "alive": len(results)})
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, func(a, b probeResult) int { return strings.Compare(a.URL, b.URL) })
	hosts := make([]string, 0, len(results))
	urls := make([]string, 0, len(results))
	rows := make([]domain.Payload, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, ok := seen[r.Host]; !ok {
			seen[r.Host] = struct{}{}
			hosts = append(hosts, r.Host)
		}
		urls = append(urls, r.URL)
		rows = append(rows, r.payload())
	}
	slices.Sort(hosts)

	summary := domain.Payload{
		domain.ResultActiveHosts: hosts,
		domain.ResultActiveURLs:  urls,
		"probes":                 rows,
		"alive":                  len(hosts),
		"probed":                 len(in.Targets),
	}
	span.SetAttributes(attribute.Int("alive", len(hosts)))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("probe interrupted after %d of %d hosts: %w", probed, len(in.Targets), err)
	}
	p.logger.Info(ctx, "HTTP probe finished", "targets", len(in.Targets), "alive", len(hosts))
	return summary, nil
}

// probeHost tries each scheme in turn and returns the first that answers.
func (p *Prober) probeHost(ctx context.Context, limiter *common.RateLimiter, host string) (probeResult, bool) {
	for _, scheme := range p.schemes {
		if err := limiter.Wait(ctx); err != nil {
			return probeResult{}, false
		}
		res, err := p.probe(ctx, scheme+"://"+host)
		if err == nil {
			res.Host = host
			return res, true
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return probeResult{}, false
		}
		p.logger.Debug(ctx, "Probe failed", "host", host, "scheme", scheme, "error", err)
	}
	return probeResult{}, false
}

func (p *Prober) probe(ctx context.Context, target string) (probeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return probeResult{}, err
	}
	req.Header.Set("User-Agent", "recon-armada/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return probeResult{}, err
	}
	defer resp.Body.Close()

	res := probeResult{
		URL:           target,
		FinalURL:      resp.Request.URL.String(),
		Status:        resp.StatusCode,
		Server:        resp.Header.Get("Server"),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}
	if strings.Contains(res.ContentType, "html") {
		res.Title = PageTitle(io.LimitReader(resp.Body, maxBodyRead))
	}
	return res, nil
}

// PageTitle returns the text of the first <title> element in an HTML document.
func PageTitle(r io.Reader) string {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) != "title" {
				continue
			}
			if z.Next() == html.TextToken {
				return strings.Join(strings.Fields(string(z.Text())), " ")
			}
			return ""
		}
	}
}
