// Package subdomain implements the subdomain_enum phase. Candidate names are
// gathered from passive sources (certificate transparency logs and passive DNS
// APIs), scoped to the target apex and de-duplicated. The apex is checked for
// any DNS presence first; a target with none aborts the job.
package subdomain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ domain.Collaborator = (*Collaborator)(nil)

// Resolver is the subset of net.Resolver used to check that a target exists.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

type sourceEntry struct {
	src     Source
	setting string
}

// Collaborator enumerates subdomains of a job's target domain.
type Collaborator struct {
	client    *http.Client
	endpoints Endpoints
	resolver  Resolver
	whois     WhoisFunc
	sources   []sourceEntry

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Collaborator.
type Option func(*Collaborator)

// WithHTTPClient sets the client used to query passive sources.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Collaborator) { c.client = client }
}

// WithEndpoints overrides the passive source base URLs.
func WithEndpoints(ep Endpoints) Option {
	return func(c *Collaborator) { c.endpoints = ep }
}

// WithResolver sets the resolver used for the apex presence check.
func WithResolver(r Resolver) Option {
	return func(c *Collaborator) { c.resolver = r }
}

// WithWhois sets the WHOIS lookup. A nil func disables WHOIS entirely.
func WithWhois(fn WhoisFunc) Option {
	return func(c *Collaborator) { c.whois = fn }
}

// New creates a subdomain enumeration collaborator backed by the bundled
// passive sources.
func New(log *logger.Logger, tracer trace.Tracer, opts ...Option) *Collaborator {
	c := &Collaborator{
		client:   &http.Client{Timeout: 30 * time.Second},
		resolver: net.DefaultResolver,
		whois:    NewWhoisFunc(15 * time.Second),
		logger:   log.With("component", "subdomain_enum"),
		tracer:   tracer,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, s := range defaultSources(c.client, c.endpoints) {
		c.sources = append(c.sources, sourceEntry{src: s, setting: s.setting})
	}
	return c
}

// Run implements domain.Collaborator.
func (c *Collaborator) Run(ctx context.Context, in domain.PhaseInput) (domain.Payload, error) {
	apex := domain.NormalizeDomain(in.TargetDomain)
	ctx, span := c.tracer.Start(ctx, "subdomain_enum.run",
		trace.WithAttributes(attribute.String("target_domain", apex)),
	)
	defer span.End()

	if !c.resolvable(ctx, apex) {
		span.SetStatus(codes.Error, "target unresolvable")
		return domain.Payload{domain.ResultSubdomains: []string{}, "count": 0},
			fmt.Errorf("%w: %s", domain.ErrTargetUnresolvable, apex)
	}

	enabled := c.enabled(in.Settings)
	var (
		mu        sync.Mutex
		found     = make(map[string]struct{})
		perSource = make(domain.Payload, len(enabled))
		failures  []error
		done      int
	)

	var g errgroup.Group
	for _, src := range enabled {
		g.Go(func() error {
			names, err := src.Enumerate(ctx, apex)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				failures = append(failures, err)
				perSource[src.Name()] = 0
				c.logger.Warn(ctx, "Passive source failed", "source", src.Name(), "target_domain", apex, "error", err)
			} else {
				n := 0
				for _, name := range names {
					if name, ok := inScope(name, apex); ok {
						found[name] = struct{}{}
						n++
					}
				}
				perSource[src.Name()] = n
			}
			in.ReportProgress(domain.Payload{
				"sources_done":  done,
				"sources_total": len(enabled),
				"found":         len(found),
			})
			return nil
		})
	}
	_ = g.Wait()

	if in.Settings.GetBool(domain.SettingIncludeApex, true) {
		found[apex] = struct{}{}
	}

	subs := make([]string, 0, len(found))
	for name := range found {
		subs = append(subs, name)
	}
	slices.Sort(subs)

	summary := domain.Payload{
		domain.ResultSubdomains: subs,
		"count":                 len(subs),
		"sources":               perSource,
	}
	if c.whois != nil && in.Settings.GetBool(domain.SettingUseWhois, true) {
		if reg, err := c.lookupWhois(ctx, apex); err != nil {
			c.logger.Warn(ctx, "WHOIS lookup failed", "target_domain", apex, "error", err)
			summary["whois_error"] = err.Error()
		} else {
			summary["whois"] = reg
		}
	}
	span.SetAttributes(attribute.Int("subdomains", len(subs)))

	if len(failures) > 0 {
		msgs := make([]string, len(failures))
		for i, err := range failures {
			msgs[i] = err.Error()
		}
		summary["source_errors"] = msgs
	}
	if len(enabled) > 0 && len(failures) == len(enabled) {
		err := fmt.Errorf("all passive sources failed: %w", errors.Join(failures...))
		span.RecordError(err)
		return summary, err
	}

	c.logger.Info(ctx, "Subdomain enumeration finished", "target_domain", apex, "subdomains", len(subs))
	return summary, nil
}

func (c *Collaborator) enabled(settings domain.Payload) []Source {
	var out []Source
	for _, e := range c.sources {
		if settings.GetBool(e.setting, true) {
			out = append(out, e.src)
		}
	}
	return out
}

// resolvable reports false only when the resolver positively answers that the
// apex has neither address nor NS records. Transient resolver errors count as
// resolvable.
func (c *Collaborator) resolvable(ctx context.Context, apex string) bool {
	if _, err := c.resolver.LookupHost(ctx, apex); !isNotFound(err) {
		return true
	}
	_, err := c.resolver.LookupNS(ctx, apex)
	return !isNotFound(err)
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func (c *Collaborator) lookupWhois(ctx context.Context, apex string) (domain.Payload, error) {
	raw, err := c.whois(ctx, apex)
	if err != nil {
		return nil, err
	}
	return registration(raw)
}

// inScope normalizes a candidate name and reports whether it is a strict
// subdomain of apex.
func inScope(name, apex string) (string, bool) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	name = strings.TrimPrefix(name, "*.")
	if name == apex || !strings.HasSuffix(name, "."+apex) {
		return "", false
	}
	if domain.ValidateDomain(name) != nil {
		return "", false
	}
	return name, true
}
