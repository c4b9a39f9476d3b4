// Package portscan implements the port_scan phase with plain TCP connect
// probes against every active host.
package portscan

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var _ domain.Collaborator = (*Scanner)(nil)

const (
	defaultPortSpec    = "top-100"
	defaultTimeoutMS   = 1500
	defaultConcurrency = 200
)

// Scanner finds open TCP ports.
type Scanner struct {
	concurrency int

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithConcurrency bounds the number of simultaneous connection attempts.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Scanner.
func New(log *logger.Logger, tracer trace.Tracer, opts ...Option) *Scanner {
	s := &Scanner{
		concurrency: defaultConcurrency,
		logger:      log.With("component", "port_scan"),
		tracer:      tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run implements domain.Collaborator.
func (s *Scanner) Run(ctx context.Context, in domain.PhaseInput) (domain.Payload, error) {
	spec := in.Settings.GetString(domain.SettingPortRange, defaultPortSpec)
	ctx, span := s.tracer.Start(ctx, "port_scan.run",
		trace.WithAttributes(
			attribute.Int("targets", len(in.Targets)),
			attribute.String("port_range", spec),
		),
	)
	defer span.End()

	ports, err := ParsePorts(spec)
	if err != nil {
		span.RecordError(err)
		return domain.Payload{domain.ResultOpenPorts: []domain.Payload{}, "count": 0}, err
	}
	timeout := time.Duration(in.Settings.GetInt(domain.SettingPortTimeoutMS, defaultTimeoutMS)) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeoutMS * time.Millisecond
	}
	dialer := &net.Dialer{Timeout: timeout}

	hosts := hostsOf(in.Targets)
	var (
		mu        sync.Mutex
		open      = make(map[string][]int, len(hosts))
		remaining = make(map[string]int, len(hosts))
		hostsDone int
	)
	for _, h := range hosts {
		remaining[h] = len(ports)
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, host := range hosts {
		for _, port := range ports {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				isOpen := probe(ctx, dialer, host, port)

				mu.Lock()
				defer mu.Unlock()
				if isOpen {
					open[host] = append(open[host], port)
				}
				remaining[host]--
				if remaining[host] == 0 {
					hostsDone++
					in.ReportProgress(domain.Payload{"hosts_done": hostsDone, "hosts_total": len(hosts)})
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	rows := make([]domain.Payload, 0)
	byHost := make(domain.Payload, len(open))
	for _, host := range hosts {
		found := open[host]
		if len(found) == 0 {
			continue
		}
		slices.Sort(found)
		byHost[host] = found
		for _, p := range found {
			rows = append(rows, domain.Payload{"host": host, "port": p, "service": ServiceName(p)})
		}
	}

	summary := domain.Payload{
		domain.ResultOpenPorts: rows,
		"count":                len(rows),
		"hosts":                byHost,
		"hosts_scanned":        len(hosts),
		"ports_per_host":       len(ports),
	}
	span.SetAttributes(attribute.Int("open_ports", len(rows)))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("port scan interrupted: %w", err)
	}
	s.logger.Info(ctx, "Port scan finished", "hosts", len(hosts), "ports_per_host", len(ports), "open_ports", len(rows))
	return summary, nil
}

func probe(ctx context.Context, dialer *net.Dialer, host string, port int) bool {
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// hostsOf strips any port or scheme from the targets and de-duplicates them.
func hostsOf(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if i := strings.Index(t, "://"); i >= 0 {
			t = t[i+3:]
		}
		t, _, _ = strings.Cut(t, "/")
		if h, _, err := net.SplitHostPort(t); err == nil {
			t = h
		}
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
