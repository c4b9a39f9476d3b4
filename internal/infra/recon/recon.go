// Package recon assembles the bundled collaborators that perform the work of
// each AutoScan phase.
package recon

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/infra/recon/content"
	"github.com/ahrav/recon-armada/internal/infra/recon/httpprobe"
	"github.com/ahrav/recon-armada/internal/infra/recon/portscan"
	"github.com/ahrav/recon-armada/internal/infra/recon/subdomain"
	"github.com/ahrav/recon-armada/internal/infra/recon/vulnscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// Config tunes the bundled collaborators.
type Config struct {
	WhoisEnabled    bool
	WhoisTimeout    time.Duration
	PortConcurrency int
	DialTimeout     time.Duration
}

// DefaultConfig returns the collaborator configuration used by the service.
func DefaultConfig() Config {
	return Config{
		WhoisEnabled:    true,
		WhoisTimeout:    15 * time.Second,
		PortConcurrency: 200,
		DialTimeout:     3 * time.Second,
	}
}

// NewCollaborators returns one collaborator per phase.
func NewCollaborators(cfg Config, log *logger.Logger, tracer trace.Tracer) domain.Collaborators {
	var whois subdomain.WhoisFunc
	if cfg.WhoisEnabled {
		whois = subdomain.NewWhoisFunc(cfg.WhoisTimeout)
	}

	return domain.Collaborators{
		domain.PhaseSubdomainEnum:    subdomain.New(log, tracer, subdomain.WithWhois(whois)),
		domain.PhaseHTTPProbe:        httpprobe.New(log, tracer),
		domain.PhaseContentDiscovery: content.New(log, tracer),
		domain.PhasePortScan:         portscan.New(log, tracer, portscan.WithConcurrency(cfg.PortConcurrency)),
		domain.PhaseVulnScan:         vulnscan.New(log, tracer, vulnscan.WithDialTimeout(cfg.DialTimeout)),
	}
}
