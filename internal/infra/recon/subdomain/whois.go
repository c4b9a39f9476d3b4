package subdomain

import (
	"context"
	"fmt"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
)

// WhoisFunc returns the raw WHOIS record for a domain.
type WhoisFunc func(ctx context.Context, apex string) (string, error)

// NewWhoisFunc returns a WhoisFunc backed by a likexian/whois client.
func NewWhoisFunc(timeout time.Duration) WhoisFunc {
	client := whois.NewClient().SetTimeout(timeout)
	return func(ctx context.Context, apex string) (string, error) {
		type result struct {
			raw string
			err error
		}
		done := make(chan result, 1)
		go func() {
			raw, err := client.Whois(apex)
			done <- result{raw, err}
		}()

		select {
		case r := <-done:
			return r.raw, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// registration condenses a parsed WHOIS record into the fields worth keeping in
// a phase summary.
func registration(raw string) (domain.Payload, error) {
	info, err := whoisparser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing whois record: %w", err)
	}

	out := domain.Payload{}
	if d := info.Domain; d != nil {
		out["domain"] = d.Domain
		out["created"] = d.CreatedDate
		out["expires"] = d.ExpirationDate
		out["name_servers"] = d.NameServers
		out["status"] = d.Status
	}
	if r := info.Registrar; r != nil {
		out["registrar"] = r.Name
	}
	if r := info.Registrant; r != nil && r.Organization != "" {
		out["registrant_org"] = r.Organization
	}
	return out, nil
}
