package subdomain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
)

// maxSourceBody caps how much of a passive source response is read.
const maxSourceBody = 32 << 20

// Source is a passive subdomain data source.
type Source interface {
	Name() string
	Enumerate(ctx context.Context, apex string) ([]string, error)
}

// parseFunc extracts candidate names from a source response body.
type parseFunc func(body []byte) ([]string, error)

// httpSource queries a JSON or text API over HTTP. Each source has its own
// circuit breaker, shared by every job the collaborator runs.
type httpSource struct {
	name    string
	setting string
	urlFor  func(apex string) string
	parse   parseFunc
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newHTTPSource(name, setting string, client *http.Client, urlFor func(string) string, parse parseFunc) *httpSource {
	return &httpSource{
		name:    name,
		setting: setting,
		urlFor:  urlFor,
		parse:   parse,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (s *httpSource) Name() string { return s.name }

// Enumerate fetches and parses the source's view of apex.
func (s *httpSource) Enumerate(ctx context.Context, apex string) ([]string, error) {
	out, err := s.breaker.Execute(func() (any, error) {
		body, err := s.fetch(ctx, s.urlFor(apex))
		if err != nil {
			return nil, err
		}
		return s.parse(body)
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}
	return out.([]string), nil
}

func (s *httpSource) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
}

// Endpoints overrides the base URL of each passive source. The zero value
// points at the public services.
type Endpoints struct {
	CrtSh        string
	HackerTarget string
	AlienVault   string
	CertSpotter  string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.CrtSh == "" {
		e.CrtSh = "https://crt.sh"
	}
	if e.HackerTarget == "" {
		e.HackerTarget = "https://api.hackertarget.com"
	}
	if e.AlienVault == "" {
		e.AlienVault = "https://otx.alienvault.com"
	}
	if e.CertSpotter == "" {
		e.CertSpotter = "https://api.certspotter.com"
	}
	return e
}

// defaultSources builds the bundled passive sources keyed by the setting that
// toggles them.
func defaultSources(client *http.Client, ep Endpoints) []*httpSource {
	ep = ep.withDefaults()
	return []*httpSource{
		newHTTPSource("crtsh", domain.SettingUseCrtSh, client,
			func(d string) string {
				return ep.CrtSh + "/?q=" + url.QueryEscape("%."+d) + "&output=json"
			},
			parseCrtSh,
		),
		newHTTPSource("hackertarget", domain.SettingUseHackerTarget, client,
			func(d string) string {
				return ep.HackerTarget + "/hostsearch/?q=" + url.QueryEscape(d)
			},
			parseHackerTarget,
		),
		newHTTPSource("alienvault", domain.SettingUseAlienVault, client,
			func(d string) string {
				return ep.AlienVault + "/api/v1/indicators/domain/" + url.PathEscape(d) + "/passive_dns"
			},
			parseAlienVault,
		),
		newHTTPSource("certspotter", domain.SettingUseCertSpotter, client,
			func(d string) string {
				return ep.CertSpotter + "/v1/issuances?domain=" + url.QueryEscape(d) +
					"&include_subdomains=true&expand=dns_names"
			},
			parseCertSpotter,
		),
	}
}

func parseCrtSh(body []byte) ([]string, error) {
	var entries []struct {
		NameValue string `json:"name_value"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding crt.sh response: %w", err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, strings.Split(e.NameValue, "\n")...)
	}
	return out, nil
}

// parseHackerTarget reads "host,ip" lines. The API reports quota and lookup
// errors as a single plain text line.
func parseHackerTarget(body []byte) ([]string, error) {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "error") || strings.HasPrefix(text, "API count exceeded") {
		return nil, fmt.Errorf("hackertarget: %s", text)
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		host, _, _ := strings.Cut(line, ",")
		out = append(out, host)
	}
	return out, nil
}

func parseAlienVault(body []byte) ([]string, error) {
	var resp struct {
		PassiveDNS []struct {
			Hostname string `json:"hostname"`
		} `json:"passive_dns"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding alienvault response: %w", err)
	}
	out := make([]string, 0, len(resp.PassiveDNS))
	for _, r := range resp.PassiveDNS {
		out = append(out, r.Hostname)
	}
	return out, nil
}

func parseCertSpotter(body []byte) ([]string, error) {
	var issuances []struct {
		DNSNames []string `json:"dns_names"`
	}
	if err := json.Unmarshal(body, &issuances); err != nil {
		return nil, fmt.Errorf("decoding certspotter response: %w", err)
	}
	var out []string
	for _, i := range issuances {
		out = append(out, i.DNSNames...)
	}
	return out, nil
}
