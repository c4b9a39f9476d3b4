package autoscan

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Result keys that link one phase's summary to the next phase's input. Every
// other key in a summary is opaque to the orchestrator.
const (
	ResultSubdomains      = "subdomains"
	ResultActiveHosts     = "active_hosts"
	ResultActiveURLs      = "active_urls"
	ResultInterestingURLs = "interesting_urls"
	ResultOpenPorts       = "open_ports"
)

// sensitivePorts are services whose exposure makes a host a vuln_scan target.
var sensitivePorts = map[int]struct{}{
	21: {}, 22: {}, 23: {}, 25: {}, 110: {}, 139: {}, 445: {}, 1433: {}, 1521: {},
	2049: {}, 2375: {}, 3306: {}, 3389: {}, 5432: {}, 5900: {}, 5984: {}, 6379: {},
	8080: {}, 8443: {}, 9000: {}, 9090: {}, 9200: {}, 11211: {}, 27017: {},
}

var webPorts = map[int]string{
	80: "http", 443: "https", 3000: "http", 5000: "http", 8000: "http", 8008: "http",
	8080: "http", 8081: "http", 8443: "https", 8888: "http", 9000: "http", 9090: "http",
}

// IsSensitivePort reports whether port is in the high value service set.
func IsSensitivePort(port int) bool {
	_, ok := sensitivePorts[port]
	return ok
}

// OpenPort is one row of the port_scan summary.
type OpenPort struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Service string `json:"service,omitempty"`
}

// OpenPortsFrom extracts the open port rows of a port_scan summary.
func OpenPortsFrom(summary Payload) []OpenPort {
	var out []OpenPort
	for _, row := range summary.GetObjects(ResultOpenPorts) {
		host := row.GetString("host", "")
		port := row.GetInt("port", 0)
		if host == "" || port <= 0 {
			continue
		}
		out = append(out, OpenPort{Host: host, Port: port, Service: row.GetString("service", "")})
	}
	return out
}

// ShouldSkip reports whether phase can be recorded as a no-op success without
// calling its collaborator. Only http_probe is skipped, when subdomain
// enumeration found nothing to probe.
func ShouldSkip(p Phase, results map[Phase]Payload) bool {
	if p != PhaseHTTPProbe {
		return false
	}
	return len(results[PhaseSubdomainEnum].GetStrings(ResultSubdomains)) == 0
}

// DeriveTargets computes the input set for p from earlier phase results. The
// returned list is de-duplicated and sorted.
func DeriveTargets(p Phase, targetDomain string, results map[Phase]Payload) []string {
	var out []string
	switch p {
	case PhaseSubdomainEnum:
		out = []string{targetDomain}
	case PhaseHTTPProbe:
		out = results[PhaseSubdomainEnum].GetStrings(ResultSubdomains)
	case PhaseContentDiscovery:
		out = results[PhaseHTTPProbe].GetStrings(ResultActiveURLs)
		if len(out) == 0 {
			for _, h := range results[PhaseHTTPProbe].GetStrings(ResultActiveHosts) {
				out = append(out, "https://"+h)
			}
		}
	case PhasePortScan:
		out = results[PhaseHTTPProbe].GetStrings(ResultActiveHosts)
	case PhaseVulnScan:
		out = highValueTargets(results)
	}
	return normalize(out)
}

// highValueTargets merges interesting endpoints found by content discovery with
// hosts exposing sensitive services found by the port scan. Web services become
// URLs, anything else becomes host:port.
func highValueTargets(results map[Phase]Payload) []string {
	out := results[PhaseContentDiscovery].GetStrings(ResultInterestingURLs)
	for _, op := range OpenPortsFrom(results[PhasePortScan]) {
		if !IsSensitivePort(op.Port) {
			continue
		}
		if scheme, ok := webPorts[op.Port]; ok {
			u := url.URL{Scheme: scheme, Host: op.Host + ":" + strconv.Itoa(op.Port), Path: "/"}
			out = append(out, u.String())
			continue
		}
		out = append(out, fmt.Sprintf("%s:%d", op.Host, op.Port))
	}
	return out
}

func normalize(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// ValidateDomain checks that d looks like a registrable DNS name.
func ValidateDomain(d string) error {
	d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
	if d == "" || len(d) > 253 || !strings.Contains(d, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, d)
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("%w: %q", ErrInvalidTarget, d)
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return fmt.Errorf("%w: %q", ErrInvalidTarget, d)
			}
		}
	}
	return nil
}

// NormalizeDomain lower-cases d and strips surrounding whitespace, a scheme
// and a trailing dot.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSuffix(d, ".")
}
