package vulnscan

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	regexp "github.com/wasilibs/go-re2"
)

// Finding is one reported weakness.
type Finding struct {
	Target   string
	Check    string
	Title    string
	Severity Severity
	Evidence string
}

// probeOrigin is sent as the Origin header to detect reflected CORS policies.
const probeOrigin = "https://origin-probe.recon-armada.invalid"

var (
	versionPattern       = regexp.MustCompile(`[0-9]+\.[0-9]+`)
	sensitivePathPattern = regexp.MustCompile(`(?i)(/\.env|/\.git/|\.sql$|\.bak$|/backup|/\.ds_store$|/config\.(php|json|ya?ml)$|/\.htpasswd$)`)
	stackTracePattern    = regexp.MustCompile(`(Traceback \(most recent call last\)|at [a-z]+(\.[a-zA-Z0-9_$]+)+\(|Fatal error:|Exception in thread|Stack trace:)`)
)

// headerChecks inspects response headers of a web target.
func headerChecks(target *url.URL, resp *http.Response) []Finding {
	var out []Finding
	add := func(check, title string, sev Severity, evidence string) {
		out = append(out, Finding{Target: target.String(), Check: check, Title: title, Severity: sev, Evidence: evidence})
	}
	h := resp.Header
	isHTML := strings.Contains(h.Get("Content-Type"), "html")

	if target.Scheme == "https" && h.Get("Strict-Transport-Security") == "" {
		add("missing-hsts", "Strict-Transport-Security header not set", SeverityLow, "")
	}
	if isHTML {
		csp := h.Get("Content-Security-Policy")
		if csp == "" {
			add("missing-csp", "Content-Security-Policy header not set", SeverityInfo, "")
		}
		if h.Get("X-Frame-Options") == "" && !strings.Contains(csp, "frame-ancestors") {
			add("clickjacking", "Page can be framed by any origin", SeverityLow, "")
		}
	}
	if !strings.EqualFold(h.Get("X-Content-Type-Options"), "nosniff") {
		add("missing-x-content-type-options", "X-Content-Type-Options is not nosniff", SeverityInfo, "")
	}
	for _, name := range []string{"Server", "X-Powered-By"} {
		if v := h.Get(name); v != "" && versionPattern.MatchString(v) {
			add("version-disclosure", name+" header discloses a version", SeverityInfo, name+": "+v)
		}
	}

	acao := h.Get("Access-Control-Allow-Origin")
	creds := strings.EqualFold(h.Get("Access-Control-Allow-Credentials"), "true")
	switch {
	case acao == probeOrigin && creds:
		add("cors-origin-reflection", "Arbitrary origin reflected with credentials allowed", SeverityHigh, "Access-Control-Allow-Origin: "+acao)
	case acao == probeOrigin:
		add("cors-origin-reflection", "Arbitrary origin reflected in CORS policy", SeverityMedium, "Access-Control-Allow-Origin: "+acao)
	case acao == "*" && creds:
		add("cors-wildcard-credentials", "Wildcard CORS origin combined with credentials", SeverityMedium, "")
	}
	return out
}

// bodyChecks inspects the response body of a web target.
func bodyChecks(target *url.URL, status int, body []byte) []Finding {
	var out []Finding
	add := func(check, title string, sev Severity, evidence string) {
		out = append(out, Finding{Target: target.String(), Check: check, Title: title, Severity: sev, Evidence: evidence})
	}

	if status == http.StatusOK && sensitivePathPattern.MatchString(strings.ToLower(target.Path)) {
		add("sensitive-file-exposure", "Sensitive file is publicly readable", SeverityHigh, target.Path)
	}
	if status == http.StatusOK && bytes.Contains(body, []byte("<title>Index of /")) {
		add("directory-listing", "Directory listing is enabled", SeverityMedium, "")
	}
	if status >= http.StatusInternalServerError {
		if m := stackTracePattern.Find(body); m != nil {
			add("error-disclosure", "Error page discloses a stack trace", SeverityLow, string(m))
		}
	}
	return out
}

// exposedService describes a network service that should not face the internet.
type exposedService struct {
	check    string
	title    string
	severity Severity
}

var exposedServices = map[int]exposedService{
	21:    {"ftp-exposed", "FTP service exposed", SeverityMedium},
	22:    {"ssh-exposed", "SSH service exposed", SeverityInfo},
	23:    {"telnet-exposed", "Telnet service exposed", SeverityHigh},
	25:    {"smtp-exposed", "SMTP service exposed", SeverityLow},
	110:   {"pop3-exposed", "POP3 service exposed", SeverityLow},
	139:   {"smb-exposed", "NetBIOS session service exposed", SeverityHigh},
	445:   {"smb-exposed", "SMB service exposed", SeverityHigh},
	1433:  {"database-exposed", "MSSQL service exposed", SeverityMedium},
	1521:  {"database-exposed", "Oracle listener exposed", SeverityMedium},
	2049:  {"nfs-exposed", "NFS service exposed", SeverityMedium},
	2375:  {"docker-api-exposed", "Unencrypted Docker API exposed", SeverityCritical},
	3306:  {"database-exposed", "MySQL service exposed", SeverityMedium},
	3389:  {"rdp-exposed", "RDP service exposed", SeverityMedium},
	5432:  {"database-exposed", "PostgreSQL service exposed", SeverityMedium},
	5900:  {"vnc-exposed", "VNC service exposed", SeverityMedium},
	5984:  {"database-exposed", "CouchDB service exposed", SeverityHigh},
	6379:  {"database-exposed", "Redis service exposed", SeverityHigh},
	9200:  {"database-exposed", "Elasticsearch service exposed", SeverityHigh},
	11211: {"cache-exposed", "Memcached service exposed", SeverityHigh},
	27017: {"database-exposed", "MongoDB service exposed", SeverityHigh},
}

// serviceChecks dials host:port and reports the exposure of a known service.
// Redis is additionally probed for missing authentication.
func serviceChecks(ctx context.Context, dialer *net.Dialer, target string) ([]Finding, error) {
	_, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	svc, known := exposedServices[port]
	if !known {
		return nil, nil
	}
	if svc.check == "database-exposed" && port == 6379 && redisOpen(conn, dialer.Timeout) {
		return []Finding{{
			Target:   target,
			Check:    "redis-no-auth",
			Title:    "Redis accepts commands without authentication",
			Severity: SeverityCritical,
			Evidence: "PING answered with +PONG",
		}}, nil
	}
	return []Finding{{Target: target, Check: svc.check, Title: svc.title, Severity: svc.severity}}, nil
}

func redisOpen(conn net.Conn, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte("PING\r\n")); err != nil {
		return false
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && strings.HasPrefix(line, "+PONG")
}
