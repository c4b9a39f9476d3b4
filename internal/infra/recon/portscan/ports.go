package portscan

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const maxPort = 65535

// top100 is the nmap top 100 TCP port list.
var top100 = []int{
	7, 9, 13, 21, 22, 23, 25, 26, 37, 53, 79, 80, 81, 88, 106, 110, 111, 113, 119, 135,
	139, 143, 144, 179, 199, 389, 427, 443, 444, 445, 465, 513, 514, 515, 543, 544, 548,
	554, 587, 631, 646, 873, 990, 993, 995, 1025, 1026, 1027, 1028, 1029, 1110, 1433,
	1720, 1723, 1755, 1900, 2000, 2001, 2049, 2121, 2717, 3000, 3128, 3306, 3389, 3986,
	4899, 5000, 5009, 5051, 5060, 5101, 5190, 5357, 5432, 5631, 5666, 5800, 5900, 6000,
	6001, 6646, 7070, 8000, 8008, 8009, 8080, 8081, 8443, 8888, 9100, 9999, 10000, 32768,
	49152, 49153, 49154, 49155, 49156, 49157,
}

// highPorts are frequently exposed services above the well-known range.
var highPorts = []int{
	1080, 1194, 1433, 1521, 1723, 1883, 2082, 2083, 2086, 2087, 2375, 2376, 2379, 2380,
	3000, 3128, 3306, 3389, 4443, 4848, 5000, 5432, 5601, 5672, 5900, 5984, 5985, 5986,
	6379, 6443, 7000, 7001, 7474, 8000, 8006, 8008, 8080, 8081, 8086, 8088, 8161, 8443,
	8500, 8888, 9000, 9042, 9090, 9092, 9200, 9300, 9443, 10000, 10250, 11211, 15672,
	27017, 28017, 50000, 50070,
}

var presets = map[string][]int{
	"top-100": top100,
	"common-web": {
		80, 81, 443, 591, 2082, 2083, 2086, 2087, 3000, 4443, 5000, 7001, 8000, 8008, 8080,
		8081, 8088, 8443, 8888, 9000, 9090, 9443,
	},
	"common-db": {
		1433, 1521, 3306, 5432, 5984, 6379, 7000, 7474, 8086, 9042, 9200, 11211, 27017, 28015,
	},
	"common-admin": {
		21, 22, 23, 135, 139, 445, 2375, 2376, 3389, 5900, 5985, 5986, 8006, 10000,
	},
}

func init() {
	// top-1000 approximates the nmap list with the whole well-known range plus
	// the top 100 and common high service ports.
	top1000 := make([]int, 0, 1024+len(top100)+len(highPorts))
	for p := 1; p <= 1024; p++ {
		top1000 = append(top1000, p)
	}
	top1000 = append(top1000, top100...)
	top1000 = append(top1000, highPorts...)
	presets["top-1000"] = dedupe(top1000)
}

// ParsePorts expands a port specification into a sorted list of unique ports.
// The specification is a comma separated list of preset names (top-100,
// top-1000, common-web, common-db, common-admin, all), single ports and
// inclusive ranges such as 8000-8010.
func ParsePorts(spec string) ([]int, error) {
	var out []int
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if tok == "all" {
			tok = "1-65535"
		}
		if preset, ok := presets[tok]; ok {
			out = append(out, preset...)
			continue
		}

		lo, hi, isRange := strings.Cut(tok, "-")
		start, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parsePort(hi); err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("invalid port range %q", tok)
			}
		}
		for p := start; p <= end; p++ {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("port specification %q selects no ports", spec)
	}
	return dedupe(out), nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > maxPort {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return p, nil
}

func dedupe(ports []int) []int {
	out := slices.Clone(ports)
	slices.Sort(out)
	return slices.Compact(out)
}

var serviceNames = map[int]string{
	21: "ftp", 22: "ssh", 23: "telnet", 25: "smtp", 53: "dns", 80: "http", 110: "pop3",
	111: "rpcbind", 135: "msrpc", 139: "netbios-ssn", 143: "imap", 389: "ldap", 443: "https",
	445: "microsoft-ds", 465: "smtps", 587: "submission", 631: "ipp", 873: "rsync",
	993: "imaps", 995: "pop3s", 1433: "mssql", 1521: "oracle", 1723: "pptp", 1883: "mqtt",
	2049: "nfs", 2375: "docker", 2376: "docker-tls", 2379: "etcd", 3000: "http-alt",
	3128: "squid", 3306: "mysql", 3389: "rdp", 5000: "http-alt", 5432: "postgresql",
	5601: "kibana", 5672: "amqp", 5900: "vnc", 5984: "couchdb", 5985: "winrm",
	5986: "winrm-tls", 6379: "redis", 6443: "kubernetes", 7001: "weblogic", 8000: "http-alt",
	8008: "http-alt", 8080: "http-proxy", 8081: "http-alt", 8086: "influxdb", 8443: "https-alt",
	8888: "http-alt", 9000: "http-alt", 9042: "cassandra", 9090: "http-alt", 9092: "kafka",
	9200: "elasticsearch", 9300: "elasticsearch", 10250: "kubelet", 11211: "memcached",
	15672: "rabbitmq", 27017: "mongodb",
}

// ServiceName returns the conventional service name for port, or "".
func ServiceName(port int) string { return serviceNames[port] }
