package vulnscan

import (
	"fmt"
	"strings"
)

// Severity ranks a finding. Higher values are more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"info", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity converts a severity name to a Severity.
func ParseSeverity(name string) (Severity, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// SeverityFilter is the set of severities a scan reports.
type SeverityFilter map[Severity]struct{}

// ParseSeverityFilter reads a comma separated severity list such as
// "medium,high,critical". An empty list selects every severity.
func ParseSeverityFilter(spec string) (SeverityFilter, error) {
	f := make(SeverityFilter)
	for _, tok := range strings.Split(spec, ",") {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		s, err := ParseSeverity(tok)
		if err != nil {
			return nil, err
		}
		f[s] = struct{}{}
	}
	if len(f) == 0 {
		for i := range severityNames {
			f[Severity(i)] = struct{}{}
		}
	}
	return f, nil
}

// Allows reports whether findings of severity s are reported.
func (f SeverityFilter) Allows(s Severity) bool {
	_, ok := f[s]
	return ok
}
