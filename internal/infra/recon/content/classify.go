package content

import (
	"fmt"
	"strings"
)

// LargeBodyThreshold is the response size above which an endpoint is
// interesting regardless of status or path.
const LargeBodyThreshold = 1_000_000

var interestingStatuses = map[int]struct{}{
	200: {}, 201: {}, 301: {}, 302: {}, 307: {}, 401: {}, 403: {}, 500: {}, 503: {},
}

var interestingKeywords = []string{
	"admin", "api", "backup", "config", "debug", "dev", "test", "staging", "internal", "private",
}

// Classify returns the reasons an endpoint is interesting. An empty result
// means it is not.
func Classify(rawURL string, status int, size int64) []string {
	var reasons []string
	if _, ok := interestingStatuses[status]; ok {
		reasons = append(reasons, fmt.Sprintf("status:%d", status))
	}

	lower := strings.ToLower(rawURL)
	for _, kw := range interestingKeywords {
		if strings.Contains(lower, kw) {
			reasons = append(reasons, "keyword:"+kw)
		}
	}

	if size > LargeBodyThreshold {
		reasons = append(reasons, "large_body")
	}
	return reasons
}
