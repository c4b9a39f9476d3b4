package mid

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ahrav/recon-armada/internal/api"
	"github.com/ahrav/recon-armada/pkg/web"
)

// Metrics records the request count and latency per route pattern.
func Metrics(m api.APIMetrics) web.MidFunc {
	mw := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			start := time.Now()
			resp := next(ctx, r)

			// Patterns are registered as "METHOD /path".
			route := r.URL.Path
			if _, p, ok := strings.Cut(r.Pattern, " "); ok {
				route = p
			}
			m.IncRequestsTotal(ctx, r.Method, route, web.Status(resp))
			m.ObserveRequestDuration(ctx, r.Method, route, time.Since(start))

			return resp
		}

		return h
	}

	return mw
}
