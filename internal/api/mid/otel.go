package mid

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/pkg/common/otel"
	"github.com/ahrav/recon-armada/pkg/web"
)

// jobIDKey tags request spans that address a single job.
const jobIDKey = attribute.Key("autoscan.job_id")

// Otel stores the tracer in the request context and labels the server span
// opened by otelhttp with the matched route and, when present, the job id.
func Otel(tracer trace.Tracer) web.MidFunc {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			ctx = otel.InjectTracing(ctx, tracer)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				if r.Pattern != "" {
					span.SetAttributes(semconv.HTTPRoute(r.Pattern))
				}
				if id := r.PathValue("id"); id != "" {
					span.SetAttributes(jobIDKey.String(id))
				}
			}

			return next(ctx, r)
		}
	}
}
