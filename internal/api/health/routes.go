// Package health binds the liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ahrav/recon-armada/pkg/common/logger"
	"github.com/ahrav/recon-armada/pkg/web"
)

// readyTimeout bounds one readiness probe of the job store.
const readyTimeout = 2 * time.Second

// Checker reports whether a dependency is ready to serve traffic.
type Checker interface {
	Ready(ctx context.Context) error
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build   string
	Log     *logger.Logger
	Checker Checker
}

// Routes binds all the health check endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFuncNoMid(http.MethodGet, version, "/liveness", liveness(cfg))
	app.HandlerFuncNoMid(http.MethodGet, version, "/readiness", readiness(cfg))
}

// healthResponse represents the response for health check.
type healthResponse struct {
	Status string `json:"status"`
	Build  string `json:"build"`
}

// Encode implements the web.Encoder interface.
func (hr healthResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(hr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func liveness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return healthResponse{
			Status: "ok",
			Build:  cfg.Build,
		}
	}
}

// readyResponse represents the response for readiness check.
type readyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Encode implements the web.Encoder interface.
func (rr readyResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus answers 503 while the store is unreachable.
func (rr readyResponse) HTTPStatus() int {
	if rr.Status != "ready" {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func readiness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		if cfg.Checker == nil {
			return readyResponse{Status: "ready"}
		}

		ctx, cancel := context.WithTimeout(ctx, readyTimeout)
		defer cancel()

		if err := cfg.Checker.Ready(ctx); err != nil {
			cfg.Log.Warn(ctx, "readiness probe failed", "error", err)
			return readyResponse{Status: "not ready", Error: err.Error()}
		}

		return readyResponse{Status: "ready"}
	}
}
