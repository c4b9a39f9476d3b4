package autoscan

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/recon-armada/internal/api/mid"
	appautoscan "github.com/ahrav/recon-armada/internal/app/autoscan"
	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/infra/storage/autoscan/memory"
	"github.com/ahrav/recon-armada/pkg/common/logger"
	"github.com/ahrav/recon-armada/pkg/web"
)

const waitFor = 5 * time.Second

// gate blocks the subdomain phase until released so tests can act on a
// Running job.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) collaborators() domain.Collaborators {
	done := func(context.Context, domain.PhaseInput) (domain.Payload, error) {
		return domain.Payload{}, nil
	}
	return domain.Collaborators{
		domain.PhaseSubdomainEnum: domain.CollaboratorFunc(func(ctx context.Context, _ domain.PhaseInput) (domain.Payload, error) {
			g.entered <- struct{}{}
			select {
			case <-g.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return domain.Payload{domain.ResultSubdomains: []string{"www.example.com"}}, nil
		}),
		domain.PhaseHTTPProbe:        domain.CollaboratorFunc(done),
		domain.PhaseContentDiscovery: domain.CollaboratorFunc(done),
		domain.PhasePortScan:         domain.CollaboratorFunc(done),
		domain.PhaseVulnScan:         domain.CollaboratorFunc(done),
	}
}

type harness struct {
	t    *testing.T
	app  *web.App
	svc  *appautoscan.Service
	gate *gate
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logger.Noop()
	tracer := noop.NewTracerProvider().Tracer("test")
	g := newGate()

	cfg := appautoscan.DefaultConfig()
	cfg.PersistInitialInterval = time.Millisecond
	svc := appautoscan.NewService(memory.NewJobStore(), g.collaborators(), cfg, log, tracer)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	app := web.NewApp(func(context.Context, string, ...any) {}, tracer,
		mid.Otel(tracer),
		mid.Logger(log),
		mid.Errors(log),
		mid.Panics(),
	)
	Routes(app, Config{Log: log, Service: svc})

	return &harness{t: t, app: app, svc: svc, gate: g}
}

func (h *harness) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
		}
	}

	rec := httptest.NewRecorder()
	h.app.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (h *harness) start(workspace string) string {
	h.t.Helper()

	rec, body := h.do(http.MethodPost, "/v1/autoscan", map[string]any{
		"workspace_id":  workspace,
		"target_domain": "Example.com",
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["job_id"].(string)
}

func (h *harness) waitForStatus(id string, want domain.JobStatus) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		_, body := h.do(http.MethodGet, "/v1/autoscan/"+id, nil)
		return body["status"] == want.String()
	}, waitFor, 5*time.Millisecond, "job never reached %s", want)
}

func TestStartAndRead(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.start("w1")
	<-h.gate.entered

	rec, body := h.do(http.MethodGet, "/v1/autoscan/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["job_id"])
	assert.Equal(t, "w1", body["workspace_id"])
	assert.Equal(t, "example.com", body["target_domain"])
	assert.Equal(t, "RUNNING", body["status"])
	assert.Equal(t, "subdomain_enum", body["current_phase"])
	assert.NotEmpty(t, body["settings"])

	rec, body = h.do(http.MethodGet, "/v1/workspaces/w1/autoscan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, id, body["job"].(map[string]any)["job_id"])

	rec, body = h.do(http.MethodGet, "/v1/autoscan?workspace_id=w1&status=running", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = h.do(http.MethodGet, "/v1/autoscan?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])
	assert.Empty(t, body["jobs"])

	close(h.gate.release)
	h.waitForStatus(id, domain.JobStatusCompleted)

	_, body = h.do(http.MethodGet, "/v1/workspaces/w1/autoscan", nil)
	assert.Equal(t, false, body["active"])
}

func TestStartRejectsSecondActiveJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start("w1")

	rec, body := h.do(http.MethodPost, "/v1/autoscan", map[string]any{
		"workspace_id":  "w1",
		"target_domain": "other.example.org",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", body["code"])
}

func TestStartValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body any
		want int
		code string
	}{
		{
			name: "missing target",
			body: map[string]any{"workspace_id": "w1"},
			want: http.StatusBadRequest,
			code: "invalid_argument",
		},
		{
			name: "blank workspace",
			body: map[string]any{"workspace_id": "   ", "target_domain": "example.com"},
			want: http.StatusBadRequest,
			code: "invalid_argument",
		},
		{
			name: "unknown field",
			body: map[string]any{"workspace_id": "w1", "target_domain": "example.com", "priority": 1},
			want: http.StatusBadRequest,
			code: "invalid_argument",
		},
		{
			name: "malformed json",
			body: `{"workspace_id":`,
			want: http.StatusBadRequest,
			code: "invalid_argument",
		},
		{
			name: "invalid domain",
			body: map[string]any{"workspace_id": "w1", "target_domain": "not a domain"},
			want: http.StatusBadRequest,
			code: "invalid_argument",
		},
		{
			name: "unknown profile",
			body: map[string]any{"workspace_id": "w1", "target_domain": "example.com", "profile": "exhaustive"},
			want: http.StatusBadRequest,
			code: "invalid_argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			rec, body := h.do(http.MethodPost, "/v1/autoscan", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestGetJobErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	rec, body := h.do(http.MethodGet, "/v1/autoscan/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["fields"].([]any)[0].(map[string]any)["field"], "id")

	rec, body = h.do(http.MethodGet, "/v1/autoscan/6f1c1d52-8c0f-4b8e-9a4e-3f0c2b9f7d11", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["code"])

	rec, _ = h.do(http.MethodGet, "/v1/autoscan?status=exploded", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(http.MethodGet, "/v1/autoscan?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControlLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.start("w1")
	<-h.gate.entered

	rec, body := h.do(http.MethodPost, "/v1/autoscan/"+id+"/resume", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "failed_precondition", body["code"])

	rec, _ = h.do(http.MethodDelete, "/v1/autoscan/"+id, nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec, body = h.do(http.MethodPost, "/v1/autoscan/"+id+"/pause", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, id, body["job_id"])

	close(h.gate.release)
	h.waitForStatus(id, domain.JobStatusPaused)

	rec, body = h.do(http.MethodPost, "/v1/autoscan/"+id+"/cancel", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "CANCELLED", body["status"])

	rec, _ = h.do(http.MethodDelete, "/v1/autoscan/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = h.do(http.MethodGet, "/v1/autoscan/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkspaceIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec, body := h.do(http.MethodGet, "/v1/workspaces/nobody/autoscan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nobody", body["workspace_id"])
	assert.Equal(t, false, body["active"])
	assert.Nil(t, body["job"])
}
