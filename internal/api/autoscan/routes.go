// Package autoscan binds the AutoScan job endpoints.
package autoscan

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ahrav/recon-armada/internal/api"
	"github.com/ahrav/recon-armada/internal/api/errs"
	appautoscan "github.com/ahrav/recon-armada/internal/app/autoscan"
	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
	"github.com/ahrav/recon-armada/pkg/web"
)

// maxListLimit caps the number of jobs returned by one list call.
const maxListLimit = 500

// JobService is the part of the AutoScan service the handlers drive.
type JobService interface {
	StartScan(ctx context.Context, cmd appautoscan.StartScanCommand) (uuid.UUID, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
	GetWorkspaceJob(ctx context.Context, workspaceID string) (*domain.Job, bool)
	ListJobs(ctx context.Context, filter domain.JobFilter) []*domain.Job
	PauseScan(ctx context.Context, jobID uuid.UUID) error
	ResumeScan(ctx context.Context, jobID uuid.UUID) error
	CancelScan(ctx context.Context, jobID uuid.UUID) error
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
}

// Config contains the dependencies needed by the autoscan handlers.
type Config struct {
	Log     *logger.Logger
	Service JobService
	Metrics api.APIMetrics
}

// Routes binds all the autoscan endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	if cfg.Metrics == nil {
		cfg.Metrics = api.NoopAPIMetrics{}
	}

	app.HandlerFunc(http.MethodPost, version, "/autoscan", start(cfg))
	app.HandlerFunc(http.MethodGet, version, "/autoscan", list(cfg))
	app.HandlerFunc(http.MethodGet, version, "/autoscan/{id}", getJob(cfg))
	app.HandlerFunc(http.MethodPost, version, "/autoscan/{id}/pause", control(cfg, JobService.PauseScan))
	app.HandlerFunc(http.MethodPost, version, "/autoscan/{id}/resume", control(cfg, JobService.ResumeScan))
	app.HandlerFunc(http.MethodPost, version, "/autoscan/{id}/cancel", control(cfg, JobService.CancelScan))
	app.HandlerFunc(http.MethodDelete, version, "/autoscan/{id}", deleteJob(cfg))
	app.HandlerFunc(http.MethodGet, version, "/workspaces/{id}/autoscan", workspaceJob(cfg))
}

func start(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		cfg.Metrics.IncStartRequestsTotal(ctx)

		var req startRequest
		if err := web.Decode(r, &req); err != nil {
			cfg.Metrics.IncStartRequestErrors(ctx, "decode")
			return errs.New(errs.InvalidArgument, err)
		}

		req.WorkspaceID = strings.TrimSpace(req.WorkspaceID)
		if err := errs.Check(req); err != nil {
			cfg.Metrics.IncStartRequestErrors(ctx, "validation")
			return errs.New(errs.InvalidArgument, err)
		}

		id, err := cfg.Service.StartScan(ctx, appautoscan.StartScanCommand{
			WorkspaceID:  req.WorkspaceID,
			TargetDomain: req.TargetDomain,
			Settings:     req.Settings,
			Profile:      req.Profile,
		})
		if err != nil {
			cfg.Metrics.IncStartRequestErrors(ctx, "rejected")
			return errs.New(errs.Unknown, err)
		}

		return startResponse{JobID: id.String(), Status: domain.JobStatusPending.String()}
	}
}

func list(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		filter, err := parseFilter(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		return toListResponse(cfg.Service.ListJobs(ctx, filter))
	}
}

// parseFilter reads the workspace_id, status and limit query parameters.
func parseFilter(r *http.Request) (domain.JobFilter, error) {
	q := r.URL.Query()
	filter := domain.JobFilter{WorkspaceID: q.Get("workspace_id")}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.ParseJobStatus(s)
			if status == "" {
				return domain.JobFilter{}, errs.FieldErrors{{Field: "status", Err: fmt.Sprintf("unknown status %q", s)}}
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > maxListLimit {
			return domain.JobFilter{}, errs.FieldErrors{{Field: "limit", Err: fmt.Sprintf("must be between 0 and %d", maxListLimit)}}
		}
		filter.Limit = limit
	}

	return filter, nil
}

func getJob(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		jobID, appErr := jobIDParam(r)
		if appErr != nil {
			return appErr
		}

		job, err := cfg.Service.GetJob(ctx, jobID)
		if err != nil {
			return errs.New(errs.Unknown, err)
		}

		return toJobResponse(job)
	}
}

// control runs a pause, resume or cancel request and answers with the job
// as it looks right after the request was accepted.
func control(cfg Config, op func(JobService, context.Context, uuid.UUID) error) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		jobID, appErr := jobIDParam(r)
		if appErr != nil {
			return appErr
		}

		if err := op(cfg.Service, ctx, jobID); err != nil {
			return errs.New(errs.Unknown, err)
		}

		job, err := cfg.Service.GetJob(ctx, jobID)
		if err != nil {
			return errs.New(errs.Unknown, err)
		}

		resp := toJobResponse(job)
		resp.status = http.StatusAccepted
		return resp
	}
}

func deleteJob(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		jobID, appErr := jobIDParam(r)
		if appErr != nil {
			return appErr
		}

		if err := cfg.Service.DeleteJob(ctx, jobID); err != nil {
			return errs.New(errs.Unknown, err)
		}

		return nil
	}
}

func workspaceJob(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		workspaceID := web.Param(r, "id")

		resp := workspaceResponse{WorkspaceID: workspaceID}
		if job, ok := cfg.Service.GetWorkspaceJob(ctx, workspaceID); ok {
			jr := toJobResponse(job)
			resp.Job = &jr
			resp.Active = !job.IsTerminal()
		}

		return resp
	}
}

func jobIDParam(r *http.Request) (uuid.UUID, *errs.Error) {
	jobID, err := uuid.Parse(web.Param(r, "id"))
	if err != nil {
		return uuid.Nil, errs.NewFieldErrors("id", fmt.Errorf("invalid job id: %w", err))
	}
	return jobID, nil
}
