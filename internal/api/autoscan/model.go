package autoscan

import (
	"encoding/json"
	"net/http"
	"time"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/web"
)

// startRequest is the payload for launching an AutoScan.
type startRequest struct {
	WorkspaceID  string         `json:"workspace_id" validate:"required,max=128"`
	TargetDomain string         `json:"target_domain" validate:"required,max=253"`
	Profile      string         `json:"profile,omitempty" validate:"omitempty,max=64"`
	Settings     domain.Payload `json:"settings,omitempty"`
}

// Decode implements the web.Decoder interface.
func (s *startRequest) Decode(data []byte) error {
	return web.DecodeJSON(data, s)
}

type startResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Encode implements the web.Encoder interface.
func (sr startResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(sr)
	return data, "application/json", err
}

// HTTPStatus reports 201 for an accepted job.
func (startResponse) HTTPStatus() int { return http.StatusCreated }

// jobResponse is the full view of one job.
type jobResponse struct {
	JobID           string                          `json:"job_id"`
	WorkspaceID     string                          `json:"workspace_id"`
	TargetDomain    string                          `json:"target_domain"`
	Status          string                          `json:"status"`
	CurrentPhase    string                          `json:"current_phase,omitempty"`
	CompletedPhases []domain.Phase                  `json:"completed_phases"`
	FailedPhases    []domain.Phase                  `json:"failed_phases"`
	Progress        map[domain.Phase]domain.Payload `json:"phase_progress,omitempty"`
	Results         map[domain.Phase]domain.Payload `json:"results,omitempty"`
	Settings        domain.Payload                  `json:"settings"`
	Logs            []domain.LogEntry               `json:"logs"`
	ErrorMessage    string                          `json:"error_message,omitempty"`
	CreatedAt       time.Time                       `json:"created_at"`
	StartedAt       *time.Time                      `json:"started_at,omitempty"`
	CompletedAt     *time.Time                      `json:"completed_at,omitempty"`
	UpdatedAt       time.Time                       `json:"updated_at"`

	status int
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		JobID:           job.JobID().String(),
		WorkspaceID:     job.WorkspaceID(),
		TargetDomain:    job.TargetDomain(),
		Status:          job.Status().String(),
		CurrentPhase:    job.CurrentPhase().String(),
		CompletedPhases: nonNil(job.CompletedPhases()),
		FailedPhases:    nonNil(job.FailedPhases()),
		Progress:        job.PhaseProgress(),
		Results:         job.Results(),
		Settings:        job.Settings(),
		Logs:            nonNil(job.RecentLogs()),
		ErrorMessage:    job.ErrorMessage(),
		CreatedAt:       job.CreatedAt(),
		StartedAt:       optionalTime(job.StartedAt()),
		CompletedAt:     optionalTime(job.CompletedAt()),
		UpdatedAt:       job.UpdatedAt(),
	}
}

// Encode implements the web.Encoder interface.
func (jr jobResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(jr)
	return data, "application/json", err
}

// HTTPStatus lets control operations answer 202.
func (jr jobResponse) HTTPStatus() int {
	if jr.status == 0 {
		return http.StatusOK
	}
	return jr.status
}

// jobSummary is the list view of a job.
type jobSummary struct {
	JobID           string         `json:"job_id"`
	WorkspaceID     string         `json:"workspace_id"`
	TargetDomain    string         `json:"target_domain"`
	Status          string         `json:"status"`
	CurrentPhase    string         `json:"current_phase,omitempty"`
	CompletedPhases []domain.Phase `json:"completed_phases"`
	FailedPhases    []domain.Phase `json:"failed_phases"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

type listResponse struct {
	Jobs  []jobSummary `json:"jobs"`
	Count int          `json:"count"`
}

func toListResponse(jobs []*domain.Job) listResponse {
	out := listResponse{Jobs: make([]jobSummary, 0, len(jobs)), Count: len(jobs)}
	for _, job := range jobs {
		out.Jobs = append(out.Jobs, jobSummary{
			JobID:           job.JobID().String(),
			WorkspaceID:     job.WorkspaceID(),
			TargetDomain:    job.TargetDomain(),
			Status:          job.Status().String(),
			CurrentPhase:    job.CurrentPhase().String(),
			CompletedPhases: nonNil(job.CompletedPhases()),
			FailedPhases:    nonNil(job.FailedPhases()),
			CreatedAt:       job.CreatedAt(),
			CompletedAt:     optionalTime(job.CompletedAt()),
		})
	}
	return out
}

// Encode implements the web.Encoder interface.
func (lr listResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(lr)
	return data, "application/json", err
}

// workspaceResponse reports a workspace's current or most recent job. Job is
// null when the workspace has never run an AutoScan.
type workspaceResponse struct {
	WorkspaceID string       `json:"workspace_id"`
	Active      bool         `json:"active"`
	Job         *jobResponse `json:"job"`
}

// Encode implements the web.Encoder interface.
func (wr workspaceResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(wr)
	return data, "application/json", err
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
