package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Job mirrors the job view served by GET /v1/autoscan/{id}.
type Job struct {
	JobID           string                    `json:"job_id"`
	WorkspaceID     string                    `json:"workspace_id"`
	TargetDomain    string                    `json:"target_domain"`
	Status          string                    `json:"status"`
	CurrentPhase    string                    `json:"current_phase"`
	CompletedPhases []string                  `json:"completed_phases"`
	FailedPhases    []string                  `json:"failed_phases"`
	Progress        map[string]map[string]any `json:"phase_progress"`
	Results         map[string]map[string]any `json:"results"`
	Settings        map[string]any            `json:"settings"`
	Logs            []LogEntry                `json:"logs"`
	ErrorMessage    string                    `json:"error_message"`
	CreatedAt       time.Time                 `json:"created_at"`
	StartedAt       *time.Time                `json:"started_at"`
	CompletedAt     *time.Time                `json:"completed_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// LogEntry is one line of a job's activity log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
}

// JobList is the response of GET /v1/autoscan.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Count int   `json:"count"`
}

// WorkspaceStatus is the response of GET /v1/workspaces/{id}/autoscan.
type WorkspaceStatus struct {
	WorkspaceID string `json:"workspace_id"`
	Active      bool   `json:"active"`
	Job         *Job   `json:"job"`
}

// StartRequest is the body of POST /v1/autoscan.
type StartRequest struct {
	WorkspaceID  string         `json:"workspace_id"`
	TargetDomain string         `json:"target_domain"`
	Profile      string         `json:"profile,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
}

// StartResponse is returned for an accepted job.
type StartResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ListOptions filters a job listing.
type ListOptions struct {
	WorkspaceID string
	Statuses    []string
	Limit       int
}

// APIError is a non 2xx answer from the service.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Fields     []struct {
		Field string `json:"field"`
		Error string `json:"error"`
	} `json:"fields"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
	for _, f := range e.Fields {
		msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Error)
	}
	return msg
}

// Client talks to the AutoScan HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Start launches a job.
func (c *Client) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	var resp StartResponse
	err := c.do(ctx, http.MethodPost, "/v1/autoscan", req, &resp)
	return resp, err
}

// Get fetches a job.
func (c *Client) Get(ctx context.Context, jobID string) (Job, error) {
	var job Job
	err := c.do(ctx, http.MethodGet, "/v1/autoscan/"+url.PathEscape(jobID), nil, &job)
	return job, err
}

// List returns the jobs matching opts.
func (c *Client) List(ctx context.Context, opts ListOptions) (JobList, error) {
	q := url.Values{}
	if opts.WorkspaceID != "" {
		q.Set("workspace_id", opts.WorkspaceID)
	}
	if len(opts.Statuses) > 0 {
		q.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/v1/autoscan"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list JobList
	err := c.do(ctx, http.MethodGet, path, nil, &list)
	return list, err
}

// Workspace reports the current or most recent job of a workspace.
func (c *Client) Workspace(ctx context.Context, workspaceID string) (WorkspaceStatus, error) {
	var ws WorkspaceStatus
	err := c.do(ctx, http.MethodGet, "/v1/workspaces/"+url.PathEscape(workspaceID)+"/autoscan", nil, &ws)
	return ws, err
}

// Control sends pause, resume or cancel to a job.
func (c *Client) Control(ctx context.Context, jobID, action string) (Job, error) {
	var job Job
	err := c.do(ctx, http.MethodPost, "/v1/autoscan/"+url.PathEscape(jobID)+"/"+action, nil, &job)
	return job, err
}

// Delete removes a finished job.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/autoscan/"+url.PathEscape(jobID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
