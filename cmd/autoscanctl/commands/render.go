package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func renderJob(w io.Writer, job Job) error {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("Job ID", job.JobID)
	table.Append("Workspace", job.WorkspaceID)
	table.Append("Target", job.TargetDomain)
	table.Append("Status", job.Status)
	table.Append("Current phase", orDash(job.CurrentPhase))
	table.Append("Completed", orDash(strings.Join(job.CompletedPhases, ", ")))
	table.Append("Failed", orDash(strings.Join(job.FailedPhases, ", ")))
	table.Append("Created", formatTime(&job.CreatedAt))
	table.Append("Started", formatTime(job.StartedAt))
	table.Append("Completed at", formatTime(job.CompletedAt))
	if job.ErrorMessage != "" {
		table.Append("Error", job.ErrorMessage)
	}
	if err := table.Render(); err != nil {
		return err
	}

	if len(job.Results) > 0 {
		phases := make([]string, 0, len(job.Results))
		for p := range job.Results {
			phases = append(phases, p)
		}
		sort.Strings(phases)

		results := tablewriter.NewWriter(w)
		results.Header("Phase", "Summary")
		for _, p := range phases {
			results.Append(p, summarizeResult(job.Results[p]))
		}
		if err := results.Render(); err != nil {
			return err
		}
	}

	for _, l := range job.Logs {
		if _, err := fmt.Fprintf(w, "%s %-5s %s %s\n", l.Timestamp.Local().Format(time.TimeOnly), l.Level, orDash(l.Phase), l.Message); err != nil {
			return err
		}
	}
	return nil
}

// summaryKeys are the scalar counters each phase reports.
var summaryKeys = []string{"count", "total_vulns", "critical", "high", "medium"}

func summarizeResult(result map[string]any) string {
	parts := make([]string, 0, len(summaryKeys))
	for _, k := range summaryKeys {
		if v, ok := result[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d fields", len(result))
	}
	return strings.Join(parts, " ")
}

func renderJobList(w io.Writer, jobs []Job) error {
	table := tablewriter.NewWriter(w)
	table.Header("Job ID", "Workspace", "Target", "Status", "Phase", "Created")
	for _, j := range jobs {
		table.Append(j.JobID, j.WorkspaceID, j.TargetDomain, j.Status, orDash(j.CurrentPhase), formatTime(&j.CreatedAt))
	}
	return table.Render()
}
