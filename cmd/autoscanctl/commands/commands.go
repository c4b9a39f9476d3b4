// Package commands implements the autoscanctl subcommands.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// ErrMissingArgument is returned when a positional argument is absent.
var ErrMissingArgument = errors.New("missing argument")

func newClient(cmd *cli.Command) *Client {
	return NewClient(cmd.String("server"), cmd.Duration("timeout"))
}

func firstArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.Args().First())
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return v, nil
}

// StartAction launches an AutoScan.
func StartAction(ctx context.Context, cmd *cli.Command) error {
	domain, err := firstArg(cmd, "target domain")
	if err != nil {
		return err
	}

	req := StartRequest{
		WorkspaceID:  cmd.String("workspace"),
		TargetDomain: domain,
		Profile:      cmd.String("profile"),
	}
	if raw := cmd.String("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Settings); err != nil {
			return fmt.Errorf("parsing --settings: %w", err)
		}
	}

	resp, err := newClient(cmd).Start(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "started job %s (%s)\n", resp.JobID, resp.Status)

	if !cmd.Bool("wait") {
		return nil
	}
	return waitForJob(ctx, cmd, resp.JobID)
}

// GetAction prints one job.
func GetAction(ctx context.Context, cmd *cli.Command) error {
	id, err := firstArg(cmd, "job id")
	if err != nil {
		return err
	}
	job, err := newClient(cmd).Get(ctx, id)
	if err != nil {
		return err
	}
	return show(cmd, job, func(w io.Writer) error { return renderJob(w, job) })
}

// ListAction prints the jobs matching the filter flags.
func ListAction(ctx context.Context, cmd *cli.Command) error {
	opts := ListOptions{
		WorkspaceID: cmd.String("workspace"),
		Limit:       int(cmd.Int("limit")),
	}
	if s := cmd.String("status"); s != "" {
		opts.Statuses = strings.Split(s, ",")
	}

	list, err := newClient(cmd).List(ctx, opts)
	if err != nil {
		return err
	}
	return show(cmd, list, func(w io.Writer) error { return renderJobList(w, list.Jobs) })
}

// WorkspaceAction prints a workspace's current or most recent job.
func WorkspaceAction(ctx context.Context, cmd *cli.Command) error {
	id, err := firstArg(cmd, "workspace id")
	if err != nil {
		return err
	}
	ws, err := newClient(cmd).Workspace(ctx, id)
	if err != nil {
		return err
	}
	return show(cmd, ws, func(w io.Writer) error {
		if ws.Job == nil {
			_, err := fmt.Fprintf(w, "workspace %s has no autoscan\n", ws.WorkspaceID)
			return err
		}
		return renderJob(w, *ws.Job)
	})
}

// ControlAction returns an action that sends the named control signal.
func ControlAction(action string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := firstArg(cmd, "job id")
		if err != nil {
			return err
		}
		job, err := newClient(cmd).Control(ctx, id, action)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out(cmd), "%s: job %s is %s\n", action, job.JobID, job.Status)
		return err
	}
}

// DeleteAction removes a finished job.
func DeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := firstArg(cmd, "job id")
	if err != nil {
		return err
	}
	if err := newClient(cmd).Delete(ctx, id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out(cmd), "deleted job %s\n", id)
	return err
}

// terminal reports whether status ends a job.
func terminal(status string) bool {
	switch status {
	case "COMPLETED", "FAILED", "CANCELLED":
		return true
	}
	return false
}

// waitForJob polls the job until it reaches a terminal or paused status.
func waitForJob(ctx context.Context, cmd *cli.Command, jobID string) error {
	client := newClient(cmd)
	ticker := time.NewTicker(cmd.Duration("poll"))
	defer ticker.Stop()

	last := ""
	for {
		job, err := client.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if line := job.Status + " " + job.CurrentPhase; line != last {
			fmt.Fprintf(out(cmd), "%s  %-10s %s\n", time.Now().Format(time.TimeOnly), job.Status, job.CurrentPhase)
			last = line
		}
		if terminal(job.Status) || job.Status == "PAUSED" {
			return renderJob(out(cmd), job)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// show prints v as JSON when --json is set and through render otherwise.
func show(cmd *cli.Command, v any, render func(io.Writer) error) error {
	w := out(cmd)
	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return render(w)
}
