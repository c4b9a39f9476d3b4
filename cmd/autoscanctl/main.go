package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/ahrav/recon-armada/cmd/autoscanctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	jobIDUsage := "JOB_ID"

	return &cli.Command{
		Name:  "autoscanctl",
		Usage: "Drive AutoScan jobs over the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "Environment file to load before reading flags",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of the AutoScan API",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("AUTOSCAN_SERVER"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per request timeout",
				Value: 15 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON responses",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := godotenv.Load(cmd.String("env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return ctx, err
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Launch an AutoScan against a domain",
				ArgsUsage: "DOMAIN",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "workspace",
						Usage:    "Workspace that owns the scan",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "profile",
						Usage: "Named settings profile",
					},
					&cli.StringFlag{
						Name:  "settings",
						Usage: `Settings overrides as a JSON object, e.g. {"port_range":"top-100"}`,
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Follow the job until it finishes or pauses",
					},
					&cli.DurationFlag{
						Name:  "poll",
						Usage: "Poll interval used with --wait",
						Value: 2 * time.Second,
					},
				},
				Action: commands.StartAction,
			},
			{
				Name:      "get",
				Usage:     "Show a job",
				ArgsUsage: jobIDUsage,
				Action:    commands.GetAction,
			},
			{
				Name:  "list",
				Usage: "List jobs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "workspace",
						Usage: "Only jobs of this workspace",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Comma separated statuses, e.g. RUNNING,PAUSED",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs",
						Value: 50,
					},
				},
				Action: commands.ListAction,
			},
			{
				Name:      "workspace",
				Usage:     "Show the current or most recent job of a workspace",
				ArgsUsage: "WORKSPACE_ID",
				Action:    commands.WorkspaceAction,
			},
			{
				Name:      "pause",
				Usage:     "Pause a running job at its next phase boundary",
				ArgsUsage: jobIDUsage,
				Action:    commands.ControlAction("pause"),
			},
			{
				Name:      "resume",
				Usage:     "Resume a paused job",
				ArgsUsage: jobIDUsage,
				Action:    commands.ControlAction("resume"),
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a job",
				ArgsUsage: jobIDUsage,
				Action:    commands.ControlAction("cancel"),
			},
			{
				Name:      "delete",
				Usage:     "Delete a finished job",
				ArgsUsage: jobIDUsage,
				Action:    commands.DeleteAction,
			},
		},
	}
}
