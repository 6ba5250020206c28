package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/daemon"
	"scribe/internal/daemonctl"
	"scribe/internal/daemonrun"
)

const (
	daemonStartTimeout = 15 * time.Second
	// Leaves room for the daemon's own drain before SIGKILL.
	daemonStopGrace = daemon.DefaultShutdownGrace + 10*time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run or control the scribe daemon",
	}
	cmd.AddCommand(newDaemonRunCommand(ctx))
	cmd.AddCommand(newDaemonStartCommand(ctx))
	cmd.AddCommand(newDaemonStopCommand(ctx))
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	return cmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the HTTP API and queue workers in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if ctx.verbose != nil && *ctx.verbose && opts.LogLevel == "" {
				opts.LogLevel = "debug"
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.DisableWorker, "no-worker", false, "Serve the API without processing jobs")
	cmd.Flags().BoolVar(&opts.SkipVoiceSync, "skip-voice-sync", false, "Do not sync intro samples at startup")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Development logging")
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			state, err := daemonctl.New(cfg).Start(cmd.Context(), executable, strings.TrimSpace(*ctx.configFlag), daemonStartTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch state {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(out, "Daemon is already running")
			default:
				fmt.Fprintf(out, "Daemon started (%s)\n", daemonctl.BaseURL(cfg.Paths.APIBind))
			}
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon, letting in-flight jobs finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.New(cfg).Stop(cmd.Context(), daemonStopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit in time and was killed\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap := daemonctl.New(cfg).Status(cmd.Context())
			view := daemonStatusView{Running: snap.Running, PID: snap.PID, URL: snap.BaseURL, Queue: snap.Queue}
			if snap.Health != nil {
				view.Health = snap.Health.Status
			}
			if done, err := writeStructured(cmd, outFormat, view); done {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			rows := [][]string{
				{"Running", okLabel(snap.Running, colorize)},
				{"API", view.URL},
			}
			if snap.PID > 0 {
				rows = append(rows, []string{"PID", fmt.Sprint(snap.PID)})
			}
			if view.Health != "" {
				rows = append(rows, []string{"Health", view.Health})
			}
			if q := snap.Queue; q != nil {
				rows = append(rows, []string{"Queue", fmt.Sprintf("%d visible, %d leased, %d dead-lettered", q.Visible, q.Leased, q.DeadLettered)})
				if w := q.Worker; w != nil {
					rows = append(rows, []string{"Worker", fmt.Sprintf("%d/%d slots busy, %d processed, %d failed",
						w.Busy, w.Workers, w.Processed, w.Failed)})
				}
			}
			fmt.Fprintln(out, renderTable(tableSpec{title: "Daemon", headers: []string{"Field", "Value"}}, rows))
			return nil
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

type daemonStatusView struct {
	Running bool             `json:"running" yaml:"running"`
	PID     int              `json:"pid,omitempty" yaml:"pid,omitempty"`
	URL     string           `json:"url" yaml:"url"`
	Health  string           `json:"health,omitempty" yaml:"health,omitempty"`
	Queue   *api.QueueStatus `json:"queue,omitempty" yaml:"queue,omitempty"`
}
