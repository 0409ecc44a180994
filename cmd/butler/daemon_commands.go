package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"butler/internal/daemonctl"
	"butler/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the butler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the butler daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Shutting down daemon...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the butler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause scheduled rule execution (daemon keeps running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp != nil && resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Scheduler paused")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Pause request sent")
				}
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume scheduled rule execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				if resp != nil && resp.Started {
					fmt.Fprintln(cmd.OutOrStdout(), "Scheduler resumed")
					return nil
				}
				message := "Resume request sent"
				if resp != nil && strings.TrimSpace(resp.Message) != "" {
					message = resp.Message
				}
				fmt.Fprintln(cmd.OutOrStdout(), message)
				return nil
			})
		},
	}

	statusCmd := newStatusCommand(ctx)

	return []*cobra.Command{startCmd, stopCmd, restartCmd, pauseCmd, resumeCmd, statusCmd}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, scheduler, and content status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if statusResp.Running {
				fmt.Fprintln(stdout, renderStatusLine("Butler", statusOK, fmt.Sprintf("Running (pid %d)", statusResp.PID), colorize))
				if statusResp.Scheduler.Running {
					fmt.Fprintln(stdout, renderStatusLine("Scheduler", statusOK, "Active", colorize))
				} else {
					fmt.Fprintln(stdout, renderStatusLine("Scheduler", statusWarn, "Paused", colorize))
				}
				if !statusResp.Scheduler.LastTick.IsZero() {
					fmt.Fprintln(stdout, renderStatusLine("Last tick", statusInfo, formatTimestamp(statusResp.Scheduler.LastTick), colorize))
				}
				if statusResp.Scheduler.LastError != "" {
					fmt.Fprintln(stdout, renderStatusLine("Last tick error", statusError, statusResp.Scheduler.LastError, colorize))
				}
				if statusResp.Scheduler.PruningJob {
					fmt.Fprintln(stdout, renderStatusLine("Log pruning", statusOK, fmt.Sprintf("Next run %s", formatTimestamp(statusResp.Scheduler.NextPruning)), colorize))
				}
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Butler", statusWarn, "Not running (run `butler start`)", colorize))
			}

			if statusResp.HydrusOK {
				fmt.Fprintln(stdout, renderStatusLine("Hydrus API", statusOK, statusResp.HydrusDetail, colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Hydrus API", statusError, statusResp.HydrusDetail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Content", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := [][]string{
				{"Rules", formatCount(statusResp.Counts.Rules)},
				{"Rule sets", formatCount(statusResp.Counts.Sets)},
				{"Runs", formatCount(statusResp.Counts.Runs)},
				{"File events", formatCount(statusResp.Counts.FileEvents)},
				{"Tracked files", formatCount(statusResp.Counts.TrackedFiles)},
			}
			table := renderTable([]string{"Kind", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(stdout, table)

			if statusResp.DatabasePath != "" {
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, statusResp.DatabasePath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Rules file", statusInfo, statusResp.RulesPath, colorize))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
