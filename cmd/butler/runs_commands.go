package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"butler/internal/ipc"
	"butler/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var ruleFilter string
	var statusFilter string
	var textFilter string
	var frame string
	var sortBy string
	var limit int
	var offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SearchRuns(ipc.RunSearchRequest{
					Rule:   ruleFilter,
					Status: statusFilter,
					Text:   textFilter,
					Frame:  frame,
					SortBy: sortBy,
					Limit:  limit,
					Offset: offset,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Runs) == 0 {
					fmt.Fprintln(stdout, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Runs))
				for _, run := range resp.Runs {
					rows = append(rows, []string{
						run.ID,
						truncate(run.RuleName, 32),
						formatTimestamp(run.StartTime),
						prettyLabel(run.Status),
						formatCount(run.Matched),
						formatCount(run.Succeeded),
						formatCount(run.Failed),
					})
				}
				table := renderTable(
					[]string{"Run", "Rule", "Started", "Status", "Matched", "Succeeded", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				)
				fmt.Fprintln(stdout, table)
				fmt.Fprintf(stdout, "Showing %d of %d runs\n", len(resp.Runs), resp.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ruleFilter, "rule", "", "Filter by rule id or name")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by run status")
	cmd.Flags().StringVar(&textFilter, "text", "", "Filter by rule name or summary text")
	cmd.Flags().StringVar(&frame, "frame", "1w", fmt.Sprintf("Time frame (%s)", strings.Join(store.TimeFrameLabels, ", ")))
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort order (time, rule, status)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit runs as JSON")

	cmd.AddCommand(newRunShowCommand(ctx))
	return cmd
}

func newRunShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its per-file events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunDetails(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				run := resp.Run
				fmt.Fprintf(stdout, "Run %s\n", run.ID)
				rows := [][]string{
					{"Rule", fmt.Sprintf("%s (%s)", run.RuleName, run.RuleID)},
					{"Parent run", run.ParentRunID},
					{"Started", formatTimestamp(run.StartTime)},
					{"Ended", formatOptionalTime(run.EndTime)},
					{"Status", prettyLabel(run.Status)},
					{"Matched", formatCount(run.Matched)},
					{"Eligible", formatCount(run.Eligible)},
					{"Succeeded", formatCount(run.Succeeded)},
					{"Failed", formatCount(run.Failed)},
					{"Summary", run.Summary},
				}
				table := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
				fmt.Fprintln(stdout, table)

				if len(resp.Events) == 0 {
					fmt.Fprintln(stdout, "No file events recorded")
					return nil
				}
				eventRows := make([][]string, 0, len(resp.Events))
				for _, event := range resp.Events {
					eventRows = append(eventRows, []string{
						truncate(event.FileHash, 16),
						prettyLabel(event.Status),
						truncate(event.Details, 40),
						truncate(event.Message, 40),
					})
				}
				eventTable := renderTable(
					[]string{"File", "Status", "Details", "Message"},
					eventRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, eventTable)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit run details as JSON")
	return cmd
}

func newFileCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "file <hash>",
		Short: "Show governance state and action history for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.FileLookup(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				if !resp.Tracked {
					fmt.Fprintln(stdout, "File is not tracked")
				} else {
					record := resp.Governance
					rows := [][]string{
						{"File hash", record.FileHash},
						{"Rules applied", strings.Join(record.RulesApplied, ", ")},
						{"Placement", strings.Join(record.Placement, ", ")},
						{"Force-in priority", formatCount(record.ForceInPriority)},
						{"Rating services", strings.Join(record.RatingServicesTouched, ", ")},
						{"Last updated", formatTimestamp(record.LastUpdated)},
					}
					table := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
					fmt.Fprintln(stdout, table)
				}

				if len(resp.History) == 0 {
					fmt.Fprintln(stdout, "No action history recorded")
					return nil
				}
				historyRows := make([][]string, 0, len(resp.History))
				for _, entry := range resp.History {
					historyRows = append(historyRows, []string{
						formatTimestamp(entry.StartTime),
						truncate(entry.RuleName, 32),
						prettyLabel(entry.Status),
						truncate(entry.Message, 48),
					})
				}
				historyTable := renderTable(
					[]string{"When", "Rule", "Status", "Message"},
					historyRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, historyTable)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit file details as JSON")
	return cmd
}

func newPruneLogsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune-logs",
		Short: "Compact duplicate no-op file events from the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PruneLogs()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d duplicate file events\n", resp.Removed)
				return nil
			})
		},
	}
}
