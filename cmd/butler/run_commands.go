package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"butler/internal/ipc"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var deep bool
	var bypassOverride bool

	cmd := &cobra.Command{
		Use:   "run <rule>",
		Short: "Execute a single rule immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunRule(ipc.RunRuleRequest{
					Rule:           args[0],
					Deep:           deep,
					BypassOverride: bypassOverride,
				})
				if err != nil {
					return err
				}
				printRuleResult(cmd, resp.Result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "Force a deep check regardless of the rule's cadence")
	cmd.Flags().BoolVar(&bypassOverride, "bypass-override", false, "Skip the governance override filter")
	return cmd
}

func newRunAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Execute every rule in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunAll()
				if err != nil {
					return err
				}
				printBatch(cmd, resp)
				return nil
			})
		},
	}
}

func newRunSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run-set <set>",
		Short: "Execute the members of a rule set (\"all\" runs every rule)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunSet(args[0])
				if err != nil {
					return err
				}
				printBatch(cmd, resp)
				return nil
			})
		},
	}
}

func newEstimateCommand(ctx *commandContext) *cobra.Command {
	var deep bool
	var bypassOverride bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "estimate <rule>",
		Short: "Preview a rule's impact without performing any actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Estimate(ipc.EstimateRequest{
					Rule:           args[0],
					Deep:           deep,
					BypassOverride: bypassOverride,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Estimate)
				}
				stdout := cmd.OutOrStdout()
				estimate := resp.Estimate
				fmt.Fprintln(stdout, estimate.Message)
				rows := [][]string{
					{"Raw search matches", formatCount(estimate.RawMatches)},
					{"Skipped (recent view)", formatCount(estimate.SkippedRecentView)},
					{"Skipped (override)", formatCount(estimate.SkippedOverride)},
					{"Estimated actionable", formatCount(estimate.Actionable)},
				}
				table := renderTable([]string{"Measure", "Files"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(stdout, table)
				for _, warning := range estimate.Warnings {
					fmt.Fprintf(stdout, "warning (%s): %s\n", warning.Level, warning.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "Estimate a deep check")
	cmd.Flags().BoolVar(&bypassOverride, "bypass-override", false, "Skip the governance override filter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the estimate as JSON")
	return cmd
}

func printRuleResult(cmd *cobra.Command, result ipc.RuleResult) {
	stdout := cmd.OutOrStdout()
	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(stdout, "Rule %q %s (run %s)\n", result.RuleName, status, result.RunID)
	fmt.Fprintln(stdout, result.Summary)
	rows := [][]string{
		{"Matched", formatCount(result.Matched)},
		{"Eligible", formatCount(result.Eligible)},
		{"Succeeded", formatCount(result.Succeeded)},
		{"Failed", formatCount(result.Failed)},
		{"Skipped (override)", formatCount(result.SkippedOverride)},
		{"Skipped (recent view)", formatCount(result.SkippedRecentView)},
	}
	table := renderTable([]string{"Measure", "Files"}, rows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprintln(stdout, table)
}

func printBatch(cmd *cobra.Command, resp *ipc.BatchResponse) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Batch %s (%s)\n", resp.ParentRunID, resp.Scope)

	rows := make([][]string, 0, len(resp.Results))
	for _, result := range resp.Results {
		status := "ok"
		if !result.Success {
			status = "failed"
		}
		rows = append(rows, []string{
			result.RuleName,
			prettyLabel(string(result.Action)),
			status,
			formatCount(result.Matched),
			formatCount(result.Succeeded),
			formatCount(result.Failed),
		})
	}
	table := renderTable(
		[]string{"Rule", "Action", "Status", "Matched", "Succeeded", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
	fmt.Fprintln(stdout, table)

	totals := resp.Totals
	fmt.Fprintf(stdout, "%d rules processed, %d with errors; %d files matched, %d acted on, %d skipped by override\n",
		totals.RulesProcessed,
		totals.RulesWithErrors,
		totals.FilesMatched,
		totals.FilesActionAttempted,
		totals.FilesSkippedOverride,
	)
}
