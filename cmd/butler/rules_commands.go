package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"butler/internal/ipc"
	"butler/internal/rules"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List rules in document order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Rules()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Rules)
				}
				if len(resp.Rules) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No rules defined")
					return nil
				}
				rows := make([][]string, 0, len(resp.Rules))
				for _, rule := range resp.Rules {
					rows = append(rows, []string{
						rule.ID,
						truncate(rule.Name, 40),
						formatCount(rule.Importance),
						prettyLabel(string(rule.ActionKind())),
						scheduleLabel(rule.Override),
						formatCount(rule.RunCount),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Priority", "Action", "Schedule", "Runs"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit rules as JSON")
	return cmd
}

func newSetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sets",
		Short: "List rule sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sets()
				if err != nil {
					return err
				}
				if len(resp.Sets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No rule sets defined")
					return nil
				}
				rows := make([][]string, 0, len(resp.Sets))
				for _, set := range resp.Sets {
					rows = append(rows, []string{
						set.ID,
						truncate(set.Name, 40),
						scheduleLabel(set.Override),
						formatCount(len(set.RuleIDs)),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Schedule", "Members"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newServicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List services known to the Hydrus client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Services()
				if err != nil {
					return err
				}
				if len(resp.Services) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No services reported")
					return nil
				}
				rows := make([][]string, 0, len(resp.Services))
				for _, service := range resp.Services {
					rows = append(rows, []string{
						service.ServiceKey,
						truncate(service.Name, 40),
						service.TypePretty,
					})
				}
				table := renderTable(
					[]string{"Service Key", "Name", "Type"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <rule>",
		Short: "Show run statistics for one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RuleStats(args[0])
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Rule %q (%s)\n", resp.Rule.Name, resp.Rule.ID)
				rows := [][]string{
					{"Action", prettyLabel(string(resp.Rule.ActionKind()))},
					{"Priority", formatCount(resp.Rule.Importance)},
					{"Schedule", scheduleLabel(resp.Rule.Override)},
					{"Has run", yesNo(resp.Rule.HasRun)},
					{"Total runs", formatCount(resp.TotalRuns)},
					{"Completed runs", formatCount(resp.CompletedRuns)},
					{"Files processed", formatCount(resp.FilesProcessed)},
					{"Last run", formatOptionalTime(resp.LastRun)},
				}
				table := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
}

func scheduleLabel(override rules.ScheduleOverride) string {
	if interval, ok := override.CustomInterval(); ok {
		return fmt.Sprintf("every %s", formatInterval(interval))
	}
	return "default"
}

func formatInterval(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return d.String()
	}
}
