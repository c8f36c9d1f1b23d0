package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/job"
	"github.com/teranos/linkpulse/sym"
)

// JobCmd starts, stops and inspects automation runs
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: sym.Pulse + " Start, stop and inspect automation runs",
	Long: sym.Pulse + ` Start, stop and inspect automation runs.

At most one run per automation kind is active at a time. Targets left
over when a run ends early can be queued and are picked up by the next run.

Examples:
  linkpulse job start profileImport --urls https://www.linkedin.com/in/ada
  linkpulse job start bulkEngagement --targets targets.json --options @opts.json
  linkpulse job progress bulkEngagement
  linkpulse job stop bulkEngagement
  linkpulse job summary bulkEngagement`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobStartCmd = &cobra.Command{
	Use:   "start <kind>",
	Short: "Start a manual run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		targets, err := targetsFlags(cmd)
		if err != nil {
			return err
		}
		options, err := optionsFlag(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		state, err := connect(cmd).StartJob(ctx, kind, targets, options)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(state)
		}
		pterm.Success.Printf("Started %s run %s with %d targets\n", kind, state.RunID, len(state.Targets))
		return nil
	},
}

var jobStopCmd = &cobra.Command{
	Use:   "stop <kind>",
	Short: "Request the active run to stop after the current item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		state, err := connect(cmd).StopJob(ctx, kind)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(state)
		}
		pterm.Success.Printf("Stop requested for %s run %s\n", kind, state.RunID)
		return nil
	},
}

var jobProgressCmd = &cobra.Command{
	Use:   "progress <kind>",
	Short: "Show current/total of the active run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		p, err := connect(cmd).Progress(ctx, kind)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(p)
		}
		if !p.Running {
			pterm.Info.Printf("No active %s run\n", kind)
			return nil
		}
		pterm.Printf("%s %s %d/%d (run %s, updated %s)\n",
			sym.Pulse, kind, p.Current, p.Total, p.RunID, formatTime(p.LastUpdated))
		return nil
	},
}

var jobStateCmd = &cobra.Command{
	Use:   "state <kind>",
	Short: "Show the persisted state of the active run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		state, err := connect(cmd).JobState(ctx, kind)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(state)
		}
		if state == nil {
			pterm.Info.Printf("No active %s run\n", kind)
			return nil
		}
		printJobState(state)
		return nil
	},
}

var jobSummaryCmd = &cobra.Command{
	Use:   "summary <kind>",
	Short: "Show the summary of the most recent run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		s, err := connect(cmd).JobSummary(ctx, kind)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(s)
		}
		if s == nil {
			pterm.Info.Printf("No finished %s runs yet\n", kind)
			return nil
		}
		data := pterm.TableData{
			{"Run", s.RunID},
			{"Trigger", s.Trigger},
			{"Started", formatTime(s.StartedAt)},
			{"Finished", formatTime(s.FinishedAt)},
			{"Processed", fmt.Sprintf("%d/%d", s.Processed, s.Total)},
			{"Succeeded", fmt.Sprint(s.Succeeded)},
			{"Failed", fmt.Sprint(s.Failed)},
			{"Skipped", fmt.Sprint(s.Skipped)},
			{"Actions", metricsLabel(s.Metrics)},
			{"Stop reason", s.StopReason},
		}
		if s.Error != "" {
			data = append(data, []string{"Error", s.Error})
		}
		return pterm.DefaultTable.WithData(data).Render()
	},
}

var jobQueueCmd = &cobra.Command{
	Use:   "queue <kind>",
	Short: "Queue targets for the next run of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		targets, err := targetsFlags(cmd)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return errors.NewValidationError("no targets given (use --targets, --ids or --urls)")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		added, err := connect(cmd).QueueTargets(ctx, kind, targets)
		if err != nil {
			return err
		}
		pterm.Success.Printf("Queued %d new %s targets (%d duplicates ignored)\n", added, kind, len(targets)-added)
		return nil
	},
}

var jobBacklogCmd = &cobra.Command{
	Use:   "backlog <kind>",
	Short: "List queued targets of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		targets, err := connect(cmd).Backlog(ctx, kind)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(targets)
		}
		if len(targets) == 0 {
			pterm.Info.Printf("%s backlog is empty\n", kind)
			return nil
		}
		data := pterm.TableData{{"#", "ID", "Name", "URL"}}
		for i, t := range targets {
			data = append(data, []string{fmt.Sprint(i + 1), t.ID, t.Name, t.URL})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func printJobState(s *job.JobState) {
	data := pterm.TableData{
		{"Run", s.RunID},
		{"Kind", string(s.Kind)},
		{"Status", string(s.Status)},
		{"Trigger", string(s.Trigger)},
		{"Started", formatTime(s.StartedAt)},
		{"Cursor", fmt.Sprintf("%d/%d", s.Cursor, len(s.Targets))},
	}
	if s.ScheduleID != "" {
		data = append(data, []string{"Schedule", s.ScheduleID})
	}
	_ = pterm.DefaultTable.WithData(data).Render()
}

func metricsLabel(m pulse.Metrics) string {
	return fmt.Sprintf("likes %d, comments %d, shares %d, follows %d, connections %d",
		m.Likes, m.Comments, m.Shares, m.Follows, m.Connections)
}

// targetsFlags collects targets from --targets, --ids and --urls.
func targetsFlags(cmd *cobra.Command) ([]pulse.Target, error) {
	var targets []pulse.Target

	if path, _ := cmd.Flags().GetString("targets"); path != "" {
		fromFile, err := readTargetsFile(path)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromFile...)
	}
	ids, _ := cmd.Flags().GetStringSlice("ids")
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			targets = append(targets, pulse.Target{ID: id})
		}
	}
	urls, _ := cmd.Flags().GetStringSlice("urls")
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			targets = append(targets, pulse.Target{URL: u})
		}
	}
	return targets, nil
}

// readTargetsFile accepts a JSON array of targets or one id/url per line.
func readTargetsFile(path string) ([]pulse.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read targets file %s", path)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var targets []pulse.Target
		if err := json.Unmarshal([]byte(trimmed), &targets); err != nil {
			return nil, errors.NewValidationError("targets file %s: %v", path, err)
		}
		return targets, nil
	}

	var targets []pulse.Target
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "://") {
			targets = append(targets, pulse.Target{URL: line})
		} else {
			targets = append(targets, pulse.Target{ID: line})
		}
	}
	return targets, scanner.Err()
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("targets", "", "File with a JSON array of targets or one id/url per line")
	cmd.Flags().StringSlice("ids", nil, "Target ids (comma separated)")
	cmd.Flags().StringSlice("urls", nil, "Target URLs (comma separated)")
}

func init() {
	addTargetFlags(jobStartCmd)
	jobStartCmd.Flags().String("options", "", "Kind options as JSON or @file")
	addTargetFlags(jobQueueCmd)
	addJSONFlag(JobCmd)

	JobCmd.AddCommand(jobStartCmd)
	JobCmd.AddCommand(jobStopCmd)
	JobCmd.AddCommand(jobProgressCmd)
	JobCmd.AddCommand(jobStateCmd)
	JobCmd.AddCommand(jobSummaryCmd)
	JobCmd.AddCommand(jobQueueCmd)
	JobCmd.AddCommand(jobBacklogCmd)
}
