package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/schedule"
	"github.com/teranos/linkpulse/sym"
)

// ScheduleCmd manages daily run times per automation kind
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: sym.Pulse + " Manage time-triggered runs",
	Long: sym.Pulse + ` Manage time-triggered runs.

Each automation kind has a list of daily HH:MM entries and an on/off switch.
An enabled entry fires at most once per day.

Examples:
  linkpulse schedule add peopleSearch 09:30 --options '{"keyword":"golang"}'
  linkpulse schedule ls peopleSearch
  linkpulse schedule rm peopleSearch 09:30
  linkpulse schedule enable peopleSearch
  linkpulse schedule countdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <kind> <HH:MM>",
	Short: "Add a daily run time",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		options, err := optionsFlag(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		entry, err := connect(cmd).AddSchedule(ctx, kind, args[1], options)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(entry)
		}
		pterm.Success.Printf("Scheduled %s at %s (id %s)\n", kind, entry.Time, entry.ID)
		return nil
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:     "rm <kind> <id|HH:MM>",
	Aliases: []string{"remove"},
	Short:   "Remove a run time by id or time",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		removed, err := connect(cmd).RemoveSchedule(ctx, kind, args[1])
		if err != nil {
			return err
		}
		if !removed {
			pterm.Warning.Printf("No %s schedule matches %s\n", kind, args[1])
			return nil
		}
		pterm.Success.Printf("Removed %s schedule %s\n", kind, args[1])
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:     "ls [kind]",
	Aliases: []string{"list", "status"},
	Short:   "Show schedules, switch and next run",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := pulse.Kinds
		if len(args) == 1 {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			kinds = []pulse.Kind{kind}
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		c := connect(cmd)

		statuses := make([]*schedule.Status, 0, len(kinds))
		for _, kind := range kinds {
			st, err := c.SchedulerStatus(ctx, kind)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}
		if wantJSON(cmd) {
			return printJSON(statuses)
		}

		data := pterm.TableData{{"Kind", "Enabled", "Time", "ID", "Next run"}}
		for _, st := range statuses {
			next := "-"
			if st.NextExecution != nil {
				next = fmt.Sprintf("%s (in %s)", formatTime(*st.NextExecution), st.Countdown)
			}
			if len(st.Schedules) == 0 {
				data = append(data, []string{string(st.Kind), enabledLabel(st.Enabled), "-", "-", next})
				continue
			}
			for i, e := range st.Schedules {
				row := []string{"", "", e.Time, e.ID, ""}
				if i == 0 {
					row[0], row[1], row[4] = string(st.Kind), enabledLabel(st.Enabled), next
				}
				data = append(data, row)
			}
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func setEnabledCmd(use string, enabled bool) *cobra.Command {
	verb := "Enable"
	if !enabled {
		verb = "Disable"
	}
	return &cobra.Command{
		Use:   use + " <kind>",
		Short: verb + " the scheduler of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := connect(cmd).SetSchedulerEnabled(ctx, kind, enabled); err != nil {
				return err
			}
			pterm.Success.Printf("%s scheduler %sd\n", kind, use)
			return nil
		},
	}
}

var scheduleCountdownCmd = &cobra.Command{
	Use:   "countdown [kind]",
	Short: "Show HH:MM:SS until the next run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := pulse.Kinds
		if len(args) == 1 {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			kinds = []pulse.Kind{kind}
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		c := connect(cmd)

		countdowns := make([]*schedule.Countdown, 0, len(kinds))
		for _, kind := range kinds {
			cd, err := c.Countdown(ctx, kind)
			if err != nil {
				return err
			}
			countdowns = append(countdowns, cd)
		}
		if wantJSON(cmd) {
			return printJSON(countdowns)
		}
		for _, cd := range countdowns {
			switch {
			case !cd.Enabled:
				pterm.Printf("%s %-16s disabled\n", sym.Pulse, cd.Kind)
			case cd.Remaining == "":
				pterm.Printf("%s %-16s no schedules\n", sym.Pulse, cd.Kind)
			default:
				pterm.Printf("%s %-16s %s (at %s)\n", sym.Pulse, cd.Kind, cd.Remaining, cd.Next)
			}
		}
		return nil
	},
}

func enabledLabel(enabled bool) string {
	if enabled {
		return pterm.Green("on")
	}
	return pterm.Gray("off")
}

func init() {
	scheduleAddCmd.Flags().String("options", "", `Kind options as JSON or @file (e.g. '{"keyword":"golang"}')`)
	addJSONFlag(ScheduleCmd)

	ScheduleCmd.AddCommand(scheduleAddCmd)
	ScheduleCmd.AddCommand(scheduleRemoveCmd)
	ScheduleCmd.AddCommand(scheduleListCmd)
	ScheduleCmd.AddCommand(setEnabledCmd("enable", true))
	ScheduleCmd.AddCommand(setEnabledCmd("disable", false))
	ScheduleCmd.AddCommand(scheduleCountdownCmd)
}
