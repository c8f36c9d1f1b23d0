package commands

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse/history"
)

// HistoryCmd browses, clears and exports per-kind item history
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse, clear and export processed targets",
	Long: `Browse, clear and export processed targets.

Each automation kind keeps a bounded history of processed items, newest first.

Examples:
  linkpulse history ls bulkEngagement --outcome failed
  linkpulse history ls peopleSearch --query ada --detail
  linkpulse history export profileImport -o imports.csv
  linkpulse history clear bulkEngagement`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var historyListCmd = &cobra.Command{
	Use:     "ls <kind>",
	Aliases: []string{"list"},
	Short:   "List processed targets, newest first",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		filter := history.Filter{}
		filter.Query, _ = cmd.Flags().GetString("query")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		filter.IncludeDetail, _ = cmd.Flags().GetBool("detail")
		outcome, _ := cmd.Flags().GetString("outcome")
		switch history.Outcome(outcome) {
		case "", history.OutcomeSuccess, history.OutcomeFailed, history.OutcomeSkipped:
			filter.Outcome = history.Outcome(outcome)
		default:
			return errors.NewValidationError("unknown outcome %q (success, failed, skipped)", outcome)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		records, err := connect(cmd).History(ctx, kind, filter)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(records)
		}
		if len(records) == 0 {
			pterm.Info.Printf("No %s history\n", kind)
			return nil
		}

		data := pterm.TableData{{"Time", "Target", "Outcome", "Actions", "Note"}}
		for _, r := range records {
			name := r.Target.Name
			if name == "" {
				name = r.Target.Key()
			}
			note := r.Reason
			if r.Error != "" {
				note = r.Error
			}
			data = append(data, []string{formatTime(r.Timestamp), name, outcomeLabel(r.Outcome), metricsLabel(r.Metrics), note})
			if filter.IncludeDetail {
				for _, d := range r.Details {
					data = append(data, []string{"", "  " + d.Subject, d.Outcome, string(d.Action), d.Note})
				}
			}
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <kind>",
	Short: "Delete item and session history of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		if err := connect(cmd).ClearHistory(ctx, kind); err != nil {
			return err
		}
		pterm.Success.Printf("Cleared %s history\n", kind)
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <kind>",
	Short: "Export history as CSV, one row per detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		rows, err := connect(cmd).ExportHistory(ctx, kind)
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		path, _ := cmd.Flags().GetString("output")
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				return errors.Wrapf(err, "create %s", path)
			}
			defer f.Close()
			out = f
		}
		if err := writeCSV(out, rows); err != nil {
			return err
		}
		if path != "" {
			pterm.Success.Printf("Wrote %d rows to %s\n", len(rows), path)
		}
		return nil
	},
}

func writeCSV(w io.Writer, rows []history.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(history.RowHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.Strings()); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

func outcomeLabel(o history.Outcome) string {
	switch o {
	case history.OutcomeSuccess:
		return pterm.Green(string(o))
	case history.OutcomeFailed:
		return pterm.Red(string(o))
	default:
		return pterm.Gray(string(o))
	}
}

func init() {
	historyListCmd.Flags().StringP("query", "q", "", "Match target name, url or id")
	historyListCmd.Flags().String("outcome", "", "Only success, failed or skipped")
	historyListCmd.Flags().IntP("limit", "n", 50, "Maximum records")
	historyListCmd.Flags().Bool("detail", false, "Include per-action detail rows")
	historyExportCmd.Flags().StringP("output", "o", "", "Write CSV to file instead of stdout")
	addJSONFlag(HistoryCmd)

	HistoryCmd.AddCommand(historyListCmd)
	HistoryCmd.AddCommand(historyClearCmd)
	HistoryCmd.AddCommand(historyExportCmd)
}
