package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/quota"
)

// QuotaCmd shows daily action counters and monthly credits
var QuotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show daily limits and monthly credits",
	RunE:  runQuotaStatus,
}

var quotaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daily limits and monthly credits",
	RunE:  runQuotaStatus,
}

func runQuotaStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	st, err := connect(cmd).QuotaStatus(ctx)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return printJSON(st)
	}
	printQuota(st)
	return nil
}

func printQuota(st *quota.Status) {
	pterm.DefaultSection.Printf("Daily actions (%s)", st.DateKey)
	data := pterm.TableData{{"Action", "Used", "Limit", "Remaining"}}
	for _, a := range pulse.Actions {
		data = append(data, []string{
			string(a),
			fmt.Sprint(st.Daily.Count(a)),
			fmt.Sprint(st.Limits.Count(a)),
			remainingLabel(st.Remaining.Count(a)),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	pterm.DefaultSection.Printf("Monthly credits (%s)", st.YearMonthKey)
	credits := pterm.TableData{
		{"Credit", "Balance", "Allowance"},
		{"import", fmt.Sprint(st.Monthly.Import), fmt.Sprint(st.Allowance.Import)},
		{"ai", fmt.Sprint(st.Monthly.AI), fmt.Sprint(st.Allowance.AI)},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(credits).Render()

	pterm.Info.Printf("Hourly actions: %d used, %d remaining\n", st.HourlyUsed, st.HourlyRemaining)
}

func remainingLabel(n int) string {
	if n <= 0 {
		return pterm.Red("0")
	}
	return pterm.Green(fmt.Sprint(n))
}

func init() {
	addJSONFlag(QuotaCmd)
	QuotaCmd.AddCommand(quotaStatusCmd)
}
