package kv

import (
	"strings"

	"github.com/teranos/linkpulse/pulse"
)

// Key prefixes of the durable storage layout. UI readers depend on these names.
const (
	PrefixSchedules        = "schedules:"
	PrefixSchedulerEnabled = "schedulerEnabled:"
	PrefixScheduleFired    = "scheduleFired:"
	PrefixJobState         = "jobState:"
	PrefixProgress         = "progress:"
	PrefixQuotaDaily       = "quota:daily:"
	PrefixQuotaMonthly     = "quota:monthly:"
	PrefixHistory          = "history:"
	PrefixBacklog          = "backlog:"

	sessionsSuffix = ":sessions"
)

func SchedulesKey(k pulse.Kind) string { return PrefixSchedules + string(k) }
func SchedulerEnabledKey(k pulse.Kind) string { return PrefixSchedulerEnabled + string(k) }
func FiredKey(k pulse.Kind) string { return PrefixScheduleFired + string(k) }
func JobStateKey(k pulse.Kind) string { return PrefixJobState + string(k) }
func ProgressKey(k pulse.Kind) string { return PrefixProgress + string(k) }
func QuotaDailyKey(dateKey string) string { return PrefixQuotaDaily + dateKey }
func QuotaMonthlyKey(ym string) string { return PrefixQuotaMonthly + ym }
func HistoryKey(k pulse.Kind) string { return PrefixHistory + string(k) }
func SessionsKey(k pulse.Kind) string { return PrefixHistory + string(k) + sessionsSuffix }
func BacklogKey(k pulse.Kind) string { return PrefixBacklog + string(k) }

// KindOf extracts the automation kind from a per-kind key such as "progress:peopleSearch".
// Returns false for keys that are not scoped to a kind (quota keys).
func KindOf(key string) (pulse.Kind, bool) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSuffix(key[i+1:], sessionsSuffix)
	k := pulse.Kind(rest)
	return k, k.Valid()
}
