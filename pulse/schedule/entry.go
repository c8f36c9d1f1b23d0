package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
)

const minutesPerDay = 24 * 60

// Entry is a time-triggered job definition. Entries are immutable; edits are remove plus add.
type Entry struct {
	ID        string          `json:"id"`
	Kind      pulse.Kind      `json:"kind"`
	Time      string          `json:"time"` // "HH:MM", local time
	Options   json.RawMessage `json:"options,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Minute returns the entry time as minutes since local midnight.
func (e Entry) Minute() int {
	m, _ := ParseTime(e.Time)
	return m
}

// ParseTime validates an "HH:MM" string and returns minutes since midnight.
func ParseTime(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.NewValidationError("schedule time is required")
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, errors.NewValidationError("schedule time %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, errors.NewValidationError("schedule time %q has an invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, errors.NewValidationError("schedule time %q has an invalid minute", s)
	}
	return h*60 + m, nil
}

// minuteOfDay converts a wall clock time into minutes since midnight in t's location.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// Until returns how long until the next daily occurrence of the entry.
// Zero means the entry's minute has just started.
func (e Entry) Until(now time.Time) time.Duration {
	const day = 24 * 3600
	d := (e.Minute()*60 - secondOfDay(now) + day) % day
	return time.Duration(d) * time.Second
}

// FormatCountdown renders d as HH:MM:SS, clamped at zero.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

// Next returns the entry that triggers soonest and the remaining time.
func Next(entries []Entry, now time.Time) (Entry, time.Duration, bool) {
	var (
		best  Entry
		until time.Duration
		found bool
	)
	for _, e := range entries {
		d := e.Until(now)
		if !found || d < until {
			best, until, found = e, d, true
		}
	}
	return best, until, found
}
