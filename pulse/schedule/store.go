package schedule

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

// Store persists schedule entries, the per-kind master switch, and the
// per-entry "last fired" date. Every mutation is written before it returns.
type Store struct {
	kv  *kv.Store
	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a schedule store on the durable key/value store.
func NewStore(store *kv.Store) *Store {
	return &Store{kv: store, now: time.Now}
}

// SetClock sets the time source that decides whether a new entry's time already passed today.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Status is the UI view of one kind's scheduler.
type Status struct {
	Kind          pulse.Kind `json:"kind"`
	Enabled       bool       `json:"enabled"`
	Schedules     []Entry    `json:"schedules"`
	NextExecution *time.Time `json:"nextExecution,omitempty"`
	Countdown     string     `json:"countdown,omitempty"`
}

// Add validates and stores a new entry. An existing entry of the same kind at the
// same time is replaced. An entry whose time already passed today first fires tomorrow.
func (s *Store) Add(kind pulse.Kind, at string, options json.RawMessage) (*Entry, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError("unknown automation kind %q", kind)
	}
	minute, err := ParseTime(at)
	if err != nil {
		return nil, err
	}
	if _, err := pulse.DecodeOptions(kind, options); err != nil {
		return nil, errors.Wrapf(err, "schedule %s at %s", kind, at)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.list(kind)
	if err != nil {
		return nil, err
	}
	fired, err := s.firedDates(kind)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Time:      fmt.Sprintf("%02d:%02d", minute/60, minute%60),
		Options:   options,
		CreatedAt: now,
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Minute() == minute {
			delete(fired, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	kept = append(kept, entry)

	if minute < minuteOfDay(now) {
		fired[entry.ID] = pulse.DateKey(now)
	}

	if err := s.kv.Put(kv.FiredKey(kind), fired); err != nil {
		return nil, errors.Wrap(err, "store fired dates")
	}
	if err := s.kv.Put(kv.SchedulesKey(kind), kept); err != nil {
		return nil, errors.Wrap(err, "store schedules")
	}
	return &entry, nil
}

// Remove deletes the entry matching ref, an id or an "HH:MM" time.
// Returns false without error when nothing matched.
func (s *Store) Remove(kind pulse.Kind, ref string) (bool, error) {
	if !kind.Valid() {
		return false, errors.NewValidationError("unknown automation kind %q", kind)
	}
	refMinute, timeErr := ParseTime(ref)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.list(kind)
	if err != nil {
		return false, err
	}

	var removed []string
	kept := entries[:0]
	for _, e := range entries {
		if e.ID == ref || (timeErr == nil && e.Minute() == refMinute) {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		return false, nil
	}

	if err := s.kv.Put(kv.SchedulesKey(kind), kept); err != nil {
		return false, errors.Wrap(err, "store schedules")
	}

	fired, err := s.firedDates(kind)
	if err != nil {
		return true, err
	}
	for _, id := range removed {
		delete(fired, id)
	}
	return true, s.kv.Put(kv.FiredKey(kind), fired)
}

// List returns the entries of kind in insertion order.
func (s *Store) List(kind pulse.Kind) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(kind)
}

func (s *Store) list(kind pulse.Kind) ([]Entry, error) {
	var entries []Entry
	if _, err := s.kv.Get(kv.SchedulesKey(kind), &entries); err != nil {
		return nil, errors.Wrapf(err, "load schedules for %s", kind)
	}
	return entries, nil
}

// SetEnabled flips the per-kind master switch. Switching a kind on stamps
// entries whose time already passed today as fired, so they first run tomorrow
// instead of being caught up.
func (s *Store) SetEnabled(kind pulse.Kind, enabled bool) error {
	if !kind.Valid() {
		return errors.NewValidationError("unknown automation kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled {
		was, err := s.Enabled(kind)
		if err != nil {
			return err
		}
		if !was {
			if err := s.stampPassed(kind, s.now()); err != nil {
				return err
			}
		}
	}
	return s.kv.Put(kv.SchedulerEnabledKey(kind), enabled)
}

// stampPassed marks entries earlier than now's minute as fired today.
func (s *Store) stampPassed(kind pulse.Kind, now time.Time) error {
	entries, err := s.list(kind)
	if err != nil || len(entries) == 0 {
		return err
	}
	fired, err := s.firedDates(kind)
	if err != nil {
		return err
	}

	today := pulse.DateKey(now)
	nowMin := minuteOfDay(now)
	changed := false
	for _, e := range entries {
		if e.Minute() < nowMin && fired[e.ID] != today {
			fired[e.ID] = today
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return errors.Wrap(s.kv.Put(kv.FiredKey(kind), fired), "store fired dates")
}

// Enabled reports the master switch. Schedulers start disabled.
func (s *Store) Enabled(kind pulse.Kind) (bool, error) {
	var enabled bool
	if _, err := s.kv.Get(kv.SchedulerEnabledKey(kind), &enabled); err != nil {
		return false, errors.Wrapf(err, "load scheduler switch for %s", kind)
	}
	return enabled, nil
}

// FiredDates returns entry id -> date key of the last day the entry fired.
func (s *Store) FiredDates(kind pulse.Kind) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firedDates(kind)
}

func (s *Store) firedDates(kind pulse.Kind) (map[string]string, error) {
	fired := make(map[string]string)
	if _, err := s.kv.Get(kv.FiredKey(kind), &fired); err != nil {
		return nil, errors.Wrapf(err, "load fired dates for %s", kind)
	}
	return fired, nil
}

// MarkFired stamps the given entries as fired on dateKey.
func (s *Store) MarkFired(kind pulse.Kind, dateKey string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fired, err := s.firedDates(kind)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fired[id] = dateKey
	}
	return s.kv.Put(kv.FiredKey(kind), fired)
}

// Status assembles the scheduler view for kind at now.
func (s *Store) Status(kind pulse.Kind, now time.Time) (*Status, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError("unknown automation kind %q", kind)
	}
	enabled, err := s.Enabled(kind)
	if err != nil {
		return nil, err
	}
	entries, err := s.List(kind)
	if err != nil {
		return nil, err
	}

	st := &Status{Kind: kind, Enabled: enabled, Schedules: entries}
	if st.Schedules == nil {
		st.Schedules = []Entry{}
	}
	if enabled {
		if _, until, ok := Next(entries, now); ok {
			next := now.Add(until).Truncate(time.Minute)
			st.NextExecution = &next
			st.Countdown = FormatCountdown(until)
		}
	}
	return st, nil
}
