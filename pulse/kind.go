// Package pulse holds the domain types shared by the automation scheduler,
// quota guard, history ledger, progress reporter and job coordinator.
package pulse

import (
	"time"

	"github.com/teranos/linkpulse/errors"
)

// Kind identifies one of the automation categories.
type Kind string

const (
	KindBulkEngagement Kind = "bulkEngagement"
	KindPeopleSearch   Kind = "peopleSearch"
	KindProfileImport  Kind = "profileImport"
)

// Kinds lists every automation kind in display order.
var Kinds = []Kind{KindBulkEngagement, KindPeopleSearch, KindProfileImport}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBulkEngagement, KindPeopleSearch, KindProfileImport:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ExclusionGroup names the set of kinds that may not run concurrently.
// The three profile import modes share one kind, so they exclude each other.
func (k Kind) ExclusionGroup() string {
	return string(k)
}

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.NewValidationError("unknown automation kind %q", s)
	}
	return k, nil
}

// Action is one kind of externally visible LinkedIn action, counted against a daily limit.
type Action string

const (
	ActionLike       Action = "like"
	ActionComment    Action = "comment"
	ActionShare      Action = "share"
	ActionFollow     Action = "follow"
	ActionConnection Action = "connection"
)

// Actions lists every counted action.
var Actions = []Action{ActionLike, ActionComment, ActionShare, ActionFollow, ActionConnection}

// DateKey is the calendar date of t in t's own location, used to key daily counters.
// Callers pass times already in the configured pulse timezone.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// YearMonthKey is the calendar month of t in t's own location, used to key monthly credits.
func YearMonthKey(t time.Time) string {
	return t.Format("2006-01")
}
