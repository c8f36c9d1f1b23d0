package pulse

import (
	"encoding/json"
	"strings"

	"github.com/teranos/linkpulse/errors"
)

// Options is the kind-specific configuration of a job or schedule entry.
type Options interface {
	// Validate rejects incomplete or contradictory settings.
	Validate() error
	// Actions returns the counted actions a single item may perform.
	Actions() []Action
	// CreditCost is the monthly credit consumption estimated for one item.
	CreditCost() Credits
}

// BulkEngagementOptions configures content engagement on feed or search posts.
type BulkEngagementOptions struct {
	Keywords  []string `json:"keywords,omitempty"`
	Like      bool     `json:"like"`
	Comment   bool     `json:"comment"`
	Share     bool     `json:"share"`
	Follow    bool     `json:"follow"`
	AIComment bool     `json:"aiComment,omitempty"`
}

func (o BulkEngagementOptions) Validate() error {
	if !o.Like && !o.Comment && !o.Share && !o.Follow {
		return errors.NewValidationError("bulkEngagement needs at least one of like, comment, share, follow")
	}
	if o.AIComment && !o.Comment {
		return errors.NewValidationError("aiComment requires comment to be enabled")
	}
	return nil
}

func (o BulkEngagementOptions) Actions() []Action {
	var actions []Action
	if o.Like {
		actions = append(actions, ActionLike)
	}
	if o.Comment {
		actions = append(actions, ActionComment)
	}
	if o.Share {
		actions = append(actions, ActionShare)
	}
	if o.Follow {
		actions = append(actions, ActionFollow)
	}
	return actions
}

func (o BulkEngagementOptions) CreditCost() Credits {
	if o.AIComment {
		return Credits{AI: 1}
	}
	return Credits{}
}

// PeopleSearchOptions configures connection requests sent to search results.
type PeopleSearchOptions struct {
	Keyword        string `json:"keyword"`
	ConnectionNote string `json:"connectionNote,omitempty"`
}

// MaxConnectionNote is LinkedIn's limit on invitation notes.
const MaxConnectionNote = 300

func (o PeopleSearchOptions) Validate() error {
	if strings.TrimSpace(o.Keyword) == "" {
		return errors.NewValidationError("peopleSearch requires a keyword")
	}
	if len(o.ConnectionNote) > MaxConnectionNote {
		return errors.NewValidationError("connection note exceeds %d characters", MaxConnectionNote)
	}
	return nil
}

func (o PeopleSearchOptions) Actions() []Action { return []Action{ActionConnection} }

func (o PeopleSearchOptions) CreditCost() Credits { return Credits{} }

// ImportMode selects what a profile import run does with each imported profile.
type ImportMode string

const (
	ImportConnectionsOnly ImportMode = "connectionsOnly"
	ImportEngagementOnly  ImportMode = "engagementOnly"
	ImportCombined        ImportMode = "combined"
)

// ProfileImportOptions configures engagement with an imported list of profile URLs.
type ProfileImportOptions struct {
	Mode           ImportMode `json:"mode"`
	Like           bool       `json:"like"`
	Comment        bool       `json:"comment"`
	PostsPerTarget int        `json:"postsPerTarget,omitempty"`
	ConnectionNote string     `json:"connectionNote,omitempty"`
}

func (o ProfileImportOptions) Validate() error {
	switch o.Mode {
	case ImportConnectionsOnly:
	case ImportEngagementOnly, ImportCombined:
		if !o.Like && !o.Comment {
			return errors.NewValidationError("%s import needs like or comment enabled", o.Mode)
		}
	default:
		return errors.NewValidationError("unknown import mode %q", o.Mode)
	}
	if o.PostsPerTarget < 0 {
		return errors.NewValidationError("postsPerTarget must not be negative")
	}
	if len(o.ConnectionNote) > MaxConnectionNote {
		return errors.NewValidationError("connection note exceeds %d characters", MaxConnectionNote)
	}
	return nil
}

func (o ProfileImportOptions) Actions() []Action {
	var actions []Action
	if o.Mode == ImportConnectionsOnly || o.Mode == ImportCombined {
		actions = append(actions, ActionConnection)
	}
	if o.Mode == ImportEngagementOnly || o.Mode == ImportCombined {
		if o.Like {
			actions = append(actions, ActionLike)
		}
		if o.Comment {
			actions = append(actions, ActionComment)
		}
	}
	return actions
}

// CreditCost charges one import credit per processed profile.
func (o ProfileImportOptions) CreditCost() Credits { return Credits{Import: 1} }

// DecodeOptions parses raw JSON options for kind and validates them.
// Empty input decodes to the zero options of the kind before validation.
func DecodeOptions(kind Kind, raw json.RawMessage) (Options, error) {
	var opts Options
	switch kind {
	case KindBulkEngagement:
		o := BulkEngagementOptions{}
		if err := unmarshalOptions(raw, &o); err != nil {
			return nil, err
		}
		opts = o
	case KindPeopleSearch:
		o := PeopleSearchOptions{}
		if err := unmarshalOptions(raw, &o); err != nil {
			return nil, err
		}
		opts = o
	case KindProfileImport:
		o := ProfileImportOptions{}
		if err := unmarshalOptions(raw, &o); err != nil {
			return nil, err
		}
		opts = o
	default:
		return nil, errors.NewValidationError("unknown automation kind %q", kind)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func unmarshalOptions(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.NewValidationError("options are not valid JSON: %s", err.Error())
	}
	return nil
}
