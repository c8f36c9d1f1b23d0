package pulse

// Target is one unit of work: a post, a search result profile, an imported profile URL.
type Target struct {
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}

// Key identifies the target for history lookups and backlog acknowledgement.
func (t Target) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.URL
}

// Metrics counts the actions an item or a run produced.
type Metrics struct {
	Likes       int `json:"likes"`
	Comments    int `json:"comments"`
	Shares      int `json:"shares"`
	Follows     int `json:"follows"`
	Connections int `json:"connections"`
}

// Add returns the element-wise sum.
func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		Likes:       m.Likes + o.Likes,
		Comments:    m.Comments + o.Comments,
		Shares:      m.Shares + o.Shares,
		Follows:     m.Follows + o.Follows,
		Connections: m.Connections + o.Connections,
	}
}

// Count returns the counter for a single action.
func (m Metrics) Count(a Action) int {
	switch a {
	case ActionLike:
		return m.Likes
	case ActionComment:
		return m.Comments
	case ActionShare:
		return m.Shares
	case ActionFollow:
		return m.Follows
	case ActionConnection:
		return m.Connections
	}
	return 0
}

// Inc adds n to the counter for a.
func (m *Metrics) Inc(a Action, n int) {
	switch a {
	case ActionLike:
		m.Likes += n
	case ActionComment:
		m.Comments += n
	case ActionShare:
		m.Shares += n
	case ActionFollow:
		m.Follows += n
	case ActionConnection:
		m.Connections += n
	}
}

// Total is the number of actions across all counters.
func (m Metrics) Total() int {
	return m.Likes + m.Comments + m.Shares + m.Follows + m.Connections
}

// Credits is a monthly-renewing allowance.
type Credits struct {
	Import int `json:"import"`
	AI     int `json:"ai"`
}

// IsZero reports whether no credits are involved.
func (c Credits) IsZero() bool { return c.Import == 0 && c.AI == 0 }

// Detail is one leaf fact inside an item, e.g. one engaged post of an imported profile.
type Detail struct {
	Action  Action `json:"action"`
	Subject string `json:"subject,omitempty"`
	Outcome string `json:"outcome"`
	Note    string `json:"note,omitempty"`
}

// Outcome is what the executor reports for one successfully processed item.
type Outcome struct {
	Metrics Metrics  `json:"metrics"`
	Credits Credits  `json:"credits"`
	Details []Detail `json:"details,omitempty"`
	// Skipped lists requested actions the executor was told not to perform.
	Skipped []Action `json:"skipped,omitempty"`
}

// Item is the unit of work handed to an executor.
type Item struct {
	RunID   string  `json:"runId"`
	Kind    Kind    `json:"kind"`
	Index   int     `json:"index"`
	Target  Target  `json:"target"`
	Options Options `json:"options"`
	// Allowed is the subset of the options' actions still within quota.
	Allowed []Action `json:"allowed"`
}
