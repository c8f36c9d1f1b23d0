package history

import (
	"strconv"
	"time"

	"github.com/teranos/linkpulse/pulse"
)

// Row is one leaf fact of the history, flattened for tabular export.
type Row struct {
	RecordID      string `json:"recordId"`
	Timestamp     string `json:"timestamp"`
	Kind          string `json:"kind"`
	TargetName    string `json:"targetName"`
	TargetURL     string `json:"targetUrl"`
	Outcome       string `json:"outcome"`
	Likes         int    `json:"likes"`
	Comments      int    `json:"comments"`
	Shares        int    `json:"shares"`
	Follows       int    `json:"follows"`
	Connections   int    `json:"connections"`
	DetailAction  string `json:"detailAction"`
	DetailSubject string `json:"detailSubject"`
	DetailOutcome string `json:"detailOutcome"`
	DetailNote    string `json:"detailNote"`
	Error         string `json:"error"`
}

// RowHeader names the Row columns in order.
var RowHeader = []string{
	"record_id", "timestamp", "kind", "target_name", "target_url", "outcome",
	"likes", "comments", "shares", "follows", "connections",
	"detail_action", "detail_subject", "detail_outcome", "detail_note", "error",
}

// ExportRows flattens records into one row per detail. A record with no detail
// still yields exactly one row with empty detail fields.
func ExportRows(records []Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		base := Row{
			RecordID:    r.ID,
			Timestamp:   r.Timestamp.Format(time.RFC3339),
			Kind:        string(r.Kind),
			TargetName:  r.Target.Name,
			TargetURL:   r.Target.URL,
			Outcome:     string(r.Outcome),
			Likes:       r.Metrics.Likes,
			Comments:    r.Metrics.Comments,
			Shares:      r.Metrics.Shares,
			Follows:     r.Metrics.Follows,
			Connections: r.Metrics.Connections,
			Error:       r.Error,
		}
		if len(r.Details) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, d := range r.Details {
			row := base
			row.DetailAction = string(d.Action)
			row.DetailSubject = d.Subject
			row.DetailOutcome = d.Outcome
			row.DetailNote = d.Note
			rows = append(rows, row)
		}
	}
	return rows
}

// Export flattens the full ledger of kind including detail.
func (l *Ledger) Export(kind pulse.Kind) ([]Row, error) {
	records, err := l.List(kind, Filter{IncludeDetail: true})
	if err != nil {
		return nil, err
	}
	return ExportRows(records), nil
}

// Strings renders a row in RowHeader order.
func (r Row) Strings() []string {
	itoa := strconv.Itoa
	return []string{
		r.RecordID, r.Timestamp, r.Kind, r.TargetName, r.TargetURL, r.Outcome,
		itoa(r.Likes), itoa(r.Comments), itoa(r.Shares), itoa(r.Follows), itoa(r.Connections),
		r.DetailAction, r.DetailSubject, r.DetailOutcome, r.DetailNote, r.Error,
	}
}
