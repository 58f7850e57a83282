package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"richsync/internal/syncer"
)

// TransitionRecord is one stored controller transition.
type TransitionRecord struct {
	Seq      int64     `json:"seq"`
	WidgetID string    `json:"widgetId"`
	Op       string    `json:"op"`
	Outcome  string    `json:"outcome"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

var _ syncer.Recorder = (*Store)(nil)

// RecordTransition implements syncer.Recorder.
func (s *Store) RecordTransition(t syncer.Transition) error {
	at := t.At
	if at.IsZero() {
		at = s.now()
	}
	var errText sql.NullString
	if t.Err != nil {
		errText = sql.NullString{String: t.Err.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO transitions(widget_id, op, outcome, reason, error, at_unixms) VALUES(?, ?, ?, ?, ?, ?)`,
		t.WidgetID, t.Op, t.Outcome.String(), t.Reason, errText, at.UnixMilli(),
	)
	return err
}

// Transitions returns recorded transitions in order. An empty widgetID
// matches every widget; limit <= 0 means all, otherwise the most recent
// limit records are returned.
func (s *Store) Transitions(ctx context.Context, widgetID string, limit int) ([]TransitionRecord, error) {
	q := `SELECT seq, widget_id, op, outcome, reason, error, at_unixms FROM transitions`
	var args []any
	if w := strings.TrimSpace(widgetID); w != "" {
		q += ` WHERE widget_id = ?`
		args = append(args, w)
	}
	q += ` ORDER BY seq DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var (
			r  TransitionRecord
			e  sql.NullString
			ms int64
		)
		if err := rows.Scan(&r.Seq, &r.WidgetID, &r.Op, &r.Outcome, &r.Reason, &e, &ms); err != nil {
			return nil, err
		}
		r.Error = e.String
		r.At = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
