package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DraftSummary is a row of ListDrafts.
type DraftSummary struct {
	ID        string
	RuleSet   string
	Hash      string
	Seq       int64
	UpdatedAt time.Time
}

// LoadDraft returns the saved draft with the given id. A missing draft
// returns an error wrapping ErrNotFound.
func (s *Store) LoadDraft(ctx context.Context, id string) (Draft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ruleset_name, ruleset_hash, snapshot, provenance, snapshot_hash, seq, updated_at
		FROM drafts
		WHERE id = ?
	`, id)

	var (
		d                    Draft
		snapshot, prov, when string
	)
	err := row.Scan(&d.ID, &d.RuleSet, &d.RuleSetHash, &snapshot, &prov, &d.Hash, &d.Seq, &when)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft %s: %w", id, err)
	}

	if d.Fields, err = unmarshalObject(snapshot); err != nil {
		return Draft{}, fmt.Errorf("load draft %s: unmarshal fields: %w", id, err)
	}
	if d.Provenance, err = unmarshalProvenance(prov); err != nil {
		return Draft{}, fmt.Errorf("load draft %s: unmarshal provenance: %w", id, err)
	}
	if d.UpdatedAt, err = parseTime(when); err != nil {
		return Draft{}, fmt.Errorf("load draft %s: %w", id, err)
	}
	return d, nil
}

// ListDrafts returns every saved draft ordered by id.
func (s *Store) ListDrafts(ctx context.Context) ([]DraftSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ruleset_name, snapshot_hash, seq, updated_at
		FROM drafts
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	drafts := []DraftSummary{}
	for rows.Next() {
		var (
			d    DraftSummary
			when string
		)
		if err := rows.Scan(&d.ID, &d.RuleSet, &d.Hash, &d.Seq, &when); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		if d.UpdatedAt, err = parseTime(when); err != nil {
			return nil, fmt.Errorf("draft %s: %w", d.ID, err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return drafts, nil
}

// ReadEvents returns the events logged for draftID with seq greater than
// afterSeq, ordered by seq ASC, id COLLATE BINARY ASC. Pass 0 to read the
// whole log.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadEvents(ctx context.Context, draftID string, afterSeq int64) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draft_id, seq, kind, payload, at
		FROM events
		WHERE draft_id = ? AND seq > ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, draftID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest logged seq for draftID, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context, draftID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE draft_id = ?`, draftID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq %s: %w", draftID, err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// ReadProvenanceHistory returns the provenance changes recorded for one path
// of a draft, oldest first. An empty path returns the history of every path.
func (s *Store) ReadProvenanceHistory(ctx context.Context, draftID, path string) ([]ProvenanceChange, error) {
	query := `
		SELECT draft_id, seq, path, tag
		FROM provenance_history
		WHERE draft_id = ?`
	args := []any{draftID}
	if path != "" {
		query += ` AND path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY seq ASC, path COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query provenance history: %w", err)
	}
	defer rows.Close()

	changes := []ProvenanceChange{}
	for rows.Next() {
		var c ProvenanceChange
		if err := rows.Scan(&c.DraftID, &c.Seq, &c.Path, &c.Tag); err != nil {
			return nil, fmt.Errorf("scan provenance change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provenance history: %w", err)
	}
	return changes, nil
}

func scanEvent(rows *sql.Rows) (EventRecord, error) {
	var (
		rec           EventRecord
		payload, when string
	)
	if err := rows.Scan(&rec.ID, &rec.DraftID, &rec.Seq, &rec.Kind, &payload, &when); err != nil {
		return EventRecord{}, fmt.Errorf("scan event: %w", err)
	}

	var err error
	if rec.Payload, err = unmarshalObject(payload); err != nil {
		return EventRecord{}, fmt.Errorf("event %s: unmarshal payload: %w", rec.ID, err)
	}
	if rec.At, err = parseTime(when); err != nil {
		return EventRecord{}, fmt.Errorf("event %s: %w", rec.ID, err)
	}
	return rec, nil
}
