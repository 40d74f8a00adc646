package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/formsync/internal/ir"
)

// Draft is the autosaved state of one form-filing session.
type Draft struct {
	ID          string
	RuleSet     string
	RuleSetHash string
	Fields      ir.IRObject
	Provenance  map[string]string
	Hash        string // ir.SnapshotHash of Fields
	Seq         int64  // seq of the last event folded into Fields
	UpdatedAt   time.Time
}

// EventRecord is one logged engine event. Payload is the event's IR encoding
// and At the clock reading it was applied at.
type EventRecord struct {
	ID      string
	DraftID string
	Seq     int64
	Kind    string
	Payload ir.IRObject
	At      time.Time
}

// ProvenanceChange records that path's provenance tag became Tag at Seq.
// An empty Tag means the entry was cleared.
type ProvenanceChange struct {
	DraftID string
	Seq     int64
	Path    string
	Tag     string
}

// SaveDraft upserts d and returns it with Hash filled in. A save carrying an
// older seq than the stored row is ignored, so a late autosave never rolls
// a draft back.
func (s *Store) SaveDraft(ctx context.Context, d Draft) (Draft, error) {
	if d.ID == "" {
		return Draft{}, fmt.Errorf("save draft: empty id")
	}
	if d.Fields == nil {
		d.Fields = ir.IRObject{}
	}

	hash, err := ir.SnapshotHash(d.Fields)
	if err != nil {
		return Draft{}, fmt.Errorf("save draft %s: %w", d.ID, err)
	}
	d.Hash = hash

	snapshot, err := marshalObject(d.Fields)
	if err != nil {
		return Draft{}, fmt.Errorf("save draft %s: marshal fields: %w", d.ID, err)
	}
	prov, err := marshalProvenance(d.Provenance)
	if err != nil {
		return Draft{}, fmt.Errorf("save draft %s: marshal provenance: %w", d.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts
		(id, ruleset_name, ruleset_hash, snapshot, provenance, snapshot_hash, seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ruleset_name  = excluded.ruleset_name,
			ruleset_hash  = excluded.ruleset_hash,
			snapshot      = excluded.snapshot,
			provenance    = excluded.provenance,
			snapshot_hash = excluded.snapshot_hash,
			seq           = excluded.seq,
			updated_at    = excluded.updated_at
		WHERE excluded.seq >= drafts.seq
	`,
		d.ID,
		d.RuleSet,
		d.RuleSetHash,
		snapshot,
		prov,
		d.Hash,
		d.Seq,
		formatTime(d.UpdatedAt),
	)
	if err != nil {
		return Draft{}, fmt.Errorf("save draft %s: %w", d.ID, err)
	}

	return d, nil
}

// AppendEvent adds rec to its draft's event log. When rec.ID is empty it is
// computed with ir.EventID. Appending an event whose ID is already logged is
// a no-op; inserted reports whether a row was written.
func (s *Store) AppendEvent(ctx context.Context, rec EventRecord) (EventRecord, bool, error) {
	if rec.Payload == nil {
		rec.Payload = ir.IRObject{}
	}
	if rec.ID == "" {
		id, err := ir.EventID(rec.DraftID, rec.Kind, rec.Payload, rec.Seq)
		if err != nil {
			return EventRecord{}, false, fmt.Errorf("append event: %w", err)
		}
		rec.ID = id
	}

	payload, err := marshalObject(rec.Payload)
	if err != nil {
		return EventRecord{}, false, fmt.Errorf("append event: marshal payload: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, draft_id, seq, kind, payload, at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.DraftID,
		rec.Seq,
		rec.Kind,
		payload,
		formatTime(rec.At),
	)
	if err != nil {
		return EventRecord{}, false, fmt.Errorf("append event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return EventRecord{}, false, fmt.Errorf("append event: %w", err)
	}
	return rec, n > 0, nil
}

// WriteProvenance records provenance changes in one transaction. Changes
// already recorded for the same draft, seq and path are ignored.
func (s *Store) WriteProvenance(ctx context.Context, changes []ProvenanceChange) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write provenance: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO provenance_history (draft_id, seq, path, tag)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write provenance: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err := stmt.ExecContext(ctx, c.DraftID, c.Seq, c.Path, c.Tag); err != nil {
			return fmt.Errorf("write provenance %s: %w", c.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write provenance: %w", err)
	}
	return nil
}

// DiffProvenance lists the tag changes between two provenance snapshots,
// sorted by path. Removed entries carry an empty Tag.
func DiffProvenance(draftID string, seq int64, before, after map[string]string) []ProvenanceChange {
	var changes []ProvenanceChange
	for path, tag := range after {
		if old, ok := before[path]; !ok || old != tag {
			changes = append(changes, ProvenanceChange{DraftID: draftID, Seq: seq, Path: path, Tag: tag})
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			changes = append(changes, ProvenanceChange{DraftID: draftID, Seq: seq, Path: path})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
