package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/formsync/internal/ir"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)

func testDraft(id string, seq int64) Draft {
	return Draft{
		ID:          id,
		RuleSet:     "patent",
		RuleSetHash: "rs-hash",
		Fields: ir.IRObject{
			"form1_applicant_name": ir.IRString("Acme Labs"),
			"form3_applicant_name": ir.IRString("Acme Labs"),
		},
		Provenance: map[string]string{"form3_applicant_name": "form1"},
		Seq:        seq,
		UpdatedAt:  testTime,
	}
}

func testEvent(draftID string, seq int64, path, value string) EventRecord {
	return EventRecord{
		DraftID: draftID,
		Seq:     seq,
		Kind:    "field_change",
		Payload: ir.IRObject{"path": ir.IRString(path), "value": ir.IRString(value)},
		At:      testTime.Add(time.Duration(seq) * time.Minute),
	}
}
