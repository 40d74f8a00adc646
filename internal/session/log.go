package session

import (
	"fmt"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/store"
)

// LoadLog decodes stored event records into the form Engine.Replay takes.
// Records must already be in seq order, as store.ReadEvents returns them.
func LoadLog(records []store.EventRecord) ([]engine.Recorded, error) {
	out := make([]engine.Recorded, 0, len(records))
	for _, rec := range records {
		ev, err := engine.DecodeEvent(rec.Kind, rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("event seq %d: %w", rec.Seq, err)
		}
		out = append(out, engine.Recorded{Seq: rec.Seq, Event: ev, At: rec.At})
	}
	return out, nil
}
