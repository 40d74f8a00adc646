package engine

import (
	"fmt"
	"time"
)

// Recorded is an event together with the clock reading it was applied at.
type Recorded struct {
	Seq   int64
	Event Event
	At    time.Time
}

// Replay folds recorded events over an empty state, in the order given.
//
// Replay runs the same Apply path as live editing; there is no replay mode.
// Given the same rule set and the same recorded clock readings, the final
// state is identical to the one the live session reached, which
// VerifyReplay checks by snapshot hash.
func (e *Engine) Replay(events []Recorded) (State, error) {
	s := NewState()
	for _, rec := range events {
		t, err := e.ApplyAt(s, rec.Event, rec.At)
		if err != nil {
			return State{}, fmt.Errorf("replay seq %d (%s): %w", rec.Seq, rec.Event.Kind(), err)
		}
		s = t.State
	}
	return s, nil
}

// VerifyReplay replays events and compares the resulting store hash with
// want. It returns the replayed state and whether the hashes matched.
func (e *Engine) VerifyReplay(events []Recorded, want string) (State, bool, error) {
	s, err := e.Replay(events)
	if err != nil {
		return State{}, false, err
	}
	got, err := s.Fields.Hash()
	if err != nil {
		return State{}, false, err
	}
	return s, got == want, nil
}
