package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/store"
)

// ErrClosed is returned for requests made after the session stopped.
var ErrClosed = errors.New("session closed")

// DefaultAutosaveInterval is used when no interval option is given.
const DefaultAutosaveInterval = 5 * time.Second

// Persister is the slice of the draft store a session writes to.
type Persister interface {
	SaveDraft(ctx context.Context, d store.Draft) (store.Draft, error)
	AppendEvent(ctx context.Context, rec store.EventRecord) (store.EventRecord, bool, error)
	WriteProvenance(ctx context.Context, changes []store.ProvenanceChange) error
}

// Session owns the engine state of one draft.
type Session struct {
	eng     *engine.Engine
	persist Persister
	draftID string
	rsHash  string
	clock   *engine.Clock
	queue   *requestQueue

	autosave time.Duration
	now      func() time.Time
	logger   *slog.Logger
	ids      IDGenerator

	mu    sync.RWMutex
	state engine.State

	// Owned by the loop.
	dirty bool
}

// Option configures a Session.
type Option func(*Session)

// WithAutosaveInterval sets how often a dirty draft is saved. Zero or a
// negative interval disables the ticker; drafts are then saved on Save and
// on shutdown only.
func WithAutosaveInterval(d time.Duration) Option {
	return func(s *Session) {
		s.autosave = d
	}
}

// WithDraftIDGenerator sets the generator used by New for the draft ID.
func WithDraftIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithNow sets the wall clock stamped on logged events and saved drafts.
func WithNow(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New starts a fresh draft with an empty state and a newly generated ID.
func New(eng *engine.Engine, p Persister, opts ...Option) (*Session, error) {
	s, err := newSession(eng, p, opts)
	if err != nil {
		return nil, err
	}
	s.draftID = s.ids.Generate()
	s.clock = engine.NewClock()
	s.state = engine.NewState()
	return s, nil
}

// Resume reopens draftID by replaying its logged events. The clock continues
// after the last logged seq.
func Resume(ctx context.Context, eng *engine.Engine, st *store.Store, draftID string, opts ...Option) (*Session, error) {
	s, err := newSession(eng, st, opts)
	if err != nil {
		return nil, err
	}

	records, err := st.ReadEvents(ctx, draftID, 0)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", draftID, err)
	}
	log, err := LoadLog(records)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", draftID, err)
	}
	state, err := eng.Replay(log)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", draftID, err)
	}

	var last int64
	if n := len(log); n > 0 {
		last = log[n-1].Seq
	}
	s.draftID = draftID
	s.clock = engine.NewClockAt(last)
	s.state = state
	s.logger.Info("draft resumed", "draft", draftID, "events", len(log), "seq", last)
	return s, nil
}

func newSession(eng *engine.Engine, p Persister, opts []Option) (*Session, error) {
	if eng == nil {
		return nil, errors.New("session: nil engine")
	}
	if p == nil {
		return nil, errors.New("session: nil persister")
	}
	hash, err := ir.RuleSetHash(eng.RuleSet())
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		eng:      eng,
		persist:  p,
		rsHash:   hash,
		queue:    newRequestQueue(),
		autosave: DefaultAutosaveInterval,
		now:      time.Now,
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DraftID returns the ID of the draft this session edits.
func (s *Session) DraftID() string {
	return s.draftID
}

// Seq returns the seq of the last event applied.
func (s *Session) Seq() int64 {
	return s.clock.Current()
}

// State returns a copy of the current state that the caller may keep.
func (s *Session) State() engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Submit queues ev and waits for the loop to apply it. Run must be running.
func (s *Session) Submit(ctx context.Context, ev engine.Event) (engine.Transition, error) {
	r := request{kind: requestApply, event: ev, reply: make(chan result, 1)}
	if !s.queue.Enqueue(r) {
		return engine.Transition{}, ErrClosed
	}
	select {
	case <-ctx.Done():
		return engine.Transition{}, ctx.Err()
	case res := <-r.reply:
		return res.transition, res.err
	}
}

// Save queues an immediate save and waits for it.
func (s *Session) Save(ctx context.Context) error {
	r := request{kind: requestSave, reply: make(chan result, 1)}
	if !s.queue.Enqueue(r) {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-r.reply:
		return res.err
	}
}

// Close stops accepting requests. Run drains what is queued, saves a dirty
// draft and returns.
func (s *Session) Close() {
	s.queue.Close()
}

// Run processes requests until Close is called or ctx is cancelled. It
// returns nil after Close and ctx.Err() after cancellation. A dirty draft is
// saved before Run returns either way.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return s.loop(gctx)
	})
	if s.autosave > 0 {
		g.Go(func() error {
			return s.tick(gctx)
		})
	}
	return g.Wait()
}

func (s *Session) loop(ctx context.Context) error {
	s.logger.Debug("session starting", "draft", s.draftID)
	for {
		if r, ok := s.queue.TryDequeue(); ok {
			s.handle(ctx, r)
			continue
		}

		select {
		case <-ctx.Done():
			s.queue.Close()
			s.shutdown()
			s.logger.Debug("session stopping: context cancelled", "draft", s.draftID)
			return ctx.Err()
		case <-s.queue.Wait():
			if s.queue.Len() == 0 && s.isClosed() {
				s.shutdown()
				s.logger.Debug("session stopping: closed", "draft", s.draftID)
				return nil
			}
		}
	}
}

// tick enqueues an autosave request every interval. The save itself runs on
// the loop so it never races an apply.
func (s *Session) tick(ctx context.Context) error {
	t := time.NewTicker(s.autosave)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.queue.Enqueue(request{kind: requestSave})
		}
	}
}

func (s *Session) isClosed() bool {
	return s.queue.Closed()
}

// shutdown fails queued requests and saves a dirty draft. It runs after the
// run context may already be cancelled, so the save uses a detached context.
func (s *Session) shutdown() {
	for {
		r, ok := s.queue.TryDequeue()
		if !ok {
			break
		}
		if r.reply != nil {
			r.reply <- result{err: ErrClosed}
		}
	}
	if s.dirty {
		if err := s.save(context.Background()); err != nil {
			s.logger.Error("final save failed", "draft", s.draftID, "error", err)
		}
	}
}

func (s *Session) handle(ctx context.Context, r request) {
	var res result
	switch r.kind {
	case requestApply:
		res.transition, res.err = s.apply(ctx, r.event)
	case requestSave:
		if s.dirty || r.reply != nil {
			res.err = s.save(ctx)
		}
		if res.err != nil && r.reply == nil {
			s.logger.Error("autosave failed", "draft", s.draftID, "error", res.err)
		}
	}
	if r.reply != nil {
		r.reply <- res
	}
}

// apply runs ev through the engine and logs it. The new state is published
// only after the event is durably logged, so the log never lags the state.
func (s *Session) apply(ctx context.Context, ev engine.Event) (engine.Transition, error) {
	seq := s.clock.Current() + 1
	at := s.now()

	before := s.state
	t, err := s.eng.ApplyAt(before, ev, at)
	if err != nil {
		return engine.Transition{}, err
	}

	payload, err := engine.EncodeEvent(ev)
	if err != nil {
		return engine.Transition{}, err
	}
	if _, _, err := s.persist.AppendEvent(ctx, store.EventRecord{
		DraftID: s.draftID,
		Seq:     seq,
		Kind:    ev.Kind(),
		Payload: payload,
		At:      at,
	}); err != nil {
		return engine.Transition{}, fmt.Errorf("log event seq %d: %w", seq, err)
	}
	s.clock.Next()

	changes := store.DiffProvenance(s.draftID, seq, before.Provenance.Snapshot(), t.State.Provenance.Snapshot())
	if err := s.persist.WriteProvenance(ctx, changes); err != nil {
		// The event is logged; replay rebuilds provenance, only the trace
		// history misses this step.
		s.logger.Warn("provenance history not written", "draft", s.draftID, "seq", seq, "error", err)
	}

	s.mu.Lock()
	s.state = t.State
	s.mu.Unlock()
	s.dirty = true

	s.logger.Debug("event applied",
		"draft", s.draftID,
		"seq", seq,
		"kind", ev.Kind(),
		"changed", len(t.Changed),
		"passes", t.Passes,
	)
	return t, nil
}

func (s *Session) save(ctx context.Context) error {
	d, err := s.persist.SaveDraft(ctx, store.Draft{
		ID:          s.draftID,
		RuleSet:     s.eng.RuleSet().Name,
		RuleSetHash: s.rsHash,
		Fields:      s.state.Fields.Snapshot(),
		Provenance:  s.state.Provenance.Snapshot(),
		Seq:         s.clock.Current(),
		UpdatedAt:   s.now(),
	})
	if err != nil {
		return err
	}
	s.dirty = false
	s.logger.Info("draft saved", "draft", s.draftID, "seq", d.Seq, "hash", d.Hash)
	return nil
}
