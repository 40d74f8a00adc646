package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce batches the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	editFlags
	Now      string
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <draft-file>",
		Short: "Re-derive a draft whenever it or its rule table changes",
		Long: `Derive a draft, then watch the draft file and the --rules file or
directory. Every change prints a fresh derivation. A rule table that stops
compiling is reported and the last good one stays in use.

Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field edit path=value applied after every load (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Activate, "activate", nil, "section to activate after every load (repeatable)")
	cmd.Flags().StringVar(&opts.Now, "now", "", "clock for date defaults (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", DefaultDebounce, "quiet period before re-deriving")

	return cmd
}

// watcher re-derives one draft file.
type watcher struct {
	opts   *WatchOptions
	f      *OutputFormatter
	logger *slog.Logger
	draft  string
	now    func() time.Time

	loaded *LoadResult
}

func runWatch(ctx context.Context, opts *WatchOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, cmd)

	loaded, err := loadRules(f, opts.RootOptions)
	if err != nil {
		return err
	}
	now, err := parseNow(opts.Now)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if _, err := opts.events(); err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	draft, err := filepath.Abs(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if _, err := os.Stat(draft); err != nil {
		return f.fail(ExitCommandError, ErrCodeDraftRead, err.Error(), nil)
	}

	w := &watcher{
		opts:   opts,
		f:      f,
		logger: opts.Logger(f.GetErrWriter()),
		draft:  draft,
		now:    now,
		loaded: loaded,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("starting watcher: %v", err), nil)
	}
	defer fsw.Close()
	for _, dir := range w.dirs() {
		if err := fsw.Add(dir); err != nil {
			return f.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("watching %s: %v", dir, err), nil)
		}
		w.logger.Debug("watching", "dir", dir)
	}

	w.derive("start")

	trigger := make(chan string, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.forward(gctx, fsw, trigger) })
	g.Go(func() error { return w.rederive(gctx, trigger) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dirs are the directories holding the draft and the rule table. Watching
// the directory rather than the file survives editors that save by rename.
func (w *watcher) dirs() []string {
	dirs := []string{filepath.Dir(w.draft)}
	if rules := w.rulesPath(); rules != "" {
		dir := rules
		if info, err := os.Stat(rules); err == nil && !info.IsDir() {
			dir = filepath.Dir(rules)
		}
		if dir != dirs[0] {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (w *watcher) rulesPath() string {
	r := w.opts.Rules
	if r == "" || r == BuiltinRules {
		return ""
	}
	abs, err := filepath.Abs(r)
	if err != nil {
		return r
	}
	return abs
}

// relevant reports whether a change to name should trigger a derivation,
// and whether it touched the rule table.
func (w *watcher) relevant(name string) (hit, rules bool) {
	name = filepath.Clean(name)
	if name == w.draft {
		return true, false
	}
	r := w.rulesPath()
	if r == "" || filepath.Ext(name) != ".cue" {
		return false, false
	}
	if name == r || filepath.Dir(name) == r {
		return true, true
	}
	return false, false
}

// forward sends relevant filesystem events to trigger. The send never
// blocks; one pending trigger covers any number of events.
func (w *watcher) forward(ctx context.Context, fsw *fsnotify.Watcher, trigger chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			hit, rules := w.relevant(ev.Name)
			if !hit {
				continue
			}
			reason := "draft"
			if rules {
				reason = "rules"
			}
			w.logger.Debug("change", "path", ev.Name, "op", ev.Op.String())
			select {
			case trigger <- reason:
			default:
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// rederive waits for the debounce period to pass without a new trigger,
// then derives once.
func (w *watcher) rederive(ctx context.Context, trigger <-chan string) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var reloadRules bool
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-trigger:
			if reason == "rules" {
				reloadRules = true
			}
			timer.Reset(w.opts.Debounce)
		case <-timer.C:
			reason := "draft"
			if reloadRules {
				reason = "rules"
				w.reload()
				reloadRules = false
			}
			w.derive(reason)
		}
	}
}

// reload recompiles the rule table, keeping the previous one on error.
func (w *watcher) reload() {
	loaded, err := LoadRules(w.opts.Rules)
	if err != nil {
		for _, e := range RuleErrors(err) {
			_ = w.f.Error(e.Code, e.Message, e)
		}
		w.logger.Warn("rule table rejected; keeping previous", "rules", w.opts.Rules)
		return
	}
	w.loaded = loaded
}

// derive loads the draft, applies the edit flags and prints the result.
// Failures are printed; watching continues.
func (w *watcher) derive(reason string) {
	w.f.Printf("--- %s (%s)\n", time.Now().Format(time.TimeOnly), reason)

	snapshot, err := ReadDraft(w.draft)
	if err != nil {
		_ = w.f.Error(ErrCodeDraftRead, err.Error(), nil)
		return
	}
	eng, err := newEngine(w.loaded.RuleSet, w.now, w.logger)
	if err != nil {
		_ = w.f.Error(ErrCodeGeneric, err.Error(), nil)
		return
	}
	edits, _ := w.opts.events()
	state, changed, err := deriveOnly(eng, snapshot, edits)
	if err != nil {
		_ = w.f.Error(ErrCodeDerive, err.Error(), nil)
		return
	}
	res, err := newDeriveResult(eng, state, changed)
	if err != nil {
		_ = w.f.Error(ErrCodeGeneric, err.Error(), nil)
		return
	}
	if w.f.JSON() {
		_ = w.f.Success(res)
		return
	}
	printDerive(w.f, eng, state, res)
}
