// Package watcher monitors configured directories for session JSONL files,
// parses newly-written bytes with the matching internal/parser, and stores
// results via a store.Store. Ported from original_source/src/watcher/mod.rs,
// enriched with roelfdiedericks-goclaw's internal/session/watcher.go
// directory-watching idiom since the teacher repo has no file-watching code
// of its own.
package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/autotrigger"
	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/extract"
	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/parser"
	"github.com/yologdev/yocore-go/internal/queue"
	"github.com/yologdev/yocore-go/internal/store"
)

// debounceWindow matches the original's notify_debouncer_mini duration.
const debounceWindow = 200 * time.Millisecond

// ephemeralTitleMinMessages is the original's own, higher gate for firing
// title generation without a DB-backed AutoTrigger (MIN_MESSAGES_FOR_TITLE
// is 25 there too, but the ephemeral shortcut in watcher/mod.rs checks 49
// directly rather than delegating to auto_trigger.rs).
const ephemeralTitleMinMessages = 49

// EventPublisher is the subset of events.Broadcaster the watcher needs.
// Defined here (not imported from internal/events) to avoid a dependency
// cycle; internal/events.Broadcaster satisfies it structurally.
type EventPublisher interface {
	NewSession(sessionID, filePath string)
	SessionChanged(sessionID, filePath string)
	SessionParsed(sessionID, filePath string)
	WatcherError(sessionID, errMsg string)
}

type watchedDir struct {
	folderPath string
	parserName string
}

// Watcher watches configured directories for session files and drives the
// parse-then-store pipeline plus AI auto-triggering on every change.
type Watcher struct {
	st      store.Store
	trigger *autotrigger.AutoTrigger
	events  EventPublisher
	log     zerolog.Logger

	loadConfig     autotrigger.ConfigLoader
	ephemeralStore store.EphemeralStore // non-nil only under ephemeral storage
	tasks          *queue.TaskQueue
	inv            *invoker.Invoker

	fsw     *fsnotify.Watcher
	watched []watchedDir

	mu      sync.Mutex
	timers  map[string]*time.Timer
	titled  map[string]bool // ephemeral sessions already given a title
}

// New builds a Watcher. trigger may be nil under ephemeral storage, in which
// case the watcher falls back to its own ephemeral title shortcut using
// ephemeralStore and tasks/inv directly.
func New(st store.Store, ephemeralStore store.EphemeralStore, trigger *autotrigger.AutoTrigger, loadConfig autotrigger.ConfigLoader, tasks *queue.TaskQueue, inv *invoker.Invoker, events EventPublisher, log zerolog.Logger) *Watcher {
	return &Watcher{
		st:             st,
		trigger:        trigger,
		events:         events,
		log:            log,
		loadConfig:     loadConfig,
		ephemeralStore: ephemeralStore,
		tasks:          tasks,
		inv:            inv,
		timers:         make(map[string]*time.Timer),
		titled:         make(map[string]bool),
	}
}

// Start watches every enabled entry in cfg.Watch and returns once the
// underlying fsnotify watches are registered. Call Stop (or cancel ctx) to
// tear it down.
func (w *Watcher) Start(ctx context.Context, watchPaths []config.WatchEntry) error {
	if len(watchPaths) == 0 {
		w.log.Info().Msg("watcher: no project paths configured, idle")
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	for _, entry := range watchPaths {
		info, err := os.Stat(entry.Path)
		if err != nil || !info.IsDir() {
			w.log.Warn().Str("path", entry.Path).Msg("watcher: watch path does not exist")
			continue
		}
		w.watched = append(w.watched, watchedDir{folderPath: entry.Path, parserName: entry.ParserName()})
		if err := fsw.Add(entry.Path); err != nil {
			w.log.Error().Err(err).Str("path", entry.Path).Msg("watcher: failed to watch directory")
			continue
		}
		w.log.Info().Str("parser", entry.ParserName()).Str("path", entry.Path).Msg("watcher: watching directory")
	}

	go w.loop(ctx)

	w.log.Info().Msg("watcher: started")
	return nil
}

// Stop closes the underlying fsnotify watcher, ending the event loop.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isSessionFile(ev.Name) {
				continue
			}
			w.debounce(ctx, ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher: fsnotify error")
		}
	}
}

// debounce coalesces bursts of writes to the same path into a single
// handleFileEvent call 200ms after the last one, the Go equivalent of
// notify_debouncer_mini; no pack library wraps fsnotify with debouncing.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(debounceWindow)
		return
	}
	w.timers[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		// Each debounced path fires its own goroutine so a slow parse of one
		// file doesn't delay processing of another.
		go w.handleFileEvent(ctx, path)
	})
}

// isSessionFile reports whether path is a main session file: .jsonl
// extension, excluding per-agent side files.
func isSessionFile(path string) bool {
	if filepath.Ext(path) != ".jsonl" {
		return false
	}
	name := filepath.Base(path)
	if strings.HasPrefix(name, "agent-") || strings.Contains(name, "-agent-") {
		return false
	}
	return true
}

func (w *Watcher) handleFileEvent(ctx context.Context, path string) {
	dir := w.dirFor(path)
	if dir == nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return // file may have been removed between the event and the stat
	}
	newSize := info.Size()

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	state, err := w.st.GetSessionState(ctx, sessionID)
	if err != nil {
		w.publishError(sessionID, err)
		return
	}

	if newSize == state.FileSize {
		return // no change
	}

	if state.FileSize == 0 {
		w.events.NewSession(sessionID, path)
	} else if newSize > state.FileSize {
		w.events.SessionChanged(sessionID, path)
	}

	var messageCount int
	switch {
	case newSize < state.FileSize:
		w.log.Info().Str("session_id", sessionID).Msg("watcher: file truncated, full re-parse")
		messageCount, err = w.fullParse(ctx, path, sessionID, dir.parserName)
	case state.FileSize > 0 && state.MessageCount > 0:
		messageCount, err = w.incrementalParse(ctx, path, sessionID, dir.parserName, state)
	default:
		messageCount, err = w.fullParse(ctx, path, sessionID, dir.parserName)
	}
	if err != nil {
		w.publishError(sessionID, err)
		return
	}
	if messageCount == 0 {
		return
	}

	w.events.SessionParsed(sessionID, path)

	if w.trigger != nil {
		w.trigger.OnSessionParsed(ctx, sessionID, messageCount)
		return
	}

	if messageCount >= ephemeralTitleMinMessages {
		w.maybeTriggerEphemeralTitle(ctx, sessionID)
	}
}

func (w *Watcher) dirFor(path string) *watchedDir {
	for i := range w.watched {
		if strings.HasPrefix(path, w.watched[i].folderPath) {
			return &w.watched[i]
		}
	}
	return nil
}

func (w *Watcher) fullParse(ctx context.Context, path, sessionID, parserName string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	p, ok := parser.Get(parserName)
	if !ok {
		w.log.Warn().Str("parser", parserName).Msg("watcher: unknown parser type")
		return 0, nil
	}

	lines := strings.Split(string(content), "\n")
	result, err := p.Parse(lines)
	if err != nil {
		return 0, err
	}

	stored, err := w.st.StoreFullParse(ctx, path, sessionID, parserName, result)
	if err != nil {
		return 0, err
	}
	if !stored {
		w.log.Debug().Str("session_id", sessionID).Msg("watcher: skipped, no matching project")
		return 0, nil
	}

	w.log.Info().Str("session_id", sessionID).Int("messages", len(result.Events)).Msg("watcher: parsed session")
	return len(result.Events), nil
}

func (w *Watcher) incrementalParse(ctx context.Context, path, sessionID, parserName string, state store.SessionState) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(state.FileSize, 0); err != nil {
		return 0, err
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return 0, err
	}
	if len(content) == 0 {
		return 0, nil
	}

	p, ok := parser.Get(parserName)
	if !ok {
		return 0, nil
	}

	lines := strings.Split(string(content), "\n")
	result, err := p.Parse(lines)
	if err != nil {
		return 0, err
	}
	if len(result.Events) == 0 {
		return 0, nil
	}

	total, err := w.st.StoreIncrementalParse(ctx, sessionID, result.Events, result.Stats, state.FileSize, state.MessageCount, state.MaxSequence)
	if err != nil {
		return 0, err
	}

	w.log.Info().Str("session_id", sessionID).Int("new", len(result.Events)).Int("total", total).Msg("watcher: incremental parse")
	return total, nil
}

func (w *Watcher) publishError(sessionID string, err error) {
	w.log.Error().Err(err).Str("session_id", sessionID).Msg("watcher: processing failed")
	w.events.WatcherError(sessionID, err.Error())
}

// maybeTriggerEphemeralTitle runs the title pass directly against the
// ephemeral store when no DB-backed AutoTrigger exists to do it, matching
// watcher/mod.rs's maybe_trigger_ephemeral_title. It uses GenerateTitle
// against the same store.Store the session was just parsed into; unlike the
// original, which reads raw text out of its ephemeral index because that
// index keeps no structured messages, VolatileStore stores the same
// store.Message rows the SQLite backend does, so GenerateTitle's normal
// GetMessages/SetSessionTitle path works unmodified here.
func (w *Watcher) maybeTriggerEphemeralTitle(ctx context.Context, sessionID string) {
	w.mu.Lock()
	if w.titled[sessionID] {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := w.loadConfig()
	if err != nil {
		w.log.Debug().Err(err).Msg("watcher: ephemeral title config read failed")
		return
	}
	if !cfg.IsFeatureActive(config.FeatureTitleGeneration) {
		return
	}

	sess, err := w.ephemeralStore.GetSession(ctx, sessionID)
	if err != nil || sess.TitleAIGenerated || sess.TitleEdited {
		return
	}

	permit, err := w.tasks.Acquire(ctx)
	if err != nil {
		return
	}

	w.mu.Lock()
	w.titled[sessionID] = true
	w.mu.Unlock()

	go func() {
		defer permit.Release()
		result := extract.GenerateTitle(ctx, w.ephemeralStore, w.inv, sessionID, extract.NoopNotifier{})
		if result.Err != nil {
			w.log.Warn().Err(result.Err).Str("session_id", sessionID).Msg("watcher: ephemeral title failed")
			return
		}
		w.log.Info().Str("session_id", sessionID).Msg("watcher: ephemeral title generated")
	}()
}
