// Package autotrigger decides, after each session parse, which AI passes
// (title, memory, skill) should run automatically, and runs them under the
// shared task queue. Grounded on
// original_source/src/ai/auto_trigger.rs, which this replaces.
package autotrigger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/extract"
	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/queue"
	"github.com/yologdev/yocore-go/internal/store"
)

const (
	// extractionThreshold is the minimum message count before memory/skill
	// extraction fires for the first time.
	extractionThreshold = 10
	// extractionInterval is how many additional messages must accumulate
	// before extraction fires again for the same session.
	extractionInterval = 50
	// minMessagesForTitle is the message count a session must reach before
	// a title generation pass is queued for it.
	minMessagesForTitle = 25
)

// ConfigLoader re-reads config on every trigger check, matching the
// original's per-call Config::from_file so a live config edit takes effect
// without restarting.
type ConfigLoader func() (*config.Config, error)

// AutoTrigger tracks, per session, the message count at its last extraction
// and fires title/memory/skill passes through a bounded task queue.
type AutoTrigger struct {
	loadConfig ConfigLoader
	store      store.Store
	inv        *invoker.Invoker
	tasks      *queue.TaskQueue
	notify     extract.Notifier
	log        zerolog.Logger

	mu                sync.Mutex
	extractionTracker map[string]int
}

// New wires an AutoTrigger. notify may be extract.NoopNotifier{} if nobody
// is listening for lifecycle events.
func New(loadConfig ConfigLoader, st store.Store, inv *invoker.Invoker, tasks *queue.TaskQueue, notify extract.Notifier, log zerolog.Logger) *AutoTrigger {
	return &AutoTrigger{
		loadConfig:        loadConfig,
		store:             st,
		inv:               inv,
		tasks:             tasks,
		notify:            notify,
		log:               log,
		extractionTracker: make(map[string]int),
	}
}

// OnSessionParsed inspects cfg to see which AI features are active and
// launches the appropriate passes as background goroutines bounded by the
// task queue. Each pass acquires its task-queue permit on the caller's
// goroutine before its own goroutine starts, so the call blocks while the
// queue is full.
func (a *AutoTrigger) OnSessionParsed(ctx context.Context, sessionID string, messageCount int) {
	cfg, err := a.loadConfig()
	if err != nil {
		a.log.Debug().Err(err).Msg("auto-trigger: failed to read config")
		return
	}
	if !cfg.IsAIActive() {
		return
	}

	if cfg.IsFeatureActive(config.FeatureTitleGeneration) && messageCount >= minMessagesForTitle {
		a.maybeTriggerTitle(ctx, sessionID)
	}

	if a.shouldTriggerExtraction(sessionID, messageCount) {
		a.recordExtraction(sessionID, messageCount)

		if cfg.IsFeatureActive(config.FeatureMemoryExtraction) {
			a.triggerMemoryExtraction(ctx, sessionID)
		}
		if cfg.IsFeatureActive(config.FeatureSkillsDiscovery) {
			a.triggerSkillExtraction(ctx, sessionID)
		}
		if cfg.IsFeatureActive(config.FeatureMarkerDetection) {
			a.triggerMarkerDetection(ctx, sessionID)
		}
	}
}

// shouldTriggerExtraction reports whether messageCount crosses the initial
// threshold or has advanced a full interval past the last recorded count.
func (a *AutoTrigger) shouldTriggerExtraction(sessionID string, messageCount int) bool {
	a.mu.Lock()
	lastCount := a.extractionTracker[sessionID]
	a.mu.Unlock()

	if lastCount < extractionThreshold && messageCount >= extractionThreshold {
		return true
	}
	if messageCount >= extractionThreshold && messageCount-lastCount >= extractionInterval {
		return true
	}
	return false
}

func (a *AutoTrigger) recordExtraction(sessionID string, messageCount int) {
	a.mu.Lock()
	a.extractionTracker[sessionID] = messageCount
	a.mu.Unlock()
}

// maybeTriggerTitle generates a title unless the session already has one
// that a prior AI pass produced or the user set by hand.
func (a *AutoTrigger) maybeTriggerTitle(ctx context.Context, sessionID string) {
	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	if sess.TitleAIGenerated || sess.TitleEdited {
		return
	}

	permit, err := a.tasks.Acquire(ctx)
	if err != nil {
		return
	}

	go func() {
		defer permit.Release()
		result := extract.GenerateTitle(ctx, a.store, a.inv, sessionID, a.notify)
		if result.Err != nil {
			a.log.Warn().Err(result.Err).Str("session_id", sessionID).Msg("auto-trigger: title generation failed")
		} else {
			a.log.Info().Str("session_id", sessionID).Msg("auto-trigger: title generated")
		}
	}()
}

func (a *AutoTrigger) triggerMemoryExtraction(ctx context.Context, sessionID string) {
	permit, err := a.tasks.Acquire(ctx)
	if err != nil {
		return
	}

	go func() {
		defer permit.Release()
		result := extract.ExtractMemories(ctx, a.store, a.inv, sessionID, false, a.notify)
		if result.Err != nil {
			a.log.Warn().Err(result.Err).Str("session_id", sessionID).Msg("auto-trigger: memory extraction failed")
		} else {
			a.log.Info().Int("count", result.Extracted).Str("session_id", sessionID).Msg("auto-trigger: memories extracted")
		}
	}()
}

func (a *AutoTrigger) triggerSkillExtraction(ctx context.Context, sessionID string) {
	permit, err := a.tasks.Acquire(ctx)
	if err != nil {
		return
	}

	go func() {
		defer permit.Release()
		result := extract.ExtractSkills(ctx, a.store, a.inv, sessionID, a.notify)
		if result.Err != nil {
			a.log.Warn().Err(result.Err).Str("session_id", sessionID).Msg("auto-trigger: skill extraction failed")
		} else {
			a.log.Info().Int("count", result.Extracted).Str("session_id", sessionID).Msg("auto-trigger: skills extracted")
		}
	}()
}

func (a *AutoTrigger) triggerMarkerDetection(ctx context.Context, sessionID string) {
	permit, err := a.tasks.Acquire(ctx)
	if err != nil {
		return
	}

	go func() {
		defer permit.Release()
		result := extract.DetectMarkers(ctx, a.store, a.inv, sessionID, a.notify)
		if result.Err != nil {
			a.log.Warn().Err(result.Err).Str("session_id", sessionID).Msg("auto-trigger: marker detection failed")
		} else {
			a.log.Info().Int("count", result.Created).Str("session_id", sessionID).Msg("auto-trigger: markers detected")
		}
	}()
}
