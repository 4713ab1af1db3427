// Package core wires the owning process's startup-time recovery pass: after
// a restart, sessions that crossed the extraction threshold before the
// process died may be missing a title, memories, or skills. Grounded on
// original_source/src/lib.rs's recover_pending_ai_tasks.
package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/autotrigger"
	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/store"
)

// recoveryLimit caps how many sessions a single recovery pass re-triggers,
// matching the original's hardcoded LIMIT 50.
const recoveryLimit = 50

// RecoverPendingExtractions finds sessions that reached the extraction
// threshold but never got a title, memory pass, or skill pass — most often
// because the process restarted mid-window — and re-invokes the auto-trigger
// for each. AutoTrigger.OnSessionParsed re-checks its own per-feature gates
// (title already generated, config feature toggles), so calling it
// uniformly here is safe even when a session only needs one of the three
// passes.
func RecoverPendingExtractions(ctx context.Context, st store.Store, cfg *config.Config, trigger *autotrigger.AutoTrigger, log zerolog.Logger) error {
	if !cfg.IsAIActive() {
		return nil
	}

	sessions, err := st.SessionsNeedingRecovery(ctx, recoveryLimit)
	if err != nil {
		return fmt.Errorf("query sessions needing recovery: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	log.Info().Int("count", len(sessions)).Msg("startup recovery: sessions needing AI catch-up")

	for _, sess := range sessions {
		id := sess.ID
		if len(id) > 8 {
			id = id[:8]
		}
		log.Info().Str("session_id", id).Int("message_count", sess.MessageCount).Msg("startup recovery: re-triggering")
		trigger.OnSessionParsed(ctx, sess.ID, sess.MessageCount)
	}

	return nil
}
