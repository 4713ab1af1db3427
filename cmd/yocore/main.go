// Command yocore wires the session store, file watcher, auto-trigger,
// scheduler, and event broadcaster into a runnable daemon. It is a minimal
// demonstration entrypoint; the HTTP/SSE and MCP servers that would sit in
// front of this core are out of scope here (see spec.md §1).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yologdev/yocore-go/internal/autotrigger"
	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/core"
	"github.com/yologdev/yocore-go/internal/events"
	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/logging"
	"github.com/yologdev/yocore-go/internal/queue"
	"github.com/yologdev/yocore-go/internal/scheduler"
	"github.com/yologdev/yocore-go/internal/store"
	"github.com/yologdev/yocore-go/internal/watcher"
)

// maxConcurrentAITasks matches the original queue.rs default of 3
// concurrent AI subprocess calls.
const maxConcurrentAITasks = 3

func main() {
	configPath := flag.String("config", "~/.yolog/config.toml", "path to config.toml")
	logLevel := flag.String("log-level", "info", "zerolog level (debug, info, warn, error)")
	initConfig := flag.Bool("init", false, "write a commented default config.toml to -config and exit")
	flag.Parse()

	log := logging.New(*logLevel)

	if *initConfig {
		if err := writeTemplateConfig(*configPath); err != nil {
			log.Fatal().Err(err).Msg("failed to write config template")
		}
		fmt.Printf("wrote default configuration to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("falling back to built-in defaults")
		cfg = config.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := events.NewBroadcaster(logging.Component(log, "events"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded event bus")
	}
	defer bus.Close()

	st, ephemeralStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer st.Close()

	tasks := queue.New(maxConcurrentAITasks)

	var inv *invoker.Invoker
	if cfg.IsAIActive() {
		provider, ok := invoker.ProviderFromConfig(*cfg.AI.Provider)
		if !ok {
			log.Fatal().Str("provider", *cfg.AI.Provider).Msg("unknown ai.provider in config")
		}
		detected := invoker.Detect(ctx, provider)
		if !detected.Installed {
			log.Warn().Str("provider", provider.DisplayName()).Msg("configured AI provider not found; AI passes will be skipped until it is installed")
		} else {
			inv, err = invoker.New(detected, logging.Component(log, "invoker"))
			if err != nil {
				log.Fatal().Err(err).Msg("failed to initialize subprocess invoker")
			}
		}
	}

	loadConfig := func() (*config.Config, error) { return config.LoadConfig(*configPath) }

	var trigger *autotrigger.AutoTrigger
	if !cfg.Storage.IsEphemeral() {
		trigger = autotrigger.New(loadConfig, st, inv, tasks, bus, logging.Component(log, "autotrigger"))
	}

	w := watcher.New(st, ephemeralStore, trigger, loadConfig, tasks, inv, bus, logging.Component(log, "watcher"))
	if err := w.Start(ctx, cfg.WatchPaths()); err != nil {
		log.Fatal().Err(err).Msg("failed to start file watcher")
	}
	defer w.Stop()

	scheduler.StartScheduler(ctx, cfg, st, bus, logging.Component(log, "scheduler"))

	if trigger != nil {
		if err := core.RecoverPendingExtractions(ctx, st, cfg, trigger, logging.Component(log, "recovery")); err != nil {
			log.Warn().Err(err).Msg("startup recovery failed")
		}
	}

	log.Info().
		Str("storage", string(cfg.Storage)).
		Int("watch_paths", len(cfg.WatchPaths())).
		Str("events_url", bus.ClientURL()).
		Msg("yocore ready")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining")
}

// openStore picks the SQLite-backed or volatile store per cfg.Storage.
// ephemeralStore is non-nil only in the ephemeral case, since only
// VolatileStore implements the ephemeral title shortcut's narrow read path.
func openStore(cfg *config.Config) (store.Store, store.EphemeralStore, error) {
	if cfg.Storage.IsEphemeral() {
		vs := store.NewVolatileStore(cfg.Ephemeral.MaxSessions, cfg.Ephemeral.MaxMessagesPerSession)
		return vs, vs, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	st, err := store.OpenSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store at %s: %w", cfg.DBPath(), err)
	}
	return st, nil, nil
}

func writeTemplateConfig(path string) error {
	expanded := path
	if home, err := os.UserHomeDir(); err == nil && len(path) > 0 && path[0] == '~' {
		expanded = filepath.Join(home, path[1:])
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", expanded)
	}

	const template = `# yocore configuration. Uncomment and edit as needed. Keys with a built-in
# default show that default; the [[watch]] entry, ai.provider, and the
# embedding base_url/model are examples with no default.

# storage = "db"          # "db" (persistent SQLite) or "ephemeral" (in-memory)
# data_dir = "~/.yolog"

# [server]
# port = 19420
# host = "127.0.0.1"

# [[watch]]
# path = "/home/you/.claude/projects"
# parser = "claude_code"
# enabled = true

# [ai]
# provider = "claude_code" # or "openclaw"
# title_generation = true
# memory_extraction = true
# skills_discovery = true
# marker_detection = true

# [embedding]
# provider = "local"    # or "lmstudio"
# base_url = "http://localhost:1234/v1"
# model = "nomic-embed-text"

# [scheduler.ranking]
# interval_hours = 6
# batch_size = 500

# [ephemeral]
# max_sessions = 100
# max_messages_per_session = 50
`
	return os.WriteFile(expanded, []byte(template), 0o644)
}
