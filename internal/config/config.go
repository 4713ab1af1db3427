// Package config loads yocore's TOML configuration file, following the
// same Default/Load/Validate trio the teacher uses for its Aider config,
// but for TOML at ~/.yolog/config.toml per the specification, with
// YOLOG_-prefixed environment overrides and a legacy-key compatibility
// step ported from the original Rust config module.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Storage selects the session store backend.
type Storage string

const (
	StorageDB        Storage = "db"
	StorageEphemeral Storage = "ephemeral"
)

func (s Storage) IsDB() bool        { return s == StorageDB || s == "" }
func (s Storage) IsEphemeral() bool { return s == StorageEphemeral }

// AiFeature identifies a gated AI feature for IsFeatureActive.
type AiFeature int

const (
	FeatureTitleGeneration AiFeature = iota
	FeatureMarkerDetection
	FeatureMemoryExtraction
	FeatureSkillsDiscovery
)

// ServerConfig is the HTTP binding configuration consumed by the
// out-of-scope API server; carried here because it lives in the same file.
type ServerConfig struct {
	Port         int     `toml:"port"`
	Host         string  `toml:"host"`
	APIKey       *string `toml:"api_key"`
	MDNSEnabled  bool    `toml:"mdns_enabled"`
	InstanceName *string `toml:"instance_name"`
}

// ShouldEnableMDNS mirrors the original's should_enable_mdns: nothing to
// discover on a localhost-only binding.
func (s ServerConfig) ShouldEnableMDNS() bool {
	if s.Host == "127.0.0.1" || s.Host == "localhost" {
		return false
	}
	return s.MDNSEnabled
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{Port: 19420, Host: "127.0.0.1", MDNSEnabled: true}
}

// WatchEntry is one watched root directory. Enabled is a pointer so that an
// omitted `enabled` key defaults to true (TOML has no per-field default
// mechanism like serde's #[serde(default = "...")], so presence is tracked
// explicitly instead of relying on the bool zero value).
type WatchEntry struct {
	Path    string `toml:"path"`
	Parser  string `toml:"parser"`
	Enabled *bool  `toml:"enabled"`
}

// IsEnabled reports whether this watch entry is active; absent means true.
func (w WatchEntry) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// ParserName returns the configured parser, defaulting to claude_code.
func (w WatchEntry) ParserName() string {
	if w.Parser == "" {
		return "claude_code"
	}
	return w.Parser
}

// legacyAiFeatures models the deprecated [ai.features] table, applied via
// applyLegacy for backward compatibility.
type legacyAiFeatures struct {
	TitleGeneration *bool `toml:"title_generation"`
	SkillsDiscovery *bool `toml:"skills_discovery"`
	MemoryExtraction *bool `toml:"memory_extraction"`
}

// AiConfig gates AI features. AI is active iff Provider is set and at
// least one feature toggle is true.
type AiConfig struct {
	Provider         *string           `toml:"provider"`
	TitleGeneration  bool              `toml:"title_generation"`
	MarkerDetection  bool              `toml:"marker_detection"`
	MemoryExtraction bool              `toml:"memory_extraction"`
	SkillsDiscovery  bool              `toml:"skills_discovery"`
	Enabled          *bool             `toml:"enabled"`
	Features         *legacyAiFeatures `toml:"features"`
}

func defaultAiConfig() AiConfig {
	return AiConfig{
		TitleGeneration:  true,
		MarkerDetection:  true,
		MemoryExtraction: true,
		SkillsDiscovery:  true,
	}
}

// applyLegacy folds deprecated [ai.features] and enabled=false into the
// flat fields, matching original_source/src/config.rs's AiConfig::apply_legacy.
func (a *AiConfig) applyLegacy() {
	if a.Enabled != nil && !*a.Enabled {
		a.Provider = nil
	}
	a.Enabled = nil

	if a.Features != nil {
		if a.Features.TitleGeneration != nil {
			a.TitleGeneration = *a.Features.TitleGeneration
		}
		if a.Features.SkillsDiscovery != nil {
			a.SkillsDiscovery = *a.Features.SkillsDiscovery
		}
		if a.Features.MemoryExtraction != nil {
			a.MemoryExtraction = *a.Features.MemoryExtraction
		}
		a.Features = nil
	}
}

// RankingConfig tunes the periodic ranking scheduler task.
type RankingConfig struct {
	IntervalHours uint32 `toml:"interval_hours"`
	BatchSize     int    `toml:"batch_size"`
}

func defaultRankingConfig() RankingConfig { return RankingConfig{IntervalHours: 6, BatchSize: 500} }

// DuplicateCleanupConfig tunes the periodic memory-dedup scheduler task.
type DuplicateCleanupConfig struct {
	IntervalHours       uint32  `toml:"interval_hours"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	BatchSize           int     `toml:"batch_size"`
}

func defaultDuplicateCleanupConfig() DuplicateCleanupConfig {
	return DuplicateCleanupConfig{IntervalHours: 24, SimilarityThreshold: 0.75, BatchSize: 500}
}

// EmbeddingRefreshConfig tunes the periodic embedding-backfill scheduler task.
type EmbeddingRefreshConfig struct {
	IntervalHours uint32 `toml:"interval_hours"`
	BatchSize     int    `toml:"batch_size"`
}

func defaultEmbeddingRefreshConfig() EmbeddingRefreshConfig {
	return EmbeddingRefreshConfig{IntervalHours: 12, BatchSize: 100}
}

// SkillCleanupConfig tunes the periodic skill-dedup scheduler task.
type SkillCleanupConfig struct {
	IntervalHours       uint32  `toml:"interval_hours"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	BatchSize           int     `toml:"batch_size"`
}

func defaultSkillCleanupConfig() SkillCleanupConfig {
	return SkillCleanupConfig{IntervalHours: 24, SimilarityThreshold: 0.80, BatchSize: 500}
}

// SchedulerConfig groups all per-task scheduler tuning.
type SchedulerConfig struct {
	Ranking           RankingConfig           `toml:"ranking"`
	DuplicateCleanup  DuplicateCleanupConfig  `toml:"duplicate_cleanup"`
	EmbeddingRefresh  EmbeddingRefreshConfig  `toml:"embedding_refresh"`
	SkillCleanup      SkillCleanupConfig      `toml:"skill_cleanup"`
}

func defaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Ranking:          defaultRankingConfig(),
		DuplicateCleanup: defaultDuplicateCleanupConfig(),
		EmbeddingRefresh: defaultEmbeddingRefreshConfig(),
		SkillCleanup:     defaultSkillCleanupConfig(),
	}
}

// EmbeddingConfig selects and tunes the memory-embedding provider used by
// the scheduler's embedding-refresh task and hybrid search.
type EmbeddingConfig struct {
	// Provider is "local" (the dependency-free hashing embedder, default)
	// or "lmstudio" (an OpenAI-compatible HTTP embeddings endpoint).
	Provider string `toml:"provider"`
	BaseURL  string `toml:"base_url"`
	Model    string `toml:"model"`
}

func defaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{Provider: "local"}
}

// EphemeralConfig bounds the volatile in-memory store.
type EphemeralConfig struct {
	MaxSessions             int `toml:"max_sessions"`
	MaxMessagesPerSession   int `toml:"max_messages_per_session"`
}

func defaultEphemeralConfig() EphemeralConfig {
	return EphemeralConfig{MaxSessions: 100, MaxMessagesPerSession: 50}
}

// Config is the root configuration tree, loaded from ~/.yolog/config.toml.
type Config struct {
	Storage   Storage         `toml:"storage"`
	Server    ServerConfig    `toml:"server"`
	Watch     []WatchEntry    `toml:"watch"`
	AI        AiConfig        `toml:"ai"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Ephemeral EphemeralConfig `toml:"ephemeral"`
	DataDir   string          `toml:"data_dir"`
}

// Default returns the built-in configuration used when no file is present
// or as the baseline before a partial TOML file is decoded on top of it.
func Default() *Config {
	home, err := os.UserHomeDir()
	dataDir := ".yolog"
	if err == nil {
		dataDir = filepath.Join(home, ".yolog")
	}
	return &Config{
		Storage:   StorageDB,
		Server:    defaultServerConfig(),
		Watch:     nil,
		AI:        defaultAiConfig(),
		Embedding: defaultEmbeddingConfig(),
		Scheduler: defaultSchedulerConfig(),
		Ephemeral: defaultEphemeralConfig(),
		DataDir:   dataDir,
	}
}

// expandHome resolves a leading ~ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// LoadConfig reads and decodes the TOML file at path, applies environment
// overrides and legacy-key compatibility, then validates the result.
func LoadConfig(path string) (*Config, error) {
	expanded := expandHome(path)

	if _, err := os.Stat(expanded); err != nil {
		return nil, fmt.Errorf("configuration file not found: %s", expanded)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config toml: %w", err)
	}

	cfg.AI.applyLegacy()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies YOLOG_-prefixed environment variables over
// whatever the TOML file (or defaults) set. Only the handful of settings
// an operator is likely to override at process-launch time are covered;
// the rest stay file-only, matching spec.md's description of env overrides
// as a layer on top of, not a replacement for, the TOML file.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("YOLOG_STORAGE"); ok {
		cfg.Storage = Storage(v)
	}
	if v, ok := os.LookupEnv("YOLOG_SERVER_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v, ok := os.LookupEnv("YOLOG_SERVER_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := os.LookupEnv("YOLOG_AI_PROVIDER"); ok {
		cfg.AI.Provider = &v
	}
	if v, ok := os.LookupEnv("YOLOG_DATA_DIR"); ok {
		cfg.DataDir = v
	}
}

// Validate checks invariants Load must reject at startup, per spec.md §7's
// "Config: missing file / bad TOML: hard-fail at startup" rule.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !c.Storage.IsDB() && !c.Storage.IsEphemeral() {
		return fmt.Errorf("invalid storage backend: %q", c.Storage)
	}
	for _, w := range c.Watch {
		if w.Path == "" {
			return fmt.Errorf("watch entry missing path")
		}
	}
	if c.Ephemeral.MaxSessions <= 0 {
		return fmt.Errorf("ephemeral.max_sessions must be positive")
	}
	if c.Ephemeral.MaxMessagesPerSession <= 0 {
		return fmt.Errorf("ephemeral.max_messages_per_session must be positive")
	}
	return nil
}

// IsAIActive reports whether any AI feature can run: a provider is
// configured and at least one feature toggle is on.
func (c *Config) IsAIActive() bool {
	return c.AI.Provider != nil && *c.AI.Provider != "" &&
		(c.AI.TitleGeneration || c.AI.MarkerDetection || c.AI.MemoryExtraction || c.AI.SkillsDiscovery)
}

// IsFeatureActive reports whether a specific AI feature is active. Features
// that require persistence (marker detection, memory extraction, skills
// discovery) are forced off under ephemeral storage.
func (c *Config) IsFeatureActive(f AiFeature) bool {
	if !c.IsAIActive() {
		return false
	}
	switch f {
	case FeatureTitleGeneration:
		return c.AI.TitleGeneration
	case FeatureMarkerDetection:
		return c.AI.MarkerDetection && c.Storage.IsDB()
	case FeatureMemoryExtraction:
		return c.AI.MemoryExtraction && c.Storage.IsDB()
	case FeatureSkillsDiscovery:
		return c.AI.SkillsDiscovery && c.Storage.IsDB()
	default:
		return false
	}
}

// WatchPaths returns the enabled watch entries.
func (c *Config) WatchPaths() []WatchEntry {
	out := make([]WatchEntry, 0, len(c.Watch))
	for _, w := range c.Watch {
		if w.IsEnabled() {
			out = append(out, w)
		}
	}
	return out
}

// DBPath returns the persistent SQLite database file path under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "yolog.db")
}
