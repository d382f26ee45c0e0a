// Package config provides configuration management for relgraph.
// It loads settings from environment variables with the RELGRAPH_ prefix,
// provides sensible defaults for all configuration options, and optionally
// reads a YAML tuning file with scoring and influence parameters.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/relgraph/internal/embedding"
	"github.com/scrypster/relgraph/internal/influence"
	"github.com/scrypster/relgraph/internal/intro"
	"github.com/scrypster/relgraph/internal/pathfinder"
	"github.com/scrypster/relgraph/internal/scoring"
	"github.com/scrypster/relgraph/internal/storage"
	"github.com/scrypster/relgraph/pkg/types"
)

// Storage engines.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineNeo4j    = "neo4j"
	EngineFile     = "file"
)

// Config holds all configuration settings for relgraph.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Snapshot  SnapshotConfig
	Paths     PathsConfig
	Embedding EmbeddingConfig
	Security  SecurityConfig
	Tuning    Tuning
	LogLevel  string // debug, info, warn, error (default: info)
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port      int     // Server port (default: 7070)
	Host      string  // Server host (default: 127.0.0.1)
	RateLimit float64 // Requests per second per server (default: 20)
	RateBurst int     // Burst size (default: 40)
}

// StorageConfig selects and configures the graph backend.
type StorageConfig struct {
	Engine        string // sqlite, postgres, neo4j, file (default: sqlite)
	SQLitePath    string // SQLite database path (default: ./data/relgraph.db)
	PostgresDSN   string // PostgreSQL connection string
	Neo4jURI      string // Neo4j/Memgraph bolt URI
	Neo4jUser     string
	Neo4jPassword string
	FixturePath   string // YAML/JSON fixture file or directory for the file engine
}

// SnapshotConfig controls how snapshots are loaded.
type SnapshotConfig struct {
	PageSize     int           // Rows per page (default: 500)
	MaxParallel  int           // Concurrent page fetches (default: 4)
	EntityTypes  []string      // Entity types to load (default: all)
	InternalOnly bool          // Load internal entities only (default: false)
	EdgeKinds    []string      // Edge kinds to load (default: all)
	MinStrength  float64       // Drop weaker stored edges (default: 0)
	Reload       time.Duration // Background reload interval for serve, 0 disables
	EventsDir    string        // Reload notifications between processes (default: ./data/events)
}

// PathsConfig bounds path queries.
type PathsConfig struct {
	MaxHops         int           // default: 4
	MaxPaths        int           // default: 10
	Timeout         time.Duration // per strategy run (default: 2s)
	HubCandidates   int           // default: 10
	MinPathStrength float64       // default: 0
	CacheCapacity   int           // result cache entries per snapshot (default: 1000)
}

// EmbeddingConfig configures the optional query embedding provider.
type EmbeddingConfig struct {
	OpenAIAPIKey string // Enables semantic scoring when set
	Model        string // default: text-embedding-3-small
	BaseURL      string // OpenAI-compatible endpoint override
	MaxFailures  uint32 // Circuit breaker trip threshold (default: 3)
	OpenTimeout  time.Duration
	CallTimeout  time.Duration
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// Tuning holds the parameters read from the YAML tuning file.
type Tuning struct {
	Scoring   scoring.Config   `yaml:"scoring"`
	Influence influence.Config `yaml:"influence"`
	Warm      WarmTuning       `yaml:"warm_introductions"`
	HubTypes  []string         `yaml:"hub_types"`
	OrgTypes  []string         `yaml:"org_types"`
}

// WarmTuning holds warm introduction defaults.
type WarmTuning struct {
	MaxHops         int     `yaml:"max_hops"`
	MaxResults      int     `yaml:"max_results"`
	MinPathStrength float64 `yaml:"min_path_strength"`
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. When RELGRAPH_TUNING_FILE is set the tuning file is read as well.
// The result is validated.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if path := getEnv("RELGRAPH_TUNING_FILE", ""); path != "" {
		if err := cfg.LoadTuning(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTuning reads a YAML tuning file into c.Tuning. Unknown keys are
// rejected. Keys missing from the file keep their defaults; keys present keep
// their value, zero included. Kind weights given in the file override the
// defaults one kind at a time.
func (c *Config) LoadTuning(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read tuning file: %w", err)
	}
	t := Tuning{
		Scoring:   scoring.DefaultConfig(),
		Influence: influence.DefaultConfig(),
	}
	t.Scoring.KindWeights = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse tuning file %s: %w", path, err)
	}
	weights := scoring.DefaultKindWeights()
	for k, w := range t.Scoring.KindWeights {
		weights[k] = w
	}
	t.Scoring.KindWeights = weights
	t.Influence.Normalize()
	c.Tuning = t
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be in [1,65535], got %d", c.Server.Port))
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		errs = append(errs, errors.New("rate limit and burst must be positive"))
	}

	switch c.Storage.Engine {
	case EngineSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("RELGRAPH_SQLITE_PATH is required for the sqlite engine"))
		}
	case EnginePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("RELGRAPH_POSTGRES_DSN is required for the postgres engine"))
		}
	case EngineNeo4j:
		if c.Storage.Neo4jURI == "" {
			errs = append(errs, errors.New("RELGRAPH_NEO4J_URI is required for the neo4j engine"))
		}
	case EngineFile:
		if c.Storage.FixturePath == "" {
			errs = append(errs, errors.New("RELGRAPH_FIXTURE_PATH is required for the file engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage engine %q", c.Storage.Engine))
	}

	if c.Snapshot.PageSize < 1 || c.Snapshot.MaxParallel < 1 {
		errs = append(errs, errors.New("snapshot page size and parallelism must be positive"))
	}
	for _, t := range c.Snapshot.EntityTypes {
		if !types.IsValidEntityType(types.EntityType(t)) {
			errs = append(errs, fmt.Errorf("unknown entity type %q in snapshot filter", t))
		}
	}
	if c.Paths.MaxHops < 1 || c.Paths.MaxHops > 8 {
		errs = append(errs, fmt.Errorf("max hops must be in [1,8], got %d", c.Paths.MaxHops))
	}
	if c.Paths.MinPathStrength < 0 || c.Paths.MinPathStrength > 1 {
		errs = append(errs, fmt.Errorf("min path strength must be in [0,1], got %v", c.Paths.MinPathStrength))
	}

	switch c.Security.SecurityMode {
	case "development":
	case "production":
		if c.Security.APIToken == "" {
			errs = append(errs, errors.New("RELGRAPH_API_TOKEN is required in production mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown security mode %q", c.Security.SecurityMode))
	}

	if err := c.Tuning.Scoring.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Filter returns the snapshot filter.
func (c *Config) Filter() storage.Filter {
	f := storage.Filter{MinStrength: c.Snapshot.MinStrength, InternalOnly: c.Snapshot.InternalOnly}
	for _, t := range c.Snapshot.EntityTypes {
		f.EntityTypes = append(f.EntityTypes, types.EntityType(t))
	}
	for _, k := range c.Snapshot.EdgeKinds {
		f.EdgeKinds = append(f.EdgeKinds, types.EdgeKind(k))
	}
	return f
}

// IntroConfig returns the service configuration.
func (c *Config) IntroConfig() intro.Config {
	paths := pathfinder.Options{
		MaxHops:       c.Paths.MaxHops,
		MaxPaths:      c.Paths.MaxPaths,
		Timeout:       c.Paths.Timeout,
		HubCandidates: c.Paths.HubCandidates,
	}
	for _, t := range c.Tuning.HubTypes {
		paths.HubTypes = append(paths.HubTypes, types.EntityType(t))
	}
	for _, t := range c.Tuning.OrgTypes {
		paths.OrgTypes = append(paths.OrgTypes, types.EntityType(t))
	}

	return intro.Config{
		Paths:               paths,
		Scoring:             c.Tuning.Scoring,
		Influence:           c.Tuning.Influence,
		MinPathStrength:     c.Paths.MinPathStrength,
		CacheCapacity:       c.Paths.CacheCapacity,
		WarmMaxHops:         c.Tuning.Warm.MaxHops,
		WarmMaxResults:      c.Tuning.Warm.MaxResults,
		WarmMinPathStrength: c.Tuning.Warm.MinPathStrength,
		Filter:              c.Filter(),
	}
}

// OpenAIConfig returns the embedding provider configuration.
func (c *Config) OpenAIConfig() embedding.OpenAIConfig {
	return embedding.OpenAIConfig{
		APIKey:  c.Embedding.OpenAIAPIKey,
		Model:   c.Embedding.Model,
		BaseURL: c.Embedding.BaseURL,
	}
}

// BreakerConfig returns the embedding circuit breaker configuration.
func (c *Config) BreakerConfig() embedding.CircuitBreakerConfig {
	return embedding.CircuitBreakerConfig{
		MaxFailures: c.Embedding.MaxFailures,
		Timeout:     c.Embedding.OpenTimeout,
		CallTimeout: c.Embedding.CallTimeout,
	}
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      getEnvInt("RELGRAPH_PORT", 7070),
			Host:      getEnv("RELGRAPH_HOST", "127.0.0.1"),
			RateLimit: getEnvFloat("RELGRAPH_RATE_LIMIT", 20),
			RateBurst: getEnvInt("RELGRAPH_RATE_BURST", 40),
		},
		Storage: StorageConfig{
			Engine:        getEnv("RELGRAPH_STORAGE_ENGINE", EngineSQLite),
			SQLitePath:    getEnv("RELGRAPH_SQLITE_PATH", "./data/relgraph.db"),
			PostgresDSN:   getEnv("RELGRAPH_POSTGRES_DSN", ""),
			Neo4jURI:      getEnv("RELGRAPH_NEO4J_URI", ""),
			Neo4jUser:     getEnv("RELGRAPH_NEO4J_USER", "neo4j"),
			Neo4jPassword: getEnv("RELGRAPH_NEO4J_PASSWORD", ""),
			FixturePath:   getEnv("RELGRAPH_FIXTURE_PATH", ""),
		},
		Snapshot: SnapshotConfig{
			PageSize:     getEnvInt("RELGRAPH_SNAPSHOT_PAGE_SIZE", 500),
			MaxParallel:  getEnvInt("RELGRAPH_SNAPSHOT_MAX_PARALLEL", 4),
			EntityTypes:  getEnvList("RELGRAPH_SNAPSHOT_ENTITY_TYPES"),
			InternalOnly: getEnvBool("RELGRAPH_SNAPSHOT_INTERNAL_ONLY", false),
			EdgeKinds:    getEnvList("RELGRAPH_SNAPSHOT_EDGE_KINDS"),
			MinStrength:  getEnvFloat("RELGRAPH_SNAPSHOT_MIN_STRENGTH", 0),
			Reload:       getEnvDuration("RELGRAPH_SNAPSHOT_RELOAD", 0),
			EventsDir:    getEnv("RELGRAPH_EVENTS_DIR", "./data/events"),
		},
		Paths: PathsConfig{
			MaxHops:         getEnvInt("RELGRAPH_MAX_HOPS", 4),
			MaxPaths:        getEnvInt("RELGRAPH_MAX_PATHS", 10),
			Timeout:         getEnvDuration("RELGRAPH_PATH_TIMEOUT", 2*time.Second),
			HubCandidates:   getEnvInt("RELGRAPH_HUB_CANDIDATES", 10),
			MinPathStrength: getEnvFloat("RELGRAPH_MIN_PATH_STRENGTH", 0),
			CacheCapacity:   getEnvInt("RELGRAPH_CACHE_CAPACITY", 1000),
		},
		Embedding: EmbeddingConfig{
			OpenAIAPIKey: getEnv("RELGRAPH_OPENAI_API_KEY", ""),
			Model:        getEnv("RELGRAPH_EMBEDDING_MODEL", embedding.DefaultOpenAIModel),
			BaseURL:      getEnv("RELGRAPH_OPENAI_BASE_URL", ""),
			MaxFailures:  uint32(getEnvInt("RELGRAPH_EMBEDDING_MAX_FAILURES", 3)),
			OpenTimeout:  getEnvDuration("RELGRAPH_EMBEDDING_OPEN_TIMEOUT", 30*time.Second),
			CallTimeout:  getEnvDuration("RELGRAPH_EMBEDDING_CALL_TIMEOUT", 5*time.Second),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("RELGRAPH_SECURITY_MODE", "development"),
			APIToken:     getEnv("RELGRAPH_API_TOKEN", ""),
		},
		Tuning: Tuning{
			Scoring:   scoring.DefaultConfig(),
			Influence: influence.DefaultConfig(),
		},
		LogLevel: getEnv("RELGRAPH_LOG_LEVEL", "info"),
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30s", "5m") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping empty
// items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
