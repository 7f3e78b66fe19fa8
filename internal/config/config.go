package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Anthropic     AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI        OpenAIConfig        `yaml:"openai" mapstructure:"openai"`
	Judges        JudgesConfig        `yaml:"judges" mapstructure:"judges"`
	Ensemble      EnsembleConfig      `yaml:"ensemble" mapstructure:"ensemble"`
	Cascade       CascadeConfig       `yaml:"cascade" mapstructure:"cascade"`
	Corroboration CorroborationConfig `yaml:"corroboration" mapstructure:"corroboration"`
	Batch         BatchConfig         `yaml:"batch" mapstructure:"batch"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Aliases       AliasesConfig       `yaml:"aliases" mapstructure:"aliases"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the review corpus backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JudgeSlot names one model in the scoring panel.
type JudgeSlot struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
}

// JudgesConfig configures the model panel that scores review text.
type JudgesConfig struct {
	Slots               []JudgeSlot `yaml:"slots" mapstructure:"slots"`
	TimeoutSecs         int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts         int         `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int         `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	RatePerSecond       float64     `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst               int         `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold    int         `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int         `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// EnsembleConfig holds the voter's thresholds.
type EnsembleConfig struct {
	SpreadThreshold int `yaml:"spread_threshold" mapstructure:"spread_threshold"`
	DeltaThreshold  int `yaml:"delta_threshold" mapstructure:"delta_threshold"`
	NeutralScore    int `yaml:"neutral_score" mapstructure:"neutral_score"`
}

// CascadeConfig configures the scoring cascade.
type CascadeConfig struct {
	ExcerptFloor  int `yaml:"excerpt_floor" mapstructure:"excerpt_floor"`
	PositiveScore int `yaml:"positive_score" mapstructure:"positive_score"`
	NeutralScore  int `yaml:"neutral_score" mapstructure:"neutral_score"`
	NegativeScore int `yaml:"negative_score" mapstructure:"negative_score"`
}

// SeverityCutoffs are the lower bounds of the medium, high and critical
// severities. Differences below Medium are low.
type SeverityCutoffs struct {
	Medium   float64 `yaml:"medium" mapstructure:"medium"`
	High     float64 `yaml:"high" mapstructure:"high"`
	Critical float64 `yaml:"critical" mapstructure:"critical"`
}

// CorroborationConfig configures the corroboration validator and guardian.
type CorroborationConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
	// Relative applies to monetary and ratio fields (fraction of the old value).
	Relative SeverityCutoffs `yaml:"relative" mapstructure:"relative"`
	// Points applies to percentage fields (absolute point difference).
	Points SeverityCutoffs `yaml:"points" mapstructure:"points"`
	// Weights is the credibility weight per source type.
	Weights map[string]float64 `yaml:"weights" mapstructure:"weights"`
	// MinWeight is the weight below which an uncorroborated change is held.
	MinWeight float64 `yaml:"min_weight" mapstructure:"min_weight"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency        int    `yaml:"concurrency" mapstructure:"concurrency"`
	CheckpointInterval int    `yaml:"checkpoint_interval" mapstructure:"checkpoint_interval"`
	ScoringVersion     string `yaml:"scoring_version" mapstructure:"scoring_version"`
	LockPath           string `yaml:"lock_path" mapstructure:"lock_path"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AliasesConfig points at an alias table overriding the embedded one.
type AliasesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BROADWAYSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "broadwayscore.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("judges.slots", []map[string]any{
		{"name": "claude-sonnet", "provider": "anthropic", "model": "claude-sonnet-4-5-20250929"},
		{"name": "claude-haiku", "provider": "anthropic", "model": "claude-haiku-4-5-20251001"},
		{"name": "gpt", "provider": "openai", "model": "gpt-4o"},
	})
	v.SetDefault("judges.timeout_secs", 60)
	v.SetDefault("judges.max_attempts", 3)
	v.SetDefault("judges.initial_backoff_ms", 500)
	v.SetDefault("judges.rate_per_second", 2.0)
	v.SetDefault("judges.burst", 3)
	v.SetDefault("judges.breaker_threshold", 5)
	v.SetDefault("judges.breaker_cooldown_secs", 30)
	v.SetDefault("ensemble.spread_threshold", 10)
	v.SetDefault("ensemble.delta_threshold", 15)
	v.SetDefault("ensemble.neutral_score", 60)
	v.SetDefault("cascade.excerpt_floor", 500)
	v.SetDefault("cascade.positive_score", 80)
	v.SetDefault("cascade.neutral_score", 60)
	v.SetDefault("cascade.negative_score", 40)
	v.SetDefault("corroboration.tolerance", 0.10)
	v.SetDefault("corroboration.relative.medium", 0.05)
	v.SetDefault("corroboration.relative.high", 0.15)
	v.SetDefault("corroboration.relative.critical", 0.50)
	v.SetDefault("corroboration.points.medium", 2)
	v.SetDefault("corroboration.points.high", 5)
	v.SetDefault("corroboration.points.critical", 10)
	v.SetDefault("corroboration.weights", map[string]float64{
		"manual":     1.0,
		"official":   0.95,
		"trade":      0.8,
		"aggregator": 0.6,
		"scrape":     0.5,
		"model":      0.3,
	})
	v.SetDefault("corroboration.min_weight", 0.5)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.checkpoint_interval", 25)
	v.SetDefault("batch.scoring_version", "2026.10")
	v.SetDefault("batch.lock_path", "broadwayscore.lock")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present and in
// range. mode is the command name.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
		errs = append(errs, "batch.concurrency must be between 1 and 32")
	}
	if c.Batch.CheckpointInterval < 1 {
		errs = append(errs, "batch.checkpoint_interval must be > 0")
	}

	switch mode {
	case "ingest", "queue", "aliases":
		errs = append(errs, c.validateStore()...)
	case "score":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateScoring()...)
	case "changes":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateCorroboration()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for sqlite"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	return nil
}

func (c *Config) validateScoring() []string {
	var errs []string
	if len(c.Judges.Slots) == 0 || len(c.Judges.Slots) > 3 {
		errs = append(errs, "judges.slots must list between 1 and 3 models")
	}
	seen := make(map[string]bool)
	for _, s := range c.Judges.Slots {
		if seen[s.Name] {
			errs = append(errs, "judges.slots names must be unique: "+s.Name)
		}
		seen[s.Name] = true
		switch s.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required for slot "+s.Name)
			}
		case "openai":
			if c.OpenAI.Key == "" {
				errs = append(errs, "openai.key is required for slot "+s.Name)
			}
		default:
			errs = append(errs, "judges.slots provider must be anthropic or openai: "+s.Name)
		}
	}
	if c.Judges.TimeoutSecs <= 0 {
		errs = append(errs, "judges.timeout_secs must be > 0")
	}
	if c.Judges.MaxAttempts < 1 {
		errs = append(errs, "judges.max_attempts must be >= 1")
	}
	if c.Ensemble.SpreadThreshold < 0 || c.Ensemble.DeltaThreshold < 0 {
		errs = append(errs, "ensemble thresholds must be >= 0")
	}
	if c.Ensemble.NeutralScore < 0 || c.Ensemble.NeutralScore > 100 {
		errs = append(errs, "ensemble.neutral_score must be between 0 and 100")
	}
	if c.Batch.ScoringVersion == "" {
		errs = append(errs, "batch.scoring_version is required")
	}
	return errs
}

func (c *Config) validateCorroboration() []string {
	var errs []string
	if c.Corroboration.Tolerance <= 0 || c.Corroboration.Tolerance >= 1 {
		errs = append(errs, "corroboration.tolerance must be between 0 and 1")
	}
	for name, cut := range map[string]SeverityCutoffs{
		"relative": c.Corroboration.Relative,
		"points":   c.Corroboration.Points,
	} {
		if !(cut.Medium <= cut.High && cut.High <= cut.Critical) {
			errs = append(errs, "corroboration."+name+" cutoffs must be ascending")
		}
	}
	for src, w := range c.Corroboration.Weights {
		if w < 0 || w > 1 {
			errs = append(errs, "corroboration.weights."+src+" must be between 0 and 1")
		}
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
