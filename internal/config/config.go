package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/revenue"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "CONTENT_PIPELINE_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	feedbackDSNEnv    = "FEEDBACK_DSN"
	mlAPIKeyEnv       = "ML_API_KEY"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	workersEnv        = "PIPELINE_WORKERS"
)

// Dedupe policies for articles that share a link.
const (
	DedupeNone    = "none"
	DedupeRun     = "run"
	DedupeHistory = "history"
)

// Feedback drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Configuration validation errors.
var (
	ErrInvalidWorkers       = errors.New("pipeline.workers must be at least 1")
	ErrInvalidDedupe        = errors.New("pipeline.dedupe must be one of: none, run, history")
	ErrHistoryNeedsStorage  = errors.New("pipeline.dedupe=history requires a feedback driver")
	ErrSourceMissingURL     = errors.New("source url is required")
	ErrSourceMissingScanner = errors.New("source scanner is required")
	ErrEmptyChannel         = errors.New("channel id must not be empty")
	ErrInvalidRuleKind      = errors.New("revenue rule kind is unknown")
	ErrNegativeRuleAmount   = errors.New("revenue rule amount must be non-negative")
	ErrInvalidDriver        = errors.New("feedback.driver must be one of: none, postgres, sqlite")
	ErrMissingDSN           = errors.New("feedback.dsn is required for the selected driver")
	ErrInvalidLogLevel      = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat     = errors.New("logging.format must be one of: text, json")
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Sources       []SourceConfig     `yaml:"sources"`
	Models        ModelConfig        `yaml:"models"`
	ML            MLConfig           `yaml:"ml"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Channels      []string           `yaml:"channels"`
	Audience      AudienceConfig     `yaml:"audience"`
	Revenue       RevenueConfig      `yaml:"revenue"`
	Feedback      FeedbackConfig     `yaml:"feedback"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	Dedupe       string        `yaml:"dedupe"`
	StageTimeout time.Duration `yaml:"stageTimeout"`
}

// SourceConfig describes one acquisition endpoint and the scanner that reads it.
type SourceConfig struct {
	Name      string          `yaml:"name"`
	URL       string          `yaml:"url"`
	Scanner   string          `yaml:"scanner"`
	Selectors SelectorsConfig `yaml:"selectors"`
}

// SelectorsConfig overrides the HTML scanner CSS selectors.
type SelectorsConfig struct {
	Headline string `yaml:"headline"`
	Summary  string `yaml:"summary"`
	Link     string `yaml:"link"`
}

// ModelConfig names the model used by each NLP stage. Values are passed through untouched.
type ModelConfig struct {
	Sentiment  string `yaml:"sentiment"`
	Topic      string `yaml:"topic"`
	Summarizer string `yaml:"summarizer"`
	Generator  string `yaml:"generator"`
}

// MLConfig describes inference-service integration parameters.
type MLConfig struct {
	InferenceURL      string  `yaml:"inferenceUrl"`
	APIKey            string  `yaml:"apiKey"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	MaxInputChars     int     `yaml:"maxInputChars"`
	MaxSummaryChars   int     `yaml:"maxSummaryChars"`
	MaxGeneratedChars int     `yaml:"maxGeneratedChars"`
}

// ChatGPTConfig defines how to contact the ChatGPT API for generation.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
	MaxTokens    int    `yaml:"maxTokens"`
}

// AudienceConfig overrides the default preferred channels.
type AudienceConfig struct {
	Preferred []string `yaml:"preferred"`
}

// RevenueConfig lists the revenue rules in evaluation order.
type RevenueConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig is the YAML form of a revenue rule.
type RuleConfig struct {
	Name   string  `yaml:"name"`
	Kind   string  `yaml:"kind"`
	Amount float64 `yaml:"amount"`
	Label  string  `yaml:"label"`
}

// FeedbackConfig selects where recorded articles are persisted.
type FeedbackConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Buffer int    `yaml:"buffer"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// SchedulerConfig defines when the pipeline should run in schedule mode.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	MetricsAddr    string         `yaml:"metricsAddr"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads .env (if present), the YAML file (explicit path or env var) and applies
// environment overrides. A named file that cannot be read or parsed is an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidConfig, path, err)
		}
		fileCfg, err := Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfig, path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Parse decodes YAML bytes into a Config without applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural invariants. Channel registration is checked when the distributor is built.
func (c Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return ErrInvalidWorkers
	}

	switch c.Pipeline.Dedupe {
	case DedupeNone, DedupeRun:
	case DedupeHistory:
		if c.Feedback.Driver == DriverNone {
			return ErrHistoryNeedsStorage
		}
	default:
		return ErrInvalidDedupe
	}

	for i, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("%w: sources[%d]", ErrSourceMissingURL, i)
		}
		if src.Scanner == "" {
			return fmt.Errorf("%w: sources[%d]", ErrSourceMissingScanner, i)
		}
	}

	for i, ch := range c.Channels {
		if ch == "" {
			return fmt.Errorf("%w: channels[%d]", ErrEmptyChannel, i)
		}
	}

	for i, rule := range c.Revenue.Rules {
		if rule.Kind != "" && !revenue.KnownKind(rule.Kind) {
			return fmt.Errorf("%w: revenue.rules[%d] %q", ErrInvalidRuleKind, i, rule.Kind)
		}
		if rule.Amount < 0 {
			return fmt.Errorf("%w: revenue.rules[%d]", ErrNegativeRuleAmount, i)
		}
	}

	switch c.Feedback.Driver {
	case DriverNone:
	case DriverPostgres, DriverSQLite:
		if c.Feedback.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return ErrInvalidDriver
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

// DomainSources converts the configured sources to domain values.
func (c Config) DomainSources() []domain.Source {
	out := make([]domain.Source, 0, len(c.Sources))
	for _, src := range c.Sources {
		name := src.Name
		if name == "" {
			name = src.URL
		}
		out = append(out, domain.Source{
			Name:    name,
			URL:     src.URL,
			Scanner: src.Scanner,
			Selectors: domain.Selectors{
				Headline: src.Selectors.Headline,
				Summary:  src.Selectors.Summary,
				Link:     src.Selectors.Link,
			},
		})
	}
	return out
}

// ChannelIDs converts configured channel strings to domain identifiers.
func (c Config) ChannelIDs() []domain.ChannelID {
	return toChannelIDs(c.Channels)
}

// PreferredChannels returns the audience override, if any.
func (c Config) PreferredChannels() []domain.ChannelID {
	return toChannelIDs(c.Audience.Preferred)
}

// RuleSpecs converts the configured revenue rules to declarative specs.
func (c Config) RuleSpecs() []revenue.Spec {
	specs := make([]revenue.Spec, 0, len(c.Revenue.Rules))
	for _, r := range c.Revenue.Rules {
		specs = append(specs, revenue.Spec{Name: r.Name, Kind: r.Kind, Amount: r.Amount, Label: r.Label})
	}
	return specs
}

func toChannelIDs(values []string) []domain.ChannelID {
	out := make([]domain.ChannelID, 0, len(values))
	for _, v := range values {
		out = append(out, domain.ChannelID(v))
	}
	return out
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(workersEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domain.ErrInvalidConfig, workersEnv, v)
		}
		c.Pipeline.Workers = n
	}

	if v := os.Getenv(feedbackDSNEnv); v != "" {
		c.Feedback.DSN = v
	}

	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	return nil
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("%w: unknown timezone %s", domain.ErrInvalidConfig, tz)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Pipeline.Workers != 0 {
		base.Pipeline.Workers = override.Pipeline.Workers
	}
	if override.Pipeline.Dedupe != "" {
		base.Pipeline.Dedupe = override.Pipeline.Dedupe
	}
	if override.Pipeline.StageTimeout != 0 {
		base.Pipeline.StageTimeout = override.Pipeline.StageTimeout
	}

	if override.Sources != nil {
		base.Sources = override.Sources
	}

	if override.Models.Sentiment != "" {
		base.Models.Sentiment = override.Models.Sentiment
	}
	if override.Models.Topic != "" {
		base.Models.Topic = override.Models.Topic
	}
	if override.Models.Summarizer != "" {
		base.Models.Summarizer = override.Models.Summarizer
	}
	if override.Models.Generator != "" {
		base.Models.Generator = override.Models.Generator
	}

	if override.ML.InferenceURL != "" {
		base.ML.InferenceURL = override.ML.InferenceURL
	}
	if override.ML.APIKey != "" {
		base.ML.APIKey = override.ML.APIKey
	}
	if override.ML.RequestsPerSecond != 0 {
		base.ML.RequestsPerSecond = override.ML.RequestsPerSecond
	}
	if override.ML.MaxInputChars != 0 {
		base.ML.MaxInputChars = override.ML.MaxInputChars
	}
	if override.ML.MaxSummaryChars != 0 {
		base.ML.MaxSummaryChars = override.ML.MaxSummaryChars
	}
	if override.ML.MaxGeneratedChars != 0 {
		base.ML.MaxGeneratedChars = override.ML.MaxGeneratedChars
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.Model != "" {
		base.ChatGPT.Model = override.ChatGPT.Model
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}
	if override.ChatGPT.SystemPrompt != "" {
		base.ChatGPT.SystemPrompt = override.ChatGPT.SystemPrompt
	}
	if override.ChatGPT.MaxTokens != 0 {
		base.ChatGPT.MaxTokens = override.ChatGPT.MaxTokens
	}

	if override.Channels != nil {
		base.Channels = override.Channels
	}
	if override.Audience.Preferred != nil {
		base.Audience.Preferred = override.Audience.Preferred
	}
	if override.Revenue.Rules != nil {
		base.Revenue.Rules = override.Revenue.Rules
	}

	if override.Feedback.Driver != "" {
		base.Feedback.Driver = override.Feedback.Driver
	}
	if override.Feedback.DSN != "" {
		base.Feedback.DSN = override.Feedback.DSN
	}
	if override.Feedback.Buffer != 0 {
		base.Feedback.Buffer = override.Feedback.Buffer
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.APIBase != "" {
		base.Notifications.Telegram.APIBase = override.Notifications.Telegram.APIBase
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.MetricsAddr != "" {
		base.Scheduler.MetricsAddr = override.Scheduler.MetricsAddr
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Pipeline: PipelineConfig{Workers: 4, Dedupe: DedupeNone, StageTimeout: 30 * time.Second},
		Sources: []SourceConfig{
			{Name: "example1", URL: "https://www.example1.com", Scanner: "html"},
			{Name: "example2", URL: "https://www.example2.com", Scanner: "html"},
			{Name: "example3", URL: "https://www.example3.com", Scanner: "html"},
		},
		Models: ModelConfig{
			Sentiment:  "distilbert-base-uncased-finetuned-sst-2-english",
			Topic:      "distilbert-base-uncased-finetuned-sst-2-english",
			Summarizer: "ctrl",
			Generator:  "gpt2",
		},
		ML: MLConfig{
			InferenceURL:      "http://localhost:8085",
			RequestsPerSecond: 10,
			MaxInputChars:     4096,
			MaxSummaryChars:   600,
			MaxGeneratedChars: 1200,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You write short, engaging derivative articles about a given topic.",
			MaxTokens:    300,
		},
		Channels: []string{"website", "blog", "social-media", "content-aggregator"},
		Feedback: FeedbackConfig{Driver: DriverNone, Buffer: 256},
		Scheduler: SchedulerConfig{
			CronExpression: "0 6 * * *",
			Timezone:       defaultTimezone,
			location:       tz,
		},
	}
}
