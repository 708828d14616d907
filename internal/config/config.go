package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/quorum/internal/logging"
)

// Config is the effective configuration.
type Config struct {
	Provider      string   `mapstructure:"provider"`
	Model         string   `mapstructure:"model"`
	BaseURL       string   `mapstructure:"base_url"`
	Format        string   `mapstructure:"format"`
	FailOn        string   `mapstructure:"fail_on"`
	MinConfidence float64  `mapstructure:"min_confidence"`
	Agents        []string `mapstructure:"agents"`
	RulesFile     string   `mapstructure:"rules_file"`

	LLM     LLMConfig     `mapstructure:"llm"`
	Review  ReviewConfig  `mapstructure:"review"`
	Diff    DiffConfig    `mapstructure:"diff"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Privacy PrivacyConfig `mapstructure:"privacy"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

// LLMConfig controls the model call client.
type LLMConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// ReviewConfig controls agents and the orchestrator.
type ReviewConfig struct {
	SnippetLines   int           `mapstructure:"snippet_lines"`
	DedupPrefix    int           `mapstructure:"dedup_prefix"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Summary        bool          `mapstructure:"summary"`
}

// DiffConfig controls local diff collection.
type DiffConfig struct {
	ContextLines int      `mapstructure:"context_lines"`
	MaxDiffBytes int      `mapstructure:"max_diff_bytes"`
	Include      []string `mapstructure:"include"`
	Exclude      []string `mapstructure:"exclude"`
}

// CacheConfig controls the model response cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// PrivacyConfig controls redaction.
type PrivacyConfig struct {
	RedactSecrets bool     `mapstructure:"redact_secrets"`
	RedactPaths   []string `mapstructure:"redact_paths"`
}

// StoreConfig selects the review history database.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig controls quorum serve.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// TraceConfig controls span export.
type TraceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

type kind int

const (
	kindString kind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
	kindList
)

type keyDef struct {
	key  string
	kind kind
	def  any
	// allowed restricts string values when set.
	allowed []string
}

var (
	providers = []string{"anthropic", "openai", "gemini", "google", "ollama", "lmstudio"}
	formats   = []string{"text", "json", "markdown", "sarif"}
)

var keys = []keyDef{
	{key: "provider", kind: kindString, def: "anthropic", allowed: providers},
	{key: "model", kind: kindString, def: "claude-sonnet-4-20250514"},
	{key: "base_url", kind: kindString, def: ""},
	{key: "format", kind: kindString, def: "text", allowed: formats},
	{key: "fail_on", kind: kindString, def: "none"},
	{key: "min_confidence", kind: kindFloat, def: 0.0},
	{key: "agents", kind: kindList, def: []string{"logic", "style", "security", "performance"}},
	{key: "rules_file", kind: kindString, def: ""},

	{key: "llm.timeout", kind: kindDuration, def: 30 * time.Second},
	{key: "llm.max_attempts", kind: kindInt, def: 3},
	{key: "llm.base_delay", kind: kindDuration, def: time.Second},
	{key: "llm.max_delay", kind: kindDuration, def: 20 * time.Second},
	{key: "llm.temperature", kind: kindFloat, def: 0.3},
	{key: "llm.max_tokens", kind: kindInt, def: 2000},
	{key: "llm.max_concurrent", kind: kindInt, def: 8},
	{key: "llm.requests_per_minute", kind: kindInt, def: 0},

	{key: "review.snippet_lines", kind: kindInt, def: 60},
	{key: "review.dedup_prefix", kind: kindInt, def: 200},
	{key: "review.request_timeout", kind: kindDuration, def: 120 * time.Second},
	{key: "review.summary", kind: kindBool, def: true},

	{key: "diff.context_lines", kind: kindInt, def: 3},
	{key: "diff.max_diff_bytes", kind: kindInt, def: 500000},
	{key: "diff.include", kind: kindList, def: []string{"**/*"}},
	{key: "diff.exclude", kind: kindList, def: []string{"vendor/**", "**/*.gen.go", "**/dist/**"}},

	{key: "cache.enabled", kind: kindBool, def: true},
	{key: "cache.dir", kind: kindString, def: ""},
	{key: "cache.ttl", kind: kindDuration, def: 24 * time.Hour},

	{key: "privacy.redact_secrets", kind: kindBool, def: true},
	{key: "privacy.redact_paths", kind: kindList, def: []string{"**/.env", "**/*secrets*"}},

	{key: "store.driver", kind: kindString, def: "sqlite", allowed: []string{"sqlite", "mysql"}},
	{key: "store.dsn", kind: kindString, def: ""},

	{key: "server.addr", kind: kindString, def: ":8080"},

	{key: "log.level", kind: kindString, def: "info", allowed: []string{"debug", "info", "warn", "error"}},
	{key: "log.format", kind: kindString, def: "text", allowed: []string{"text", "json"}},
	{key: "log.file", kind: kindString, def: ""},

	{key: "trace.enabled", kind: kindBool, def: false},
	{key: "trace.file", kind: kindString, def: ""},
}

func lookup(key string) (keyDef, bool) {
	for _, k := range keys {
		if k.key == key {
			return k, true
		}
	}
	return keyDef{}, false
}

// Keys returns every configuration key in sorted order.
func Keys() []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.key
	}
	sort.Strings(out)
	return out
}

func newViper() *viper.Viper {
	v := viper.New()
	for _, k := range keys {
		v.SetDefault(k.key, k.def)
	}
	return v
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Dir returns the platform config directory for quorum.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quorum"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "quorum"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "quorum"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "quorum"), nil
	default:
		return filepath.Join(home, ".config", "quorum"), nil
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns where quorum keeps its history database.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "quorum"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "quorum"), nil
}

// Load builds the effective configuration. path names the config file; when
// empty the default location is used if it exists. overrides are applied last
// and must use known keys.
func Load(path string, overrides map[string]string) (Config, error) {
	v := newViper()
	v.SetEnvPrefix("QUORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readFile(v, path); err != nil {
		return Config{}, err
	}
	for key, value := range overrides {
		def, ok := lookup(key)
		if !ok {
			return Config{}, fmt.Errorf("unknown config key: %s", key)
		}
		typed, err := def.parse(value)
		if err != nil {
			return Config{}, err
		}
		v.Set(key, typed)
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Store.DSN == "" && cfg.Store.Driver == "sqlite" {
		if dir, err := DataDir(); err == nil {
			cfg.Store.DSN = filepath.Join(dir, "history.db")
		}
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerated values and numeric bounds.
func (c Config) Validate() error {
	var errs []error
	check := func(key, value string) {
		def, _ := lookup(key)
		if len(def.allowed) > 0 && !slices.Contains(def.allowed, value) {
			errs = append(errs, fmt.Errorf("invalid %s %q (valid: %s)", key, value, strings.Join(def.allowed, ", ")))
		}
	}
	check("provider", c.Provider)
	check("format", c.Format)
	check("store.driver", c.Store.Driver)
	check("log.format", c.Log.Format)
	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("invalid log.level %q", c.Log.Level))
	}
	if err := validateFailOn(c.FailOn); err != nil {
		errs = append(errs, err)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min_confidence must be within [0, 1], got %g", c.MinConfidence))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("llm.max_attempts must be at least 1"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive"))
	}
	if c.LLM.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("llm.max_concurrent must be at least 1"))
	}
	if c.Review.SnippetLines < 1 {
		errs = append(errs, fmt.Errorf("review.snippet_lines must be at least 1"))
	}
	return errors.Join(errs...)
}

// FailOnList splits fail_on into its parts.
func (c Config) FailOnList() []string {
	var out []string
	for _, p := range strings.Split(c.FailOn, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateFailOn(s string) error {
	for _, p := range strings.Split(s, ",") {
		switch p = strings.TrimSpace(p); p {
		case "", "none", "any", "logic", "style", "security", "performance":
		default:
			return fmt.Errorf("invalid fail_on value %q (valid: none, any, logic, style, security, performance)", p)
		}
	}
	return nil
}

func (k keyDef) parse(value string) (any, error) {
	switch k.kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer: %w", k.key, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%s must be non-negative", k.key)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", k.key, err)
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", k.key)
		}
		return b, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a duration such as 30s: %w", k.key, err)
		}
		return d.String(), nil
	case kindList:
		var out []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		if len(k.allowed) > 0 && !slices.Contains(k.allowed, value) {
			return nil, fmt.Errorf("invalid value for %s: %s (valid: %s)", k.key, value, strings.Join(k.allowed, ", "))
		}
		return value, nil
	}
}

// SetField validates value for key and writes it to the config file at path,
// keeping every other setting already in the file.
func SetField(path, key, value string) error {
	def, ok := lookup(key)
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	typed, err := def.parse(value)
	if err != nil {
		return err
	}
	if key == "fail_on" {
		if err := validateFailOn(value); err != nil {
			return err
		}
	}

	v := viper.New()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	v.Set(key, typed)
	return write(v, path)
}

// Save writes every setting of cfg to path. The format follows the file
// extension; yaml is used when there is none.
func Save(path string, cfg Config) error {
	v := viper.New()
	for key, value := range cfg.Values() {
		v.Set(key, value)
	}
	return write(v, path)
}

func write(v *viper.Viper, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Values flattens cfg into dotted keys. Durations are rendered as strings.
func (c Config) Values() map[string]any {
	return map[string]any{
		"provider":                c.Provider,
		"model":                   c.Model,
		"base_url":                c.BaseURL,
		"format":                  c.Format,
		"fail_on":                 c.FailOn,
		"min_confidence":          c.MinConfidence,
		"agents":                  c.Agents,
		"rules_file":              c.RulesFile,
		"llm.timeout":             c.LLM.Timeout.String(),
		"llm.max_attempts":        c.LLM.MaxAttempts,
		"llm.base_delay":          c.LLM.BaseDelay.String(),
		"llm.max_delay":           c.LLM.MaxDelay.String(),
		"llm.temperature":         c.LLM.Temperature,
		"llm.max_tokens":          c.LLM.MaxTokens,
		"llm.max_concurrent":      c.LLM.MaxConcurrent,
		"llm.requests_per_minute": c.LLM.RequestsPerMinute,
		"review.snippet_lines":    c.Review.SnippetLines,
		"review.dedup_prefix":     c.Review.DedupPrefix,
		"review.request_timeout":  c.Review.RequestTimeout.String(),
		"review.summary":          c.Review.Summary,
		"diff.context_lines":      c.Diff.ContextLines,
		"diff.max_diff_bytes":     c.Diff.MaxDiffBytes,
		"diff.include":            c.Diff.Include,
		"diff.exclude":            c.Diff.Exclude,
		"cache.enabled":           c.Cache.Enabled,
		"cache.dir":               c.Cache.Dir,
		"cache.ttl":               c.Cache.TTL.String(),
		"privacy.redact_secrets":  c.Privacy.RedactSecrets,
		"privacy.redact_paths":    c.Privacy.RedactPaths,
		"store.driver":            c.Store.Driver,
		"store.dsn":               c.Store.DSN,
		"server.addr":             c.Server.Addr,
		"log.level":               c.Log.Level,
		"log.format":              c.Log.Format,
		"log.file":                c.Log.File,
		"trace.enabled":           c.Trace.Enabled,
		"trace.file":              c.Trace.File,
	}
}
