package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/matheuskafuri/autoposter/internal/signal"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const appName = "autoposter"

// Kind selects the pipeline a target runs through.
type Kind string

const (
	KindNews    Kind = "news"
	KindDigest  Kind = "digest"
	KindProduct Kind = "product"
	KindOptions Kind = "options"
)

// Target is one category posted to one account.
type Target struct {
	Category      string   `yaml:"category"`
	Account       string   `yaml:"account"`
	Kind          Kind     `yaml:"kind"`
	MemoryKey     string   `yaml:"memory_key,omitempty"`
	Scoring       string   `yaml:"scoring,omitempty"`
	MaxAgeHours   int      `yaml:"max_age_hours,omitempty"`
	Limit         int      `yaml:"limit,omitempty"`
	DigestSize    int      `yaml:"digest_size,omitempty"`
	Feeds         []string `yaml:"feeds,omitempty"`
	FallbackFeeds []string `yaml:"fallback_feeds,omitempty"`
	FallbackLimit int      `yaml:"fallback_limit,omitempty"`
	Options       []string `yaml:"options,omitempty"`
	Disabled      bool     `yaml:"disabled,omitempty"`
}

// GetLimit returns the candidate limit, defaulting to 15.
func (t Target) GetLimit() int {
	if t.Limit <= 0 {
		return 15
	}
	return t.Limit
}

// GetDigestSize returns the number of posts in a digest, defaulting to 5.
func (t Target) GetDigestSize() int {
	if t.DigestSize <= 0 {
		return 5
	}
	return t.DigestSize
}

// GetFallbackLimit returns the per-source cap for fallback feeds, defaulting to 10.
func (t Target) GetFallbackLimit() int {
	if t.FallbackLimit <= 0 {
		return 10
	}
	return t.FallbackLimit
}

type FetchConfig struct {
	Timeout     string `yaml:"timeout"`
	Retries     int    `yaml:"retries"`
	Concurrency int    `yaml:"concurrency"`
	UserAgent   string `yaml:"user_agent"`
}

func (f FetchConfig) TimeoutDuration() time.Duration {
	return parseDuration(f.Timeout, 10*time.Second)
}

type PublishConfig struct {
	Host              string `yaml:"host"`
	InterPostDelay    string `yaml:"inter_post_delay"`
	RateLimitCooldown string `yaml:"rate_limit_cooldown"`
	MaxAttempts       int    `yaml:"max_attempts"`
	MaxGraphemes      int    `yaml:"max_graphemes"`
}

func (p PublishConfig) InterPostDuration() time.Duration {
	return parseDuration(p.InterPostDelay, 3*time.Second)
}

func (p PublishConfig) CooldownDuration() time.Duration {
	return parseDuration(p.RateLimitCooldown, 120*time.Second)
}

// GetMaxAttempts returns the total attempts per post, defaulting to 2.
func (p PublishConfig) GetMaxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 2
	}
	return p.MaxAttempts
}

type ShortenerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type AIConfig struct {
	Provider string `yaml:"provider"` // "openai", "claude" or "gemini"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type Config struct {
	MemoryDir          string                  `yaml:"memory_dir,omitempty"`
	HistoryDB          string                  `yaml:"history_db,omitempty"`
	HistoryRetention   string                  `yaml:"history_retention,omitempty"`
	AccountsFile       string                  `yaml:"accounts_file,omitempty"`
	MaxMemory          int                     `yaml:"max_memory,omitempty"`
	CategoryDelay      string                  `yaml:"category_delay,omitempty"`
	DefaultMaxAgeHours int                     `yaml:"default_max_age_hours,omitempty"`
	Fetch              FetchConfig             `yaml:"fetch"`
	Publish            PublishConfig           `yaml:"publish"`
	Shortener          ShortenerConfig         `yaml:"shortener"`
	AI                 *AIConfig               `yaml:"ai,omitempty"`
	Scoring            map[string]signal.Table `yaml:"scoring,omitempty"`
	Targets            []Target                `yaml:"targets"`
}

// AIKey returns the resolved API key: config first, then AUTOPOSTER_AI_KEY,
// then the provider's conventional variable.
func (c *Config) AIKey() string {
	if c.AI != nil && c.AI.APIKey != "" {
		return c.AI.APIKey
	}
	if k := os.Getenv("AUTOPOSTER_AI_KEY"); k != "" {
		return k
	}
	if c.AI == nil {
		return ""
	}
	switch c.AI.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// RetentionDuration is how long run history is kept, defaulting to 90 days.
func (c *Config) RetentionDuration() time.Duration {
	return parseDuration(c.HistoryRetention, 90*24*time.Hour)
}

func (c *Config) CategoryDelayDuration() time.Duration {
	return parseDuration(c.CategoryDelay, 5*time.Second)
}

// MaxAges returns the recency window of every target that sets one.
func (c *Config) MaxAges() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for _, t := range c.Targets {
		if t.MaxAgeHours > 0 {
			out[t.Category] = time.Duration(t.MaxAgeHours) * time.Hour
		}
	}
	return out
}

func (c *Config) DefaultMaxAge() time.Duration {
	if c.DefaultMaxAgeHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DefaultMaxAgeHours) * time.Hour
}

// MemoryKeys maps each category to the noun used in its memory file.
func (c *Config) MemoryKeys() map[string]string {
	out := make(map[string]string, len(c.Targets))
	for _, t := range c.Targets {
		key := t.MemoryKey
		if key == "" {
			key = "items"
		}
		out[t.Category] = key
	}
	return out
}

// EnabledTargets returns targets not marked disabled, in config order.
func (c *Config) EnabledTargets() []Target {
	var out []Target
	for _, t := range c.Targets {
		if !t.Disabled {
			out = append(out, t)
		}
	}
	return out
}

func (c *Config) Categories() []string {
	var names []string
	for _, t := range c.EnabledTargets() {
		names = append(names, t.Category)
	}
	return names
}

// Select returns the targets for the given categories in the order given.
func (c *Config) Select(categories []string) ([]Target, error) {
	byName := make(map[string]Target)
	for _, t := range c.EnabledTargets() {
		byName[t.Category] = t
	}
	var out []Target
	for _, name := range categories {
		name = strings.ToLower(strings.TrimSpace(name))
		t, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown category %q (valid: %s)", name, strings.Join(c.Categories(), ", "))
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Config) ResolvedMemoryDir() string {
	if c.MemoryDir != "" {
		return c.MemoryDir
	}
	return filepath.Join(xdg.DataHome, appName, "memory")
}

func (c *Config) ResolvedHistoryPath() string {
	if c.HistoryDB != "" {
		return c.HistoryDB
	}
	return filepath.Join(xdg.CacheHome, appName, "history.db")
}

func (c *Config) ResolvedAccountsPath() string {
	if c.AccountsFile != "" {
		return c.AccountsFile
	}
	return filepath.Join(xdg.ConfigHome, appName, "accounts.yaml")
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// parseDuration accepts Go durations and an "Nd" day syntax.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-fatal: embedded defaults are used when the file cannot be written
			_ = writeDefaults(path)
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	mergeDefaults(&cfg, defaults)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

// mergeDefaults fills unset settings from defaults. User targets win over
// default targets with the same category; default targets the user does not
// mention are appended. Scoring tables are merged the same way.
func mergeDefaults(cfg, defaults *Config) {
	if cfg.MaxMemory <= 0 {
		cfg.MaxMemory = defaults.MaxMemory
	}
	if cfg.CategoryDelay == "" {
		cfg.CategoryDelay = defaults.CategoryDelay
	}
	if cfg.DefaultMaxAgeHours <= 0 {
		cfg.DefaultMaxAgeHours = defaults.DefaultMaxAgeHours
	}
	if cfg.Fetch == (FetchConfig{}) {
		cfg.Fetch = defaults.Fetch
	}
	if cfg.Publish == (PublishConfig{}) {
		cfg.Publish = defaults.Publish
	}
	if cfg.Shortener == (ShortenerConfig{}) {
		cfg.Shortener = defaults.Shortener
	}
	if cfg.AI == nil {
		cfg.AI = defaults.AI
	}

	if cfg.Scoring == nil {
		cfg.Scoring = make(map[string]signal.Table)
	}
	for name, table := range defaults.Scoring {
		if _, ok := cfg.Scoring[name]; !ok {
			cfg.Scoring[name] = table
		}
	}

	seen := make(map[string]bool, len(cfg.Targets))
	for _, t := range cfg.Targets {
		seen[t.Category] = true
	}
	for _, t := range defaults.Targets {
		if !seen[t.Category] {
			cfg.Targets = append(cfg.Targets, t)
		}
	}
}

func validate(cfg *Config) error {
	validKinds := map[Kind]bool{KindNews: true, KindDigest: true, KindProduct: true, KindOptions: true}
	seen := make(map[string]bool)
	for i, t := range cfg.Targets {
		if t.Category == "" {
			return fmt.Errorf("target %d: category is required", i)
		}
		if seen[t.Category] {
			return fmt.Errorf("target %q: duplicate category", t.Category)
		}
		seen[t.Category] = true
		if t.Account == "" {
			return fmt.Errorf("target %q: account is required", t.Category)
		}
		if !validKinds[t.Kind] {
			return fmt.Errorf("target %q: unknown kind %q (valid: news, digest, product, options)", t.Category, t.Kind)
		}
		if t.MaxAgeHours < 0 {
			return fmt.Errorf("target %q: max_age_hours must not be negative", t.Category)
		}

		switch t.Kind {
		case KindOptions:
			if len(t.Options) == 0 {
				return fmt.Errorf("target %q: options are required", t.Category)
			}
			continue
		case KindNews:
			if _, ok := cfg.Scoring[t.Scoring]; !ok {
				return fmt.Errorf("target %q: unknown scoring table %q", t.Category, t.Scoring)
			}
		}

		if len(t.Feeds) == 0 {
			return fmt.Errorf("target %q: at least one feed is required", t.Category)
		}
		for _, f := range append(append([]string{}, t.Feeds...), t.FallbackFeeds...) {
			if err := validateFeedURL(f); err != nil {
				return fmt.Errorf("target %q: %w", t.Category, err)
			}
		}
	}
	return nil
}

func validateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("feed url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
