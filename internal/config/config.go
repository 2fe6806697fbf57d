package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Resolver strategies.
const (
	ResolverKeyword = "keyword"
	ResolverLLM     = "llm"
)

// ServerConfig covers the HTTP and gRPC listeners.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	GRPCPort       int      `yaml:"grpc_port"`
	APIKeyHash     string   `yaml:"api_key_hash"`
	RateLimit      int      `yaml:"rate_limit_per_minute"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SourcesConfig covers the upstream feeds and their cache.
type SourcesConfig struct {
	KEVWindowDays      int           `yaml:"kev_window_days"`
	NVDWindowDays      int           `yaml:"nvd_window_days"`
	AdvisoryWindowDays int           `yaml:"advisory_window_days"`
	NVDSeverityFloor   float64       `yaml:"nvd_severity_floor"`
	NVDAPIKey          string        `yaml:"nvd_api_key"`
	AdvisoryFeedURL    string        `yaml:"advisory_feed_url"`
	ArticleExpansion   int           `yaml:"article_expansion"`
	TTL                time.Duration `yaml:"ttl"`
	Timeout            time.Duration `yaml:"timeout"`
}

// EnrichmentConfig covers score lookups.
type EnrichmentConfig struct {
	MaxItems  int           `yaml:"max_items"`
	MinDelay  time.Duration `yaml:"min_delay"`
	BulkDelay time.Duration `yaml:"bulk_delay"`
	ScoreTTL  time.Duration `yaml:"score_ttl"`
}

// QueryConfig covers intent resolution and paging.
type QueryConfig struct {
	Resolver            string `yaml:"resolver"`
	PageSize            int    `yaml:"page_size"`
	RansomwareThreshold int    `yaml:"ransomware_threshold"`
}

// LLMConfig covers the completion backend used by the llm resolver and narratives.
type LLMConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Narrative bool   `yaml:"narrative"`
}

// AttackConfig covers the MITRE ATT&CK technique catalog.
type AttackConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`
	TTL        time.Duration `yaml:"ttl"`
	MaxMatches int           `yaml:"max_matches"`
}

// WarmupConfig covers the background cache refresh.
type WarmupConfig struct {
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
	OnStart  bool          `yaml:"on_start"`
}

// Config holds all application configuration.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Sources    SourcesConfig    `yaml:"sources"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Query      QueryConfig      `yaml:"query"`
	LLM        LLMConfig        `yaml:"llm"`
	Attack     AttackConfig     `yaml:"attack"`
	Warmup     WarmupConfig     `yaml:"warmup"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			GRPCPort:  9000,
			RateLimit: 30,
			AllowedOrigins: []string{
				"http://localhost:8080",
				"http://127.0.0.1:8080",
				"http://[::1]:8080",
			},
		},
		Sources: SourcesConfig{
			KEVWindowDays:      0,
			NVDWindowDays:      90,
			AdvisoryWindowDays: 30,
			NVDSeverityFloor:   7.0,
			AdvisoryFeedURL:    "https://www.zerodayinitiative.com/rss/published/",
			TTL:                10 * time.Minute,
			Timeout:            30 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			MaxItems:  10,
			MinDelay:  700 * time.Millisecond,
			BulkDelay: 500 * time.Millisecond,
			ScoreTTL:  6 * time.Hour,
		},
		Query: QueryConfig{
			Resolver:            ResolverKeyword,
			PageSize:            20,
			RansomwareThreshold: 10,
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 2000,
			Narrative: true,
		},
		Attack: AttackConfig{
			Enabled:    true,
			URL:        "https://raw.githubusercontent.com/mitre/cti/master/enterprise-attack/enterprise-attack.json",
			TTL:        24 * time.Hour,
			MaxMatches: 5,
		},
		Warmup: WarmupConfig{
			Schedule: "@every 10m",
			Timeout:  2 * time.Minute,
			OnStart:  true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, .env,
// the environment and command line flags, in increasing precedence.
func Load() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	// A missing .env is fine; existing variables are not overridden.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := configPath(args)
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.bindFlags(fs)
	fs.String("config", path, "Path to a YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configPath finds -config/--config in args before flags are parsed, falling
// back to CYBERIQ_CONFIG.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("CYBERIQ_CONFIG")
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		c.Server.Addr = ":" + port
	}
	str("CYBERIQ_ADDR", &c.Server.Addr)
	num("CYBERIQ_GRPC_PORT", &c.Server.GRPCPort)
	str("CYBERIQ_API_KEY_HASH", &c.Server.APIKeyHash)
	num("CYBERIQ_RATE_LIMIT", &c.Server.RateLimit)
	if v, ok := os.LookupEnv("CYBERIQ_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}

	num("CYBERIQ_KEV_WINDOW_DAYS", &c.Sources.KEVWindowDays)
	num("CYBERIQ_NVD_WINDOW_DAYS", &c.Sources.NVDWindowDays)
	num("CYBERIQ_ADVISORY_WINDOW_DAYS", &c.Sources.AdvisoryWindowDays)
	if v, ok := os.LookupEnv("CYBERIQ_NVD_SEVERITY_FLOOR"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CYBERIQ_NVD_SEVERITY_FLOOR: %w", err))
		} else {
			c.Sources.NVDSeverityFloor = f
		}
	}
	str("NVD_API_KEY", &c.Sources.NVDAPIKey)
	str("CYBERIQ_ADVISORY_FEED_URL", &c.Sources.AdvisoryFeedURL)
	num("CYBERIQ_ARTICLE_EXPANSION", &c.Sources.ArticleExpansion)
	dur("CYBERIQ_SOURCE_TTL", &c.Sources.TTL)

	num("CYBERIQ_ENRICH_MAX_ITEMS", &c.Enrichment.MaxItems)
	dur("CYBERIQ_ENRICH_MIN_DELAY", &c.Enrichment.MinDelay)
	dur("CYBERIQ_ENRICH_BULK_DELAY", &c.Enrichment.BulkDelay)
	dur("CYBERIQ_SCORE_TTL", &c.Enrichment.ScoreTTL)

	str("CYBERIQ_RESOLVER", &c.Query.Resolver)
	num("CYBERIQ_PAGE_SIZE", &c.Query.PageSize)
	num("CYBERIQ_RANSOMWARE_THRESHOLD", &c.Query.RansomwareThreshold)

	str("ANTHROPIC_API_KEY", &c.LLM.APIKey)
	str("CYBERIQ_LLM_MODEL", &c.LLM.Model)
	num("CYBERIQ_LLM_MAX_TOKENS", &c.LLM.MaxTokens)

	boolean("CYBERIQ_ATTACK_ENABLED", &c.Attack.Enabled)
	str("CYBERIQ_ATTACK_URL", &c.Attack.URL)
	dur("CYBERIQ_ATTACK_TTL", &c.Attack.TTL)
	num("CYBERIQ_ATTACK_MAX_MATCHES", &c.Attack.MaxMatches)

	str("CYBERIQ_WARM_SCHEDULE", &c.Warmup.Schedule)

	boolean("CYBERIQ_DEBUG", &c.Debug)
	return errors.Join(errs...)
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Server.Addr, "addr", c.Server.Addr, "HTTP server address")
	fs.IntVar(&c.Server.GRPCPort, "grpc", c.Server.GRPCPort, "gRPC health server port")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable verbose debug logging")
	fs.IntVar(&c.Sources.NVDWindowDays, "nvd-days", c.Sources.NVDWindowDays, "NVD look-back window in days")
	fs.IntVar(&c.Sources.AdvisoryWindowDays, "advisory-days", c.Sources.AdvisoryWindowDays, "Advisory feed look-back window in days")
	fs.Float64Var(&c.Sources.NVDSeverityFloor, "nvd-floor", c.Sources.NVDSeverityFloor, "Minimum NVD base score kept")
	fs.DurationVar(&c.Sources.TTL, "source-ttl", c.Sources.TTL, "Source cache TTL")
	fs.IntVar(&c.Enrichment.MaxItems, "enrich", c.Enrichment.MaxItems, "Records enriched per query")
	fs.StringVar(&c.Query.Resolver, "resolver", c.Query.Resolver, "Intent resolver: keyword or llm")
	fs.IntVar(&c.Query.PageSize, "page-size", c.Query.PageSize, "Default page size")
	fs.BoolVar(&c.Attack.Enabled, "attack", c.Attack.Enabled, "Attach related MITRE ATT&CK techniques to answers")
	fs.StringVar(&c.Warmup.Schedule, "warm", c.Warmup.Schedule, "Cache warm-up cron spec (empty disables)")
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Sources.TTL <= 0 {
		errs = append(errs, fmt.Errorf("sources.ttl must be positive, got %s", c.Sources.TTL))
	}
	if c.Enrichment.ScoreTTL <= 0 {
		errs = append(errs, fmt.Errorf("enrichment.score_ttl must be positive, got %s", c.Enrichment.ScoreTTL))
	}
	if c.Enrichment.MaxItems < 0 {
		errs = append(errs, fmt.Errorf("enrichment.max_items must be >= 0, got %d", c.Enrichment.MaxItems))
	}
	if c.Enrichment.MinDelay < 0 || c.Enrichment.BulkDelay < 0 {
		errs = append(errs, errors.New("enrichment delays must be >= 0"))
	}
	if c.Query.PageSize < 1 || c.Query.PageSize > 500 {
		errs = append(errs, fmt.Errorf("query.page_size must be within 1..500, got %d", c.Query.PageSize))
	}
	if c.Query.RansomwareThreshold < 0 {
		errs = append(errs, fmt.Errorf("query.ransomware_threshold must be >= 0, got %d", c.Query.RansomwareThreshold))
	}
	switch c.Query.Resolver {
	case ResolverKeyword, ResolverLLM:
	default:
		errs = append(errs, fmt.Errorf("query.resolver must be %q or %q, got %q", ResolverKeyword, ResolverLLM, c.Query.Resolver))
	}
	for name, days := range map[string]int{
		"kev_window_days":      c.Sources.KEVWindowDays,
		"nvd_window_days":      c.Sources.NVDWindowDays,
		"advisory_window_days": c.Sources.AdvisoryWindowDays,
	} {
		if days < 0 {
			errs = append(errs, fmt.Errorf("sources.%s must be >= 0, got %d", name, days))
		}
	}
	if c.Attack.Enabled {
		if c.Attack.URL == "" {
			errs = append(errs, errors.New("attack.url must be set when attack is enabled"))
		}
		if c.Attack.TTL <= 0 {
			errs = append(errs, fmt.Errorf("attack.ttl must be positive, got %s", c.Attack.TTL))
		}
	}
	if c.Attack.MaxMatches < 0 {
		errs = append(errs, fmt.Errorf("attack.max_matches must be >= 0, got %d", c.Attack.MaxMatches))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port out of range: %d", c.Server.GRPCPort))
	}
	return errors.Join(errs...)
}

// LLMEnabled reports whether a completion backend is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.APIKey != ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
