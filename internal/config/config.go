package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"quoteaggregator/internal/apro"
	"quoteaggregator/internal/fetcher"
	"quoteaggregator/internal/oilprice"
)

// Config holds all configuration for the quote aggregator.
type Config struct {
	// Server
	ListenAddr      string        `mapstructure:"listen_addr"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	Once            bool          `mapstructure:"once"`

	// Commodity feed (oilpriceapi.com)
	OilPriceAPIKey    string        `mapstructure:"oilprice_api_key"`
	OilPriceAPIKey2   string        `mapstructure:"oilprice_api_key_2"`
	OilPriceAPIKeys   []string      `mapstructure:"oilprice_api_keys"`
	OilPriceBaseURL   string        `mapstructure:"oilprice_base_url"`
	OilPriceCodes     []string      `mapstructure:"oilprice_codes"`
	OilPriceCacheTTL  time.Duration `mapstructure:"oilprice_cache_ttl"`
	OilPriceRateLimit float64       `mapstructure:"oilprice_rate_limit"`

	// Crypto feed (APRO oracle)
	APROAPIKey     string        `mapstructure:"apro_api_key"`
	APROAPISecret  string        `mapstructure:"apro_api_secret"`
	APROBaseURL    string        `mapstructure:"apro_base_url"`
	APROCurrencies []string      `mapstructure:"apro_currencies"`
	APROCacheTTL   time.Duration `mapstructure:"apro_cache_ttl"`
	APROStagger    time.Duration `mapstructure:"apro_stagger"`
	APRORateLimit  float64       `mapstructure:"apro_rate_limit"`
}

// keys are bound to the upper-cased environment variable of the same name.
var keys = []string{
	"listen_addr", "http_timeout", "shutdown_timeout", "log_level", "log_format", "once",
	"oilprice_api_key", "oilprice_api_key_2", "oilprice_api_keys", "oilprice_base_url",
	"oilprice_codes", "oilprice_cache_ttl", "oilprice_rate_limit",
	"apro_api_key", "apro_api_secret", "apro_base_url", "apro_currencies",
	"apro_cache_ttl", "apro_stagger", "apro_rate_limit",
}

// LoadDotEnv loads variables from the given dotenv files into the process
// environment. Earlier files win, variables already set are never
// overridden, and missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from command-line flags, environment variables
// and an optional config file, in that order of precedence.
//
// Missing credentials are not an error; the affected feed simply
// contributes nothing. See Warnings.
func Load(args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("http_timeout", fetcher.DefaultTimeout)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("once", false)
	v.SetDefault("oilprice_base_url", oilprice.DefaultBaseURL)
	v.SetDefault("oilprice_codes", oilprice.DefaultCodes)
	v.SetDefault("oilprice_cache_ttl", 60*time.Second)
	v.SetDefault("oilprice_rate_limit", 0)
	v.SetDefault("apro_base_url", apro.DefaultBaseURL)
	v.SetDefault("apro_currencies", apro.DefaultCurrencies)
	v.SetDefault("apro_cache_ttl", 10*time.Second)
	v.SetDefault("apro_stagger", 100*time.Millisecond)
	v.SetDefault("apro_rate_limit", 0)

	flags := pflag.NewFlagSet("quoteaggregator", pflag.ContinueOnError)
	flags.String("listen-addr", ":8080", "address the HTTP server listens on")
	flags.String("config", "", "path to a YAML config file")
	flags.Bool("once", false, "fetch every feed once, print the quotes and exit")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	for key, flag := range map[string]string{
		"listen_addr": "listen-addr",
		"once":        "once",
		"log_level":   "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	for _, key := range keys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.quoteaggregator")

		// Read config file (ignore if not found)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.OilPriceCodes = normalize(config.OilPriceCodes)
	config.APROCurrencies = normalize(config.APROCurrencies)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	positive := map[string]time.Duration{
		"HTTP_TIMEOUT":       c.HTTPTimeout,
		"SHUTDOWN_TIMEOUT":   c.ShutdownTimeout,
		"OILPRICE_CACHE_TTL": c.OilPriceCacheTTL,
		"APRO_CACHE_TTL":     c.APROCacheTTL,
	}
	for name, d := range positive {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.APROStagger < 0 {
		problems = append(problems, "APRO_STAGGER must not be negative")
	}
	if c.OilPriceRateLimit < 0 {
		problems = append(problems, "OILPRICE_RATE_LIMIT must not be negative")
	}
	if c.APRORateLimit < 0 {
		problems = append(problems, "APRO_RATE_LIMIT must not be negative")
	}
	if len(c.OilPriceCodes) == 0 {
		problems = append(problems, "OILPRICE_CODES must list at least one code")
	}
	if len(c.APROCurrencies) == 0 {
		problems = append(problems, "APRO_CURRENCIES must list at least one currency")
	}
	if _, err := c.SlogLevel(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}

	if len(problems) > 0 {
		// Map iteration above is unordered
		slices.Sort(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return level, nil
}

// OilPriceCredentials merges OILPRICE_API_KEY, OILPRICE_API_KEY_2 and
// OILPRICE_API_KEYS into one rotation set, dropping blanks and duplicates.
func (c *Config) OilPriceCredentials() []fetcher.Credential {
	seen := make(map[string]bool)
	var creds []fetcher.Credential

	all := append([]string{c.OilPriceAPIKey, c.OilPriceAPIKey2}, c.OilPriceAPIKeys...)
	for _, k := range all {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		creds = append(creds, fetcher.Credential{Key: k})
	}
	return creds
}

// APROCredentials returns the oracle credential, which needs both halves.
func (c *Config) APROCredentials() []fetcher.Credential {
	key := strings.TrimSpace(c.APROAPIKey)
	secret := strings.TrimSpace(c.APROAPISecret)
	if key == "" || secret == "" {
		return nil
	}
	return []fetcher.Credential{{Key: key, Secret: secret}}
}

// Warnings describes settings that leave a feed degraded.
func (c *Config) Warnings() []string {
	var warnings []string
	if len(c.OilPriceCredentials()) == 0 {
		warnings = append(warnings, "no OILPRICE_API_KEY configured; commodity quotes disabled")
	}
	if len(c.APROCredentials()) == 0 {
		warnings = append(warnings, "APRO_API_KEY and APRO_API_SECRET not both configured; crypto quotes disabled")
	}
	return warnings
}

func normalize(items []string) []string {
	var out []string
	for _, item := range items {
		// Config files may carry a single comma separated string
		for _, part := range strings.Split(item, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
