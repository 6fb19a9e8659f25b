// Package models defines data structures for configuration and API responses.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

const (
	DefaultReducerURL     = "https://api.shortpixel.com/v2/reducer.php"
	DefaultPostReducerURL = "https://api.shortpixel.com/v2/post-reducer.php"
	DefaultPluginVersion  = "NP001"
	DefaultDBName         = "pixbatch.db"
	DefaultOutputDir      = "pixbatch-results"

	// MaxPluginVersionLen is the longest client-version tag the service accepts.
	MaxPluginVersionLen = 5
	// MaxWait is the longest service-side synchronous wait, in seconds.
	MaxWait = 30

	envPrefix = "PIXBATCH_"
)

// PollConfig controls follow-up polling of items that are still processing.
type PollConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Config is the immutable runtime configuration threaded into every batch.
// Build it once (Default, LoadFromFile, LoadFromEnv, Merge) and call Validate
// before handing it to the reducer client.
type Config struct {
	APIKey         string        `yaml:"api_key"`
	PluginVersion  string        `yaml:"plugin_version"`
	Proxy          string        `yaml:"proxy"`
	Timeout        time.Duration `yaml:"timeout"`
	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	Wait           int           `yaml:"wait"`
	ConvertTo      string        `yaml:"convertto"`
	Poll           PollConfig    `yaml:"poll"`
	ReducerURL     string        `yaml:"reducer_url"`
	PostReducerURL string        `yaml:"post_reducer_url"`
	DBPath         string        `yaml:"db_path"`
	OutputDir      string        `yaml:"output_dir"`
}

// Default returns a Config with the service's documented defaults.
func Default() Config {
	return Config{
		PluginVersion: DefaultPluginVersion,
		Timeout:       30 * time.Second,
		Retries:       2,
		RetryDelay:    800 * time.Millisecond,
		Wait:          20,
		Poll: PollConfig{
			Enabled:     true,
			Interval:    1500 * time.Millisecond,
			MaxAttempts: 12,
		},
		ReducerURL:     DefaultReducerURL,
		PostReducerURL: DefaultPostReducerURL,
		DBPath:         DefaultDBName,
		OutputDir:      DefaultOutputDir,
	}
}

// yamlConfig mirrors Config with durations spelled as strings ("800ms").
type yamlConfig struct {
	APIKey         string         `yaml:"api_key"`
	PluginVersion  string         `yaml:"plugin_version"`
	Proxy          string         `yaml:"proxy"`
	Timeout        string         `yaml:"timeout"`
	Retries        *int           `yaml:"retries"`
	RetryDelay     string         `yaml:"retry_delay"`
	Wait           *int           `yaml:"wait"`
	ConvertTo      string         `yaml:"convertto"`
	Poll           yamlPollConfig `yaml:"poll"`
	ReducerURL     string         `yaml:"reducer_url"`
	PostReducerURL string         `yaml:"post_reducer_url"`
	DBPath         string         `yaml:"db_path"`
	OutputDir      string         `yaml:"output_dir"`
}

type yamlPollConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	Interval    string `yaml:"interval"`
	MaxAttempts *int   `yaml:"max_attempts"`
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML configuration on top of the defaults.
func ParseYAML(data []byte) (Config, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.APIKey != "" {
		cfg.APIKey = yc.APIKey
	}
	if yc.PluginVersion != "" {
		cfg.PluginVersion = yc.PluginVersion
	}
	if yc.Proxy != "" {
		cfg.Proxy = yc.Proxy
	}
	if yc.Retries != nil {
		cfg.Retries = *yc.Retries
	}
	if yc.Wait != nil {
		cfg.Wait = *yc.Wait
	}
	if yc.ConvertTo != "" {
		cfg.ConvertTo = yc.ConvertTo
	}
	if yc.ReducerURL != "" {
		cfg.ReducerURL = yc.ReducerURL
	}
	if yc.PostReducerURL != "" {
		cfg.PostReducerURL = yc.PostReducerURL
	}
	if yc.DBPath != "" {
		cfg.DBPath = yc.DBPath
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.Poll.Enabled != nil {
		cfg.Poll.Enabled = *yc.Poll.Enabled
	}
	if yc.Poll.MaxAttempts != nil {
		cfg.Poll.MaxAttempts = *yc.Poll.MaxAttempts
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"retry_delay", yc.RetryDelay, &cfg.RetryDelay},
		{"poll.interval", yc.Poll.Interval, &cfg.Poll.Interval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadFromEnv overlays environment variables onto c.
// Variables use the PIXBATCH_ prefix; SHORTPIXEL_API_KEY is accepted as a
// fallback for the key.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(envPrefix + "API_KEY"); v != "" {
		c.APIKey = v
	} else if v := os.Getenv("SHORTPIXEL_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv(envPrefix + "PLUGIN_VERSION"); v != "" {
		c.PluginVersion = v
	}
	if v := os.Getenv(envPrefix + "PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv(envPrefix + "CONVERTTO"); v != "" {
		c.ConvertTo = v
	}
	if v := os.Getenv(envPrefix + "DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envPrefix + "OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"RETRIES", &c.Retries},
		{"WAIT", &c.Wait},
		{"POLL_MAX_ATTEMPTS", &c.Poll.MaxAttempts},
	}
	for _, i := range ints {
		v := os.Getenv(envPrefix + i.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, i.name, err)
		}
		*i.dst = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"TIMEOUT", &c.Timeout},
		{"RETRY_DELAY", &c.RetryDelay},
		{"POLL_INTERVAL", &c.Poll.Interval},
	}
	for _, d := range durations {
		v := os.Getenv(envPrefix + d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, d.name, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv(envPrefix + "POLL_ENABLED"); v != "" {
		c.Poll.Enabled = v == "true" || v == "1"
	}

	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, except Poll which is taken whole
// when its MaxAttempts is set.
func (c Config) Merge(override Config) Config {
	if override.APIKey != "" {
		c.APIKey = override.APIKey
	}
	if override.PluginVersion != "" {
		c.PluginVersion = override.PluginVersion
	}
	if override.Proxy != "" {
		c.Proxy = override.Proxy
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retries != 0 {
		c.Retries = override.Retries
	}
	if override.RetryDelay != 0 {
		c.RetryDelay = override.RetryDelay
	}
	if override.Wait != 0 {
		c.Wait = override.Wait
	}
	if override.ConvertTo != "" {
		c.ConvertTo = override.ConvertTo
	}
	if override.Poll.MaxAttempts != 0 {
		c.Poll = override.Poll
	}
	if override.ReducerURL != "" {
		c.ReducerURL = override.ReducerURL
	}
	if override.PostReducerURL != "" {
		c.PostReducerURL = override.PostReducerURL
	}
	if override.DBPath != "" {
		c.DBPath = override.DBPath
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	return c
}

// Validate checks the configuration. It must pass before any network call.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return apierr.New(apierr.KindAuth, "missing api key (config api_key or PIXBATCH_API_KEY)", apierr.WithCode(-401))
	}
	if c.PluginVersion == "" {
		return apierr.New(apierr.KindInvalidRequest, "config: plugin_version is required", apierr.WithCode(-104))
	}
	if len(c.PluginVersion) > MaxPluginVersionLen {
		return apierr.New(apierr.KindInvalidRequest,
			fmt.Sprintf("config: plugin_version must be max %d characters", MaxPluginVersionLen), apierr.WithCode(-104))
	}
	if c.Wait < 0 || c.Wait > MaxWait {
		return apierr.New(apierr.KindInvalidRequest, "config: wait must be between 0 and 30", apierr.WithCode(-116))
	}
	if c.Timeout <= 0 {
		return apierr.New(apierr.KindInvalidRequest, "config: timeout must be positive")
	}
	if c.Retries < 0 {
		return apierr.New(apierr.KindInvalidRequest, "config: retries must not be negative")
	}
	if c.RetryDelay < 0 {
		return apierr.New(apierr.KindInvalidRequest, "config: retry_delay must not be negative")
	}
	if err := c.Poll.Validate(); err != nil {
		return err
	}
	for name, endpoint := range map[string]string{"reducer_url": c.ReducerURL, "post_reducer_url": c.PostReducerURL} {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return apierr.New(apierr.KindInvalidRequest,
				fmt.Sprintf("config: %s must be an https URL", name), apierr.WithCode(-102), apierr.WithPayload(endpoint))
		}
	}
	return nil
}

// Validate checks the poll settings. Disabled polling is always valid.
func (p PollConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.MaxAttempts <= 0 {
		return apierr.New(apierr.KindInvalidRequest, "poll.max_attempts must be a positive integer")
	}
	if p.Interval < 0 {
		return apierr.New(apierr.KindInvalidRequest, "poll.interval must not be negative")
	}
	return nil
}
