package common

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitGeneral   = 1
	ExitUsage     = 2
	ExitAuth      = 3
	ExitQuota     = 4
	ExitTemporary = 5
	ExitPartial   = 6
)

var markdownLinkPattern = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)

// NewLogger builds the JSON stderr logger used by every action.
func NewLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("quiet") {
		level = slog.LevelError
	}
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ContentHash computes SHA256 hash of content and returns hex string.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// SanitizeURL performs basic cleanup on URLs to handle common copy-paste issues.
// Removes whitespace, trailing punctuation and markdown artifacts.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)

	// [text](url) -> url
	if matches := markdownLinkPattern.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = matches[1]
	}

	for _, char := range []string{",", ")", "}", "]", "\"", "'", ">", ";"} {
		cleaned = strings.TrimSuffix(cleaned, char)
	}
	for _, char := range []string{"(", "[", "<", "\"", "'"} {
		cleaned = strings.TrimPrefix(cleaned, char)
	}

	return strings.TrimSpace(cleaned)
}

// InvalidURL is an input that failed validation, with its position in the
// given list.
type InvalidURL struct {
	Position int
	URL      string
}

// SanitizeAndValidateURLs sanitizes all URLs and returns (sanitized URLs, invalid URLs).
// Invalid URLs are those that fail validation even after sanitization.
func SanitizeAndValidateURLs(urls []string) ([]string, []InvalidURL) {
	sanitized := make([]string, 0, len(urls))
	var invalidURLs []InvalidURL

	for i, rawURL := range urls {
		cleaned := SanitizeURL(rawURL)
		if cleaned == "" {
			invalidURLs = append(invalidURLs, InvalidURL{Position: i, URL: rawURL})
			continue
		}

		parsed, err := url.Parse(cleaned)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			invalidURLs = append(invalidURLs, InvalidURL{Position: i, URL: rawURL})
			continue
		}

		// Example: "https://example.com{}" should fail
		if strings.ContainsAny(parsed.Host, "{}[]<>\"' ") {
			invalidURLs = append(invalidURLs, InvalidURL{Position: i, URL: rawURL})
			continue
		}

		sanitized = append(sanitized, cleaned)
	}

	return sanitized, invalidURLs
}

// SplitList splits a comma separated flag value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseOptions turns repeated key=value flags into service options.
// Integer and boolean values are typed; everything else stays a string.
func ParseOptions(pairs []string) (models.Options, error) {
	opts := models.Options{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid option %q (want key=value)", pair)
		}
		v = strings.TrimSpace(v)
		switch {
		case v == "true":
			opts[k] = true
		case v == "false":
			opts[k] = false
		default:
			if n, err := strconv.Atoi(v); err == nil {
				opts[k] = n
			} else {
				opts[k] = v
			}
		}
	}
	return opts, nil
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch apierr.KindOf(err) {
	case apierr.KindBatch:
		return ExitPartial
	case apierr.KindAuth:
		return ExitAuth
	case apierr.KindQuota:
		return ExitQuota
	case apierr.KindTemporary:
		return ExitTemporary
	case apierr.KindInvalidRequest, apierr.KindUsage:
		return ExitUsage
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitGeneral
}

// Exit wraps err for urfave/cli with its mapped exit code.
func Exit(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(err.Error(), ExitCode(err))
}

// LoadConfig builds the configuration for an action: defaults, the YAML
// file from --config, the .env file, the environment, then flags.
func LoadConfig(c *cli.Context) (models.Config, error) {
	cfg := models.Default()
	if path := c.String("config"); path != "" {
		loaded, err := models.LoadFromFile(path)
		if err != nil {
			return models.Config{}, err
		}
		cfg = loaded
	}

	if err := models.LoadEnvFile(c.String("env-file")); err != nil {
		return models.Config{}, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return models.Config{}, err
	}

	var flags models.Config
	flags.APIKey = c.String("api-key")
	flags.Proxy = c.String("proxy")
	flags.DBPath = c.String("db")
	cfg = cfg.Merge(flags)

	if c.IsSet("wait") {
		cfg.Wait = c.Int("wait")
	}
	if c.IsSet("convert") {
		cfg.ConvertTo = c.String("convert")
	}
	if c.Bool("no-poll") {
		cfg.Poll.Enabled = false
	}
	if c.IsSet("retries") {
		cfg.Retries = c.Int("retries")
	}
	return cfg, nil
}

// OutputLocation resolves where artifacts go: --out when given (a directory
// or a bucket URL such as mem:// or file:///path), else the configured
// output directory.
func OutputLocation(c *cli.Context, cfg models.Config) string {
	if out := strings.TrimSpace(c.String("out")); out != "" {
		return out
	}
	return cfg.OutputDir
}

// CheckFormat validates an output format flag.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "yaml", "json":
		return nil
	}
	return fmt.Errorf("unknown format: %s (use: yaml or json)", format)
}

// WriteOutput prints v as yaml (the default) or json.
func WriteOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: yaml or json)", format)
	}
}
