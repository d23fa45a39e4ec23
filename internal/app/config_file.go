package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

// ErrInvalidConfig wraps every ValidateConfig failure.
var ErrInvalidConfig = errors.New("invalid config")

// FileConfig represents the single-file configuration schema. Durations are
// strings such as "24h" so that the same file reads the same in YAML, JSON
// and TOML.
type FileConfig struct {
	Kind     string `yaml:"kind" json:"kind" toml:"kind"`
	Provider string `yaml:"provider" json:"provider" toml:"provider"`
	Fallback *bool  `yaml:"fallback" json:"fallback" toml:"fallback"`
	PageSize int    `yaml:"pageSize" json:"pageSize" toml:"pageSize"`
	Verbose  bool   `yaml:"verbose" json:"verbose" toml:"verbose"`
	Format   string `yaml:"format" json:"format" toml:"format"`

	OpenLibrary struct {
		URL string `yaml:"url" json:"url" toml:"url"`
	} `yaml:"openlibrary" json:"openlibrary" toml:"openlibrary"`

	GoogleBooks struct {
		URL string `yaml:"url" json:"url" toml:"url"`
		Key string `yaml:"key" json:"key" toml:"key"`
	} `yaml:"googlebooks" json:"googlebooks" toml:"googlebooks"`

	Quotable struct {
		URL string `yaml:"url" json:"url" toml:"url"`
	} `yaml:"quotable" json:"quotable" toml:"quotable"`

	File struct {
		Path string `yaml:"path" json:"path" toml:"path"`
	} `yaml:"file" json:"file" toml:"file"`

	HTTP struct {
		UserAgent        string  `yaml:"userAgent" json:"userAgent" toml:"userAgent"`
		RateLimit        float64 `yaml:"rateLimit" json:"rateLimit" toml:"rateLimit"`
		Timeout          string  `yaml:"timeout" json:"timeout" toml:"timeout"`
		DetailsCacheSize int     `yaml:"detailsCacheSize" json:"detailsCacheSize" toml:"detailsCacheSize"`
	} `yaml:"http" json:"http" toml:"http"`

	Cache struct {
		Dir         string `yaml:"dir" json:"dir" toml:"dir"`
		MaxAge      string `yaml:"maxAge" json:"maxAge" toml:"maxAge"`
		Clear       bool   `yaml:"clear" json:"clear" toml:"clear"`
		StrictPerms bool   `yaml:"strictPerms" json:"strictPerms" toml:"strictPerms"`
		MaxBytes    int64  `yaml:"maxBytes" json:"maxBytes" toml:"maxBytes"`
		MaxCount    int    `yaml:"maxCount" json:"maxCount" toml:"maxCount"`
	} `yaml:"cache" json:"cache" toml:"cache"`

	Metrics struct {
		Addr string `yaml:"addr" json:"addr" toml:"addr"`
	} `yaml:"metrics" json:"metrics" toml:"metrics"`
}

// LoadConfigFile reads YAML, JSON or TOML into FileConfig, chosen by
// extension. Unknown extensions are tried as YAML, then JSON.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. It runs on top of
// DefaultConfig and below env and flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) error {
	if cfg == nil {
		return nil
	}
	if fc.Kind != "" {
		cfg.Kind = catalog.Kind(strings.ToLower(fc.Kind))
	}
	if fc.Provider != "" {
		cfg.Provider = fc.Provider
	}
	if fc.Fallback != nil {
		cfg.DisableFallback = !*fc.Fallback
	}
	if fc.PageSize > 0 {
		cfg.PageSize = fc.PageSize
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
	if fc.Format != "" {
		cfg.Format = fc.Format
	}

	if fc.OpenLibrary.URL != "" {
		cfg.OpenLibraryURL = fc.OpenLibrary.URL
	}
	if fc.GoogleBooks.URL != "" {
		cfg.GoogleBooksURL = fc.GoogleBooks.URL
	}
	if fc.GoogleBooks.Key != "" {
		cfg.GoogleBooksKey = fc.GoogleBooks.Key
	}
	if fc.Quotable.URL != "" {
		cfg.QuotableURL = fc.Quotable.URL
	}
	if fc.File.Path != "" {
		cfg.FilePath = fc.File.Path
	}

	if fc.HTTP.UserAgent != "" {
		cfg.UserAgent = fc.HTTP.UserAgent
	}
	if fc.HTTP.RateLimit > 0 {
		cfg.RateLimit = fc.HTTP.RateLimit
	}
	if fc.HTTP.DetailsCacheSize > 0 {
		cfg.DetailsCacheSize = fc.HTTP.DetailsCacheSize
	}
	if fc.HTTP.Timeout != "" {
		d, err := time.ParseDuration(fc.HTTP.Timeout)
		if err != nil {
			return fmt.Errorf("http.timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if fc.Cache.MaxAge != "" {
		d, err := time.ParseDuration(fc.Cache.MaxAge)
		if err != nil {
			return fmt.Errorf("cache.maxAge: %w", err)
		}
		cfg.CacheMaxAge = d
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if fc.Cache.MaxBytes > 0 {
		cfg.CacheMaxBytes = fc.Cache.MaxBytes
	}
	if fc.Cache.MaxCount > 0 {
		cfg.CacheMaxCount = fc.Cache.MaxCount
	}

	if fc.Metrics.Addr != "" {
		cfg.MetricsAddr = fc.Metrics.Addr
	}
	return nil
}

// ValidateConfig checks the settings the selected action depends on.
func ValidateConfig(cfg Config) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if cfg.Kind != catalog.KindBook && cfg.Kind != catalog.KindQuote {
		return invalid("kind must be book or quote, got %q", cfg.Kind)
	}
	switch cfg.Provider {
	case "openlibrary", "googlebooks":
		if cfg.Kind != catalog.KindBook {
			return invalid("provider %s only serves books", cfg.Provider)
		}
	case "quotable":
		if cfg.Kind != catalog.KindQuote {
			return invalid("provider quotable only serves quotes")
		}
	case "file":
		if strings.TrimSpace(cfg.FilePath) == "" {
			return invalid("provider file requires a file path (or set QS_FILE)")
		}
	default:
		return invalid("unknown provider %q", cfg.Provider)
	}
	for name, raw := range map[string]string{
		"openlibrary.url": cfg.OpenLibraryURL,
		"googlebooks.url": cfg.GoogleBooksURL,
		"quotable.url":    cfg.QuotableURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("%s must be an absolute http(s) URL", name)
		}
	}
	if cfg.PageSize < 0 || cfg.Pages < 0 || cfg.CacheMaxBytes < 0 || cfg.CacheMaxCount < 0 || cfg.RateLimit < 0 {
		return invalid("negative limits are not allowed")
	}
	switch cfg.Format {
	case "", "text", "json":
	default:
		return invalid("format must be text or json")
	}
	if cfg.Filter.Dates.From != 0 && cfg.Filter.Dates.To != 0 && cfg.Filter.Dates.From > cfg.Filter.Dates.To {
		return invalid("date range %d-%d is reversed", cfg.Filter.Dates.From, cfg.Filter.Dates.To)
	}
	return nil
}
