package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/quoteshelf/internal/catalog"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file and before explicit flags, so env sits
// between the two in precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
			}
		}
	}
	setString(&cfg.Provider, "QS_PROVIDER")
	setString(&cfg.OpenLibraryURL, "OPENLIBRARY_URL")
	setString(&cfg.GoogleBooksURL, "GOOGLE_BOOKS_URL")
	setString(&cfg.GoogleBooksKey, "GOOGLE_BOOKS_KEY", "GOOGLE_API_KEY")
	setString(&cfg.QuotableURL, "QUOTABLE_URL")
	setString(&cfg.FilePath, "QS_FILE")
	setString(&cfg.CacheDir, "CACHE_DIR")
	setString(&cfg.MetricsAddr, "METRICS_ADDR")
	setString(&cfg.UserAgent, "QS_USER_AGENT")

	if v := strings.TrimSpace(os.Getenv("QS_KIND")); v != "" {
		cfg.Kind = catalog.Kind(strings.ToLower(v))
	}

	setInt := func(dst *int, key string) {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
			*dst = n
		}
	}
	setInt(&cfg.PageSize, "PAGE_SIZE")
	setInt(&cfg.CacheMaxCount, "CACHE_MAX_COUNT")

	if n, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("CACHE_MAX_BYTES")), 10, 64); err == nil && n > 0 {
		cfg.CacheMaxBytes = n
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("RATE_LIMIT")), 64); err == nil && f >= 0 {
		cfg.RateLimit = f
	}

	setDuration := func(dst *time.Duration, key string) {
		if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
			*dst = d
		}
	}
	setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
	setDuration(&cfg.Timeout, "QS_TIMEOUT")

	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.DisableFallback, "QS_NO_FALLBACK")
}
