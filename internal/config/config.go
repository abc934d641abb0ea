package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string
	ReposDir    string
	CORSOrigin  string
	// APIKeyHash is a bcrypt hash of the bearer key; empty disables auth.
	APIKeyHash string

	// Session and diff tuning
	SaveDebounce       time.Duration
	OverlapThreshold   float64
	MaxSuggestions     int
	MaxSuggestionsLine int
	Matcher            string
	TagHeadings        bool

	MeiliURL       string
	MeiliMasterKey string
	// Redis - optional vocabulary sink
	RedisURL string

	// S3 - export publishing, disabled unless an endpoint is set
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
}

func Load() Config {
	return Config{
		Addr:        getenv("API_ADDR", ":8787"),
		DatabaseURL: getenv("DATABASE_URL", "sqlite://./data/marginalia.db"),
		ReposDir:    getenv("MARGINALIA_REPOS_DIR", "./data/repos"),
		CORSOrigin:  getenv("MARGINALIA_CORS_ORIGIN", "*"),
		APIKeyHash:  getenv("MARGINALIA_API_KEY_HASH", ""),

		SaveDebounce:       getenvDuration("MARGINALIA_SAVE_DEBOUNCE", 1500*time.Millisecond),
		OverlapThreshold:   getenvFloat("MARGINALIA_OVERLAP_THRESHOLD", 0.3),
		MaxSuggestions:     getenvInt("MARGINALIA_MAX_SUGGESTIONS", 5),
		MaxSuggestionsLine: getenvInt("MARGINALIA_MAX_SUGGESTIONS_PER_LINE", 5),
		Matcher:            strings.ToLower(getenv("MARGINALIA_MATCHER", "greedy")),
		TagHeadings:        getenvBool("MARGINALIA_TAG_HEADINGS", false),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		RedisURL:       getenv("REDIS_URL", ""),

		S3Endpoint:  getenv("S3_ENDPOINT", ""),
		S3AccessKey: getenv("S3_ACCESS_KEY", ""),
		S3SecretKey: getenv("S3_SECRET_KEY", ""),
		S3Bucket:    getenv("S3_BUCKET", "marginalia-exports"),
		S3UseSSL:    getenvBool("S3_USE_SSL", false),
	}
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("API_ADDR must not be empty"))
	}
	if !strings.HasPrefix(c.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(c.DatabaseURL, "postgresql://") &&
		!strings.HasPrefix(c.DatabaseURL, "sqlite://") {
		errs = append(errs, fmt.Errorf("DATABASE_URL %q: want postgres:// or sqlite://", c.DatabaseURL))
	}
	if c.SaveDebounce <= 0 {
		errs = append(errs, fmt.Errorf("MARGINALIA_SAVE_DEBOUNCE must be positive, got %s", c.SaveDebounce))
	}
	if c.OverlapThreshold < 0 || c.OverlapThreshold >= 1 {
		errs = append(errs, fmt.Errorf("MARGINALIA_OVERLAP_THRESHOLD must be in [0, 1), got %v", c.OverlapThreshold))
	}
	if c.MaxSuggestions < 1 {
		errs = append(errs, fmt.Errorf("MARGINALIA_MAX_SUGGESTIONS must be at least 1, got %d", c.MaxSuggestions))
	}
	if c.MaxSuggestionsLine < 1 {
		errs = append(errs, fmt.Errorf("MARGINALIA_MAX_SUGGESTIONS_PER_LINE must be at least 1, got %d", c.MaxSuggestionsLine))
	}
	if c.Matcher != "greedy" && c.Matcher != "optimal" {
		errs = append(errs, fmt.Errorf("MARGINALIA_MATCHER %q: want greedy or optimal", c.Matcher))
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "" || c.S3Bucket == "") {
		errs = append(errs, errors.New("S3_ENDPOINT set without S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("1500ms") or bare milliseconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
