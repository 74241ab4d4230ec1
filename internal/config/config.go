package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Bradawan/sqtracker/internal/catalog"
	"github.com/Bradawan/sqtracker/internal/ingest"
)

type Config struct {
	Addr       string
	BaseURL    string
	APIURL     string
	JWTSecret  string
	CORSOrigin string
	LogLevel   string
	// Upload form
	CategoriesFile string
	AllowAnonymous bool
	MaxTorrentSize int64
	// Upstream API
	UpstreamTimeout time.Duration
	// Submissions per subject per minute; zero disables limiting.
	SubmitRatePerMinute int
	FormIdleTTL         time.Duration
	// Redis - optional, flashes are kept in memory if empty
	RedisURL string
}

func Load() Config {
	return Config{
		Addr:                getenv("WEB_ADDR", ":3000"),
		BaseURL:             strings.TrimRight(getenv("SQ_BASE_URL", "http://localhost:3000"), "/"),
		APIURL:              strings.TrimRight(getenv("SQ_API_URL", "http://localhost:3001"), "/"),
		JWTSecret:           getenv("SQ_JWT_SECRET", "sqtracker-dev-secret"),
		CORSOrigin:          getenv("SQ_CORS_ORIGIN", "*"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		CategoriesFile:      getenv("SQ_TORRENT_CATEGORIES_FILE", ""),
		AllowAnonymous:      getenvBool("SQ_ALLOW_ANONYMOUS_UPLOAD", false),
		MaxTorrentSize:      int64(getenvInt("SQ_MAX_TORRENT_BYTES", int(ingest.DefaultMaxBytes))),
		UpstreamTimeout:     time.Duration(getenvInt("SQ_UPSTREAM_TIMEOUT_SECONDS", 15)) * time.Second,
		SubmitRatePerMinute: getenvInt("SQ_SUBMIT_RATE_PER_MINUTE", 30),
		FormIdleTTL:         time.Duration(getenvInt("SQ_FORM_IDLE_TTL_SECONDS", 1800)) * time.Second,
		RedisURL:            getenv("REDIS_URL", ""),
	}
}

// LoadCatalog reads the category catalog named by CategoriesFile. No file
// means an empty catalog, which disables category selection.
func (c Config) LoadCatalog() (catalog.Catalog, error) {
	return catalog.Load(c.CategoriesFile)
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
