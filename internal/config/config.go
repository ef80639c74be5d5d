package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default filler pools, keyed by generation mode. Short clips cover the image
// wait, long clips cover the (much slower) video wait.
var (
	defaultShortAds = []string{
		"https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ForBiggerJoyrides.mp4",
		"https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ForBiggerBlazes.mp4",
	}
	defaultLongAds = []string{
		"https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4",
		"https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/Sintel.mp4",
	}
)

// Config aggregates runtime configuration for the studio gateway.
type Config struct {
	ListenAddr        string
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string
	GenerationAPIURL  string
	ChatAPIURL        string
	RequestTimeout    time.Duration
	GenerationTimeout time.Duration
	CheckoutBaseURL   string
	ReferralLinkBase  string
	ShortAdURLs       []string
	LongAdURLs        []string
	HistoryLimit      int
	EditorFontDir     string
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3PublicBaseURL   string
	S3UsePathStyle    bool
	S3Prefix          string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 30)),
		GenerationTimeout: time.Second * time.Duration(getInt("GENERATION_TIMEOUT_SECONDS", 300)),
		CheckoutBaseURL:   getEnv("CHECKOUT_BASE_URL", "https://checkout.lumeo.studio"),
		ReferralLinkBase:  getEnv("REFERRAL_LINK_BASE", "https://lumeo.studio"),
		ShortAdURLs:       getList("SHORT_AD_URLS", defaultShortAds),
		LongAdURLs:        getList("LONG_AD_URLS", defaultLongAds),
		HistoryLimit:      getInt("HISTORY_LIMIT", 20),
		EditorFontDir:     getEnv("EDITOR_FONT_DIR", "assets/fonts"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "exports"),
	}

	cfg.SupabaseURL = normalizeBaseURL(os.Getenv("SUPABASE_URL"))
	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	cfg.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")
	cfg.GenerationAPIURL = normalizeBaseURL(os.Getenv("GENERATION_API_URL"))
	cfg.ChatAPIURL = normalizeBaseURL(getEnv("CHAT_API_URL", cfg.GenerationAPIURL))

	// Gallery pages are capped between the compact and full views.
	if cfg.HistoryLimit < 8 {
		cfg.HistoryLimit = 8
	}
	if cfg.HistoryLimit > 20 {
		cfg.HistoryLimit = 20
	}

	var missing []string
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if cfg.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if cfg.GenerationAPIURL == "" {
		missing = append(missing, "GENERATION_API_URL")
	}
	if cfg.S3Bucket != "" {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// ShareEnabled reports whether exported media can be published to storage.
// Without a bucket the share flow falls back to plain download.
func (c Config) ShareEnabled() bool {
	return c.S3Bucket != ""
}

// normalizeBaseURL trims trailing slashes and defaults a bare host to https.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(strings.TrimRight(raw, "/"))
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.Scheme == "" {
		return "https://" + raw
	}
	return parsed.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// No env file is fine; plain environment configuration is supported.
	return nil
}
