package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	UpstreamTimeout    time.Duration
	UserAgent          string
	SearchEndpoint     string
	VideoEndpoint      string
	VideoGuestEndpoint string
	ThreadsEndpoint    string
	UpstreamRate       float64
	RedisURL           string
	CacheTTL           time.Duration
	CacheDisabled      bool
	MongoURI           string
	MongoDatabase      string
	OTLPEndpoint       string
	TraceSampleRatio   float64
	// RasterFontPath points at a CJK-capable TTF/OTF for the comment layer.
	// Empty keeps the ASCII-only bitmap face.
	RasterFontPath string
	RasterFontSize float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8095"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UpstreamTimeout:    time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 10)) * time.Second,
		UserAgent:          getEnv("UPSTREAM_USER_AGENT", "overlaysync/1.0"),
		SearchEndpoint:     getEnv("SEARCH_ENDPOINT", "https://snapshot.search.nicovideo.jp/api/v2/snapshot/video/contents/search"),
		VideoEndpoint:      getEnv("VIDEO_ENDPOINT", "https://www.nicovideo.jp/api/watch/v3"),
		VideoGuestEndpoint: getEnv("VIDEO_GUEST_ENDPOINT", "https://www.nicovideo.jp/api/watch/v3_guest"),
		ThreadsEndpoint:    getEnv("THREADS_ENDPOINT", "https://nvcomment.nicovideo.jp/v1/threads"),
		UpstreamRate:       float64(getEnvInt("UPSTREAM_RATE_PER_SECOND", 5)),
		RedisURL:           getEnv("REDIS_URL", ""),
		CacheTTL:           time.Duration(getEnvInt("UPSTREAM_CACHE_TTL_MINUTES", 30)) * time.Minute,
		CacheDisabled:      getEnvBool("UPSTREAM_CACHE_DISABLED", false),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DB", "overlaysync"),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio:   getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		RasterFontPath:     getEnv("RASTER_FONT_PATH", ""),
		RasterFontSize:     getEnvFloat("RASTER_FONT_SIZE", 0),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
