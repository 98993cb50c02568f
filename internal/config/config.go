package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LogConfig drives obslog initialisation.
type LogConfig struct {
	Level   string
	Format  string
	Console bool
	ToFile  bool
	File    string
	Caller  bool
}

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisURL       string
	DatabaseURL    string
	MatchRecordURL string

	PersistTimeout time.Duration
	OutboundBuffer int
	PingInterval   time.Duration

	MessageTemplateDir string

	Log LogConfig
}

// Load reads an optional .env file and then the process environment.
func Load() (*AppConfig, error) {
	// missing .env is the normal case in containers
	_ = godotenv.Load()

	cfg := &AppConfig{
		ListenAddr:     ":5000",
		AllowedOrigins: []string{"localhost:3000"},
		PersistTimeout: 5 * time.Second,
		OutboundBuffer: 64,
		PingInterval:   30 * time.Second,
		Log: LogConfig{
			Level:   "info",
			Format:  "legacy",
			Console: true,
			ToFile:  false,
			File:    filepath.Join("logs", "pvp.log"),
		},
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("CLIENT_URL")); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MatchRecordURL = strings.TrimSpace(os.Getenv("MATCH_RECORD_URL"))
	cfg.MessageTemplateDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if v := strings.TrimSpace(os.Getenv("PERSIST_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("PERSIST_TIMEOUT_MS must be a positive integer")
		}
		cfg.PersistTimeout = time.Duration(n) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("OUTBOUND_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OutboundBuffer = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WS_PING_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PingInterval = time.Duration(n) * time.Second
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}
	cfg.Log.Console = boolEnv("LOG_TO_CONSOLE", cfg.Log.Console)
	cfg.Log.ToFile = boolEnv("LOG_TO_FILE", cfg.Log.ToFile)
	cfg.Log.Caller = boolEnv("LOG_CALLER", cfg.Log.Caller)

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, errors.New("LISTEN_ADDR is required")
	}
	if cfg.DatabaseURL != "" && cfg.MatchRecordURL != "" {
		return nil, errors.New("DATABASE_URL and MATCH_RECORD_URL are mutually exclusive")
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		// websocket.AcceptOptions.OriginPatterns matches host only
		s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
		out = append(out, strings.TrimRight(s, "/"))
	}
	return out
}

func boolEnv(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
