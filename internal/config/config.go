package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SueMuBai/nebula/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv reads .env outside production only (in containers/prod the
// configuration comes from real environment variables).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		idx := strings.LastIndex(parent, "/")
		if idx <= 0 {
			return
		}
		dir = parent[:idx]
		if dir == "" {
			dir = "/"
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// RedisConfig holds persisted session state settings (token + profile
// between launches).
// Empty URL means the in-memory store is used and nothing survives restart.
type RedisConfig struct {
	URL string `yaml:"redis_url"`
}

// DevServerConfig holds settings for the local stub server.
type DevServerConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
}

// Config holds client settings.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// ServerURL is the HTTP base of the nebula server; the websocket
	// endpoint and the REST API base are derived from it.
	ServerURL string `yaml:"server_url"`

	// Persistent channel
	ReconnectDelay   time.Duration `yaml:"-"`
	WSWriteTimeout   time.Duration `yaml:"-"`
	WSPongTimeout    time.Duration `yaml:"-"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`

	// History paging
	HistoryPageSize int `yaml:"history_page_size"`

	// MatchRefresh bounds how stale the active-match view may get;
	// the daemon polls at this interval (at most one minute).
	MatchRefresh time.Duration `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	Redis     RedisConfig     `yaml:"-"`
	DevServer DevServerConfig `yaml:"-"`
}

// APIBase returns the REST base URL ("/api" under the server root).
func (c *Config) APIBase() string {
	return strings.TrimRight(c.ServerURL, "/") + "/api"
}

// WSURL returns the persistent channel endpoint derived from ServerURL.
func (c *Config) WSURL() string {
	base := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/chat"
}

// yamlConfig is the intermediate shape for the YAML file (durations as seconds).
type yamlConfig struct {
	ServerURL            string `yaml:"server_url"`
	ReconnectDelaySec    int    `yaml:"reconnect_delay"`
	WSWriteTimeoutSec    int    `yaml:"ws_write_timeout"`
	WSPongTimeoutSec     int    `yaml:"ws_pong_timeout"`
	WSMaxMessageSize     int64  `yaml:"ws_max_message_size"`
	HistoryPageSize      int    `yaml:"history_page_size"`
	MatchRefreshSec      int    `yaml:"match_refresh"`
	LogLevel             string `yaml:"log_level"`
	DevListenAddr        string `yaml:"dev_listen_addr"`
	DevCORSAllowedOrigin string `yaml:"dev_cors_allowed_origins"`
}

// Load reads configuration.
// .env first (if present), then YAML, then environment (highest priority).
func Load() *Config {
	loadEnv()
	yc := yamlConfig{
		ServerURL:            "http://localhost:8080",
		ReconnectDelaySec:    5,
		WSWriteTimeoutSec:    10,
		WSPongTimeoutSec:     60,
		WSMaxMessageSize:     4096,
		HistoryPageSize:      50,
		MatchRefreshSec:      60,
		LogLevel:             "info",
		DevListenAddr:        ":8080",
		DevCORSAllowedOrigin: "*",
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (keeping defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	matchRefresh := envInt("MATCH_REFRESH", yc.MatchRefreshSec)
	// The active-match view must be refreshed at least once a minute for
	// expiry to become visible in time.
	if matchRefresh <= 0 || matchRefresh > 60 {
		matchRefresh = 60
	}

	cfg := &Config{
		ServerURL:        envStr("SERVER_URL", yc.ServerURL),
		ReconnectDelay:   time.Duration(envInt("RECONNECT_DELAY", yc.ReconnectDelaySec)) * time.Second,
		WSWriteTimeout:   time.Duration(envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeoutSec)) * time.Second,
		WSPongTimeout:    time.Duration(envInt("WS_PONG_TIMEOUT", yc.WSPongTimeoutSec)) * time.Second,
		WSMaxMessageSize: int64(envInt("WS_MAX_MESSAGE_SIZE", int(yc.WSMaxMessageSize))),
		HistoryPageSize:  envInt("HISTORY_PAGE_SIZE", yc.HistoryPageSize),
		MatchRefresh:     time.Duration(matchRefresh) * time.Second,
		LogLevel:         envStr("LOG_LEVEL", yc.LogLevel),
		Redis:            RedisConfig{URL: envStr("REDIS_URL", "")},
		DevServer: DevServerConfig{
			ListenAddr:         envStr("DEV_LISTEN_ADDR", yc.DevListenAddr),
			CORSAllowedOrigins: envStr("DEV_CORS_ALLOWED_ORIGINS", yc.DevCORSAllowedOrigin),
		},
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 50
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return cfg
}

// envStr returns an environment value or the fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns a numeric environment value or the fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
