package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/leofalp/mmchat/providers/memory/backend"
)

// Config holds all configuration for the mmchat CLI.
type Config struct {
	// Provider
	APIKey  string
	BaseURL string
	Model   string

	// Memory
	MemoryBackend backend.Kind
	MemoryDir     string
	BoltPath      string
	DBDriver      string
	DBDSN         string
	TableName     string

	// Orchestration
	Timeout      time.Duration
	StreamBuffer int

	// Observability
	LogLevel    string
	LogFormat   string
	LLMLogLevel string // minimal, standard or verbose
	MetricsAddr string // empty disables the /metrics endpoint
}

// Defaults used when the corresponding variable is unset.
const (
	DefaultMemoryDir    = "tmp/chat-memory"
	DefaultBoltFile     = "chat-memory.db"
	DefaultTimeout      = 60 * time.Second
	DefaultStreamBuffer = 16
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("config: invalid value")

// Load reads configuration from environment variables, loading a .env file
// first if one is present. Bad values are returned as errors wrapping
// ErrInvalid.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, defaultValue string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		APIKey:      getenv("DASHSCOPE_API_KEY"),
		BaseURL:     getenv("DASHSCOPE_BASE_URL"),
		Model:       get("MMCHAT_MODEL", ""),
		MemoryDir:   get("MMCHAT_MEMORY_DIR", DefaultMemoryDir),
		DBDriver:    get("MMCHAT_DB_DRIVER", backend.DriverPostgres),
		DBDSN:       getenv("MMCHAT_DB_DSN"),
		TableName:   get("MMCHAT_TABLE_NAME", ""),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogFormat:   get("LOG_FORMAT", "text"),
		LLMLogLevel: get("MMCHAT_LLM_LOG_LEVEL", "standard"),
		MetricsAddr: getenv("METRICS_ADDR"),
	}
	cfg.BoltPath = get("MMCHAT_BOLT_PATH", filepath.Join(cfg.MemoryDir, DefaultBoltFile))

	kind, err := backend.ParseKind(get("MMCHAT_MEMORY_BACKEND", string(backend.KindFile)))
	if err != nil {
		return nil, fmt.Errorf("%w: MMCHAT_MEMORY_BACKEND: %w", ErrInvalid, err)
	}
	cfg.MemoryBackend = kind

	switch cfg.DBDriver {
	case backend.DriverPostgres, backend.DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: MMCHAT_DB_DRIVER %q", ErrInvalid, cfg.DBDriver)
	}

	if kind == backend.KindTable && cfg.DBDSN == "" {
		if cfg.DBDriver != backend.DriverSQLite {
			return nil, fmt.Errorf("%w: MMCHAT_DB_DSN is required for the table backend", ErrInvalid)
		}
		cfg.DBDSN = filepath.Join(cfg.MemoryDir, "chat-memory.sqlite")
	}

	cfg.Timeout = DefaultTimeout
	if raw := getenv("MMCHAT_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: MMCHAT_TIMEOUT %q", ErrInvalid, raw)
		}
		cfg.Timeout = d
	}

	cfg.StreamBuffer = DefaultStreamBuffer
	if raw := getenv("MMCHAT_STREAM_BUFFER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: MMCHAT_STREAM_BUFFER %q", ErrInvalid, raw)
		}
		cfg.StreamBuffer = n
	}

	return cfg, nil
}

// MemoryConfig maps the memory settings onto a backend.Config.
func (c *Config) MemoryConfig() backend.Config {
	return backend.Config{
		Kind:         c.MemoryBackend,
		Dir:          c.MemoryDir,
		Driver:       c.DBDriver,
		DSN:          c.DBDSN,
		TableName:    c.TableName,
		EnsureSchema: true,
		BoltPath:     c.BoltPath,
	}
}
