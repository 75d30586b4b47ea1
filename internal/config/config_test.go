package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/leofalp/mmchat/providers/memory/backend"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromEnv(envOf(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MemoryBackend != backend.KindFile {
		t.Errorf("MemoryBackend = %q, want file", cfg.MemoryBackend)
	}
	if cfg.MemoryDir != DefaultMemoryDir {
		t.Errorf("MemoryDir = %q", cfg.MemoryDir)
	}
	if cfg.BoltPath != filepath.Join(DefaultMemoryDir, DefaultBoltFile) {
		t.Errorf("BoltPath = %q", cfg.BoltPath)
	}
	if cfg.Timeout != DefaultTimeout || cfg.StreamBuffer != DefaultStreamBuffer {
		t.Errorf("Timeout/StreamBuffer = %v/%d", cfg.Timeout, cfg.StreamBuffer)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" || cfg.LLMLogLevel != "standard" {
		t.Errorf("unexpected log defaults %q %q %q", cfg.LogLevel, cfg.LogFormat, cfg.LLMLogLevel)
	}
	if cfg.MetricsAddr != "" || cfg.APIKey != "" {
		t.Errorf("expected empty MetricsAddr and APIKey")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := fromEnv(envOf(map[string]string{
		"DASHSCOPE_API_KEY":     "sk-test",
		"DASHSCOPE_BASE_URL":    "http://localhost:9999",
		"MMCHAT_MODEL":          "qwen-vl-max",
		"MMCHAT_MEMORY_BACKEND": " TABLE ",
		"MMCHAT_DB_DRIVER":      "postgres",
		"MMCHAT_DB_DSN":         "postgres://u:p@localhost/db",
		"MMCHAT_TABLE_NAME":     "history",
		"MMCHAT_TIMEOUT":        "15s",
		"MMCHAT_STREAM_BUFFER":  "0",
		"METRICS_ADDR":          ":9090",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIKey != "sk-test" || cfg.BaseURL != "http://localhost:9999" || cfg.Model != "qwen-vl-max" {
		t.Errorf("provider settings not read: %+v", cfg)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.StreamBuffer != 0 {
		t.Errorf("StreamBuffer = %d, want 0", cfg.StreamBuffer)
	}

	mem := cfg.MemoryConfig()
	if mem.Kind != backend.KindTable || mem.Driver != backend.DriverPostgres || mem.DSN != "postgres://u:p@localhost/db" {
		t.Errorf("unexpected memory config %+v", mem)
	}
	if mem.TableName != "history" || !mem.EnsureSchema {
		t.Errorf("unexpected table settings %+v", mem)
	}
}

func TestFromEnv_SQLiteTableDefaultsDSN(t *testing.T) {
	cfg, err := fromEnv(envOf(map[string]string{
		"MMCHAT_MEMORY_BACKEND": "table",
		"MMCHAT_DB_DRIVER":      "sqlite",
		"MMCHAT_MEMORY_DIR":     "/data",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDSN != filepath.Join("/data", "chat-memory.sqlite") {
		t.Errorf("DBDSN = %q", cfg.DBDSN)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":      {"MMCHAT_MEMORY_BACKEND": "redis"},
		"unknown driver":       {"MMCHAT_DB_DRIVER": "mysql"},
		"postgres without dsn": {"MMCHAT_MEMORY_BACKEND": "table"},
		"bad timeout":          {"MMCHAT_TIMEOUT": "soon"},
		"negative timeout":     {"MMCHAT_TIMEOUT": "-1s"},
		"bad stream buffer":    {"MMCHAT_STREAM_BUFFER": "many"},
		"negative buffer":      {"MMCHAT_STREAM_BUFFER": "-2"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fromEnv(envOf(vars))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_ReadsProcessEnv(t *testing.T) {
	t.Setenv("MMCHAT_MODEL", "qwen-vl-max")
	t.Setenv("MMCHAT_MEMORY_BACKEND", "bolt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != "qwen-vl-max" || cfg.MemoryBackend != backend.KindBolt {
		t.Errorf("unexpected config %+v", cfg)
	}
}
