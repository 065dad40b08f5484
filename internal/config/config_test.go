// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestDefault_ChatLimits(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1000, cfg.Chat.MaxQuestionChars)
	assert.Equal(t, 1000, cfg.Chat.MaxInputTokens)
	assert.Equal(t, 2*time.Second, cfg.Chat.MinInterval())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
addr = ":9999"

[chat]
min_interval_ms = 500

[backend]
type = "http"
url = "http://rag.internal:8000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Chat.MinInterval())
	assert.Equal(t, BackendHTTP, cfg.Backend.Type)
	assert.Equal(t, 1000, cfg.Chat.MaxQuestionChars, "unset keys keep defaults")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[server]\nadress = \":1\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.adress")
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[render]
engine = "pandoc"

[backend]
type = "ollama"
url = "ftp://example.com"
`)

	_, err := Load(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	assert.True(t, fields["render.engine"])
	assert.True(t, fields["backend.url"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIGRUN_CHAT_ADDR", ":7000")
	t.Setenv("RIGRUN_CHAT_BACKEND", "none")
	t.Setenv("RIGRUN_CHAT_LOG_LEVEL", "debug")

	path := writeConfig(t, "[server]\naddr = \":9999\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, BackendNone, cfg.Backend.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Server.Addr = ":1234"
	cfg.Server.TrustedProxies = []string{"10.0.0.1"}
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# rigrun-chat configuration file"))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":1234", loaded.Server.Addr)
	assert.Equal(t, []string{"10.0.0.1"}, loaded.Server.TrustedProxies)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"zero question chars", func(c *Config) { c.Chat.MaxQuestionChars = 0 }, "chat.max_question_chars"},
		{"negative interval", func(c *Config) { c.Chat.MinIntervalMillis = -1 }, "chat.min_interval_ms"},
		{"huge history", func(c *Config) { c.Chat.HistoryLimit = 5000 }, "chat.history_limit"},
		{"bad blocked pattern", func(c *Config) { c.Chat.BlockedPatterns = []string{"(unclosed"} }, "chat.blocked_patterns[0]"},
		{"short secret", func(c *Config) { c.Session.Secret = "abc" }, "session.secret"},
		{"unknown backend", func(c *Config) { c.Backend.Type = "openai" }, "backend.type"},
		{"ollama without model", func(c *Config) { c.Backend.Model = "" }, "backend.model"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidateErrors", err)
			}
			if verrs[0].Field != tt.field {
				t.Errorf("Validate() field = %q, want %q", verrs[0].Field, tt.field)
			}
		})
	}
}

func TestValidate_NoneBackendSkipsURL(t *testing.T) {
	cfg := Default()
	cfg.Backend.Type = BackendNone
	cfg.Backend.URL = ""

	assert.NoError(t, cfg.Validate())
}

func TestSetDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, EngineGoldmark, cfg.Render.Engine)
	assert.Equal(t, "rigrun_chat_session", cfg.Session.CookieName)
}

// =============================================================================
// GET / KEYS / REDACTION
// =============================================================================

func TestGet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("chat.min_interval_ms")
	require.NoError(t, err)
	assert.Equal(t, 2000, v)

	v, err = cfg.Get("render.engine")
	require.NoError(t, err)
	assert.Equal(t, "goldmark", FormatValue(v))

	_, err = cfg.Get("chat.nope")
	assert.Error(t, err)

	_, err = cfg.Get("server.addr.port")
	assert.Error(t, err)

	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestKeys_ResolveWithGet(t *testing.T) {
	cfg := Default()
	keys := Keys()

	assert.Contains(t, keys, "server.addr")
	assert.Contains(t, keys, "logging.format")
	for _, k := range keys {
		if _, err := cfg.Get(k); err != nil {
			t.Errorf("Get(%q) error = %v", k, err)
		}
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Session.Secret = "super-secret-value-123"
	cfg.Server.AdminToken = "admin-token"
	cfg.Backend.APIKey = "sk-live"

	s := cfg.String()

	assert.NotContains(t, s, "super-secret-value-123")
	assert.NotContains(t, s, "admin-token")
	assert.NotContains(t, s, "sk-live")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "super-secret-value-123", cfg.Session.Secret, "original untouched")
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, nil, func(c *Config) { changes <- c }))

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o600))

	select {
	case cfg := <-changes:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatch_IgnoresInvalidFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, nil, func(c *Config) { changes <- c }))

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0o600))

	select {
	case <-changes:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(DefaultWatchDebounce * 4):
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "RIGRUN_CHAT_") {
			name, _, _ := strings.Cut(kv, "=")
			t.Setenv(name, "")
		}
	}
}
