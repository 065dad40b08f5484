// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/rigrun-chat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigrun-chat configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" json:"server"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Render  RenderConfig  `toml:"render" json:"render"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Session SessionConfig `toml:"session" json:"session"`
	Backend BackendConfig `toml:"backend" json:"backend"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address (e.g. ":8080", "127.0.0.1:8080").
	Addr string `toml:"addr" json:"addr"`
	// ReadTimeoutSecs bounds reading a request including the body.
	ReadTimeoutSecs int `toml:"read_timeout_secs" json:"read_timeout_secs"`
	// WriteTimeoutSecs bounds writing a response. Must exceed the backend timeout.
	WriteTimeoutSecs int `toml:"write_timeout_secs" json:"write_timeout_secs"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `toml:"max_body_bytes" json:"max_body_bytes"`
	// RequestsPerMinute is the per-IP limit across all endpoints (0 = unlimited).
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
	// TrustedProxies lists proxy IPs whose X-Forwarded-For is honoured.
	TrustedProxies []string `toml:"trusted_proxies" json:"trusted_proxies"`
	// AdminToken protects /admin/* with a bearer token. Empty disables the
	// admin endpoints entirely.
	AdminToken string `toml:"admin_token" json:"admin_token"`
	// AdminTOTPSecret, when set, additionally requires an X-Admin-OTP header
	// with a valid TOTP code.
	AdminTOTPSecret string `toml:"admin_totp_secret" json:"admin_totp_secret"`
}

// ChatConfig contains chat endpoint limits.
type ChatConfig struct {
	// MaxQuestionChars is the maximum question length in characters.
	MaxQuestionChars int `toml:"max_question_chars" json:"max_question_chars"`
	// MaxInputTokens is the maximum estimated token count of a question.
	MaxInputTokens int `toml:"max_input_tokens" json:"max_input_tokens"`
	// MinIntervalMillis is the minimum time between questions of one session.
	MinIntervalMillis int `toml:"min_interval_ms" json:"min_interval_ms"`
	// HistoryLimit is the number of past messages sent to the backend and
	// returned by /chat/history.
	HistoryLimit int `toml:"history_limit" json:"history_limit"`
	// BlockedPatterns rejects questions matching any of these regular
	// expressions (case insensitive) as off topic.
	BlockedPatterns []string `toml:"blocked_patterns" json:"blocked_patterns"`
}

// MinInterval returns MinIntervalMillis as a duration.
func (c ChatConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMillis) * time.Millisecond
}

// RenderConfig selects how answers are rendered to HTML.
type RenderConfig struct {
	// Engine is "goldmark" (markdown engine + sanitizer) or "fallback"
	// (line based formatter only).
	Engine string `toml:"engine" json:"engine"`
	// Highlight enables syntax highlighting of fenced code blocks.
	Highlight bool `toml:"highlight" json:"highlight"`
	// HighlightStyle is the chroma style name.
	HighlightStyle string `toml:"highlight_style" json:"highlight_style"`
}

// StorageConfig contains conversation store settings.
type StorageConfig struct {
	// Path is the sqlite database file. Empty means ~/.rigrun-chat/chat.db.
	Path string `toml:"path" json:"path"`
}

// SessionConfig contains browser session settings.
type SessionConfig struct {
	// CookieName is the session cookie name.
	CookieName string `toml:"cookie_name" json:"cookie_name"`
	// Secret keys the cookie MAC. Empty generates a random per-process key,
	// which invalidates sessions on restart.
	Secret string `toml:"secret" json:"secret"`
	// IdleTimeoutMins expires sessions without activity.
	IdleTimeoutMins int `toml:"idle_timeout_mins" json:"idle_timeout_mins"`
	// SecureCookie sets the Secure attribute (enable behind HTTPS).
	SecureCookie bool `toml:"secure_cookie" json:"secure_cookie"`
}

// IdleTimeout returns IdleTimeoutMins as a duration.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMins) * time.Minute
}

// BackendConfig selects the answer backend.
type BackendConfig struct {
	// Type is "ollama", "http" or "none".
	Type string `toml:"type" json:"type"`
	// URL is the Ollama server URL or the base URL of the HTTP answer service.
	URL string `toml:"url" json:"url"`
	// Model is the Ollama model name.
	Model string `toml:"model" json:"model"`
	// TimeoutSecs bounds a single answer request.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxTokens caps the generated answer length (Ollama num_predict).
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// SystemPrompt overrides the built-in system prompt.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
	// APIKey is sent as a bearer token to the HTTP answer service.
	APIKey string `toml:"api_key" json:"api_key"`
}

// Timeout returns TimeoutSecs as a duration.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`
	// Format is json or console.
	Format string `toml:"format" json:"format"`
}

// Backend types.
const (
	BackendOllama = "ollama"
	BackendHTTP   = "http"
	BackendNone   = "none"
)

// Render engines.
const (
	EngineGoldmark = "goldmark"
	EngineFallback = "fallback"
)

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			ReadTimeoutSecs:   15,
			WriteTimeoutSecs:  150,
			MaxBodyBytes:      64 * 1024,
			RequestsPerMinute: 60,
		},
		Chat: ChatConfig{
			MaxQuestionChars:  1000,
			MaxInputTokens:    1000,
			MinIntervalMillis: 2000,
			HistoryLimit:      50,
			BlockedPatterns: []string{
				`\b(cerpen|novel|cerita|story)\b`,
				`\b(copy|paste|artikel|blog)\b`,
			},
		},
		Render: RenderConfig{
			Engine:         EngineGoldmark,
			Highlight:      true,
			HighlightStyle: "github",
		},
		Session: SessionConfig{
			CookieName:      "rigrun_chat_session",
			IdleTimeoutMins: 60,
		},
		Backend: BackendConfig{
			Type:        BackendOllama,
			URL:         "http://127.0.0.1:11434",
			Model:       "qwen2.5:7b",
			TimeoutSecs: 120,
			MaxTokens:   1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigrun-chat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-chat"), nil
}

// ConfigPath returns the default TOML config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DatabasePath returns the effective sqlite path.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat.db"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from path (the default path when empty). A
// missing file is not an error: defaults are used. Environment overrides
// are applied last, then defaults are filled and the result validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the TOML file at path over cfg. Unknown keys are an error.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// SaveTOML writes cfg to path atomically with 0600 permissions (the file
// can hold the session secret and admin token).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigrun-chat configuration file\n")
	buf.WriteString("# Environment variables RIGRUN_CHAT_* override these values.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors when
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.MaxBodyBytes < 1024 {
		add("server.max_body_bytes", "must be at least 1024, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.RequestsPerMinute < 0 {
		add("server.requests_per_minute", "must not be negative")
	}

	if c.Chat.MaxQuestionChars < 1 {
		add("chat.max_question_chars", "must be positive, got %d", c.Chat.MaxQuestionChars)
	}
	if c.Chat.MaxInputTokens < 1 {
		add("chat.max_input_tokens", "must be positive, got %d", c.Chat.MaxInputTokens)
	}
	if c.Chat.MinIntervalMillis < 0 {
		add("chat.min_interval_ms", "must not be negative")
	}
	if c.Chat.HistoryLimit < 1 || c.Chat.HistoryLimit > 1000 {
		add("chat.history_limit", "must be between 1 and 1000, got %d", c.Chat.HistoryLimit)
	}
	for i, p := range c.Chat.BlockedPatterns {
		if _, err := regexp.Compile(p); err != nil {
			add(fmt.Sprintf("chat.blocked_patterns[%d]", i), "invalid pattern: %v", err)
		}
	}

	switch c.Render.Engine {
	case EngineGoldmark, EngineFallback:
	default:
		add("render.engine", "invalid engine '%s', must be one of: goldmark, fallback", c.Render.Engine)
	}

	if c.Session.IdleTimeoutMins < 1 {
		add("session.idle_timeout_mins", "must be positive, got %d", c.Session.IdleTimeoutMins)
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < 16 {
		add("session.secret", "must be at least 16 characters")
	}

	switch c.Backend.Type {
	case BackendOllama, BackendHTTP:
		if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
			add("backend.url", "invalid URL '%s'", c.Backend.URL)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			add("backend.url", "scheme must be http or https, got '%s'", u.Scheme)
		}
		if c.Backend.Type == BackendOllama && c.Backend.Model == "" {
			add("backend.model", "required for the ollama backend")
		}
	case BackendNone:
	default:
		add("backend.type", "invalid type '%s', must be one of: ollama, http, none", c.Backend.Type)
	}
	if c.Backend.TimeoutSecs < 1 {
		add("backend.timeout_secs", "must be positive, got %d", c.Backend.TimeoutSecs)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", "invalid level '%s'", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format", "invalid format '%s', must be json or console", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have a sensible default.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeoutSecs <= 0 {
		c.Server.ReadTimeoutSecs = d.Server.ReadTimeoutSecs
	}
	if c.Server.WriteTimeoutSecs <= 0 {
		c.Server.WriteTimeoutSecs = d.Server.WriteTimeoutSecs
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = d.Chat.HistoryLimit
	}
	if c.Render.Engine == "" {
		c.Render.Engine = d.Render.Engine
	}
	if c.Render.HighlightStyle == "" {
		c.Render.HighlightStyle = d.Render.HighlightStyle
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = d.Session.CookieName
	}
	if c.Session.IdleTimeoutMins == 0 {
		c.Session.IdleTimeoutMins = d.Session.IdleTimeoutMins
	}
	if c.Backend.Type == "" {
		c.Backend.Type = d.Backend.Type
	}
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - RIGRUN_CHAT_ADDR: server.addr
//   - RIGRUN_CHAT_ADMIN_TOKEN: server.admin_token
//   - RIGRUN_CHAT_BACKEND: backend.type
//   - RIGRUN_CHAT_BACKEND_URL: backend.url
//   - RIGRUN_CHAT_MODEL: backend.model
//   - RIGRUN_CHAT_API_KEY: backend.api_key
//   - RIGRUN_CHAT_DB: storage.path
//   - RIGRUN_CHAT_SESSION_SECRET: session.secret
//   - RIGRUN_CHAT_RENDER_ENGINE: render.engine
//   - RIGRUN_CHAT_LOG_LEVEL: logging.level
//   - RIGRUN_CHAT_LOG_FORMAT: logging.format
func (c *Config) ApplyEnvOverrides() {
	overrides := map[string]*string{
		"RIGRUN_CHAT_ADDR":           &c.Server.Addr,
		"RIGRUN_CHAT_ADMIN_TOKEN":    &c.Server.AdminToken,
		"RIGRUN_CHAT_BACKEND":        &c.Backend.Type,
		"RIGRUN_CHAT_BACKEND_URL":    &c.Backend.URL,
		"RIGRUN_CHAT_MODEL":          &c.Backend.Model,
		"RIGRUN_CHAT_API_KEY":        &c.Backend.APIKey,
		"RIGRUN_CHAT_DB":             &c.Storage.Path,
		"RIGRUN_CHAT_SESSION_SECRET": &c.Session.Secret,
		"RIGRUN_CHAT_RENDER_ENGINE":  &c.Render.Engine,
		"RIGRUN_CHAT_LOG_LEVEL":      &c.Logging.Level,
		"RIGRUN_CHAT_LOG_FORMAT":     &c.Logging.Format,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// =============================================================================
// GET (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its TOML key path
// (e.g. "chat.min_interval_ms").
func (c *Config) Get(key string) (any, error) {
	if key == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

// Keys returns every leaf key in dot notation, in declaration order.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := tagName(f)
			if name == "" {
				continue
			}
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, prefix+name+".")
				continue
			}
			keys = append(keys, prefix+name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// FormatValue renders a Get result for display.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return strings.Join(val, ",")
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.TrustedProxies != nil {
		clone.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	}
	if c.Chat.BlockedPatterns != nil {
		clone.Chat.BlockedPatterns = append([]string(nil), c.Chat.BlockedPatterns...)
	}
	return &clone
}

// Redacted returns a copy with secrets replaced by "[REDACTED]".
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	for _, s := range []*string{
		&safe.Server.AdminToken,
		&safe.Server.AdminTOTPSecret,
		&safe.Session.Secret,
		&safe.Backend.APIKey,
	} {
		if *s != "" {
			*s = "[REDACTED]"
		}
	}
	return safe
}

// String returns a JSON representation with secrets redacted.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
