// Package config loads espo-mcp settings: YAML file, then ESPO_MCP_*
// environment overrides, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ESPO_MCP_"

// Server modes.
const (
	ModeSession   = "session"
	ModeStateless = "stateless"
)

// Audit drivers. An empty driver disables the audit log.
const (
	AuditSQLite = "sqlite3"
	AuditDuckDB = "duckdb"
)

// Config represents ~/.espo-mcp/config.yaml
type Config struct {
	Espo              EspoConfig    `yaml:"espo"`
	Server            ServerConfig  `yaml:"server"`
	Session           SessionConfig `yaml:"session"`
	Audit             AuditConfig   `yaml:"audit"`
	Log               LogConfig     `yaml:"log"`
	DisplayNameFields []string      `yaml:"display_name_fields"`
}

// EspoConfig holds the CRM connection
type EspoConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig holds the HTTP endpoint settings
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	Mode        string   `yaml:"mode"` // session | stateless
	CORSOrigins []string `yaml:"cors_origins"`
}

// SessionConfig holds idle eviction and push stream timing
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	KeepAlive     time.Duration `yaml:"keepalive"`
}

// AuditConfig holds the tool call log location
type AuditConfig struct {
	Driver string `yaml:"driver"` // sqlite3 | duckdb | "" (off)
	Path   string `yaml:"path"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a default config
func Default() *Config {
	return &Config{
		Espo: EspoConfig{
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr:        ":3000",
			Mode:        ModeSession,
			CORSOrigins: []string{"*"},
		},
		Session: SessionConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: 5 * time.Minute,
			KeepAlive:     30 * time.Second,
		},
		Audit: AuditConfig{
			Driver: AuditSQLite,
			Path:   AuditDBPath(),
		},
		Log: LogConfig{
			Level: "info",
		},
		DisplayNameFields: []string{"name", "firstName+lastName", "title", "subject"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path means GlobalConfigPath, which may be absent; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = GlobalConfigPath()
	}

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("설정 파일 파싱 실패: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("설정 파일이 없습니다: %s", path)
	default:
		return nil, fmt.Errorf("설정 파일 읽기 실패: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Audit.Path = ExpandHome(cfg.Audit.Path)
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	path = ExpandHome(path)

	// 디렉토리 생성
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("디렉토리 생성 실패: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("설정 직렬화 실패: %w", err)
	}

	// API 키가 들어 있으므로 소유자만 읽기
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("설정 파일 저장 실패: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Espo.URL = getenv("URL", c.Espo.URL)
	c.Espo.APIKey = getenv("API_KEY", c.Espo.APIKey)
	c.Server.Addr = getenv("ADDR", c.Server.Addr)
	c.Server.Mode = getenv("MODE", c.Server.Mode)
	c.Server.CORSOrigins = getenvList("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Audit.Driver = getenv("AUDIT_DRIVER", c.Audit.Driver)
	c.Audit.Path = getenv("AUDIT_PATH", c.Audit.Path)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Log.Development = getenvBool("LOG_DEVELOPMENT", c.Log.Development)
	c.DisplayNameFields = getenvList("DISPLAY_NAME_FIELDS", c.DisplayNameFields)

	// "off"는 감사 로그 비활성화
	if strings.EqualFold(c.Audit.Driver, "off") {
		c.Audit.Driver = ""
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TIMEOUT", &c.Espo.Timeout},
		{"IDLE_TIMEOUT", &c.Session.IdleTimeout},
		{"SWEEP_INTERVAL", &c.Session.SweepInterval},
		{"KEEPALIVE", &c.Session.KeepAlive},
	}
	for _, d := range durations {
		if *d.dst, err = getenvDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the settings needed to serve.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Espo.URL) == "" {
		problems = append(problems, "espo.url 이 비어 있습니다")
	} else if !strings.HasPrefix(c.Espo.URL, "http://") && !strings.HasPrefix(c.Espo.URL, "https://") {
		problems = append(problems, fmt.Sprintf("espo.url 은 http(s) URL 이어야 합니다: %s", c.Espo.URL))
	}

	switch c.Server.Mode {
	case ModeSession, ModeStateless:
	default:
		problems = append(problems, fmt.Sprintf("알 수 없는 server.mode: %q", c.Server.Mode))
	}

	switch c.Audit.Driver {
	case "", AuditSQLite, AuditDuckDB:
	default:
		problems = append(problems, fmt.Sprintf("알 수 없는 audit.driver: %q", c.Audit.Driver))
	}
	if c.Audit.Driver != "" && c.Audit.Path == "" {
		problems = append(problems, "audit.path 가 비어 있습니다")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("알 수 없는 log.level: %q", c.Log.Level))
	}

	for name, d := range map[string]time.Duration{
		"espo.timeout":           c.Espo.Timeout,
		"session.idle_timeout":   c.Session.IdleTimeout,
		"session.sweep_interval": c.Session.SweepInterval,
		"session.keepalive":      c.Session.KeepAlive,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s 은 양수여야 합니다", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("설정 오류: %s", strings.Join(problems, "; "))
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Espo.APIKey != "" {
		out.Espo.APIKey = "********"
	}
	return &out
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(EnvPrefix + k); ok {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "1" || v == "true" || v == "yes" {
			return true
		}
		if v == "0" || v == "false" || v == "no" {
			return false
		}
	}
	return fallback
}

func getenvList(k string, fallback []string) []string {
	v := getenv(k, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDuration(k string, fallback time.Duration) (time.Duration, error) {
	v := getenv(k, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("환경변수 %s%s 파싱 실패: %w", EnvPrefix, k, err)
	}
	return d, nil
}
