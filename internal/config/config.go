// Package config loads runtime settings from an optional YAML file, a local
// .env file and the process environment, in increasing order of precedence.
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/BBbrighton/qr-suite/internal/core"
)

// DefaultDoctypes are the target types QR links may be generated for unless
// the config narrows or widens the set.
var DefaultDoctypes = []string{
	"Asset", "Stock Entry", "Serial No", "Batch", "Item", "Warehouse",
	"Purchase Order", "Sales Order", "Purchase Receipt", "Delivery Note",
	"Customer", "Supplier", "Employee",
}

// DefaultRoles may generate links.
var DefaultRoles = []string{"QR User", "QR Manager", "System Manager"}

// Config holds runtime configuration with sensible defaults for local dev.
type Config struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"` // no trailing slash

	DB struct {
		Driver string `yaml:"driver"` // memory | sqlite | postgres
		Path   string `yaml:"path"`
		URL    string `yaml:"url"`
	} `yaml:"db"`

	TokenBytes int `yaml:"token_bytes"`

	Hook struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"hook"`
	HookTimeout time.Duration `yaml:"-"`

	// RateLimit accepts "10", "10rps" or "10:20" (rps:burst). "0" disables it.
	RateLimit      string `yaml:"rate_limit"`
	RateLimitRPS   int    `yaml:"-"`
	RateLimitBurst int    `yaml:"-"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`

	Sweep struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"sweep"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Templates []core.Template `yaml:"templates"`

	Permissions struct {
		Doctypes []string `yaml:"doctypes"`
		Roles    []string `yaml:"roles"`
	} `yaml:"permissions"`
}

// Load reads path (or $QRSUITE_CONFIG when path is empty) if one is given,
// applies environment overrides and fills defaults. A missing file is an
// error only when it was named explicitly.
func Load(path string) (Config, error) {
	loadDotEnv()

	var cfg Config
	if path == "" {
		path = strings.TrimSpace(os.Getenv("QRSUITE_CONFIG"))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load without a config file.
func FromEnv() (Config, error) {
	loadDotEnv()
	var cfg Config
	applyEnv(&cfg)
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.BaseURL = getEnv("BASE_URL", cfg.BaseURL)
	cfg.DB.Driver = getEnv("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Path = getEnv("DB_PATH", cfg.DB.Path)
	cfg.DB.URL = getEnv("DATABASE_URL", cfg.DB.URL)
	cfg.TokenBytes = getEnvInt("TOKEN_BYTES", cfg.TokenBytes)
	cfg.Hook.URL = getEnv("HOOK_URL", cfg.Hook.URL)
	cfg.Hook.Timeout = getEnv("HOOK_TIMEOUT", cfg.Hook.Timeout)
	cfg.RateLimit = getEnv("RATE_LIMIT", cfg.RateLimit)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	cfg.Sweep.Schedule = getEnv("SWEEP_SCHEDULE", cfg.Sweep.Schedule)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
}

// finish validates cfg and fills every unset field with its default.
func (cfg *Config) finish() error {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	cfg.BaseURL = sanitizeBaseURL(cfg.BaseURL)
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = "sqlite"
	}
	if cfg.DB.Driver == "sqlite" {
		cfg.DB.Path = getDBPath(cfg.DB.Path)
	}
	if cfg.TokenBytes <= 0 {
		cfg.TokenBytes = 32
	}

	cfg.HookTimeout = 2 * time.Second
	if s := strings.TrimSpace(cfg.Hook.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid hook timeout %q", s)
		}
		cfg.HookTimeout = d
	}

	cfg.RateLimitRPS, cfg.RateLimitBurst = 10, 10
	if rl := strings.TrimSpace(cfg.RateLimit); rl != "" {
		rps, burst, ok := parseRateLimit(rl)
		if !ok {
			return fmt.Errorf("invalid rate limit %q", rl)
		}
		cfg.RateLimitRPS, cfg.RateLimitBurst = rps, burst
	}
	if cfg.RateLimitBurst < cfg.RateLimitRPS {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Sweep.Schedule == "" {
		cfg.Sweep.Schedule = "@daily"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if len(cfg.Permissions.Doctypes) == 0 {
		cfg.Permissions.Doctypes = append([]string(nil), DefaultDoctypes...)
	}
	if len(cfg.Permissions.Roles) == 0 {
		cfg.Permissions.Roles = append([]string(nil), DefaultRoles...)
	}

	seen := make(map[string]bool, len(cfg.Templates))
	for i, t := range cfg.Templates {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return errors.New("template without a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate template %q", t.Name)
		}
		seen[t.Name] = true
		switch t.URLMode {
		case "", core.AddressToken, core.AddressDirect:
		default:
			return fmt.Errorf("template %q: unknown url_mode %q", t.Name, t.URLMode)
		}
		if t.TokenExpiryDays < 0 {
			return fmt.Errorf("template %q: negative token_expiry_days", t.Name)
		}
		cfg.Templates[i] = t
	}
	return nil
}

// TemplateSet serves configured templates by name.
type TemplateSet map[string]core.Template

// TemplateSet indexes the configured templates.
func (cfg Config) TemplateSet() TemplateSet {
	set := make(TemplateSet, len(cfg.Templates))
	for _, t := range cfg.Templates {
		set[t.Name] = t
	}
	return set
}

func (s TemplateSet) Template(_ context.Context, name string) (*core.Template, bool) {
	t, ok := s[name]
	if !ok {
		return nil, false
	}
	return &t, true
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func sanitizeBaseURL(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/")
	if s == "" {
		return "http://localhost:8080"
	}
	return s
}

func getDBPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = "./data/qrsuite.db"
	}
	if p == ":memory:" {
		return p
	}
	// Create the parent dir if possible (best-effort).
	p = filepath.Clean(p)
	if dir := filepath.Dir(p); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return p
}

var rateRe = regexp.MustCompile(`^\s*(\d+)\s*(?:rps)?\s*(?::\s*(\d+)\s*)?$`)

// parseRateLimit accepts "10", "10rps", or "10:20" (rps:burst).
func parseRateLimit(s string) (rps, burst int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := rateRe.FindStringSubmatch(s)
	if len(m) == 0 {
		return 0, 0, false
	}
	rps, _ = strconv.Atoi(m[1])
	if len(m) >= 3 && m[2] != "" {
		burst, _ = strconv.Atoi(m[2])
	} else {
		burst = rps
	}
	return rps, burst, true
}

// loadDotEnv loads KEY=VALUE pairs from a local ".env" file if present.
// Blank lines and lines starting with "#" or ";" are skipped, surrounding
// quotes are stripped, and variables already set in the environment win.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
