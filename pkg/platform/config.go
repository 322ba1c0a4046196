// Package platform provides configuration loading for the portal sync service.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Portal   PortalConfig   `yaml:"portal"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PortalConfig configures access to the upstream academic portal.
type PortalConfig struct {
	BaseURL            string        `yaml:"base_url"`
	HealthPath         string        `yaml:"health_path"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	UserAgent          string        `yaml:"user_agent"`

	// ScheduleParser selects the timetable extraction strategy:
	// "dom" (default) or "regex".
	ScheduleParser string `yaml:"schedule_parser"`
}

// DatabaseConfig configures the durable snapshot store.
type DatabaseConfig struct {
	// DSN is a lib/pq connection string. Empty disables durable
	// persistence and snapshot fallback.
	DSN           string `yaml:"dsn"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	MaxIdleConns  int    `yaml:"max_idle_conns"`
	RunMigrations bool   `yaml:"run_migrations"`
}

// RedisConfig configures the session store and hot cache backing.
type RedisConfig struct {
	// Addr is host:port. Empty selects the in-memory implementations.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig configures portal session lifetimes.
type SessionConfig struct {
	// AbsoluteTTL is the hard session lifetime, fixed at creation.
	AbsoluteTTL time.Duration `yaml:"absolute_ttl"`
	// IdleTTL is the sliding window extended on each successful read.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// CacheConfig configures per-resource hot cache lifetimes.
type CacheConfig struct {
	ProfileTTL   time.Duration `yaml:"profile_ttl"`
	SemestersTTL time.Duration `yaml:"semesters_ttl"`
	GradesTTL    time.Duration `yaml:"grades_ttl"`
	ScheduleTTL  time.Duration `yaml:"schedule_ttl"`
}

// LoadConfig loads configuration from a YAML file.
// Environment variables in ${VAR} form are expanded before parsing.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero-valued fields with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = "https://ysjw.sdufe.edu.cn:8081"
	}
	if cfg.Portal.HealthPath == "" {
		cfg.Portal.HealthPath = "/jsxsd/xk/LoginToXk"
	}
	if cfg.Portal.ConnectTimeout == 0 {
		cfg.Portal.ConnectTimeout = 10 * time.Second
	}
	if cfg.Portal.ReadTimeout == 0 {
		cfg.Portal.ReadTimeout = 20 * time.Second
	}
	if cfg.Portal.UserAgent == "" {
		cfg.Portal.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 Chrome/143.0.0.0 Safari/537.36"
	}
	if cfg.Portal.ScheduleParser == "" {
		cfg.Portal.ScheduleParser = "dom"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Session.AbsoluteTTL == 0 {
		cfg.Session.AbsoluteTTL = 8 * time.Hour
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = time.Hour
	}
	if cfg.Cache.ProfileTTL == 0 {
		cfg.Cache.ProfileTTL = 24 * time.Hour
	}
	if cfg.Cache.SemestersTTL == 0 {
		cfg.Cache.SemestersTTL = 12 * time.Hour
	}
	if cfg.Cache.GradesTTL == 0 {
		cfg.Cache.GradesTTL = 6 * time.Hour
	}
	if cfg.Cache.ScheduleTTL == 0 {
		cfg.Cache.ScheduleTTL = 6 * time.Hour
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if c.Portal.ScheduleParser != "dom" && c.Portal.ScheduleParser != "regex" {
		return fmt.Errorf("portal.schedule_parser must be %q or %q, got %q", "dom", "regex", c.Portal.ScheduleParser)
	}
	if c.Session.IdleTTL > c.Session.AbsoluteTTL {
		return fmt.Errorf("session.idle_ttl (%s) exceeds session.absolute_ttl (%s)", c.Session.IdleTTL, c.Session.AbsoluteTTL)
	}
	return nil
}
