package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config is the daemon configuration. Every key can be overridden from the
// environment with the CRONTUB_ prefix, nested keys joined by "_"
// (CRONTUB_HISTORY_BACKEND).
type Config struct {
	Dirs            []string      `mapstructure:"dirs"`
	Recursive       bool          `mapstructure:"recursive"`
	Pattern         string        `mapstructure:"pattern"`
	RequireExec     bool          `mapstructure:"require_exec"`
	Marker          string        `mapstructure:"marker"`
	HeaderLines     int           `mapstructure:"header_lines"`
	Interval        time.Duration `mapstructure:"interval"`
	Timezone        string        `mapstructure:"timezone"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	KillGrace       time.Duration `mapstructure:"kill_grace"`
	MaxJobs         int           `mapstructure:"max_jobs"`
	AllowOverlap    bool          `mapstructure:"allow_overlap"`
	OutputLimit     int           `mapstructure:"output_limit"`
	Env             []string      `mapstructure:"env"`
	Workers         int           `mapstructure:"workers"`
	MalformedPolicy string        `mapstructure:"malformed_policy"`
	Notify          bool          `mapstructure:"notify"`
	StatusAddr      string        `mapstructure:"status_addr"`

	History HistoryConfig `mapstructure:"history"`
	Log     LogConfig     `mapstructure:"log"`
}

type HistoryConfig struct {
	// Backend is memory, mysql or redis. Records are always kept in memory;
	// mysql and redis mirror them.
	Backend       string `mapstructure:"backend"`
	Capacity      int    `mapstructure:"capacity"`
	DSN           string `mapstructure:"dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("dirs", []string{})
	v.SetDefault("recursive", false)
	v.SetDefault("pattern", "")
	v.SetDefault("require_exec", true)
	v.SetDefault("marker", "#cron")
	v.SetDefault("header_lines", 10)
	v.SetDefault("interval", time.Minute)
	v.SetDefault("timezone", "Local")
	v.SetDefault("job_timeout", time.Hour)
	v.SetDefault("kill_grace", 10*time.Second)
	v.SetDefault("max_jobs", 64)
	v.SetDefault("allow_overlap", false)
	v.SetDefault("output_limit", 64*1024)
	v.SetDefault("env", []string{})
	v.SetDefault("workers", 4)
	v.SetDefault("malformed_policy", "keep")
	v.SetDefault("notify", false)
	v.SetDefault("status_addr", "")

	v.SetDefault("history.backend", BackendMemory)
	v.SetDefault("history.capacity", 256)
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.redis_addr", "127.0.0.1:6379")
	v.SetDefault("history.redis_password", "")
	v.SetDefault("history.redis_db", 0)
	v.SetDefault("history.redis_key", "crontub:executions")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
}

// Load reads defaults, then path (if not empty), then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("CRONTUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if len(c.Dirs) == 0 {
		return fmt.Errorf("no watch directories configured")
	}
	if c.Marker == "" || strings.ContainsAny(c.Marker, " \t") {
		return fmt.Errorf("marker %q must be a single non-empty token", c.Marker)
	}
	if c.Interval < time.Minute || c.Interval%time.Minute != 0 {
		return fmt.Errorf("interval %s must be a whole number of minutes", c.Interval)
	}
	if c.HeaderLines <= 0 {
		return fmt.Errorf("header_lines must be positive")
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("job_timeout must not be negative")
	}
	switch c.MalformedPolicy {
	case "keep", "disable":
	default:
		return fmt.Errorf("malformed_policy %q must be keep or disable", c.MalformedPolicy)
	}
	for _, kv := range c.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("env entry %q is not KEY=VALUE", kv)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.History.Backend {
	case BackendMemory, BackendRedis:
	case BackendMySQL:
		if _, err := c.History.MySQLDSN(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("history backend %q must be memory, mysql or redis", c.History.Backend)
	}
	return nil
}

// Location resolves Timezone; empty or "Local" is the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// MySQLDSN validates the DSN and forces parseTime so DATETIME columns scan
// into time.Time.
func (h HistoryConfig) MySQLDSN() (string, error) {
	if h.DSN == "" {
		return "", fmt.Errorf("history.dsn is required for the mysql backend")
	}
	mc, err := mysql.ParseDSN(h.DSN)
	if err != nil {
		return "", fmt.Errorf("history.dsn: %w", err)
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}
