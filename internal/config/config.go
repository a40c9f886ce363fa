package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scanner holds all configuration for the geodata harvesting toolkit: the
// login server it connects to as a protocol client, the worker fleet that
// drives the scan, and the durable store backing work coordination.
type Scanner struct {
	// Geodata
	GeodataDir string `yaml:"geodata_dir"` // directory of .l2d region files, both input (resume) and output

	// Login server (the toolkit only ever dials out, never listens)
	LoginHost string `yaml:"login_host"`
	LoginPort int    `yaml:"login_port"`

	// Harvester accounts
	AccountPrefix string `yaml:"account_prefix"`
	AccountPass   string `yaml:"password"`

	// Scan parameters
	ScanMode string `yaml:"scan_mode"` // "block" (8-cell stride) or "cell" (1-cell stride)
	Step     int    `yaml:"step"`

	// Worker fleet
	WorkerCount             int `yaml:"worker_count"`
	StaggerSeconds          int `yaml:"stagger_seconds"`
	ReconnectBackoffSeconds int `yaml:"reconnect_backoff_seconds"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Dashboard HTTP API (editor + scan control); empty disables it
	HTTPAddr string `yaml:"http_addr"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// Connection pool parameters (optional, defaults from pgxpool apply if not set)
	MaxConns          int32  `yaml:"max_conns"`           // default: max(4, NumCPU)
	MinConns          int32  `yaml:"min_conns"`           // default: 0
	MaxConnLifetime   string `yaml:"max_conn_lifetime"`   // duration, e.g. "1h"
	MaxConnIdleTime   string `yaml:"max_conn_idle_time"`  // duration, e.g. "30m"
	HealthCheckPeriod string `yaml:"health_check_period"` // duration, e.g. "1m"
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}
	if d.HealthCheckPeriod != "" {
		params = append(params, fmt.Sprintf("pool_health_check_period=%s", d.HealthCheckPeriod))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// DefaultScanner returns Scanner config with sensible defaults.
func DefaultScanner() Scanner {
	return Scanner{
		GeodataDir:              "geodata",
		LoginHost:               "127.0.0.1",
		LoginPort:               2106,
		AccountPrefix:           "scanner",
		AccountPass:             "scanner",
		ScanMode:                "block",
		Step:                    8,
		WorkerCount:             1,
		StaggerSeconds:          2,
		ReconnectBackoffSeconds: 5,
		HTTPAddr:                ":8080",
		LogLevel:                "info",
		Database: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "geoharvest",
			Password: "geoharvest",
			DBName:  "geoharvest",
			SSLMode: "disable",
		},
	}
}

// LoadScanner loads scanner config from a YAML file. If the file doesn't
// exist, returns defaults. The caller is expected to first check the
// GEOHARVEST_CONFIG environment variable for an override path.
func LoadScanner(path string) (Scanner, error) {
	cfg := DefaultScanner()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// ConfigPath resolves the config file path: the GEOHARVEST_CONFIG
// environment variable if set, otherwise the given default.
func ConfigPath(defaultPath string) string {
	if p := os.Getenv("GEOHARVEST_CONFIG"); p != "" {
		return p
	}
	return defaultPath
}
