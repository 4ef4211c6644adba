package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/aixtiv/sallyport/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// GatewayConfig is the root configuration for the sallyport server.
	GatewayConfig struct {
		Server   ServerConfig   `yaml:"server"`
		Logger   LoggerConfig   `yaml:"logger"`
		Storage  StorageConfig  `yaml:"storage"`
		Deployer DeployerConfig `yaml:"deployer"`
		Metrics  MetricsConfig  `yaml:"metrics"`
	}

	// ServerConfig represents the HTTP server configuration
	ServerConfig struct {
		Port           int      `yaml:"port"`
		PlatformDomain string   `yaml:"platform_domain"` // base domain for tenant callbacks and MCP endpoints
		DefaultTenant  string   `yaml:"default_tenant"`  // tenant used when none can be resolved
		AllowedOrigins []string `yaml:"allowed_origins"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
	}

	// StorageConfig selects and configures the credential store backend
	StorageConfig struct {
		Type     string         `yaml:"type"` // memory, redis or database
		Redis    RedisConfig    `yaml:"redis"`
		Database DatabaseConfig `yaml:"database"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	DatabaseConfig struct {
		Type     string `yaml:"type"`     // mysql, postgres, sqlite
		Host     string `yaml:"host"`     // localhost
		Port     int    `yaml:"port"`     // 3306 (for mysql), 5432 (for postgres)
		User     string `yaml:"user"`     // root (for mysql), postgres (for postgres)
		Password string `yaml:"password"` // password
		DBName   string `yaml:"dbname"`   // database name, or file path for sqlite
		SSLMode  string `yaml:"sslmode"`  // disable (for postgres)
	}

	// DeployerConfig configures the external MCP deployment collaborator
	DeployerConfig struct {
		Type          string        `yaml:"type"`     // stub or http
		Endpoint      string        `yaml:"endpoint"` // deployment API endpoint for http type
		Timeout       time.Duration `yaml:"timeout"`  // per-submission timeout
		SweepInterval time.Duration `yaml:"sweep_interval"`
		StaleTimeout  time.Duration `yaml:"stale_timeout"` // deploying longer than this is marked failed
	}

	// MetricsConfig represents the metrics configuration
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// SetDefaults fills in defaults for unset fields.
func (c *GatewayConfig) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.PlatformDomain == "" {
		c.Server.PlatformDomain = "sallyport.aixtiv.dev"
	}
	if c.Server.DefaultTenant == "" {
		c.Server.DefaultTenant = "default"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Deployer.Type == "" {
		c.Deployer.Type = "stub"
	}
	if c.Deployer.Timeout <= 0 {
		c.Deployer.Timeout = 10 * time.Second
	}
	if c.Deployer.SweepInterval <= 0 {
		c.Deployer.SweepInterval = time.Minute
	}
	if c.Deployer.StaleTimeout <= 0 {
		c.Deployer.StaleTimeout = 15 * time.Minute
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "sallyport"
	}
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		// For SQLite, DBName is the file path
		return c.DBName
	default:
		return ""
	}
}

type Type interface {
	GatewayConfig
}

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig[T Type](filename string) (*T, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

// resolveEnv replaces ${VAR:default} placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}

// EnsureSQLiteDir creates the directory for a sqlite database file.
func EnsureSQLiteDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
