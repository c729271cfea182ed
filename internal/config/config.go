package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Print    PrintConfig     `yaml:"print"`
	Host     HostConfig      `yaml:"host"`
	Database DatabaseConfig  `yaml:"database"`
	Janitor  JanitorConfig   `yaml:"janitor"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Auth     AuthConfig      `yaml:"auth"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PrintConfig struct {
	CacheDir     string        `yaml:"cache_dir" env:"CACHE_DIR"`
	DeviceName   string        `yaml:"device_name" env:"DEVICE_NAME"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	TLSVerify    bool          `yaml:"tls_verify" env:"TLS_VERIFY"`
	ImagePrinter string        `yaml:"image_printer" env:"IMAGE_PRINTER"`
	Command      string        `yaml:"command"`
}

type HostConfig struct {
	IPC bool `yaml:"ipc" env:"HOST_IPC"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path" env:"DB_PATH"`
	RetentionDays int    `yaml:"retention_days"`
}

type JanitorConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type AuthConfig struct {
	PasswordHash string `yaml:"password_hash" env:"PASSWORD_HASH"`
	JWTSecret    string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Output string `yaml:"output"`
}

const (
	ImagePrinterHost    = "host"
	ImagePrinterCommand = "command"
)

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         45656,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Print: PrintConfig{
			CacheDir:     "./data/cache",
			FetchTimeout: 10 * time.Second,
			TLSVerify:    false,
			ImagePrinter: ImagePrinterCommand,
			Command:      "lp",
		},
		Database: DatabaseConfig{
			Path:          "./data/fileprint.db",
			RetentionDays: 30,
		},
		Janitor: JanitorConfig{
			Interval:   time.Hour,
			StaleAfter: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

func Default() *Config {
	return defaults()
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

const envPrefix = "PRINT_"

// ApplyEnv overrides file values with PRINT_* environment variables. Unset
// variables leave the current value alone.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Print.CacheDir == "" {
		return fmt.Errorf("print cache dir is required")
	}

	if c.Print.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}

	switch c.Print.ImagePrinter {
	case ImagePrinterCommand:
	case ImagePrinterHost:
		if !c.Host.IPC {
			return fmt.Errorf("image printer %q requires host.ipc to be enabled", ImagePrinterHost)
		}
	default:
		return fmt.Errorf("invalid image printer: %s (valid: host, command)", c.Print.ImagePrinter)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("retention days must be non-negative")
	}

	if c.Janitor.Interval < 0 {
		return fmt.Errorf("janitor interval must be non-negative")
	}

	if c.Janitor.StaleAfter < 0 {
		return fmt.Errorf("janitor stale_after must be non-negative")
	}

	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
	}

	if c.Auth.PasswordHash != "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required when password_hash is set")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}

	return nil
}
