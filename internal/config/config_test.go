package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 45656, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Print.FetchTimeout)
	assert.False(t, cfg.Print.TLSVerify)
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
print:
  cache_dir: /var/cache/fileprint
  device_name: Front-Desk
  fetch_timeout: 25s
  image_printer: host
host:
  ipc: true
webhooks:
  - name: erp
    url: https://erp.test/hooks/print
    secret: s3cret
    events: [job_failed]
logging:
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/var/cache/fileprint", cfg.Print.CacheDir)
	assert.Equal(t, "Front-Desk", cfg.Print.DeviceName)
	assert.Equal(t, 25*time.Second, cfg.Print.FetchTimeout)
	assert.Equal(t, ImagePrinterHost, cfg.Print.ImagePrinter)
	assert.Equal(t, "lp", cfg.Print.Command)
	assert.True(t, cfg.Host.IPC)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"job_failed"}, cfg.Webhooks[0].Events)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PRINT_PORT", "8088")
	t.Setenv("PRINT_DEVICE_NAME", "Env-Printer")
	t.Setenv("PRINT_FETCH_TIMEOUT", "3s")
	t.Setenv("PRINT_HOST_IPC", "true")
	t.Setenv("PRINT_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.Print.CacheDir = "/from/file"
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "Env-Printer", cfg.Print.DeviceName)
	assert.Equal(t, 3*time.Second, cfg.Print.FetchTimeout)
	assert.True(t, cfg.Host.IPC)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/from/file", cfg.Print.CacheDir)
}

func TestApplyEnv_RejectsBadValues(t *testing.T) {
	t.Setenv("PRINT_PORT", "not-a-port")

	cfg := Default()
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"empty cache dir", func(c *Config) { c.Print.CacheDir = "" }},
		{"zero fetch timeout", func(c *Config) { c.Print.FetchTimeout = 0 }},
		{"host printer without ipc", func(c *Config) { c.Print.ImagePrinter = ImagePrinterHost }},
		{"unknown image printer", func(c *Config) { c.Print.ImagePrinter = "fax" }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{Name: "x"}} }},
		{"hash without secret", func(c *Config) { c.Auth.PasswordHash = "$2a$10$abc" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
