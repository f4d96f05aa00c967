package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "wlan0", cfg.Device.Interface)
	assert.Equal(t, "PICO-W-", cfg.Device.APPrefix)
	assert.Equal(t, 5000, cfg.Timing.GraceMs)
	assert.Equal(t, 15000, cfg.Timing.DwellMs)
	assert.Equal(t, 30, cfg.Budgets.Connect.Attempts)
	assert.Equal(t, ":80", cfg.Provisioning.Listen)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wlanboot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  interface: wlan1
  country: de
timing:
  dwell_ms: 3000
budgets:
  connect:
    attempts: 10
    delay_ms: 500
mqtt:
  topic: fleet/%s
logging:
  level: debug
`), 0o644))
	t.Setenv("WLANBOOT_SECRETS", "/tmp/secrets.env")
	t.Setenv("WLANBOOT_LOG_FORMAT", "json")
	t.Setenv("WLANBOOT_MQTT_ENABLE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "wlan1", cfg.Device.Interface)
	assert.Equal(t, "DE", cfg.Device.Country)
	assert.Equal(t, 3000, cfg.Timing.DwellMs)
	assert.Equal(t, 5000, cfg.Timing.GraceMs, "unset keys keep defaults")
	assert.Equal(t, BudgetConfig{Attempts: 10, DelayMs: 500}, cfg.Budgets.Connect)
	assert.Equal(t, "fleet/%s", cfg.MQTT.Topic)
	assert.Equal(t, "/tmp/secrets.env", cfg.Secrets.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.True(t, cfg.MQTT.Enable)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: [unclosed"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AgentConfig)
		want   error
	}{
		{name: "no interface", mutate: func(c *AgentConfig) { c.Device.Interface = "" }, want: ErrMissingInterface},
		{name: "no secrets", mutate: func(c *AgentConfig) { c.Secrets.Path = "" }, want: ErrMissingSecretsPath},
		{name: "negative dwell", mutate: func(c *AgentConfig) { c.Timing.DwellMs = -1 }, want: ErrNegativeTiming},
		{name: "empty budget", mutate: func(c *AgentConfig) { c.Budgets.Activate.Attempts = 0 }, want: ErrInvalidBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Equal(t, tt.want, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Device.Country = "GBR"
	var cfgErr *Error
	require.ErrorAs(t, cfg.Validate(), &cfgErr)

	cfg = DefaultConfig()
	cfg.MQTT.Enable = true
	cfg.MQTT.CertPath = ""
	require.ErrorAs(t, cfg.Validate(), &cfgErr)

	cfg = DefaultConfig()
	cfg.Tracing.SampleRatio = 7
	cfg.Timing.PollMs = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, 1000, cfg.Timing.PollMs)
}
