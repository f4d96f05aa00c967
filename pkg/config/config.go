package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AgentConfig struct {
	Device       DeviceConfig       `yaml:"device"`
	Secrets      SecretsConfig      `yaml:"secrets"`
	Timing       TimingConfig       `yaml:"timing"`
	Budgets      BudgetsConfig      `yaml:"budgets"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Clock        ClockConfig        `yaml:"clock"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	StatusFS     StatusFSConfig     `yaml:"status_fs"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

type DeviceConfig struct {
	Interface     string `yaml:"interface"`
	Country       string `yaml:"country"`
	APPrefix      string `yaml:"ap_prefix"`
	HotspotName   string `yaml:"hotspot_name"`
	CommandTimeS  int    `yaml:"command_timeout_s"`
	MachineIDPath string `yaml:"machine_id_path"`
	Description   string `yaml:"description"`
}

type SecretsConfig struct {
	Path string `yaml:"path"`
}

// TimingConfig holds the supervisory loop intervals in milliseconds.
type TimingConfig struct {
	GraceMs   int `yaml:"grace_ms"`
	DwellMs   int `yaml:"dwell_ms"`
	PollMs    int `yaml:"poll_ms"`
	SettleMs  int `yaml:"settle_ms"`
	ReclaimMs int `yaml:"reclaim_ms"`
}

type BudgetConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMs  int `yaml:"delay_ms"`
}

type BudgetsConfig struct {
	Activate   BudgetConfig `yaml:"activate"`
	Deactivate BudgetConfig `yaml:"deactivate"`
	Connect    BudgetConfig `yaml:"connect"`
	TimeSync   BudgetConfig `yaml:"time_sync"`
}

type ProvisioningConfig struct {
	Listen          string `yaml:"listen"`
	Root            string `yaml:"root"`
	RateLimit       int    `yaml:"rate_limit"`
	RateLimitWindow int    `yaml:"rate_limit_window_s"`
}

type ClockConfig struct {
	Servers    []string `yaml:"servers"`
	TimeoutS   int      `yaml:"timeout_s"`
	SkipIfHost bool     `yaml:"skip_if_host_synced"`
}

type MQTTConfig struct {
	Enable     bool   `yaml:"enable"`
	KeyPath    string `yaml:"key_path"`
	CertPath   string `yaml:"cert_path"`
	RootCAPath string `yaml:"root_ca_path"`
	Topic      string `yaml:"topic"`
	IntervalS  int    `yaml:"interval_s"`
	KeepAliveS int    `yaml:"keepalive_s"`
}

type StatusFSConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	JSON          bool   `yaml:"json"`
	HumanReadable bool   `yaml:"human_readable"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans" json:"log_spans"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *AgentConfig {
	return &AgentConfig{
		Device: DeviceConfig{
			Interface:     "wlan0",
			Country:       "GB",
			APPrefix:      "PICO-W-",
			HotspotName:   "wlanboot-ap",
			CommandTimeS:  30,
			MachineIDPath: "/etc/machine-id",
		},
		Secrets: SecretsConfig{
			Path: "/var/lib/wlanboot/secrets.env",
		},
		Timing: TimingConfig{
			GraceMs:   5000,
			DwellMs:   15000,
			PollMs:    1000,
			SettleMs:  1000,
			ReclaimMs: 10000,
		},
		Budgets: BudgetsConfig{
			Activate:   BudgetConfig{Attempts: 5, DelayMs: 1000},
			Deactivate: BudgetConfig{Attempts: 5, DelayMs: 1000},
			Connect:    BudgetConfig{Attempts: 30, DelayMs: 1000},
			TimeSync:   BudgetConfig{Attempts: 30, DelayMs: 1000},
		},
		Provisioning: ProvisioningConfig{
			Listen:          ":80",
			Root:            "/usr/share/wlanboot/www",
			RateLimit:       10,
			RateLimitWindow: 60,
		},
		Clock: ClockConfig{
			Servers:    []string{"pool.ntp.org", "time.google.com"},
			TimeoutS:   5,
			SkipIfHost: true,
		},
		MQTT: MQTTConfig{
			Enable:     false,
			KeyPath:    "/var/lib/wlanboot/certs/private.pem",
			CertPath:   "/var/lib/wlanboot/certs/cert.pem",
			RootCAPath: "/var/lib/wlanboot/certs/root.pem",
			Topic:      "wlanboot/%s/status",
			IntervalS:  60,
			KeepAliveS: 30,
		},
		StatusFS: StatusFSConfig{
			Enable: false,
			Listen: ":564",
		},
		Metrics: MetricsConfig{
			Enable: false,
			Listen: ":9108",
		},
		Logging: LoggingConfig{
			Level:         "info",
			JSON:          false,
			HumanReadable: true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads config from file with env var overrides. A missing file is not
// an error.
func Load(path string) (*AgentConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if v := os.Getenv("WLANBOOT_INTERFACE"); v != "" {
		cfg.Device.Interface = v
	}
	if v := os.Getenv("WLANBOOT_COUNTRY"); v != "" {
		cfg.Device.Country = v
	}
	if v := os.Getenv("WLANBOOT_SECRETS"); v != "" {
		cfg.Secrets.Path = v
	}
	if v := os.Getenv("WLANBOOT_PROVISIONING_LISTEN"); v != "" {
		cfg.Provisioning.Listen = v
	}
	if v := os.Getenv("WLANBOOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WLANBOOT_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
		cfg.Logging.HumanReadable = !cfg.Logging.JSON
	}
	if v := os.Getenv("WLANBOOT_MQTT_ENABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enable = b
		}
	}
	if v := os.Getenv("WLANBOOT_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}

	return cfg, nil
}

// Validate rejects unusable values and fills zero values with defaults.
func (c *AgentConfig) Validate() error {
	if c.Device.Interface == "" {
		return ErrMissingInterface
	}
	if c.Secrets.Path == "" {
		return ErrMissingSecretsPath
	}
	if len(c.Device.Country) != 2 {
		return &Error{"country must be a two letter ISO 3166 code"}
	}
	c.Device.Country = strings.ToUpper(c.Device.Country)
	if c.Timing.GraceMs < 0 || c.Timing.DwellMs < 0 || c.Timing.PollMs < 0 || c.Timing.SettleMs < 0 {
		return ErrNegativeTiming
	}

	def := DefaultConfig()
	if c.Timing.PollMs == 0 {
		c.Timing.PollMs = def.Timing.PollMs
	}
	if c.Timing.ReclaimMs <= 0 {
		c.Timing.ReclaimMs = def.Timing.ReclaimMs
	}
	for _, b := range []*BudgetConfig{&c.Budgets.Activate, &c.Budgets.Deactivate, &c.Budgets.Connect, &c.Budgets.TimeSync} {
		if b.Attempts <= 0 {
			return ErrInvalidBudget
		}
		if b.DelayMs < 0 {
			b.DelayMs = 0
		}
	}
	if c.Device.CommandTimeS <= 0 {
		c.Device.CommandTimeS = def.Device.CommandTimeS
	}
	if c.Provisioning.Listen == "" {
		c.Provisioning.Listen = def.Provisioning.Listen
	}
	if c.Provisioning.RateLimitWindow <= 0 {
		c.Provisioning.RateLimitWindow = def.Provisioning.RateLimitWindow
	}
	if c.Clock.TimeoutS <= 0 {
		c.Clock.TimeoutS = def.Clock.TimeoutS
	}
	if len(c.Clock.Servers) == 0 {
		return &Error{"at least one NTP server is required"}
	}
	if c.MQTT.Enable {
		if c.MQTT.KeyPath == "" || c.MQTT.CertPath == "" {
			return &Error{"mqtt requires key_path and cert_path"}
		}
		if c.MQTT.IntervalS < 1 {
			c.MQTT.IntervalS = def.MQTT.IntervalS
		}
		if c.MQTT.KeepAliveS < 1 {
			c.MQTT.KeepAliveS = def.MQTT.KeepAliveS
		}
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

// Ms converts a millisecond setting.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

var (
	ErrMissingInterface   = &Error{"wireless interface is required"}
	ErrMissingSecretsPath = &Error{"secrets path is required"}
	ErrNegativeTiming     = &Error{"timings must not be negative"}
	ErrInvalidBudget      = &Error{"retry budgets need at least one attempt"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
