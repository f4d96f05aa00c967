package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/wlanboot/pkg/clock"
	"github.com/haasonsaas/wlanboot/pkg/config"
	"github.com/haasonsaas/wlanboot/pkg/metrics"
	"github.com/haasonsaas/wlanboot/pkg/nmcli"
	"github.com/haasonsaas/wlanboot/pkg/provision"
	"github.com/haasonsaas/wlanboot/pkg/publish"
	"github.com/haasonsaas/wlanboot/pkg/retry"
	"github.com/haasonsaas/wlanboot/pkg/secrets"
	"github.com/haasonsaas/wlanboot/pkg/statusfs"
	"github.com/haasonsaas/wlanboot/pkg/supervisor"
	"github.com/haasonsaas/wlanboot/pkg/sysinfo"
	"github.com/haasonsaas/wlanboot/pkg/telemetry"
	"github.com/haasonsaas/wlanboot/pkg/wlan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configPath  = flag.String("config", "/etc/wlanboot/agent.yaml", "Config file path")
	ifaceName   = flag.String("interface", "", "Wireless interface (overrides config)")
	secretsPath = flag.String("secrets", "", "Secrets file path (overrides config)")
	Version     = "dev"
)

func main() {
	flag.Parse()

	configureAgentLogger()
	log.Info().Str("version", Version).Msg("wlanboot agent starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *ifaceName != "" {
		cfg.Device.Interface = *ifaceName
	}
	if *secretsPath != "" {
		cfg.Secrets.Path = *secretsPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	applyAgentLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil {
		log.Error().Err(err).Msg("wlanboot agent stopped")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("wlanboot agent stopped")
}

// statusPayload is what the publisher reports.
type statusPayload struct {
	Supervisor supervisor.Snapshot `json:"supervisor"`
	System     *sysinfo.Descriptor `json:"system"`
}

func run(ctx context.Context, cfg *config.AgentConfig, logger zerolog.Logger) error {
	tp, err := telemetry.SetupTracing(ctx, telemetry.Options{
		ServiceName:    "wlanboot",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		LogSpans:       cfg.Tracing.LogSpans,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	var m *metrics.Collector
	if cfg.Metrics.Enable {
		m, err = metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		stopMetrics := serveMetrics(cfg.Metrics.Listen, m, logger)
		defer stopMetrics()
	}

	store, err := secrets.Open(cfg.Secrets.Path)
	if err != nil {
		return fmt.Errorf("open secrets: %w", err)
	}
	logger.Info().Str("path", store.Path()).Msg("Secrets store ready")

	device := nmcli.New(cfg.Device.Interface, logger,
		nmcli.WithCommandTimeout(time.Duration(cfg.Device.CommandTimeS)*time.Second),
		nmcli.WithHotspotName(cfg.Device.HotspotName),
		nmcli.WithMachineIDPath(cfg.Device.MachineIDPath),
	)
	ctl := wlan.NewController(store, budgetsFromConfig(cfg.Budgets), logger)
	mgr := wlan.NewManager(device, store, ctl, logger,
		wlan.WithAPPrefix(cfg.Device.APPrefix),
		wlan.WithMetrics(m),
		wlan.WithTracerProvider(tp),
	)

	system := sysinfo.NewCollector(cfg.Device.Description, 5*time.Second)
	gin.SetMode(gin.ReleaseMode)
	prov := provision.NewServer(store, system, logger,
		provision.WithAddr(cfg.Provisioning.Listen),
		provision.WithRoot(cfg.Provisioning.Root),
		provision.WithRateLimit(cfg.Provisioning.RateLimit, time.Duration(cfg.Provisioning.RateLimitWindow)*time.Second),
		provision.WithMetrics(m),
		provision.WithTracerProvider(tp),
	)

	clockOpts := []clock.Option{clock.WithMetrics(m)}
	if cfg.Clock.SkipIfHost {
		clockOpts = append(clockOpts, clock.WithHostProbe(clock.HostSynchronized))
	}
	syncer := clock.NewSyncer(
		clock.NewNTPSource(cfg.Clock.Servers, time.Duration(cfg.Clock.TimeoutS)*time.Second),
		clock.SystemSetter{},
		budget(cfg.Budgets.TimeSync),
		logger,
		clockOpts...,
	)

	// sup is assigned before any task runs.
	var sup *supervisor.Supervisor
	snapshot := func() supervisor.Snapshot { return sup.Snapshot() }

	opts := []supervisor.Option{
		supervisor.WithCountry(cfg.Device.Country),
		supervisor.WithTimings(timingsFromConfig(cfg.Timing)),
		supervisor.WithMetrics(m),
		supervisor.WithTracerProvider(tp),
	}
	if cfg.MQTT.Enable {
		pub := publish.NewPublisher(store, publish.Config{
			TLS: publish.TLSPaths{
				Key:    cfg.MQTT.KeyPath,
				Cert:   cfg.MQTT.CertPath,
				RootCA: cfg.MQTT.RootCAPath,
			},
			Interval: time.Duration(cfg.MQTT.IntervalS) * time.Second,
			Topic:    cfg.MQTT.Topic,
		}, publish.NewPahoClient(time.Duration(cfg.MQTT.KeepAliveS)*time.Second), func(ctx context.Context) any {
			return statusPayload{Supervisor: snapshot(), System: system.Collect(ctx)}
		}, logger)
		opts = append(opts, supervisor.WithTask("publish", pub.Run))
	}
	if cfg.StatusFS.Enable {
		fs := statusfs.New(cfg.StatusFS.Listen, snapshot, logger)
		opts = append(opts, supervisor.WithTask("statusfs", fs.Run))
	}

	sup = supervisor.New(device, mgr, prov, syncer, logger, opts...)
	return sup.Run(ctx)
}

func serveMetrics(addr string, m *metrics.Collector, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func budget(b config.BudgetConfig) retry.Budget {
	return retry.Budget{Attempts: b.Attempts, Delay: config.Ms(b.DelayMs)}
}

func budgetsFromConfig(b config.BudgetsConfig) wlan.Budgets {
	return wlan.Budgets{
		Activate:   budget(b.Activate),
		Deactivate: budget(b.Deactivate),
		Connect:    budget(b.Connect),
	}
}

func timingsFromConfig(t config.TimingConfig) supervisor.Timings {
	return supervisor.Timings{
		Grace:   config.Ms(t.GraceMs),
		Dwell:   config.Ms(t.DwellMs),
		Poll:    config.Ms(t.PollMs),
		Settle:  config.Ms(t.SettleMs),
		Reclaim: config.Ms(t.ReclaimMs),
	}
}

func configureAgentLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level := zerolog.InfoLevel
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("WLANBOOT_LOG_LEVEL"))); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	format := strings.ToLower(strings.TrimSpace(os.Getenv("WLANBOOT_LOG_FORMAT")))

	log.Logger = newAgentLogger(format).Level(level)
	zerolog.SetGlobalLevel(level)
}

func applyAgentLogging(cfg config.LoggingConfig) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
		level = parsed
	}
	format := "console"
	if cfg.JSON {
		format = "json"
	}
	log.Logger = newAgentLogger(format).Level(level)
	zerolog.SetGlobalLevel(level)
}

func newAgentLogger(format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger()
}
