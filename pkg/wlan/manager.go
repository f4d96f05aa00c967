package wlan

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/wlanboot/pkg/metrics"
	"github.com/haasonsaas/wlanboot/pkg/secrets"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/haasonsaas/wlanboot/pkg/wlan"

// DefaultAPPrefix is prepended to the hardware id to form the access point
// SSID.
const DefaultAPPrefix = "PICO-W-"

// Manager decides between station and access-point mode and owns the
// interface until it is handed to the caller.
type Manager struct {
	device   Device
	store    SecretStore
	ctl      *Controller
	apPrefix string
	logger   zerolog.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
}

type ManagerOption func(*Manager)

// WithAPPrefix overrides DefaultAPPrefix.
func WithAPPrefix(prefix string) ManagerOption {
	return func(m *Manager) { m.apPrefix = prefix }
}

func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.metrics = c }
}

func WithTracerProvider(tp trace.TracerProvider) ManagerOption {
	return func(m *Manager) { m.tracer = tp.Tracer(tracerName) }
}

func NewManager(device Device, store SecretStore, ctl *Controller, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		device:   device,
		store:    store,
		ctl:      ctl,
		apPrefix: DefaultAPPrefix,
		logger:   logger.With().Str("component", "wlan-manager").Logger(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire brings up an interface. With station credentials stored it tries
// to join that network and falls back to access-point mode once on any
// connection failure; without them it goes straight to access-point mode
// and clears the station keys. Only device and store I/O errors are
// returned.
func (m *Manager) Acquire(ctx context.Context) (WLAN, Mode, error) {
	ctx, span := m.tracer.Start(ctx, "wlan.acquire")
	defer span.End()

	w, mode, err := m.acquire(ctx)
	m.metrics.ObserveAcquire(mode.String(), err)
	m.record(span, mode, err)
	return w, mode, err
}

func (m *Manager) acquire(ctx context.Context) (WLAN, Mode, error) {
	apSSID, apPasswd, err := m.accessPointCredentials()
	if err != nil {
		return nil, AccessPoint, err
	}
	ssid, err := m.store.Get(secrets.WLANSSID)
	if err != nil {
		return nil, Station, err
	}
	passwd, err := m.store.Get(secrets.WLANPassword)
	if err != nil {
		return nil, Station, err
	}

	mode := Station
	if ssid == "" {
		m.logger.Info().Msg("No station credentials stored, starting access point")
		if err := m.clearStationCredentials(); err != nil {
			return nil, AccessPoint, err
		}
		mode = AccessPoint
		ssid, passwd = apSSID, apPasswd
	}

	w, err := m.bringUp(mode, ssid, passwd)
	if err != nil {
		return nil, mode, err
	}
	if mode == AccessPoint {
		return w, mode, nil
	}

	if err := m.ctl.ConnectStation(w); err != nil {
		var cerr *ConnectionError
		if !errors.As(err, &cerr) {
			m.Teardown(w)
			return nil, mode, err
		}
		m.logger.Warn().Err(err).Msg("Station connection failed, falling back to access point")
		m.metrics.ObserveConnectFailure(string(cerr.Reason))
		trace.SpanFromContext(ctx).AddEvent("connection failed",
			trace.WithAttributes(attribute.String("wlan.reason", string(cerr.Reason))))
		return m.ResetToAccessPoint(ctx, w)
	}
	m.logStatus(w)
	return w, Station, nil
}

// ResetToAccessPoint tears down current, which may be nil, and starts the
// access point with the stored or freshly generated credentials.
func (m *Manager) ResetToAccessPoint(ctx context.Context, current WLAN) (WLAN, Mode, error) {
	_, span := m.tracer.Start(ctx, "wlan.reset_to_access_point")
	defer span.End()

	m.Teardown(current)
	m.metrics.ObserveReset()

	w, err := m.resetToAccessPoint()
	m.record(span, AccessPoint, err)
	return w, AccessPoint, err
}

func (m *Manager) resetToAccessPoint() (WLAN, error) {
	ssid, passwd, err := m.accessPointCredentials()
	if err != nil {
		return nil, err
	}
	return m.bringUp(AccessPoint, ssid, passwd)
}

// Teardown disconnects, deactivates and releases w. Failures are logged.
func (m *Manager) Teardown(w WLAN) {
	if w == nil {
		return
	}
	if err := w.Disconnect(); err != nil {
		m.logger.Debug().Err(err).Stringer("mode", w.Mode()).Msg("Disconnect failed")
	}
	m.ctl.Deactivate(w)
	if err := w.Release(); err != nil {
		m.logger.Warn().Err(err).Stringer("mode", w.Mode()).Msg("Release failed")
	}
}

// HasIssue reports whether connectivity needs remediation: always in
// access-point mode, and in station mode whenever the link is down.
func HasIssue(w WLAN, mode Mode) bool {
	if w == nil || mode == AccessPoint {
		return true
	}
	return !w.IsConnected()
}

func (m *Manager) bringUp(mode Mode, ssid, passwd string) (WLAN, error) {
	w, err := m.device.NewWLAN(mode)
	if err != nil {
		return nil, fmt.Errorf("create %s interface: %w", mode, err)
	}
	if err := w.Configure(ssid, passwd); err != nil {
		if rerr := w.Release(); rerr != nil {
			m.logger.Warn().Err(rerr).Stringer("mode", mode).Msg("Release failed")
		}
		return nil, fmt.Errorf("configure %s interface: %w", mode, err)
	}
	m.ctl.Activate(w)
	if mode == AccessPoint {
		m.logStatus(w)
	}
	return w, nil
}

// accessPointCredentials returns the stored access point pair, generating
// and persisting any missing half from the hardware id.
func (m *Manager) accessPointCredentials() (string, string, error) {
	ssid, err := m.store.Get(secrets.APSSID)
	if err != nil {
		return "", "", err
	}
	passwd, err := m.store.Get(secrets.APPassword)
	if err != nil {
		return "", "", err
	}
	if ssid != "" && passwd != "" {
		return ssid, passwd, nil
	}

	raw, err := m.device.UniqueID()
	if err != nil {
		return "", "", fmt.Errorf("read unique id: %w", err)
	}
	if len(raw) == 0 {
		return "", "", errors.New("read unique id: empty")
	}
	id := strings.ToUpper(hex.EncodeToString(raw))

	if ssid == "" {
		ssid = m.apPrefix + id
		if _, err := m.store.Set(secrets.APSSID, ssid); err != nil {
			return "", "", err
		}
	}
	if passwd == "" {
		passwd = id
		if _, err := m.store.Set(secrets.APPassword, passwd); err != nil {
			return "", "", err
		}
	}
	m.logger.Info().Str("ssid", ssid).Msg("Generated access point credentials")
	return ssid, passwd, nil
}

func (m *Manager) clearStationCredentials() error {
	if _, err := m.store.Set(secrets.WLANSSID, ""); err != nil {
		return err
	}
	_, err := m.store.Set(secrets.WLANPassword, "")
	return err
}

func (m *Manager) record(span trace.Span, mode Mode, err error) {
	span.SetAttributes(attribute.String("wlan.mode", mode.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	m.metrics.SetMode(mode.String(), Station.String(), AccessPoint.String())
}

func (m *Manager) logStatus(w WLAN) {
	m.logger.Debug().
		Stringer("mode", w.Mode()).
		Stringer("status", w.Status()).
		Bool("active", w.Active()).
		Bool("connected", w.IsConnected()).
		Interface("ifconfig", w.IfConfig()).
		Msg("Network status")
}
