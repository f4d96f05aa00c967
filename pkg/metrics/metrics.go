// Package metrics exposes the connectivity state machine to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the bootstrap metrics. All methods are safe to call on a
// nil *Collector so components can run without metrics configured.
type Collector struct {
	gatherer prometheus.Gatherer

	Acquisitions       *prometheus.CounterVec
	ConnectFailures    *prometheus.CounterVec
	Resets             prometheus.Counter
	ProvisioningCycles prometheus.Counter
	CredentialUpdates  *prometheus.CounterVec
	ClockSyncs         *prometheus.CounterVec
	Reclaims           prometheus.Counter

	Mode      *prometheus.GaugeVec
	Ready     prometheus.Gauge
	HeapBytes prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	acquisitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanboot_acquisitions_total",
		Help: "Interface acquisitions, labeled by resulting mode and outcome.",
	}, []string{"mode", "result"}), "wlanboot_acquisitions_total")
	if err != nil {
		return nil, err
	}
	connectFailures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanboot_connect_failures_total",
		Help: "Station connection failures, labeled by reason.",
	}, []string{"reason"}), "wlanboot_connect_failures_total")
	if err != nil {
		return nil, err
	}
	resets, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wlanboot_access_point_resets_total",
		Help: "Transitions into access-point mode.",
	}), "wlanboot_access_point_resets_total")
	if err != nil {
		return nil, err
	}
	cycles, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wlanboot_provisioning_cycles_total",
		Help: "Completed provisioning server runs.",
	}), "wlanboot_provisioning_cycles_total")
	if err != nil {
		return nil, err
	}
	updates, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanboot_credential_updates_total",
		Help: "Credential submissions through the provisioning form, labeled by validity.",
	}, []string{"valid"}), "wlanboot_credential_updates_total")
	if err != nil {
		return nil, err
	}
	clockSyncs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wlanboot_clock_syncs_total",
		Help: "Clock synchronization attempts, labeled by outcome.",
	}, []string{"result"}), "wlanboot_clock_syncs_total")
	if err != nil {
		return nil, err
	}
	reclaims, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wlanboot_memory_reclaims_total",
		Help: "Memory reclamation passes.",
	}), "wlanboot_memory_reclaims_total")
	if err != nil {
		return nil, err
	}
	mode, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wlanboot_interface_mode",
		Help: "1 for the mode the interface is currently in, 0 otherwise.",
	}, []string{"mode"}), "wlanboot_interface_mode")
	if err != nil {
		return nil, err
	}
	ready, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wlanboot_ready",
		Help: "1 while connectivity is healthy.",
	}), "wlanboot_ready")
	if err != nil {
		return nil, err
	}
	heap, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wlanboot_heap_alloc_bytes",
		Help: "Heap bytes in use after the last reclamation pass.",
	}), "wlanboot_heap_alloc_bytes")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		Acquisitions:       acquisitions,
		ConnectFailures:    connectFailures,
		Resets:             resets,
		ProvisioningCycles: cycles,
		CredentialUpdates:  updates,
		ClockSyncs:         clockSyncs,
		Reclaims:           reclaims,
		Mode:               mode,
		Ready:              ready,
		HeapBytes:          heap,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveAcquire counts an acquisition ending in mode. A non-nil err marks
// the acquisition as failed.
func (c *Collector) ObserveAcquire(mode string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Acquisitions.WithLabelValues(mode, result).Inc()
}

func (c *Collector) ObserveConnectFailure(reason string) {
	if c == nil {
		return
	}
	c.ConnectFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveReset() {
	if c == nil {
		return
	}
	c.Resets.Inc()
}

func (c *Collector) ObserveProvisioningCycle() {
	if c == nil {
		return
	}
	c.ProvisioningCycles.Inc()
}

func (c *Collector) ObserveCredentialUpdate(valid bool) {
	if c == nil {
		return
	}
	c.CredentialUpdates.WithLabelValues(boolLabel(valid)).Inc()
}

func (c *Collector) ObserveClockSync(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.ClockSyncs.WithLabelValues(result).Inc()
}

// ObserveReclaim records a reclamation pass and the heap left in use.
func (c *Collector) ObserveReclaim(heapAlloc uint64) {
	if c == nil {
		return
	}
	c.Reclaims.Inc()
	c.HeapBytes.Set(float64(heapAlloc))
}

// SetMode marks current as the active interface mode among modes.
func (c *Collector) SetMode(current string, modes ...string) {
	if c == nil {
		return
	}
	for _, m := range modes {
		c.Mode.WithLabelValues(m).Set(0)
	}
	c.Mode.WithLabelValues(current).Set(1)
}

func (c *Collector) SetReady(ready bool) {
	if c == nil {
		return
	}
	if ready {
		c.Ready.Set(1)
		return
	}
	c.Ready.Set(0)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
