// Package wlantest provides an in-memory radio for exercising the
// connectivity state machine.
package wlantest

import (
	"errors"
	"sync"

	"github.com/haasonsaas/wlanboot/pkg/wlan"
)

// Device is a fake wlan.Device. Setup, when set, customizes every interface
// before NewWLAN returns it.
type Device struct {
	ID         []byte
	IDErr      error
	CountryErr error
	NewWLANErr error
	Setup      func(w *WLAN)

	mu      sync.Mutex
	country string
	created []*WLAN
}

// NewDevice returns a device with a fixed 8 byte id.
func NewDevice() *Device {
	return &Device{ID: []byte{0xe6, 0x61, 0x41, 0x04, 0x03, 0x2b, 0x6c, 0x29}}
}

func (d *Device) UniqueID() ([]byte, error) {
	return d.ID, d.IDErr
}

func (d *Device) SetCountry(code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CountryErr != nil {
		return d.CountryErr
	}
	d.country = code
	return nil
}

func (d *Device) Country() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.country
}

func (d *Device) NewWLAN(mode wlan.Mode) (wlan.WLAN, error) {
	if d.NewWLANErr != nil {
		return nil, d.NewWLANErr
	}
	d.mu.Lock()
	for _, prev := range d.created {
		if !prev.IsReleased() {
			d.mu.Unlock()
			return nil, errors.New("wlantest: previous interface still held")
		}
	}
	w := &WLAN{mode: mode, Joins: true}
	if mode == wlan.AccessPoint {
		w.ifconfig = wlan.IfConfig{IP: "192.168.4.1", Subnet: "255.255.255.0", Gateway: "192.168.4.1", DNS: "0.0.0.0"}
	}
	d.created = append(d.created, w)
	d.mu.Unlock()

	if d.Setup != nil {
		d.Setup(w)
	}
	return w, nil
}

// Created lists interfaces constructed in mode, oldest first.
func (d *Device) Created(mode wlan.Mode) []*WLAN {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*WLAN
	for _, w := range d.created {
		if w.mode == mode {
			out = append(out, w)
		}
	}
	return out
}

// Last returns the most recently constructed interface.
func (d *Device) Last() *WLAN {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.created) == 0 {
		return nil
	}
	return d.created[len(d.created)-1]
}

// Scans counts scans across all interfaces.
func (d *Device) Scans() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, w := range d.created {
		n += w.Count().Scans
	}
	return n
}

// Connects counts connect calls across all interfaces.
func (d *Device) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, w := range d.created {
		n += w.Count().Connects
	}
	return n
}

// Counts of calls made on one interface.
type Counts struct {
	Scans       int
	Connects    int
	Disconnects int
	SetActive   int
}

// WLAN is a fake wlan.WLAN. Exported fields configure behavior and must be
// set before the interface is used.
type WLAN struct {
	// Visible SSIDs returned by Scan.
	Visible []string
	ScanErr error
	// ConnectErr is returned by Connect in station mode.
	ConnectErr error
	// Joins controls whether Connect brings the link up.
	Joins bool
	// NeverActive keeps Active false whatever SetActive requests.
	NeverActive bool
	// Links scripts IsConnected results after a join; the last value
	// repeats. Status reports connecting until a true value is read.
	Links []bool

	mu       sync.Mutex
	mode     wlan.Mode
	ssid     string
	passwd   string
	active   bool
	linked   bool
	status   wlan.LinkStatus
	released bool
	ifconfig wlan.IfConfig
	counts   Counts
}

func (w *WLAN) Mode() wlan.Mode {
	return w.mode
}

func (w *WLAN) Configure(ssid, passwd string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return wlan.ErrReleased
	}
	w.ssid, w.passwd = ssid, passwd
	return nil
}

// Config returns the configured SSID and password.
func (w *WLAN) Config() (string, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ssid, w.passwd
}

func (w *WLAN) SetActive(on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return wlan.ErrReleased
	}
	w.counts.SetActive++
	w.active = on && !w.NeverActive
	if !on {
		w.linked = false
		w.status = wlan.StatusIdle
	}
	return nil
}

func (w *WLAN) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *WLAN) Status() wlan.LinkStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *WLAN) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mode != wlan.Station || !w.linked {
		return false
	}
	if len(w.Links) == 0 {
		return true
	}
	v := w.Links[0]
	if len(w.Links) > 1 {
		w.Links = w.Links[1:]
	}
	if v {
		w.status = wlan.StatusGotIP
	}
	return v
}

func (w *WLAN) Scan() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts.Scans++
	if w.ScanErr != nil {
		return nil, w.ScanErr
	}
	return append([]string(nil), w.Visible...), nil
}

func (w *WLAN) Connect(ssid, passwd string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts.Connects++
	if w.mode != wlan.Station {
		return wlan.ErrNotStation
	}
	if w.ConnectErr != nil {
		return w.ConnectErr
	}
	if !w.Joins {
		w.status = wlan.StatusConnecting
		return nil
	}
	w.linked = true
	w.status = wlan.StatusGotIP
	if len(w.Links) > 0 {
		w.status = wlan.StatusConnecting
	}
	w.ifconfig = wlan.IfConfig{IP: "192.168.1.50", Subnet: "255.255.255.0", Gateway: "192.168.1.1", DNS: "192.168.1.1"}
	return nil
}

func (w *WLAN) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts.Disconnects++
	w.linked = false
	if w.mode == wlan.Station {
		w.status = wlan.StatusIdle
	}
	return nil
}

func (w *WLAN) IfConfig() wlan.IfConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ifconfig
}

func (w *WLAN) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released = true
	w.active = false
	w.linked = false
	return nil
}

// DropLink simulates the access point going away.
func (w *WLAN) DropLink() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.linked = false
	w.status = wlan.StatusConnectFail
}

// RestoreLink brings a dropped station link back.
func (w *WLAN) RestoreLink() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.linked = true
	w.status = wlan.StatusGotIP
}

func (w *WLAN) IsReleased() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func (w *WLAN) Count() Counts {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts
}

// MemStore is an in-memory wlan.SecretStore.
type MemStore struct {
	mu     sync.Mutex
	values map[string]string
	GetErr error
	SetErr error
}

func NewMemStore(values map[string]string) *MemStore {
	s := &MemStore{values: map[string]string{}}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *MemStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return "", s.GetErr
	}
	return s.values[name], nil
}

func (s *MemStore) Set(name, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return false, s.SetErr
	}
	s.values[name] = value
	return value != "", nil
}
