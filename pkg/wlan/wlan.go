// Package wlan holds the connectivity state machine: the radio contracts,
// the timeout-bounded interface controller and the connection manager that
// decides between station and access-point mode.
package wlan

import (
	"errors"
	"fmt"
)

// Mode of the radio.
type Mode int

const (
	Station Mode = iota
	AccessPoint
)

func (m Mode) String() string {
	switch m {
	case Station:
		return "station"
	case AccessPoint:
		return "access-point"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// LinkStatus is the radio-level connection status.
type LinkStatus int

const (
	StatusIdle LinkStatus = iota
	StatusConnecting
	StatusWrongPassword
	StatusNoAPFound
	StatusConnectFail
	StatusGotIP
)

func (s LinkStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusWrongPassword:
		return "wrong-password"
	case StatusNoAPFound:
		return "no-ap-found"
	case StatusConnectFail:
		return "connect-fail"
	case StatusGotIP:
		return "got-ip"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IfConfig is the network configuration, populated once connected.
type IfConfig struct {
	IP      string `json:"ip"`
	Subnet  string `json:"subnet"`
	Gateway string `json:"gateway"`
	DNS     string `json:"dns"`
}

var (
	// ErrNotStation is returned by Connect on an interface that is not in
	// station mode.
	ErrNotStation = errors.New("interface not in station mode")
	// ErrReleased is returned by operations on a released interface.
	ErrReleased = errors.New("interface released")
)

// WLAN is one instance of the radio in a fixed mode. A new instance is
// created for every mode switch and released before the next one exists.
type WLAN interface {
	Mode() Mode
	// Configure sets the SSID and password the interface joins (station)
	// or advertises (access point).
	Configure(ssid, passwd string) error
	SetActive(on bool) error
	Active() bool
	Status() LinkStatus
	IsConnected() bool
	// Scan returns the SSIDs of visible networks.
	Scan() ([]string, error)
	Connect(ssid, passwd string) error
	Disconnect() error
	IfConfig() IfConfig
	Release() error
}

// Device is the radio hardware.
type Device interface {
	// UniqueID returns a stable hardware identifier.
	UniqueID() ([]byte, error)
	// SetCountry configures the regulatory domain.
	SetCountry(code string) error
	NewWLAN(mode Mode) (WLAN, error)
}

// SecretStore is the persistence used for credentials.
type SecretStore interface {
	Get(name string) (string, error)
	Set(name, value string) (bool, error)
}
