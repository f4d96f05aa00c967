// Package nmcli drives a wireless interface managed by NetworkManager
// through the nmcli and iw command line tools.
package nmcli

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/wlanboot/pkg/wlan"
	"github.com/rs/zerolog"
)

const (
	DefaultHotspotName    = "wlanboot-ap"
	DefaultMachineIDPath  = "/etc/machine-id"
	DefaultCommandTimeout = 30 * time.Second
	// connectWait is passed to nmcli --wait for station joins. The
	// controller keeps polling status after nmcli gives up.
	connectWait = 15
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExitError is returned by ExecRunner when a command exits non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &ExitError{Command: name, Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Device is a wlan.Device backed by NetworkManager. It hands out at most one
// interface at a time.
type Device struct {
	ifname        string
	run           Runner
	timeout       time.Duration
	hotspot       string
	machineIDPath string
	sysfsRoot     string
	logger        zerolog.Logger

	mu      sync.Mutex
	current *Interface
}

type Option func(*Device)

func WithRunner(run Runner) Option {
	return func(d *Device) { d.run = run }
}

func WithCommandTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.timeout = timeout }
}

// WithHotspotName sets the NetworkManager connection profile used for the
// access point.
func WithHotspotName(name string) Option {
	return func(d *Device) { d.hotspot = name }
}

func WithMachineIDPath(path string) Option {
	return func(d *Device) { d.machineIDPath = path }
}

// WithSysfsRoot points the MAC address fallback at a different /sys tree.
func WithSysfsRoot(root string) Option {
	return func(d *Device) { d.sysfsRoot = root }
}

func New(ifname string, logger zerolog.Logger, opts ...Option) *Device {
	d := &Device{
		ifname:        ifname,
		run:           ExecRunner,
		timeout:       DefaultCommandTimeout,
		hotspot:       DefaultHotspotName,
		machineIDPath: DefaultMachineIDPath,
		sysfsRoot:     "/sys",
		logger:        logger.With().Str("component", "nmcli").Str("interface", ifname).Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UniqueID returns the first 8 bytes of the machine id, falling back to the
// interface MAC address.
func (d *Device) UniqueID() ([]byte, error) {
	if data, err := os.ReadFile(d.machineIDPath); err == nil {
		if id, err := hex.DecodeString(strings.TrimSpace(string(data))); err == nil && len(id) >= 8 {
			return id[:8], nil
		}
		d.logger.Debug().Str("path", d.machineIDPath).Msg("Machine id unusable, falling back to MAC address")
	}

	data, err := os.ReadFile(fmt.Sprintf("%s/class/net/%s/address", d.sysfsRoot, d.ifname))
	if err != nil {
		return nil, fmt.Errorf("read mac address: %w", err)
	}
	mac, err := net.ParseMAC(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse mac address: %w", err)
	}
	return []byte(mac), nil
}

func (d *Device) SetCountry(code string) error {
	_, err := d.exec("iw", "reg", "set", strings.ToUpper(code))
	return err
}

func (d *Device) NewWLAN(mode wlan.Mode) (wlan.WLAN, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		return nil, fmt.Errorf("%s interface still held", d.current.mode)
	}
	d.current = &Interface{dev: d, mode: mode}
	return d.current, nil
}

func (d *Device) release(i *Interface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == i {
		d.current = nil
	}
}

func (d *Device) exec(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	out, err := d.run(ctx, name, args...)
	if err != nil {
		d.logger.Debug().Err(err).Str("command", name).Strs("args", redact(args)).Msg("Command failed")
	}
	return out, err
}

// redact hides the value following a "password" argument.
func redact(args []string) []string {
	out := append([]string(nil), args...)
	for i := 0; i+1 < len(out); i++ {
		if out[i] == "password" {
			out[i+1] = "***"
		}
	}
	return out
}
