package nmcli

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/haasonsaas/wlanboot/pkg/wlan"
)

// exit code nmcli uses when --wait expires
const exitTimeout = 3

// Interface is one wlan.WLAN instance on the device.
type Interface struct {
	dev  *Device
	mode wlan.Mode

	mu       sync.Mutex
	ssid     string
	passwd   string
	released bool
}

var _ wlan.WLAN = (*Interface)(nil)

func (i *Interface) Mode() wlan.Mode {
	return i.mode
}

func (i *Interface) Configure(ssid, passwd string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.released {
		return wlan.ErrReleased
	}
	i.ssid, i.passwd = ssid, passwd
	return nil
}

// SetActive turns the radio on or off. In access-point mode switching on
// also starts the hotspot with the configured credentials.
func (i *Interface) SetActive(on bool) error {
	if i.isReleased() {
		return wlan.ErrReleased
	}
	d := i.dev
	if !on {
		if i.mode == wlan.AccessPoint {
			if _, err := d.exec("nmcli", "connection", "down", d.hotspot); err != nil {
				d.logger.Debug().Err(err).Msg("Hotspot already down")
			}
		}
		_, err := d.exec("nmcli", "radio", "wifi", "off")
		return err
	}

	if _, err := d.exec("nmcli", "radio", "wifi", "on"); err != nil {
		return err
	}
	if i.mode != wlan.AccessPoint {
		return nil
	}
	i.mu.Lock()
	ssid, passwd := i.ssid, i.passwd
	i.mu.Unlock()
	args := []string{"device", "wifi", "hotspot", "ifname", d.ifname, "con-name", d.hotspot, "ssid", ssid}
	if passwd != "" {
		args = append(args, "password", passwd)
	}
	_, err := d.exec("nmcli", args...)
	return err
}

func (i *Interface) Active() bool {
	out, err := i.dev.exec("nmcli", "-t", "-f", "WIFI", "radio")
	if err != nil || !radioEnabled(out) {
		return false
	}
	if i.mode == wlan.Station {
		return true
	}
	st, err := i.state()
	return err == nil && st.State == stateActivated && st.Connection == i.dev.hotspot
}

func (i *Interface) Status() wlan.LinkStatus {
	if i.mode != wlan.Station {
		return wlan.StatusIdle
	}
	st, err := i.state()
	if err != nil {
		return wlan.StatusIdle
	}
	return linkStatus(st.State)
}

func (i *Interface) IsConnected() bool {
	if i.mode != wlan.Station || i.isReleased() {
		return false
	}
	st, err := i.state()
	return err == nil && st.State == stateActivated && st.Connection != i.dev.hotspot
}

func (i *Interface) Scan() ([]string, error) {
	out, err := i.dev.exec("nmcli", "-t", "-f", "SSID", "device", "wifi", "list", "ifname", i.dev.ifname, "--rescan", "yes")
	if err != nil {
		return nil, err
	}
	return parseSSIDs(out), nil
}

// Connect asks NetworkManager to join ssid. A join that is still in
// progress when nmcli stops waiting is not an error.
func (i *Interface) Connect(ssid, passwd string) error {
	if i.mode != wlan.Station {
		return wlan.ErrNotStation
	}
	if i.isReleased() {
		return wlan.ErrReleased
	}
	args := []string{"--wait", strconv.Itoa(connectWait), "device", "wifi", "connect", ssid}
	if passwd != "" {
		args = append(args, "password", passwd)
	}
	args = append(args, "ifname", i.dev.ifname)
	_, err := i.dev.exec("nmcli", args...)
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == exitTimeout {
		return nil
	}
	return err
}

func (i *Interface) Disconnect() error {
	if i.mode != wlan.Station {
		return nil
	}
	_, err := i.dev.exec("nmcli", "device", "disconnect", i.dev.ifname)
	return err
}

func (i *Interface) IfConfig() wlan.IfConfig {
	out, err := i.dev.exec("nmcli", "-t", "-f", "IP4.ADDRESS,IP4.GATEWAY,IP4.DNS", "device", "show", i.dev.ifname)
	if err != nil {
		return wlan.IfConfig{}
	}
	return parseIfConfig(out)
}

// Release removes the hotspot profile and frees the device for the next
// interface.
func (i *Interface) Release() error {
	i.mu.Lock()
	if i.released {
		i.mu.Unlock()
		return nil
	}
	i.released = true
	i.mu.Unlock()

	defer i.dev.release(i)
	if i.mode == wlan.AccessPoint {
		if _, err := i.dev.exec("nmcli", "connection", "delete", i.dev.hotspot); err != nil {
			i.dev.logger.Debug().Err(err).Msg("Hotspot profile not removed")
		}
	}
	return nil
}

func (i *Interface) state() (deviceState, error) {
	out, err := i.dev.exec("nmcli", "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION", "device", "show", i.dev.ifname)
	if err != nil {
		return deviceState{}, err
	}
	return parseDeviceState(out), nil
}

func (i *Interface) isReleased() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.released
}

func radioEnabled(out []byte) bool {
	return strings.TrimSpace(string(out)) == "enabled"
}
