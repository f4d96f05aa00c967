package nmcli

import (
	"bufio"
	"bytes"
	"net"
	"strconv"
	"strings"

	"github.com/haasonsaas/wlanboot/pkg/wlan"
)

// NetworkManager device states.
const (
	stateDisconnected = 30
	statePrepare      = 40
	stateNeedAuth     = 60
	stateActivated    = 100
	stateFailed       = 120
)

// deviceState is the subset of `nmcli device show` used by the interface.
type deviceState struct {
	State      int
	Connection string
}

// unescape reverses nmcli terse mode escaping of ':' and '\'.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitField splits a terse line at the first unescaped colon.
func splitField(line string) (string, string, bool) {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case ':':
			return line[:i], unescape(line[i+1:]), true
		}
	}
	return "", "", false
}

// parseSSIDs reads `nmcli -t -f SSID device wifi list`. Hidden networks and
// duplicates from multiple BSSIDs are dropped.
func parseSSIDs(out []byte) []string {
	seen := map[string]bool{}
	var ssids []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		ssid := unescape(strings.TrimRight(scanner.Text(), "\r"))
		if ssid == "" || ssid == "--" || seen[ssid] {
			continue
		}
		seen[ssid] = true
		ssids = append(ssids, ssid)
	}
	return ssids
}

// parseFields reads terse `KEY:value` output into a map. Indexed keys such
// as IP4.DNS[2] keep only the first value.
func parseFields(out []byte) map[string]string {
	fields := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := splitField(scanner.Text())
		if !ok {
			continue
		}
		if i := strings.IndexByte(key, '['); i >= 0 {
			key = key[:i]
		}
		if _, dup := fields[key]; dup {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

func parseDeviceState(out []byte) deviceState {
	fields := parseFields(out)
	st := deviceState{Connection: fields["GENERAL.CONNECTION"]}
	if st.Connection == "--" {
		st.Connection = ""
	}
	raw, _, _ := strings.Cut(fields["GENERAL.STATE"], " ")
	st.State, _ = strconv.Atoi(raw)
	return st
}

func linkStatus(state int) wlan.LinkStatus {
	switch {
	case state == stateActivated:
		return wlan.StatusGotIP
	case state == stateNeedAuth:
		return wlan.StatusWrongPassword
	case state == stateFailed:
		return wlan.StatusConnectFail
	case state >= statePrepare && state < stateActivated:
		return wlan.StatusConnecting
	default:
		return wlan.StatusIdle
	}
}

func parseIfConfig(out []byte) wlan.IfConfig {
	fields := parseFields(out)
	cfg := wlan.IfConfig{
		Gateway: fields["IP4.GATEWAY"],
		DNS:     fields["IP4.DNS"],
	}
	if cfg.Gateway == "--" {
		cfg.Gateway = ""
	}
	if addr := fields["IP4.ADDRESS"]; addr != "" {
		ip, ipnet, err := net.ParseCIDR(addr)
		if err == nil {
			cfg.IP = ip.String()
			cfg.Subnet = net.IP(ipnet.Mask).String()
		} else {
			cfg.IP = addr
		}
	}
	return cfg
}
