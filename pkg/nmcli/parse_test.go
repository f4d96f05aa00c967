package nmcli

import (
	"testing"

	"github.com/haasonsaas/wlanboot/pkg/wlan"
	"github.com/stretchr/testify/assert"
)

func TestParseSSIDs(t *testing.T) {
	out := []byte("HomeNet\n\nCafe\\: Guest\nHomeNet\n--\nback\\\\slash\n")
	assert.Equal(t, []string{"HomeNet", "Cafe: Guest", `back\slash`}, parseSSIDs(out))
	assert.Empty(t, parseSSIDs(nil))
}

func TestParseDeviceState(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		want   deviceState
		status wlan.LinkStatus
	}{
		{
			name:   "connected",
			out:    "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:HomeNet\n",
			want:   deviceState{State: 100, Connection: "HomeNet"},
			status: wlan.StatusGotIP,
		},
		{
			name:   "disconnected",
			out:    "GENERAL.STATE:30 (disconnected)\nGENERAL.CONNECTION:--\n",
			want:   deviceState{State: 30},
			status: wlan.StatusIdle,
		},
		{
			name:   "configuring",
			out:    "GENERAL.STATE:50 (connecting (configuring))\nGENERAL.CONNECTION:HomeNet\n",
			want:   deviceState{State: 50, Connection: "HomeNet"},
			status: wlan.StatusConnecting,
		},
		{
			name:   "needs auth",
			out:    "GENERAL.STATE:60 (connecting (need authentication))\nGENERAL.CONNECTION:HomeNet\n",
			want:   deviceState{State: 60, Connection: "HomeNet"},
			status: wlan.StatusWrongPassword,
		},
		{
			name:   "failed",
			out:    "GENERAL.STATE:120 (failed)\n",
			want:   deviceState{State: 120},
			status: wlan.StatusConnectFail,
		},
		{
			name:   "escaped connection name",
			out:    "GENERAL.STATE:100 (connected)\nGENERAL.CONNECTION:Cafe\\: Guest\n",
			want:   deviceState{State: 100, Connection: "Cafe: Guest"},
			status: wlan.StatusGotIP,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDeviceState([]byte(tt.out))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.status, linkStatus(got.State))
		})
	}
}

func TestParseIfConfig(t *testing.T) {
	out := []byte("IP4.ADDRESS[1]:192.168.1.50/24\nIP4.GATEWAY:192.168.1.1\nIP4.DNS[1]:192.168.1.1\nIP4.DNS[2]:1.1.1.1\n")
	assert.Equal(t, wlan.IfConfig{
		IP:      "192.168.1.50",
		Subnet:  "255.255.255.0",
		Gateway: "192.168.1.1",
		DNS:     "192.168.1.1",
	}, parseIfConfig(out))

	assert.Equal(t, wlan.IfConfig{}, parseIfConfig([]byte("IP4.GATEWAY:--\n")))
}
