package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/wlanboot/pkg/provision"
	"github.com/haasonsaas/wlanboot/pkg/secrets"
	"github.com/haasonsaas/wlanboot/pkg/sysinfo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSecretsCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")

	out, err := execute(t, "--secrets", path, "secrets", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "--secrets", path, "secrets", "set", secrets.WLANSSID, "home-net")
	require.NoError(t, err)
	_, err = execute(t, "--secrets", path, "secrets", "set", secrets.WLANPassword, "hunter22")
	require.NoError(t, err)

	out, err = execute(t, "--secrets", path, "secrets", "get", secrets.WLANSSID)
	require.NoError(t, err)
	assert.Equal(t, "home-net\n", out)

	out, err = execute(t, "--secrets", path, "secrets", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "home-net")
	assert.NotContains(t, out, "hunter22")
	assert.Contains(t, out, "MQTT_CLIENT_ID")

	out, err = execute(t, "--secrets", path, "secrets", "list", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, out, "hunter22")

	_, err = execute(t, "--secrets", path, "secrets", "clear", secrets.WLANSSID, secrets.WLANPassword)
	require.NoError(t, err)
	_, err = execute(t, "--secrets", path, "secrets", "get", secrets.WLANSSID)
	require.Error(t, err)

	_, err = execute(t, "--secrets", path, "secrets", "set", "bad name", "x")
	require.ErrorIs(t, err, secrets.ErrInvalidName)
}

type staticInfo struct{}

func (staticInfo) Collect(context.Context) *sysinfo.Descriptor {
	return &sysinfo.Descriptor{Description: "test board", RuntimeVersion: "go1.24"}
}

func TestDeviceCommandsAgainstProvisioningServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := secrets.Open(filepath.Join(t.TempDir(), "device.env"))
	require.NoError(t, err)
	srv := provision.NewServer(store, staticInfo{}, zerolog.Nop(), provision.WithRoot(t.TempDir()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out, err := execute(t, "-d", ts.URL, "provision", "--ssid", "home-net", "--password", "hunter22")
	require.NoError(t, err)
	assert.Contains(t, out, "home-net")
	ssid, err := store.Get(secrets.WLANSSID)
	require.NoError(t, err)
	assert.Equal(t, "home-net", ssid)

	_, err = execute(t, "-d", ts.URL, "provision", "--ssid", strings.Repeat("x", 40))
	require.ErrorContains(t, err, "rejected")

	out, err = execute(t, "-d", ts.URL, "system")
	require.NoError(t, err)
	assert.Contains(t, out, `"device-description": "test board"`)

	out, err = execute(t, "-d", ts.URL+"/", "reset")
	require.NoError(t, err)
	assert.Equal(t, provision.ShutdownReply+"\n", out)
}

func TestDeviceUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	_, err := execute(t, "-d", ts.URL, "system")
	require.ErrorContains(t, err, "failed to connect")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "wlanboot version dev\n", out)
}
