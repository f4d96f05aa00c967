package sysinfo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectFillsRuntimeFields(t *testing.T) {
	d := NewCollector("greenhouse sensor", 0).Collect(context.Background())

	assert.Equal(t, "greenhouse sensor", d.Description)
	assert.Equal(t, runtime.Version(), d.RuntimeVersion)
	assert.Equal(t, runtime.GOOS, d.OS)
	assert.Equal(t, runtime.GOARCH, d.Arch)
	assert.False(t, d.CollectedAt.IsZero())
}

func TestCollectReadsBoardModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	require.NoError(t, os.WriteFile(path, []byte("Raspberry Pi Zero 2 W Rev 1.0\x00"), 0o644))

	c := NewCollector("", 0)
	c.modelPath = path
	d := c.Collect(context.Background())
	assert.Equal(t, "Raspberry Pi Zero 2 W Rev 1.0", d.Description)
	assert.NotContains(t, d.Errors, "model")
}

func TestDescriptorJSONKeys(t *testing.T) {
	data, err := json.Marshal(&Descriptor{Description: "x", RuntimeVersion: "go1.24", OS: "linux", Arch: "arm64"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"device-description", "runtime-version", "hostname", "os", "arch", "collected-at"} {
		assert.Contains(t, m, key)
	}
}
