package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

func TestFileDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, f.PollInterval())
	assert.Equal(t, "hci0", f.Adapter())
	assert.False(t, f.AllowNonRootAccess())
	assert.True(t, f.Granted(gatt.PermissionConnect))
	assert.True(t, f.Granted(gatt.PermissionScan))
	assert.False(t, f.Granted(gatt.Permission("camera")))
}

func TestFileLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		interval time.Duration
		adapter  string
		connect  bool
		wantErr  bool
	}{
		{
			name:     "empty file",
			content:  "  \n",
			interval: time.Minute,
			adapter:  "hci0",
			connect:  true,
		},
		{
			name:     "partial",
			content:  `{"pollIntervalSeconds": 5, "permissions": {"connect": false}}`,
			interval: 5 * time.Second,
			adapter:  "hci0",
			connect:  false,
		},
		{
			name:     "non positive interval falls back",
			content:  `{"pollIntervalSeconds": 0, "adapter": "hci1"}`,
			interval: time.Minute,
			adapter:  "hci1",
			connect:  true,
		},
		{
			name:    "malformed",
			content: `{"pollIntervalSeconds": `,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "bluebatt.json")
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0644))

			f, err := NewFile(p)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.interval, f.PollInterval())
			assert.Equal(t, tt.adapter, f.Adapter())
			assert.Equal(t, tt.connect, f.Granted(gatt.PermissionConnect))
		})
	}
}

func TestFileSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bluebatt.json")
	f := NewFileFromConfig(nil, p)

	f.SetPollInterval(90 * time.Second)
	f.SetAdapter("hci1")
	f.SetAllowNonRootAccess(true)
	f.SetGranted(gatt.PermissionScan, false)
	require.NoError(t, f.Save())

	g, err := NewFile(p)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, g.PollInterval())
	assert.Equal(t, "hci1", g.Adapter())
	assert.True(t, g.AllowNonRootAccess())
	assert.True(t, g.Granted(gatt.PermissionConnect))
	assert.False(t, g.Granted(gatt.PermissionScan))

	raw, err := NewRawFileConfigFromConfig(g)
	require.NoError(t, err)
	assert.Equal(t, 90, *raw.PollIntervalSeconds)
	assert.False(t, *raw.Permissions.Scan)
}

func TestFileSetPollIntervalRejectsSubSecond(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	assert.Panics(t, func() { f.SetPollInterval(500 * time.Millisecond) })
}
