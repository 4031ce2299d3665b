package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/bluebatt/pkg/daemon"
	"github.com/charlie0129/bluebatt/pkg/devicelist"
)

func TestResolveRow(t *testing.T) {
	devices := &daemon.DevicesResponse{Rows: []devicelist.Row{
		{Kind: devicelist.RowHeader, Label: devicelist.HeaderConnected},
		{Kind: devicelist.RowHeader, Label: devicelist.HeaderPrevious},
		{Kind: devicelist.RowDevice, Label: "Watch (AA:BB:CC:DD:EE:02)", Address: "AA:BB:CC:DD:EE:02"},
	}}

	address, err := resolveRow(devices, "2")
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:02", address)

	address, err = resolveRow(devices, "aa:bb:cc:dd:ee:02")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", address)

	for _, arg := range []string{"0", "1", "3", "-1"} {
		_, err := resolveRow(devices, arg)
		assert.Error(t, err, arg)
	}
}
