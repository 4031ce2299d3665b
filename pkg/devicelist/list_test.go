package devicelist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

var (
	devA = gatt.Device{Name: "A", Address: "00:00:00:00:00:0A", Connected: true}
	devB = gatt.Device{Name: "B", Address: "00:00:00:00:00:0B"}
	devC = gatt.Device{Name: "C", Address: "00:00:00:00:00:0C"}
)

func TestBuildLabels(t *testing.T) {
	tests := []struct {
		name   string
		bonded []gatt.Device
		want   []string
	}{
		{
			name:   "connected device first",
			bonded: []gatt.Device{devB, devA, devC},
			want: []string{
				"Currently Connected Device:",
				"A (00:00:00:00:00:0A) - Currently Connected",
				"Previous Devices:",
				"B (00:00:00:00:00:0B)",
				"C (00:00:00:00:00:0C)",
			},
		},
		{
			name:   "nothing connected",
			bonded: []gatt.Device{devB, devC},
			want: []string{
				"Currently Connected Device:",
				"Previous Devices:",
				"B (00:00:00:00:00:0B)",
				"C (00:00:00:00:00:0C)",
			},
		},
		{
			name:   "no bonded devices",
			bonded: nil,
			want: []string{
				"Currently Connected Device:",
				"Previous Devices:",
			},
		},
		{
			name: "only the first connected device is current",
			bonded: []gatt.Device{
				devA,
				{Name: "D", Address: "00:00:00:00:00:0D", Connected: true},
			},
			want: []string{
				"Currently Connected Device:",
				"A (00:00:00:00:00:0A) - Currently Connected",
				"Previous Devices:",
				"D (00:00:00:00:00:0D)",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.bonded).Labels())
		})
	}
}

func TestSelectForwardsBackingDevice(t *testing.T) {
	l := Build([]gatt.Device{devA, devB, devC})

	sel, err := l.Select(1)
	require.NoError(t, err)
	assert.Equal(t, Selection{Name: "A", Address: devA.Address, Connected: true}, sel)

	sel, err = l.Select(3)
	require.NoError(t, err)
	assert.Equal(t, Selection{Name: "B", Address: devB.Address}, sel)

	sel, err = l.Select(4)
	require.NoError(t, err)
	assert.Equal(t, Selection{Name: "C", Address: devC.Address}, sel)

	for _, i := range []int{-1, 0, 2, 5} {
		_, err := l.Select(i)
		assert.True(t, errors.Is(err, ErrNotSelectable), "index %d", i)
	}
}

func TestSelectDuplicateNames(t *testing.T) {
	first := gatt.Device{Name: "Buds", Address: "11:11:11:11:11:11"}
	second := gatt.Device{Name: "Buds", Address: "22:22:22:22:22:22"}
	l := Build([]gatt.Device{first, second})

	sel, err := l.Select(2)
	require.NoError(t, err)
	assert.Equal(t, first.Address, sel.Address)

	sel, err = l.Select(3)
	require.NoError(t, err)
	assert.Equal(t, second.Address, sel.Address)
}

func TestSelectAddress(t *testing.T) {
	l := Build([]gatt.Device{devA, devB, devC})

	sel, err := l.SelectAddress(devA.Address)
	require.NoError(t, err)
	assert.Equal(t, Selection{Name: "A", Address: devA.Address, Connected: true}, sel)

	sel, err = l.SelectAddress(devC.Address)
	require.NoError(t, err)
	assert.Equal(t, Selection{Name: "C", Address: devC.Address}, sel)

	// A row that was shown before a rebuild keeps resolving to its device,
	// wherever the rebuild moved it.
	extra := gatt.Device{Name: "Keyboard", Address: "00:00:00:00:00:00"}
	rebuilt := Build([]gatt.Device{extra, devA, devB, devC})
	sel, err = rebuilt.SelectAddress(devB.Address)
	require.NoError(t, err)
	assert.Equal(t, Selection{Name: "B", Address: devB.Address}, sel)

	_, err = Build([]gatt.Device{devA}).SelectAddress(devB.Address)
	assert.ErrorIs(t, err, ErrNotListed)
	_, err = Empty().SelectAddress(devA.Address)
	assert.ErrorIs(t, err, ErrNotListed)
}

func TestEmpty(t *testing.T) {
	l := Empty()
	assert.Empty(t, l.Rows())
	_, ok := l.Current()
	assert.False(t, ok)
	_, err := l.Select(0)
	assert.ErrorIs(t, err, ErrNotSelectable)
}
