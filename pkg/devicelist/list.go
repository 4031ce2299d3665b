// Package devicelist renders the bonded device list and turns a row selection
// into the hand-off for the detail screen.
package devicelist

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

const (
	HeaderConnected = "Currently Connected Device:"
	HeaderPrevious  = "Previous Devices:"
	connectedSuffix = " - Currently Connected"
)

// ErrNotSelectable is returned when selecting a header or a row that does not
// exist.
var ErrNotSelectable = pkgerrors.New("row is not a device")

// ErrNotListed is returned when selecting an address the list does not show.
var ErrNotListed = pkgerrors.New("device is not in the list")

// RowKind tells headers and device rows apart.
type RowKind string

const (
	RowHeader RowKind = "header"
	RowDevice RowKind = "device"
)

// Row is one line of the rendered list.
type Row struct {
	Kind  RowKind `json:"kind"`
	Label string  `json:"label"`
	// Address is set on device rows only.
	Address string `json:"address,omitempty"`
}

// Selection is what the list screen hands to the detail screen.
type Selection struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
}

// List is an immutable rendering of a bonded-device set.
type List struct {
	rows []Row
	// byAddress backs device rows. Keyed by hardware address so devices
	// that share a display name never shadow each other.
	byAddress map[string]gatt.Device
	current   *gatt.Device
}

// Empty returns a list with no rows, shown while authorization is missing.
func Empty() *List {
	return &List{byAddress: map[string]gatt.Device{}}
}

// Build renders bonded into the two-section layout. The first connected
// device, if any, goes into the "currently connected" section; every other
// device follows in enumeration order.
func Build(bonded []gatt.Device) *List {
	l := &List{byAddress: make(map[string]gatt.Device, len(bonded))}

	for i := range bonded {
		if bonded[i].Connected {
			d := bonded[i]
			l.current = &d
			break
		}
	}

	l.rows = append(l.rows, Row{Kind: RowHeader, Label: HeaderConnected})
	if l.current != nil {
		l.rows = append(l.rows, Row{
			Kind:    RowDevice,
			Label:   label(*l.current) + connectedSuffix,
			Address: l.current.Address,
		})
		l.byAddress[l.current.Address] = *l.current
	}

	l.rows = append(l.rows, Row{Kind: RowHeader, Label: HeaderPrevious})
	for _, d := range bonded {
		if l.current != nil && d.Address == l.current.Address {
			continue
		}
		l.rows = append(l.rows, Row{Kind: RowDevice, Label: label(d), Address: d.Address})
		l.byAddress[d.Address] = d
	}

	return l
}

func label(d gatt.Device) string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

// Rows returns a copy of the rendered rows.
func (l *List) Rows() []Row {
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Labels returns the row texts in display order.
func (l *List) Labels() []string {
	out := make([]string, 0, len(l.rows))
	for _, r := range l.rows {
		out = append(out, r.Label)
	}
	return out
}

// Current returns the device shown in the connected section.
func (l *List) Current() (gatt.Device, bool) {
	if l.current == nil {
		return gatt.Device{}, false
	}
	return *l.current, true
}

// Select returns the hand-off for the row at index.
func (l *List) Select(index int) (Selection, error) {
	if index < 0 || index >= len(l.rows) {
		return Selection{}, pkgerrors.Wrapf(ErrNotSelectable, "index %d out of range [0, %d)", index, len(l.rows))
	}
	row := l.rows[index]
	if row.Kind != RowDevice {
		return Selection{}, pkgerrors.Wrapf(ErrNotSelectable, "%q is a header", row.Label)
	}
	d, ok := l.byAddress[row.Address]
	if !ok {
		return Selection{}, pkgerrors.Wrapf(ErrNotSelectable, "no device behind %q", row.Label)
	}
	return l.selection(d), nil
}

// SelectAddress returns the hand-off for the device row showing address.
// Rows shift whenever the list is rebuilt, so remote callers select by
// address rather than by index.
func (l *List) SelectAddress(address string) (Selection, error) {
	d, ok := l.byAddress[address]
	if !ok {
		return Selection{}, pkgerrors.Wrapf(ErrNotListed, "%s", address)
	}
	return l.selection(d), nil
}

func (l *List) selection(d gatt.Device) Selection {
	return Selection{
		Name:      d.Name,
		Address:   d.Address,
		Connected: l.current != nil && d.Address == l.current.Address,
	}
}
