// Package gatt defines the platform-neutral contract between bluebatt and the
// Bluetooth stack it runs on. Implementations live in their own packages
// (see pkg/bluez); everything above this package only talks to these types.
package gatt

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

var (
	// BatteryService is the standard Battery Service (0x180F).
	BatteryService = bluetooth.ServiceUUIDBattery
	// BatteryLevel is the Battery Level characteristic (0x2A19), one byte.
	BatteryLevel = bluetooth.CharacteristicUUIDBatteryLevel
)

var (
	// ErrReadInProgress is returned when a read is issued while another one
	// has not completed yet.
	ErrReadInProgress = pkgerrors.New("characteristic read already in progress")
	// ErrSessionClosed is returned by operations on a released session.
	ErrSessionClosed = pkgerrors.New("gatt session closed")
)

// ConnectionState mirrors the link state reported by the platform.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// Status is the outcome attached to a callback.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Device is a bonded peripheral as reported by the platform.
type Device struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
}

// NormalizeAddress returns the canonical upper-case colon separated form of a
// hardware address.
func NormalizeAddress(address string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(address))
	if !isColonSeparated(s) {
		return "", pkgerrors.Errorf("invalid bluetooth address %q: want the form XX:XX:XX:XX:XX:XX", address)
	}
	mac, err := bluetooth.ParseMAC(s)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "invalid bluetooth address %q", address)
	}
	return mac.String(), nil
}

// isColonSeparated reports whether s has six two-character groups joined by
// colons. ParseMAC skips colons wherever they appear, so it cannot tell.
func isColonSeparated(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if (i%3 == 2) != (s[i] == ':') {
			return false
		}
	}
	return true
}

// Characteristic identifies a characteristic inside a discovered service.
// Handle is opaque to callers and only meaningful to the Session that
// produced it.
type Characteristic struct {
	UUID    bluetooth.UUID
	Service bluetooth.UUID
	Handle  string
}

// Service is a discovered primary service.
type Service interface {
	UUID() bluetooth.UUID
	Characteristic(uuid bluetooth.UUID) (Characteristic, bool)
}

// Callback receives asynchronous platform events for one Session. Methods may
// be invoked from any goroutine; implementations must marshal onto their own
// execution context before touching state.
type Callback interface {
	OnConnectionStateChange(status Status, newState ConnectionState)
	OnServicesDiscovered(status Status)
	OnCharacteristicRead(c Characteristic, value []byte, status Status)
}

// Session is an open GATT client connection: the connection handle.
type Session interface {
	// DiscoverServices starts service discovery. The result is reported
	// through Callback.OnServicesDiscovered.
	DiscoverServices() error
	// Service returns a service found by the last successful discovery.
	Service(uuid bluetooth.UUID) (Service, bool)
	// ReadCharacteristic issues one read. The value is reported through
	// Callback.OnCharacteristicRead. Only one read may be outstanding.
	ReadCharacteristic(c Characteristic) error
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Adapter is the local Bluetooth controller.
type Adapter interface {
	BondedDevices(ctx context.Context) ([]Device, error)
	ConnectGatt(ctx context.Context, address string, cb Callback) (Session, error)
}
