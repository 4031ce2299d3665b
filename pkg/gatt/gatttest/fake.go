// Package gatttest provides an in-memory gatt.Adapter whose callbacks are
// driven explicitly by tests.
package gatttest

import (
	"context"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

// Adapter is a fake gatt.Adapter.
type Adapter struct {
	mu sync.Mutex

	Devices []gatt.Device
	// Services are exposed by every session this adapter opens.
	Services map[bluetooth.UUID][]bluetooth.UUID
	// BondedErr and ConnectErr, when set, are returned by the matching call.
	BondedErr  error
	ConnectErr error

	BondedCalls  int
	ConnectCalls int
	Sessions     []*Session
}

var _ gatt.Adapter = &Adapter{}

// NewAdapter returns an adapter exposing the standard battery service.
func NewAdapter(devices ...gatt.Device) *Adapter {
	return &Adapter{
		Devices: devices,
		Services: map[bluetooth.UUID][]bluetooth.UUID{
			gatt.BatteryService: {gatt.BatteryLevel},
		},
	}
}

func (a *Adapter) BondedDevices(_ context.Context) ([]gatt.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.BondedCalls++
	if a.BondedErr != nil {
		return nil, a.BondedErr
	}
	out := make([]gatt.Device, len(a.Devices))
	copy(out, a.Devices)
	return out, nil
}

func (a *Adapter) ConnectGatt(_ context.Context, address string, cb gatt.Callback) (gatt.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ConnectCalls++
	if a.ConnectErr != nil {
		return nil, a.ConnectErr
	}
	s := &Session{Address: address, cb: cb, services: a.Services}
	a.Sessions = append(a.Sessions, s)
	return s, nil
}

// SetDevices replaces the bonded set, as if devices were paired or removed.
func (a *Adapter) SetDevices(devices ...gatt.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Devices = devices
}

// Calls returns the number of BondedDevices and ConnectGatt calls.
func (a *Adapter) Calls() (bonded, connect int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.BondedCalls, a.ConnectCalls
}

// LastSession returns the most recently opened session, or nil.
func (a *Adapter) LastSession() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Sessions) == 0 {
		return nil
	}
	return a.Sessions[len(a.Sessions)-1]
}

// Session is a fake gatt.Session. Use the Fire* methods to deliver platform
// callbacks.
type Session struct {
	mu sync.Mutex

	Address string

	cb         gatt.Callback
	services   map[bluetooth.UUID][]bluetooth.UUID
	discovered bool
	reading    bool
	closed     bool

	DiscoverCalls int
	ReadCalls     int
	CloseCalls    int
}

var _ gatt.Session = &Session{}

type service struct {
	uuid  bluetooth.UUID
	chars []bluetooth.UUID
}

func (s service) UUID() bluetooth.UUID { return s.uuid }

func (s service) Characteristic(uuid bluetooth.UUID) (gatt.Characteristic, bool) {
	for _, c := range s.chars {
		if c == uuid {
			return gatt.Characteristic{UUID: c, Service: s.uuid, Handle: c.String()}, true
		}
	}
	return gatt.Characteristic{}, false
}

func (s *Session) DiscoverServices() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gatt.ErrSessionClosed
	}
	s.DiscoverCalls++
	return nil
}

func (s *Session) Service(uuid bluetooth.UUID) (gatt.Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.discovered {
		return nil, false
	}
	chars, ok := s.services[uuid]
	if !ok {
		return nil, false
	}
	return service{uuid: uuid, chars: chars}, true
}

func (s *Session) ReadCharacteristic(_ gatt.Characteristic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gatt.ErrSessionClosed
	}
	if s.reading {
		return gatt.ErrReadInProgress
	}
	s.reading = true
	s.ReadCalls++
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.CloseCalls++
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Counts returns the number of discover, read and close calls.
func (s *Session) Counts() (discover, read, closeCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DiscoverCalls, s.ReadCalls, s.CloseCalls
}

// FireConnectionState delivers a connection state change.
func (s *Session) FireConnectionState(status gatt.Status, state gatt.ConnectionState) {
	s.cb.OnConnectionStateChange(status, state)
}

// FireServicesDiscovered completes discovery with status.
func (s *Session) FireServicesDiscovered(status gatt.Status) {
	s.mu.Lock()
	s.discovered = status == gatt.StatusSuccess
	s.mu.Unlock()
	s.cb.OnServicesDiscovered(status)
}

// FireRead completes the outstanding read of the battery level.
func (s *Session) FireRead(value []byte, status gatt.Status) {
	s.FireReadOf(gatt.Characteristic{
		UUID:    gatt.BatteryLevel,
		Service: gatt.BatteryService,
		Handle:  gatt.BatteryLevel.String(),
	}, value, status)
}

// FireReadOf completes the outstanding read of c.
func (s *Session) FireReadOf(c gatt.Characteristic, value []byte, status gatt.Status) {
	s.mu.Lock()
	s.reading = false
	s.mu.Unlock()
	s.cb.OnCharacteristicRead(c, value, status)
}

// Authorizer is a fake gatt.Authorizer with a fixed grant set. Requests are
// queued until Answer is called.
type Authorizer struct {
	mu       sync.Mutex
	granted  map[gatt.Permission]bool
	pending  []func(bool)
	Requests [][]gatt.Permission
}

var _ gatt.Authorizer = &Authorizer{}

// NewAuthorizer returns an authorizer granting perms.
func NewAuthorizer(perms ...gatt.Permission) *Authorizer {
	a := &Authorizer{granted: map[gatt.Permission]bool{}}
	for _, p := range perms {
		a.granted[p] = true
	}
	return a
}

func (a *Authorizer) Missing(perms ...gatt.Permission) []gatt.Permission {
	a.mu.Lock()
	defer a.mu.Unlock()
	var missing []gatt.Permission
	for _, p := range perms {
		if !a.granted[p] {
			missing = append(missing, p)
		}
	}
	return missing
}

func (a *Authorizer) Request(perms []gatt.Permission, result func(granted bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Requests = append(a.Requests, perms)
	a.pending = append(a.pending, result)
}

// Answer sets the grant state of perms and resolves every pending request.
func (a *Authorizer) Answer(granted bool, perms ...gatt.Permission) {
	a.mu.Lock()
	for _, p := range perms {
		a.granted[p] = granted
	}
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	for _, f := range pending {
		f(granted)
	}
}

// RequestCount returns the number of Request calls seen so far.
func (a *Authorizer) RequestCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Requests)
}
