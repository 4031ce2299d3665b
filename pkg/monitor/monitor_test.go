package monitor

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/charlie0129/bluebatt/pkg/devicelist"
	"github.com/charlie0129/bluebatt/pkg/events"
	"github.com/charlie0129/bluebatt/pkg/gatt"
	"github.com/charlie0129/bluebatt/pkg/gatt/gatttest"
	"github.com/charlie0129/bluebatt/pkg/looper"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) looper.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// pending returns timers that were neither fired nor stopped.
func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped {
			out = append(out, t)
		}
		t.mu.Unlock()
	}
	return out
}

// fire runs every pending timer, as if the poll interval elapsed.
func (c *fakeClock) fire() {
	for _, t := range c.pending() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		t.f()
	}
}

var connectedBuds = devicelist.Selection{Name: "Buds", Address: "AA:BB:CC:DD:EE:FF", Connected: true}

type harness struct {
	adapter *gatttest.Adapter
	auth    *gatttest.Authorizer
	clock   *fakeClock
	hub     *events.EventHub
	m       *Monitor
}

func newHarness(t *testing.T, sel devicelist.Selection, perms ...gatt.Permission) *harness {
	t.Helper()
	h := &harness{
		adapter: gatttest.NewAdapter(gatt.Device{Name: sel.Name, Address: sel.Address, Connected: sel.Connected}),
		auth:    gatttest.NewAuthorizer(perms...),
		clock:   &fakeClock{},
		hub:     events.NewEventHub(),
	}
	h.m = New(sel, h.adapter, h.auth, Options{
		PollInterval:  time.Minute,
		Publisher:     h.hub,
		LooperOptions: []looper.Option{looper.WithAfterFunc(h.clock.AfterFunc)},
	})
	t.Cleanup(h.m.Close)
	return h
}

// sync waits for every callback posted so far to be handled.
func (h *harness) sync() {
	h.m.runSync(func() {})
}

// poll drives the monitor from entry to its first successful read.
func (h *harness) poll(t *testing.T, level byte) *gatttest.Session {
	t.Helper()
	h.m.Start(context.Background())
	s := h.adapter.LastSession()
	require.NotNil(t, s)

	s.FireConnectionState(gatt.StatusSuccess, gatt.StateConnected)
	h.sync()
	s.FireServicesDiscovered(gatt.StatusSuccess)
	h.sync()
	s.FireRead([]byte{level}, gatt.StatusSuccess)
	h.sync()
	require.Equal(t, StatePolling, h.m.State())
	return s
}

func TestMonitorStateMachine(t *testing.T) {
	h := newHarness(t, connectedBuds, gatt.AllPermissions...)

	h.m.Start(context.Background())
	assert.Equal(t, StateConnecting, h.m.State())
	assert.Equal(t, "Buds\nAA:BB:CC:DD:EE:FF\nBattery: 0%", h.m.Text())
	_, connects := h.adapter.Calls()
	require.Equal(t, 1, connects)
	s := h.adapter.LastSession()
	assert.Equal(t, connectedBuds.Address, s.Address)

	s.FireConnectionState(gatt.StatusSuccess, gatt.StateConnected)
	h.sync()
	assert.Equal(t, StateConnected, h.m.State())
	discover, reads, _ := s.Counts()
	assert.Equal(t, 1, discover)
	assert.Equal(t, 0, reads)

	s.FireServicesDiscovered(gatt.StatusSuccess)
	h.sync()
	assert.Equal(t, StateServicesDiscovered, h.m.State())
	_, reads, _ = s.Counts()
	assert.Equal(t, 1, reads)
	assert.Empty(t, h.clock.pending(), "nothing is scheduled before the first reading")

	s.FireRead([]byte{87}, gatt.StatusSuccess)
	h.sync()
	assert.Equal(t, StatePolling, h.m.State())
	assert.Equal(t, "Buds\nAA:BB:CC:DD:EE:FF\nBattery: 87%", h.m.Text())
	level, ok := h.m.Level()
	assert.True(t, ok)
	assert.Equal(t, 87, level)

	pending := h.clock.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, time.Minute, pending[0].d)

	h.clock.fire()
	h.sync()
	_, reads, _ = s.Counts()
	assert.Equal(t, 2, reads)
	assert.Empty(t, h.clock.pending(), "a tick does not re-arm by itself")

	s.FireRead([]byte{200}, gatt.StatusSuccess)
	h.sync()
	assert.Equal(t, "Buds\nAA:BB:CC:DD:EE:FF\nBattery: 200%", h.m.Text())
	assert.Len(t, h.clock.pending(), 1)
}

func TestMonitorReadsFullByteRange(t *testing.T) {
	for _, n := range []byte{0, 1, 100, 127, 128, 255} {
		h := newHarness(t, connectedBuds, gatt.AllPermissions...)
		h.poll(t, n)
		level, _ := h.m.Level()
		assert.Equal(t, int(n), level)
		assert.Contains(t, h.m.Text(), "Battery: "+strconv.Itoa(int(n))+"%")
		h.m.Close()
	}
}

func TestMonitorDisconnectStopsUpdates(t *testing.T) {
	h := newHarness(t, connectedBuds, gatt.AllPermissions...)
	s := h.poll(t, 50)
	require.Len(t, h.clock.pending(), 1)

	s.FireConnectionState(gatt.StatusSuccess, gatt.StateDisconnected)
	h.sync()
	assert.Equal(t, StateDisconnected, h.m.State())
	assert.True(t, s.Closed(), "handle released on disconnect")

	// The tick scheduled before the disconnect still fires, and does nothing.
	_, readsBefore, _ := s.Counts()
	h.clock.fire()
	h.sync()
	_, readsAfter, _ := s.Counts()
	assert.Equal(t, readsBefore, readsAfter)

	// A late read result must not reach the display either.
	s.FireRead([]byte{99}, gatt.StatusSuccess)
	h.sync()
	assert.Contains(t, h.m.Text(), "Battery: 50%")
	assert.Empty(t, h.clock.pending())

	// No reconnection.
	_, connects := h.adapter.Calls()
	assert.Equal(t, 1, connects)
}

func TestMonitorFallback(t *testing.T) {
	tests := []struct {
		name        string
		sel         devicelist.Selection
		perms       []gatt.Permission
		wantRequest bool
	}{
		{
			name:  "device not connected",
			sel:   devicelist.Selection{Name: "Buds", Address: "AA:BB:CC:DD:EE:FF"},
			perms: gatt.AllPermissions,
		},
		{
			name:        "no permissions",
			sel:         connectedBuds,
			wantRequest: true,
		},
		{
			name:        "scan permission missing",
			sel:         connectedBuds,
			perms:       []gatt.Permission{gatt.PermissionConnect},
			wantRequest: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.sel, tt.perms...)
			h.m.Start(context.Background())

			assert.Equal(t, FallbackText, h.m.Text())
			assert.Equal(t, StateDisconnected, h.m.State())
			bonded, connects := h.adapter.Calls()
			assert.Zero(t, bonded)
			assert.Zero(t, connects)
			assert.Equal(t, tt.wantRequest, h.auth.RequestCount() > 0)

			// A grant restarts the screen only when it was waiting on one.
			h.auth.Answer(true, gatt.AllPermissions...)
			h.sync()
			_, connects = h.adapter.Calls()
			if tt.wantRequest {
				assert.Equal(t, 1, connects)
				assert.Equal(t, StateConnecting, h.m.State())
				assert.Equal(t, "Buds\nAA:BB:CC:DD:EE:FF\nBattery: 0%", h.m.Text())
			} else {
				assert.Zero(t, connects)
				assert.Equal(t, FallbackText, h.m.Text())
			}
			h.m.Close()
		})
	}
}

func TestMonitorRestartsAfterGrant(t *testing.T) {
	h := newHarness(t, connectedBuds)
	h.m.Start(context.Background())
	require.Equal(t, FallbackText, h.m.Text())

	h.auth.Answer(true, gatt.AllPermissions...)
	h.sync()

	s := h.adapter.LastSession()
	require.NotNil(t, s)
	s.FireConnectionState(gatt.StatusSuccess, gatt.StateConnected)
	h.sync()
	s.FireServicesDiscovered(gatt.StatusSuccess)
	h.sync()
	s.FireRead([]byte{55}, gatt.StatusSuccess)
	h.sync()

	assert.Equal(t, StatePolling, h.m.State())
	assert.Equal(t, "Buds\nAA:BB:CC:DD:EE:FF\nBattery: 55%", h.m.Text())
}

func TestMonitorStaysDownAfterDenial(t *testing.T) {
	h := newHarness(t, connectedBuds)
	h.m.Start(context.Background())

	h.auth.Answer(false, gatt.AllPermissions...)
	h.sync()

	_, connects := h.adapter.Calls()
	assert.Zero(t, connects)
	assert.Equal(t, FallbackText, h.m.Text())
}

func TestMonitorGrantAfterClose(t *testing.T) {
	h := newHarness(t, connectedBuds)
	h.m.Start(context.Background())
	h.m.Close()

	h.auth.Answer(true, gatt.AllPermissions...)

	_, connects := h.adapter.Calls()
	assert.Zero(t, connects)
	assert.Equal(t, StateClosed, h.m.State())
}

func TestMonitorFailuresAreSilent(t *testing.T) {
	t.Run("connect error", func(t *testing.T) {
		h := newHarness(t, connectedBuds, gatt.AllPermissions...)
		h.adapter.ConnectErr = errors.New("org.bluez.Error.Failed")
		h.m.Start(context.Background())
		assert.Equal(t, StateDisconnected, h.m.State())
		assert.Contains(t, h.m.Text(), "Battery: 0%")
		h.m.Close()
	})

	t.Run("discovery failure", func(t *testing.T) {
		h := newHarness(t, connectedBuds, gatt.AllPermissions...)
		h.m.Start(context.Background())
		s := h.adapter.LastSession()
		s.FireConnectionState(gatt.StatusSuccess, gatt.StateConnected)
		s.FireServicesDiscovered(gatt.StatusFailure)
		h.sync()
		assert.Equal(t, StateConnected, h.m.State())
		_, reads, _ := s.Counts()
		assert.Zero(t, reads)
		h.m.Close()
	})

	t.Run("no battery service", func(t *testing.T) {
		h := newHarness(t, connectedBuds, gatt.AllPermissions...)
		h.adapter.Services = nil
		h.m.Start(context.Background())
		s := h.adapter.LastSession()
		s.FireConnectionState(gatt.StatusSuccess, gatt.StateConnected)
		s.FireServicesDiscovered(gatt.StatusSuccess)
		h.sync()
		_, reads, _ := s.Counts()
		assert.Zero(t, reads)
		h.m.Close()
	})

	t.Run("read failure halts polling", func(t *testing.T) {
		h := newHarness(t, connectedBuds, gatt.AllPermissions...)
		s := h.poll(t, 30)
		h.clock.fire()
		h.sync()
		s.FireRead(nil, gatt.StatusFailure)
		h.sync()
		assert.Contains(t, h.m.Text(), "Battery: 30%")
		assert.Empty(t, h.clock.pending())
		h.m.Close()
	})

	t.Run("other characteristic", func(t *testing.T) {
		h := newHarness(t, connectedBuds, gatt.AllPermissions...)
		h.m.Start(context.Background())
		s := h.adapter.LastSession()
		s.FireConnectionState(gatt.StatusSuccess, gatt.StateConnected)
		s.FireServicesDiscovered(gatt.StatusSuccess)
		s.FireReadOf(gatt.Characteristic{UUID: gatt.BatteryService}, []byte{10}, gatt.StatusSuccess)
		h.sync()
		assert.Contains(t, h.m.Text(), "Battery: 0%")
		_, ok := h.m.Level()
		assert.False(t, ok)
		h.m.Close()
	})
}

func TestMonitorCloseCancelsTick(t *testing.T) {
	h := newHarness(t, connectedBuds, gatt.AllPermissions...)
	s := h.poll(t, 70)
	require.Len(t, h.clock.pending(), 1)

	h.m.Close()
	assert.Equal(t, StateClosed, h.m.State())
	assert.True(t, s.Closed())
	assert.Empty(t, h.clock.pending(), "teardown stops the pending tick")

	// Idempotent, and late callbacks are dropped by the stopped looper.
	h.m.Close()
	s.FireRead([]byte{1}, gatt.StatusSuccess)
	assert.Contains(t, h.m.Text(), "Battery: 70%")
	_, _, closes := s.Counts()
	assert.Equal(t, 1, closes)
}

func TestMonitorPublishesEvents(t *testing.T) {
	h := newHarness(t, connectedBuds, gatt.AllPermissions...)
	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	h.poll(t, 64)

	var states []string
	var battery *events.MonitorBatteryEvent
	for len(ch) > 0 {
		ev := <-ch
		switch ev.Name {
		case events.MonitorState:
			p, err := events.DecodeAs[events.MonitorStateEvent](ev)
			require.NoError(t, err)
			states = append(states, p.To)
		case events.MonitorBattery:
			p, err := events.DecodeAs[events.MonitorBatteryEvent](ev)
			require.NoError(t, err)
			battery = &p
		}
	}
	assert.Equal(t, []string{"connecting", "connected", "services-discovered", "polling"}, states)
	require.NotNil(t, battery)
	assert.Equal(t, 64, battery.Level)
	assert.Equal(t, connectedBuds.Address, battery.Address)
}

func TestMonitorSnapshotAndStall(t *testing.T) {
	h := newHarness(t, connectedBuds, gatt.AllPermissions...)
	h.poll(t, 12)

	snap := h.m.Snapshot()
	assert.Equal(t, "polling", snap.State)
	require.NotNil(t, snap.Level)
	assert.Equal(t, 12, *snap.Level)
	assert.Len(t, snap.RecentPolls, 1)
	assert.False(t, snap.Stalled)

	// Pretend the last read was issued long ago and never answered.
	h.m.polls.ClearRecords()
	h.m.polls.AddRecord(time.Now().Add(-3 * time.Minute))
	assert.True(t, h.m.Stalled())
}
