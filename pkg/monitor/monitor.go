// Package monitor implements the device detail screen: it owns one GATT
// session to the selected device and polls its battery level.
//
// All state transitions run on the monitor's looper. Platform callbacks are
// posted there before they are handled, so handlers never race each other.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/devicelist"
	"github.com/charlie0129/bluebatt/pkg/display"
	"github.com/charlie0129/bluebatt/pkg/events"
	"github.com/charlie0129/bluebatt/pkg/gatt"
	"github.com/charlie0129/bluebatt/pkg/looper"
)

const (
	// DefaultPollInterval is the delay between a successful read and the
	// next one.
	DefaultPollInterval = 60 * time.Second

	// FallbackText is shown when the device is not connected or the
	// permissions are missing.
	FallbackText = "Bluetooth permissions not granted or device not connected."

	pollRecordCount = 60
)

// State is a step of the connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateServicesDiscovered
	StatePolling
	// StateClosed is entered on teardown and never left.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateServicesDiscovered:
		return "services-discovered"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options tune a Monitor. The zero value is usable.
type Options struct {
	PollInterval  time.Duration
	Publisher     events.Publisher
	LooperOptions []looper.Option
}

// Monitor is the detail screen controller for one selected device.
type Monitor struct {
	sel      devicelist.Selection
	adapter  gatt.Adapter
	auth     gatt.Authorizer
	interval time.Duration
	pub      events.Publisher
	loop     *looper.Looper
	text     display.Text
	polls    *PollRecorder
	log      *logrus.Entry

	// Owned by loop.
	session gatt.Session
	tick    *looper.Task

	mu       sync.RWMutex
	state    State
	level    int
	hasLevel bool

	closeOnce sync.Once
}

// New creates a monitor for sel. Nothing happens until Start.
func New(sel devicelist.Selection, adapter gatt.Adapter, auth gatt.Authorizer, opts Options) *Monitor {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	pub := opts.Publisher
	if pub == nil {
		pub = nopPublisher{}
	}
	return &Monitor{
		sel:      sel,
		adapter:  adapter,
		auth:     auth,
		interval: interval,
		pub:      pub,
		loop:     looper.New("monitor "+sel.Address, opts.LooperOptions...),
		polls:    NewPollRecorder(pollRecordCount),
		log: logrus.WithFields(logrus.Fields{
			"device":  sel.Name,
			"address": sel.Address,
		}),
		state: StateDisconnected,
	}
}

// Selection returns the device this monitor was opened for.
func (m *Monitor) Selection() devicelist.Selection {
	return m.sel
}

// Start enters the screen. It returns once the entry step has run; the
// connection then proceeds asynchronously.
func (m *Monitor) Start(ctx context.Context) {
	m.runSync(func() { m.enter(ctx) })
}

// Close tears the screen down: the pending poll is cancelled, the session is
// released and the looper stops. It must not be called from a callback.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		m.runSync(m.teardown)
		m.loop.Stop()
		<-m.loop.Done()
	})
}

func (m *Monitor) runSync(f func()) {
	done := make(chan struct{})
	if !m.loop.Post(func() {
		defer close(done)
		f()
	}) {
		return
	}
	<-done
}

func (m *Monitor) enter(ctx context.Context) {
	if !m.sel.Connected {
		m.log.Info("device is not connected, showing fallback")
		m.text.Set(FallbackText)
		return
	}

	if missing := m.auth.Missing(gatt.AllPermissions...); len(missing) > 0 {
		m.log.WithField("missing", missing).Info("bluetooth permissions missing, showing fallback")
		m.text.Set(FallbackText)
		// The answer can arrive long after the call that opened the screen.
		bg := context.WithoutCancel(ctx)
		m.auth.Request(missing, func(granted bool) {
			if !granted {
				m.log.WithField("permissions", missing).Info("bluetooth permissions denied")
				return
			}
			// Start over, as if the screen had just been opened. A closed
			// monitor has a stopped looper and drops the post.
			m.loop.Post(func() {
				if m.State() == StateClosed {
					return
				}
				m.log.WithField("permissions", missing).Info("bluetooth permissions granted, restarting")
				m.enter(bg)
			})
		})
		return
	}

	m.text.Set(fmt.Sprintf("%s\n%s\n%s", m.sel.Name, m.sel.Address, display.BatteryLine(0)))
	m.connect(ctx)
}

func (m *Monitor) connect(ctx context.Context) {
	if m.session != nil {
		return
	}

	m.setState(StateConnecting)
	session, err := m.adapter.ConnectGatt(ctx, m.sel.Address, callback{m: m})
	if err != nil {
		m.log.WithError(err).Warn("failed to open gatt session")
		m.setState(StateDisconnected)
		return
	}
	m.session = session
}

func (m *Monitor) teardown() {
	m.tick.Cancel()
	m.tick = nil
	m.release()
	m.setState(StateClosed)
	m.pub.Publish(events.MonitorClosed, events.MonitorClosedEvent{
		Address: m.sel.Address,
		Ts:      time.Now().Unix(),
	})
}

func (m *Monitor) release() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.log.WithError(err).Warn("failed to close gatt session")
	}
	m.session = nil
}

func (m *Monitor) onConnectionStateChange(status gatt.Status, newState gatt.ConnectionState) {
	if m.session == nil || m.State() == StateClosed {
		return
	}
	m.log.WithFields(logrus.Fields{
		"status": status,
		"state":  newState,
	}).Debug("connection state changed")

	switch newState {
	case gatt.StateConnected:
		m.setState(StateConnected)
		if err := m.session.DiscoverServices(); err != nil {
			m.log.WithError(err).Debug("service discovery not started")
		}
	case gatt.StateDisconnected:
		m.release()
		m.setState(StateDisconnected)
	}
}

func (m *Monitor) onServicesDiscovered(status gatt.Status) {
	if m.session == nil {
		return
	}
	if status != gatt.StatusSuccess {
		m.log.Debug("service discovery failed")
		return
	}
	m.setState(StateServicesDiscovered)
	m.readBattery()
}

func (m *Monitor) onCharacteristicRead(c gatt.Characteristic, value []byte, status gatt.Status) {
	if m.session == nil {
		return
	}
	if status != gatt.StatusSuccess || c.UUID != gatt.BatteryLevel || len(value) == 0 {
		m.log.WithFields(logrus.Fields{
			"status":         status,
			"characteristic": c.UUID.String(),
			"length":         len(value),
		}).Debug("ignoring characteristic read")
		return
	}

	level := int(value[0])

	m.mu.Lock()
	m.level = level
	m.hasLevel = true
	m.mu.Unlock()

	if !m.text.UpdateBattery(level) {
		m.log.Debug("display has no battery line, reading not shown")
	}
	m.log.WithField("level", level).Debug("battery level read")
	m.pub.Publish(events.MonitorBattery, events.MonitorBatteryEvent{
		Address: m.sel.Address,
		Level:   level,
		Text:    m.text.String(),
		Ts:      time.Now().Unix(),
	})

	m.setState(StatePolling)
	m.tick.Cancel()
	m.tick = m.loop.PostDelayed(m.interval, m.onTick)
}

func (m *Monitor) onTick() {
	m.tick = nil
	if m.session == nil {
		return
	}
	m.readBattery()
}

func (m *Monitor) readBattery() {
	svc, ok := m.session.Service(gatt.BatteryService)
	if !ok {
		m.log.Debug("battery service not found")
		return
	}
	c, ok := svc.Characteristic(gatt.BatteryLevel)
	if !ok {
		m.log.Debug("battery level characteristic not found")
		return
	}
	if missing := m.auth.Missing(gatt.PermissionConnect); len(missing) > 0 {
		m.log.Debug("connect permission revoked, skipping read")
		return
	}
	if err := m.session.ReadCharacteristic(c); err != nil {
		m.log.WithError(err).Debug("battery read not issued")
		return
	}
	m.polls.AddRecordNow()
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	from := m.state
	m.state = s
	m.mu.Unlock()

	if from == s {
		return
	}
	m.log.WithFields(logrus.Fields{"from": from, "to": s}).Info("monitor state changed")
	m.pub.Publish(events.MonitorState, events.MonitorStateEvent{
		Address: m.sel.Address,
		From:    from.String(),
		To:      s.String(),
		Ts:      time.Now().Unix(),
	})
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Text returns what the detail screen currently displays.
func (m *Monitor) Text() string {
	return m.text.String()
}

// Level returns the last battery reading.
func (m *Monitor) Level() (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level, m.hasLevel
}

// Stalled reports whether the monitor claims to be polling but has not issued
// a read for two poll intervals, e.g. because a read callback never arrived.
func (m *Monitor) Stalled() bool {
	if m.State() != StatePolling {
		return false
	}
	last := m.polls.GetLastRecord()
	return !last.IsZero() && time.Since(last) > 2*m.interval
}

// Snapshot is a point-in-time view of the detail screen.
type Snapshot struct {
	Selection       devicelist.Selection `json:"selection"`
	State           string               `json:"state"`
	Text            string               `json:"text"`
	Level           *int                 `json:"level,omitempty"`
	PollInterval    string               `json:"pollInterval"`
	RecentPolls     []string             `json:"recentPolls,omitempty"`
	ContinuousPolls int                  `json:"continuousPolls"`
	Stalled         bool                 `json:"stalled"`
}

// Snapshot returns the current view.
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		Selection:       m.sel,
		State:           m.State().String(),
		Text:            m.Text(),
		PollInterval:    m.interval.String(),
		RecentPolls:     m.polls.GetRecordsString(),
		ContinuousPolls: m.polls.GetRecordsIn(10*m.interval, m.interval),
		Stalled:         m.Stalled(),
	}
	if level, ok := m.Level(); ok {
		s.Level = &level
	}
	return s
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// callback marshals platform callbacks onto the monitor's looper.
type callback struct {
	m *Monitor
}

func (c callback) OnConnectionStateChange(status gatt.Status, newState gatt.ConnectionState) {
	c.m.loop.Post(func() { c.m.onConnectionStateChange(status, newState) })
}

func (c callback) OnServicesDiscovered(status gatt.Status) {
	c.m.loop.Post(func() { c.m.onServicesDiscovered(status) })
}

func (c callback) OnCharacteristicRead(ch gatt.Characteristic, value []byte, status gatt.Status) {
	buf := append([]byte(nil), value...)
	c.m.loop.Post(func() { c.m.onCharacteristicRead(ch, buf, status) })
}
