package bluez

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

const (
	probeTimeout      = 5 * time.Second
	disconnectTimeout = 10 * time.Second
	signalBufferSize  = 16
)

// Session is a GATT client session to one device.
type Session struct {
	adapter *Adapter
	path    dbus.ObjectPath
	cb      gatt.Callback
	log     *logrus.Entry

	ctx     context.Context
	cancel  context.CancelFunc
	signals chan *dbus.Signal
	wg      sync.WaitGroup

	mu          sync.Mutex
	state       gatt.ConnectionState
	initiated   bool
	discovering bool
	reading     bool
	services    map[bluetooth.UUID]*service
	closed      bool

	closeOnce sync.Once
	closeErr  error
}

var _ gatt.Session = &Session{}

func newSession(a *Adapter, path dbus.ObjectPath, cb gatt.Callback) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		adapter: a,
		path:    path,
		cb:      cb,
		log:     logrus.WithField("device", path),
		ctx:     ctx,
		cancel:  cancel,
		signals: make(chan *dbus.Signal, signalBufferSize),
		state:   gatt.StateConnecting,
	}
}

func (s *Session) matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember(propertiesChangedMember),
		dbus.WithMatchObjectPath(s.path),
	}
}

func (s *Session) device() dbus.BusObject {
	return s.adapter.conn.Object(busName, s.path)
}

// start subscribes to property changes and starts connecting. It returns
// before the link is up.
func (s *Session) start(ctx context.Context) error {
	conn := s.adapter.conn

	var connected bool
	err := s.device().
		CallWithContext(ctx, propertiesGet, 0, deviceInterface, "Connected").
		Store(&connected)
	if err != nil {
		s.cancel()
		return pkgerrors.Wrapf(err, "failed to get device %s", s.path)
	}

	if err := conn.AddMatchSignal(s.matchOptions()...); err != nil {
		s.cancel()
		return pkgerrors.Wrapf(err, "failed to watch device %s", s.path)
	}
	conn.Signal(s.signals)

	s.wg.Add(1)
	go s.watch()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if connected {
			s.log.Debug("device already connected, reusing link")
			s.reportState(gatt.StatusSuccess, gatt.StateConnected)
			return
		}
		s.connect()
	}()

	return nil
}

func (s *Session) connect() {
	s.mu.Lock()
	s.initiated = true
	s.mu.Unlock()

	err := s.device().CallWithContext(s.ctx, deviceInterface+".Connect", 0).Err
	if err != nil && !isDBusError(err, errAlreadyConnected) {
		s.log.WithError(err).Warn("failed to connect")
		s.reportState(gatt.StatusFailure, gatt.StateDisconnected)
		return
	}
	s.reportState(gatt.StatusSuccess, gatt.StateConnected)
}

func (s *Session) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			s.handleSignal(sig)
		}
	}
}

func (s *Session) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Path != s.path || sig.Name != propertiesInterface+"."+propertiesChangedMember {
		return
	}
	// Body is: interface name, changed properties, invalidated properties.
	if len(sig.Body) < 2 {
		return
	}
	if iface, _ := sig.Body[0].(string); iface != deviceInterface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	if connected, ok := boolProp(changed, "Connected"); ok {
		if connected {
			s.reportState(gatt.StatusSuccess, gatt.StateConnected)
		} else {
			s.reportState(gatt.StatusSuccess, gatt.StateDisconnected)
		}
	}
	if resolved, ok := boolProp(changed, "ServicesResolved"); ok && resolved {
		s.resolveServices()
	}
}

// reportState forwards a link change, suppressing repeats.
func (s *Session) reportState(status gatt.Status, state gatt.ConnectionState) {
	s.mu.Lock()
	if s.closed || (s.state == state && status == gatt.StatusSuccess) {
		s.mu.Unlock()
		return
	}
	s.state = state
	if state == gatt.StateDisconnected {
		s.services = nil
		s.discovering = false
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"status": status, "state": state}).Debug("connection state changed")
	s.cb.OnConnectionStateChange(status, state)
}

func (s *Session) DiscoverServices() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return gatt.ErrSessionClosed
	}
	s.discovering = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var resolved bool
		err := s.device().
			CallWithContext(s.ctx, propertiesGet, 0, deviceInterface, "ServicesResolved").
			Store(&resolved)
		if err != nil {
			s.log.WithError(err).Debug("failed to get ServicesResolved, waiting for signal")
			return
		}
		if resolved {
			s.resolveServices()
		}
	}()
	return nil
}

// resolveServices completes a pending discovery. Only the first caller
// after DiscoverServices does any work.
func (s *Session) resolveServices() {
	s.mu.Lock()
	if s.closed || !s.discovering {
		s.mu.Unlock()
		return
	}
	s.discovering = false
	s.mu.Unlock()

	objects, err := s.adapter.managedObjects(s.ctx)
	if err != nil {
		s.log.WithError(err).Debug("service discovery failed")
		s.cb.OnServicesDiscovered(gatt.StatusFailure)
		return
	}
	services := indexServices(objects, s.path)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.services = services
	s.mu.Unlock()

	s.log.WithField("services", len(services)).Debug("services discovered")
	s.cb.OnServicesDiscovered(gatt.StatusSuccess)
}

func (s *Session) Service(uuid bluetooth.UUID) (gatt.Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[uuid]
	if !ok {
		return nil, false
	}
	return svc, true
}

func (s *Session) ReadCharacteristic(c gatt.Characteristic) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return gatt.ErrSessionClosed
	}
	if s.reading {
		s.mu.Unlock()
		return gatt.ErrReadInProgress
	}
	s.reading = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var value []byte
		err := s.adapter.conn.Object(busName, dbus.ObjectPath(c.Handle)).
			CallWithContext(s.ctx, gattCharacteristicInterface+".ReadValue", 0, map[string]dbus.Variant{}).
			Store(&value)

		s.mu.Lock()
		s.reading = false
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		status := gatt.StatusSuccess
		if err != nil {
			s.log.WithError(err).WithField("characteristic", c.UUID.String()).Debug("read failed")
			status = gatt.StatusFailure
			value = nil
		}
		s.cb.OnCharacteristicRead(c, value, status)
	}()
	return nil
}

// Close stops watching the device and disconnects it if this session brought
// the link up.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		initiated := s.initiated
		s.mu.Unlock()

		conn := s.adapter.conn
		s.cancel()
		conn.RemoveSignal(s.signals)
		if err := conn.RemoveMatchSignal(s.matchOptions()...); err != nil {
			s.log.WithError(err).Debug("failed to remove signal match")
		}
		s.wg.Wait()

		if !initiated {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		err := s.device().CallWithContext(ctx, deviceInterface+".Disconnect", 0).Err
		if err != nil && !isDBusError(err, errNotConnected) {
			s.closeErr = pkgerrors.Wrapf(err, "failed to disconnect %s", s.path)
		}
	})
	return s.closeErr
}

func isDBusError(err error, name string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == name
	}
	return false
}
