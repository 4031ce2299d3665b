package devicelist

import (
	"context"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

// Screen is the device list controller. Every Show re-queries the bonded set
// and replaces the rendered list wholesale.
type Screen struct {
	adapter  gatt.Adapter
	auth     gatt.Authorizer
	onRender func(*List)

	mu      sync.Mutex
	list    *List
	waiting bool
}

// NewScreen creates a list screen. onRender, if not nil, is called after every
// render, possibly from the goroutine that resolves a permission request.
func NewScreen(adapter gatt.Adapter, auth gatt.Authorizer, onRender func(*List)) *Screen {
	return &Screen{
		adapter:  adapter,
		auth:     auth,
		onRender: onRender,
		list:     Empty(),
	}
}

// Show renders the list. Without connect and scan authorization it renders an
// empty list, asks for the missing permissions and makes no Bluetooth calls;
// a granted answer triggers a fresh render.
func (s *Screen) Show(ctx context.Context) (*List, error) {
	missing := s.auth.Missing(gatt.AllPermissions...)
	if len(missing) > 0 {
		logrus.WithField("missing", missing).Info("bluetooth permissions missing, device list left empty")
		empty := Empty()
		s.render(empty)
		s.request(ctx, missing)
		return empty, nil
	}

	return s.refresh(ctx)
}

// Waiting reports whether a permission request is outstanding.
func (s *Screen) Waiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// List returns the last rendered list.
func (s *Screen) List() *List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list
}

func (s *Screen) request(ctx context.Context, missing []gatt.Permission) {
	s.mu.Lock()
	if s.waiting {
		s.mu.Unlock()
		return
	}
	s.waiting = true
	s.mu.Unlock()

	// The answer can arrive long after the request that triggered it.
	bg := context.WithoutCancel(ctx)
	s.auth.Request(missing, func(granted bool) {
		s.mu.Lock()
		s.waiting = false
		s.mu.Unlock()

		if !granted {
			logrus.WithField("permissions", missing).Info("bluetooth permissions denied")
			return
		}
		logrus.WithField("permissions", missing).Info("bluetooth permissions granted, reloading device list")
		if _, err := s.refresh(bg); err != nil {
			logrus.WithError(err).Warn("failed to reload device list")
		}
	})
}

func (s *Screen) refresh(ctx context.Context) (*List, error) {
	devices, err := s.adapter.BondedDevices(ctx)
	if err != nil {
		empty := Empty()
		s.render(empty)
		return empty, pkgerrors.Wrapf(err, "failed to enumerate bonded devices")
	}

	l := Build(devices)
	logrus.WithField("devices", len(devices)).Debug("device list rendered")
	s.render(l)
	return l, nil
}

func (s *Screen) render(l *List) {
	s.mu.Lock()
	s.list = l
	s.mu.Unlock()

	if s.onRender != nil {
		s.onRender(l)
	}
}
