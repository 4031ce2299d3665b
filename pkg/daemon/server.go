package daemon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/config"
	"github.com/charlie0129/bluebatt/pkg/devicelist"
	"github.com/charlie0129/bluebatt/pkg/events"
	"github.com/charlie0129/bluebatt/pkg/gatt"
	"github.com/charlie0129/bluebatt/pkg/looper"
	"github.com/charlie0129/bluebatt/pkg/monitor"
	"github.com/charlie0129/bluebatt/pkg/permission"
)

// Server hosts the device list screen and at most one detail screen.
type Server struct {
	conf    config.Config
	adapter gatt.Adapter
	perms   *permission.Manager
	hub     *events.EventHub
	screen  *devicelist.Screen

	// For tests.
	looperOpts []looper.Option

	// Held for the whole open/close sequence so two selections never
	// interleave.
	monMu sync.Mutex
	mon   *monitor.Monitor
}

func NewServer(conf config.Config, adapter gatt.Adapter, perms *permission.Manager) *Server {
	s := &Server{
		conf:    conf,
		adapter: adapter,
		perms:   perms,
		hub:     events.NewEventHub(),
	}
	s.screen = devicelist.NewScreen(adapter, perms, s.onDevicesRendered)
	return s
}

func (s *Server) onDevicesRendered(l *devicelist.List) {
	s.hub.Publish(events.DevicesUpdated, events.DevicesUpdatedEvent{
		Labels:  l.Labels(),
		Waiting: len(s.perms.Missing(gatt.AllPermissions...)) > 0,
		Ts:      time.Now().Unix(),
	})
}

// openMonitor replaces the current detail screen with one for sel.
func (s *Server) openMonitor(ctx context.Context, sel devicelist.Selection) *monitor.Monitor {
	s.monMu.Lock()
	defer s.monMu.Unlock()

	if s.mon != nil {
		logrus.WithField("address", s.mon.Selection().Address).Info("closing previous device")
		s.mon.Close()
		s.mon = nil
	}

	m := monitor.New(sel, s.adapter, s.perms, monitor.Options{
		PollInterval:  s.conf.PollInterval(),
		Publisher:     s.hub,
		LooperOptions: s.looperOpts,
	})
	m.Start(ctx)
	s.mon = m

	logrus.WithFields(logrus.Fields{
		"name":      sel.Name,
		"address":   sel.Address,
		"connected": sel.Connected,
	}).Info("device opened")
	return m
}

// closeMonitor tears the detail screen down. It reports whether one was open.
func (s *Server) closeMonitor() bool {
	s.monMu.Lock()
	defer s.monMu.Unlock()

	if s.mon == nil {
		return false
	}
	s.mon.Close()
	s.mon = nil
	return true
}

func (s *Server) currentMonitor() *monitor.Monitor {
	s.monMu.Lock()
	defer s.monMu.Unlock()
	return s.mon
}

// Close tears down the detail screen and ends every event stream.
func (s *Server) Close() {
	s.closeMonitor()
	s.hub.Close()
}

// Handler returns the HTTP API of s.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
