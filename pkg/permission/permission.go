// Package permission decides which Bluetooth capabilities bluebatt may use.
//
// A capability is granted when the user granted it in the config file and
// the platform lets the daemon use it. Requests for missing capabilities stay
// pending until the user answers through the daemon API.
package permission

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/config"
	"github.com/charlie0129/bluebatt/pkg/gatt"
)

// Probe reports whether the platform allows a capability.
type Probe interface {
	Allowed(p gatt.Permission) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(p gatt.Permission) bool

func (f ProbeFunc) Allowed(p gatt.Permission) bool { return f(p) }

// Status is the state of one capability.
type Status struct {
	Name      gatt.Permission `json:"name"`
	Granted   bool            `json:"granted"`
	Available bool            `json:"available"`
	Answered  bool            `json:"answered"`
}

type request struct {
	perms  []gatt.Permission
	result func(bool)
}

// Manager implements gatt.Authorizer on top of the config file.
type Manager struct {
	conf  config.Config
	probe Probe

	mu       sync.Mutex
	pending  []request
	answered map[gatt.Permission]bool
}

var _ gatt.Authorizer = &Manager{}

// NewManager returns a Manager. A nil probe allows everything.
func NewManager(conf config.Config, probe Probe) *Manager {
	if probe == nil {
		probe = ProbeFunc(func(gatt.Permission) bool { return true })
	}
	return &Manager{
		conf:     conf,
		probe:    probe,
		answered: make(map[gatt.Permission]bool),
	}
}

func (m *Manager) Missing(perms ...gatt.Permission) []gatt.Permission {
	var missing []gatt.Permission
	for _, p := range perms {
		if !m.conf.Granted(p) || !m.probe.Allowed(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func (m *Manager) Request(perms []gatt.Permission, result func(bool)) {
	missing := m.Missing(perms...)
	if len(missing) == 0 {
		result(true)
		return
	}

	m.mu.Lock()
	if m.allAnswered(missing) {
		m.mu.Unlock()
		logrus.WithField("missing", missing).Debug("permissions already refused")
		result(false)
		return
	}
	m.pending = append(m.pending, request{perms: perms, result: result})
	m.mu.Unlock()

	logrus.WithField("missing", missing).Info("bluetooth permissions requested, grant them with 'bluebatt permission'")
}

// Set records the user's answer for p, persists it, and resolves the pending
// requests that can now be decided.
func (m *Manager) Set(p gatt.Permission, granted bool) error {
	if _, err := gatt.ParsePermission(string(p)); err != nil {
		return err
	}

	m.conf.SetGranted(p, granted)
	if err := m.conf.Save(); err != nil {
		return pkgerrors.Wrapf(err, "failed to save permission %s", p)
	}

	m.mu.Lock()
	m.answered[p] = true
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	// The probe can take D-Bus round trips, so it runs without the lock.
	missing := make([][]gatt.Permission, len(pending))
	for i, r := range pending {
		missing[i] = m.Missing(r.perms...)
	}

	m.mu.Lock()
	var ready []func()
	var remaining []request
	for i, r := range pending {
		switch {
		case len(missing[i]) == 0:
			ready = append(ready, func() { r.result(true) })
		case m.allAnswered(missing[i]):
			ready = append(ready, func() { r.result(false) })
		default:
			remaining = append(remaining, r)
		}
	}
	// Requests queued while probing go after the older ones.
	m.pending = append(remaining, m.pending...)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"permission": p,
		"granted":    granted,
		"resolved":   len(ready),
	}).Info("permission answered")

	for _, f := range ready {
		f()
	}
	return nil
}

// Pending returns the number of unresolved requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Statuses returns the state of every capability.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	answered := make(map[gatt.Permission]bool, len(m.answered))
	for p, ok := range m.answered {
		answered[p] = ok
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(gatt.AllPermissions))
	for _, p := range gatt.AllPermissions {
		out = append(out, Status{
			Name:      p,
			Granted:   m.conf.Granted(p),
			Available: m.probe.Allowed(p),
			Answered:  answered[p],
		})
	}
	return out
}

// Must be called with m.mu held.
func (m *Manager) allAnswered(perms []gatt.Permission) bool {
	for _, p := range perms {
		if !m.answered[p] {
			return false
		}
	}
	return true
}
