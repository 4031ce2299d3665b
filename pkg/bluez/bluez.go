// Package bluez implements gatt.Adapter on top of the BlueZ D-Bus API.
package bluez

import (
	"context"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

// Adapter is one local controller, e.g. hci0.
type Adapter struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

var _ gatt.Adapter = &Adapter{}

func New(conn *dbus.Conn, name string) *Adapter {
	return &Adapter{
		conn: conn,
		path: AdapterPath(name),
	}
}

func (a *Adapter) managedObjects(ctx context.Context) (ManagedObjects, error) {
	objects := make(ManagedObjects)
	err := a.conn.Object(busName, "/").
		CallWithContext(ctx, getManagedObjects, 0).
		Store(&objects)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get managed objects from %s", busName)
	}
	return objects, nil
}

func (a *Adapter) BondedDevices(ctx context.Context) ([]gatt.Device, error) {
	objects, err := a.managedObjects(ctx)
	if err != nil {
		return nil, err
	}
	devices := bondedDevices(objects, a.path)
	logrus.WithFields(logrus.Fields{
		"adapter": a.path,
		"count":   len(devices),
	}).Debug("enumerated bonded devices")
	return devices, nil
}

func (a *Adapter) ConnectGatt(ctx context.Context, address string, cb gatt.Callback) (gatt.Session, error) {
	address, err := gatt.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	s := newSession(a, DevicePath(a.path, address), cb)
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Allowed probes whether the bus lets this process use p. It implements
// permission.Probe.
func (a *Adapter) Allowed(p gatt.Permission) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	var err error
	switch p {
	case gatt.PermissionConnect:
		_, err = a.managedObjects(ctx)
	case gatt.PermissionScan:
		var discovering bool
		err = a.conn.Object(busName, a.path).
			CallWithContext(ctx, propertiesGet, 0, adapterInterface, "Discovering").
			Store(&discovering)
	default:
		return false
	}
	if err != nil {
		logrus.WithField("permission", p).WithError(err).Debug("permission probe failed")
		return false
	}
	return true
}
