package bluez

import (
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

const (
	busName = "org.bluez"

	adapterInterface            = "org.bluez.Adapter1"
	deviceInterface             = "org.bluez.Device1"
	gattServiceInterface        = "org.bluez.GattService1"
	gattCharacteristicInterface = "org.bluez.GattCharacteristic1"

	propertiesInterface     = "org.freedesktop.DBus.Properties"
	propertiesGet           = propertiesInterface + ".Get"
	propertiesChangedMember = "PropertiesChanged"
	getManagedObjects       = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"

	errAlreadyConnected = "org.bluez.Error.AlreadyConnected"
	errNotConnected     = "org.bluez.Error.NotConnected"
)

// ManagedObjects is the reply of ObjectManager.GetManagedObjects.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// AdapterPath returns the object path of a controller, e.g. hci0.
func AdapterPath(name string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + name)
}

// DevicePath returns the object path BlueZ uses for address under adapter.
func DevicePath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_"))
}

func boolProp(props map[string]dbus.Variant, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func stringProp(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func pathProp(props map[string]dbus.Variant, key string) dbus.ObjectPath {
	v, ok := props[key]
	if !ok {
		return ""
	}
	p, _ := v.Value().(dbus.ObjectPath)
	return p
}

// bonded reports whether a Device1 is bonded. Older BlueZ releases only
// expose Paired.
func bonded(props map[string]dbus.Variant) bool {
	if b, ok := boolProp(props, "Bonded"); ok {
		return b
	}
	b, _ := boolProp(props, "Paired")
	return b
}

// bondedDevices extracts the bonded devices of adapter, ordered by object
// path so the order is stable across calls.
func bondedDevices(objects ManagedObjects, adapter dbus.ObjectPath) []gatt.Device {
	paths := make([]dbus.ObjectPath, 0, len(objects))
	for path, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok || pathProp(props, "Adapter") != adapter || !bonded(props) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	devices := make([]gatt.Device, 0, len(paths))
	for _, path := range paths {
		props := objects[path][deviceInterface]

		address, err := gatt.NormalizeAddress(stringProp(props, "Address"))
		if err != nil {
			logrus.WithField("path", path).WithError(err).Debug("skipping device without a valid address")
			continue
		}
		name := stringProp(props, "Name")
		if name == "" {
			name = stringProp(props, "Alias")
		}
		connected, _ := boolProp(props, "Connected")

		devices = append(devices, gatt.Device{
			Name:      name,
			Address:   address,
			Connected: connected,
		})
	}
	return devices
}

type service struct {
	uuid  bluetooth.UUID
	chars map[bluetooth.UUID]gatt.Characteristic
}

var _ gatt.Service = &service{}

func (s *service) UUID() bluetooth.UUID {
	return s.uuid
}

func (s *service) Characteristic(uuid bluetooth.UUID) (gatt.Characteristic, bool) {
	c, ok := s.chars[uuid]
	return c, ok
}

// indexServices builds the GATT tree of one device. Characteristic handles
// are their object paths.
func indexServices(objects ManagedObjects, device dbus.ObjectPath) map[bluetooth.UUID]*service {
	paths := make([]dbus.ObjectPath, 0, len(objects))
	for path := range objects {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	byPath := make(map[dbus.ObjectPath]*service)
	services := make(map[bluetooth.UUID]*service)

	for _, path := range paths {
		props, ok := objects[path][gattServiceInterface]
		if !ok || pathProp(props, "Device") != device {
			continue
		}
		uuid, err := bluetooth.ParseUUID(stringProp(props, "UUID"))
		if err != nil {
			continue
		}
		svc := &service{uuid: uuid, chars: make(map[bluetooth.UUID]gatt.Characteristic)}
		byPath[path] = svc
		// Duplicate services resolve to the lowest handle.
		if _, dup := services[uuid]; !dup {
			services[uuid] = svc
		}
	}

	for path, ifaces := range objects {
		props, ok := ifaces[gattCharacteristicInterface]
		if !ok {
			continue
		}
		svc, ok := byPath[pathProp(props, "Service")]
		if !ok {
			continue
		}
		uuid, err := bluetooth.ParseUUID(stringProp(props, "UUID"))
		if err != nil {
			continue
		}
		svc.chars[uuid] = gatt.Characteristic{
			UUID:    uuid,
			Service: svc.uuid,
			Handle:  string(path),
		}
	}

	return services
}
