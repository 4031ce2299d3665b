package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

const hci0 = dbus.ObjectPath("/org/bluez/hci0")

func device(address, name, alias string, connected bool, extra map[string]any) map[string]map[string]dbus.Variant {
	props := map[string]dbus.Variant{
		"Adapter":   dbus.MakeVariant(hci0),
		"Address":   dbus.MakeVariant(address),
		"Connected": dbus.MakeVariant(connected),
	}
	if name != "" {
		props["Name"] = dbus.MakeVariant(name)
	}
	if alias != "" {
		props["Alias"] = dbus.MakeVariant(alias)
	}
	for k, v := range extra {
		props[k] = dbus.MakeVariant(v)
	}
	return map[string]map[string]dbus.Variant{deviceInterface: props}
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, hci0, AdapterPath("hci0"))
	assert.Equal(t,
		dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_0F"),
		DevicePath(hci0, "aa:bb:cc:dd:ee:0f"))
}

func TestBondedDevices(t *testing.T) {
	objects := ManagedObjects{
		"/org/bluez/hci0/dev_00_00_00_00_00_0B": device("00:00:00:00:00:0B", "B", "", false, map[string]any{"Bonded": true}),
		"/org/bluez/hci0/dev_00_00_00_00_00_0A": device("00:00:00:00:00:0a", "A", "", true, map[string]any{"Bonded": true}),
		// Old BlueZ without Bonded.
		"/org/bluez/hci0/dev_00_00_00_00_00_0C": device("00:00:00:00:00:0C", "", "Alias C", false, map[string]any{"Paired": true}),
		// Bonded wins over Paired.
		"/org/bluez/hci0/dev_00_00_00_00_00_0D": device("00:00:00:00:00:0D", "D", "", false, map[string]any{"Bonded": false, "Paired": true}),
		// Seen but never paired.
		"/org/bluez/hci0/dev_00_00_00_00_00_0E": device("00:00:00:00:00:0E", "E", "", false, nil),
		// Invalid address.
		"/org/bluez/hci0/dev_bogus": device("bogus", "F", "", false, map[string]any{"Bonded": true}),
		"/org/bluez/hci0": {
			adapterInterface: {"Address": dbus.MakeVariant("11:22:33:44:55:66")},
		},
	}
	// A device on another controller.
	other := device("00:00:00:00:00:01", "Other", "", true, map[string]any{"Bonded": true})
	other[deviceInterface]["Adapter"] = dbus.MakeVariant(dbus.ObjectPath("/org/bluez/hci1"))
	objects["/org/bluez/hci1/dev_00_00_00_00_00_01"] = other

	assert.Equal(t, []gatt.Device{
		{Name: "A", Address: "00:00:00:00:00:0A", Connected: true},
		{Name: "B", Address: "00:00:00:00:00:0B"},
		{Name: "Alias C", Address: "00:00:00:00:00:0C"},
	}, bondedDevices(objects, hci0))
}

func TestIndexServices(t *testing.T) {
	dev := dbus.ObjectPath("/org/bluez/hci0/dev_00_00_00_00_00_0A")
	svc := func(uuid string, device dbus.ObjectPath) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{gattServiceInterface: {
			"UUID":   dbus.MakeVariant(uuid),
			"Device": dbus.MakeVariant(device),
		}}
	}
	char := func(uuid string, service dbus.ObjectPath) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{gattCharacteristicInterface: {
			"UUID":    dbus.MakeVariant(uuid),
			"Service": dbus.MakeVariant(service),
		}}
	}

	objects := ManagedObjects{
		dev + "/service0010":          svc("0000180f-0000-1000-8000-00805f9b34fb", dev),
		dev + "/service0010/char0011": char("00002a19-0000-1000-8000-00805f9b34fb", dev+"/service0010"),
		dev + "/service0020":          svc("0000180a-0000-1000-8000-00805f9b34fb", dev),
		dev + "/service0020/char0021": char("00002a29-0000-1000-8000-00805f9b34fb", dev+"/service0020"),
		// Another device exposing the same service must not leak in.
		"/org/bluez/hci0/dev_00_00_00_00_00_0B/service0010": svc("0000180f-0000-1000-8000-00805f9b34fb", "/org/bluez/hci0/dev_00_00_00_00_00_0B"),
	}

	services := indexServices(objects, dev)
	require.Len(t, services, 2)

	battery, ok := services[gatt.BatteryService]
	require.True(t, ok)
	assert.Equal(t, gatt.BatteryService, battery.UUID())

	c, ok := battery.Characteristic(gatt.BatteryLevel)
	require.True(t, ok)
	assert.Equal(t, string(dev+"/service0010/char0011"), c.Handle)
	assert.Equal(t, gatt.BatteryService, c.Service)

	// 0x2A19 is a characteristic, never a service.
	_, ok = services[gatt.BatteryLevel]
	assert.False(t, ok)

	_, ok = services[bluetooth.New16BitUUID(0x180a)].Characteristic(gatt.BatteryLevel)
	assert.False(t, ok)
}

func TestIsDBusError(t *testing.T) {
	err := dbus.Error{Name: errAlreadyConnected}
	assert.True(t, isDBusError(err, errAlreadyConnected))
	assert.True(t, isDBusError(&err, errAlreadyConnected))
	assert.False(t, isDBusError(err, errNotConnected))
	assert.False(t, isDBusError(assert.AnError, errAlreadyConnected))
}
