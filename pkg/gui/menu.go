package gui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/client"
	"github.com/charlie0129/bluebatt/pkg/daemon"
	"github.com/charlie0129/bluebatt/pkg/devicelist"
	"github.com/charlie0129/bluebatt/pkg/monitor"
)

// systray cannot remove menu items, so the device submenu is a fixed pool of
// slots that are retitled and hidden as the list changes.
const deviceSlots = 16

// menuController owns the tray menu.
type menuController struct {
	api *client.Client

	nameItem    *systray.MenuItem
	addressItem *systray.MenuItem
	batteryItem *systray.MenuItem
	waitingItem *systray.MenuItem
	devicesItem *systray.MenuItem
	refreshItem *systray.MenuItem
	stopItem    *systray.MenuItem
	quitItem    *systray.MenuItem

	mu    sync.Mutex
	slots []*systray.MenuItem
	// slotAddress maps a slot to the address of its device row, empty for
	// headers and hidden slots.
	slotAddress []string
}

func newMenuController(api *client.Client) *menuController {
	return &menuController{api: api}
}

func (c *menuController) build() {
	systray.SetTitle(trayTitle(nil))
	systray.SetTooltip("bluebatt - Bluetooth battery level")

	c.nameItem = systray.AddMenuItem("No device open", "Open device")
	c.nameItem.Disable()
	c.addressItem = systray.AddMenuItem("", "Hardware address")
	c.addressItem.Disable()
	c.addressItem.Hide()
	c.batteryItem = systray.AddMenuItem(monitor.FallbackText, "Battery level")
	c.batteryItem.Disable()
	c.waitingItem = systray.AddMenuItem("Waiting for Bluetooth permissions", "Grant them with 'bluebatt permission'")
	c.waitingItem.Disable()
	c.waitingItem.Hide()

	systray.AddSeparator()

	c.devicesItem = systray.AddMenuItem("Devices", "Paired Bluetooth devices")
	for i := 0; i < deviceSlots; i++ {
		slot := c.devicesItem.AddSubMenuItem("", "")
		slot.Hide()
		c.slots = append(c.slots, slot)
		c.slotAddress = append(c.slotAddress, "")
	}
	c.refreshItem = systray.AddMenuItem("Refresh", "Reload the device list")
	c.stopItem = systray.AddMenuItem("Close Device", "Stop reading the battery level")

	systray.AddSeparator()
	c.quitItem = systray.AddMenuItem("Quit", "Quit the tray icon, the daemon keeps running")

	c.refreshDevices()
	c.refreshMonitor()
}

func (c *menuController) handleClicks(ctx context.Context) {
	for i := range c.slots {
		go func(i int) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.slots[i].ClickedCh:
					c.selectSlot(i)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.refreshItem.ClickedCh:
			c.refreshDevices()
		case <-c.stopItem.ClickedCh:
			if _, err := c.api.CloseDevice(); err != nil {
				logrus.WithError(err).Error("failed to close device")
			}
			c.refreshMonitor()
		case <-c.quitItem.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (c *menuController) selectSlot(i int) {
	c.mu.Lock()
	address := c.slotAddress[i]
	c.mu.Unlock()
	if address == "" {
		return
	}

	snap, err := c.api.SelectDevice(address)
	if err != nil {
		logrus.WithError(err).WithField("address", address).Error("failed to select device")
		// The device may have been unpaired since the menu was filled.
		c.refreshDevices()
		return
	}
	c.showSnapshot(snap)
}

func (c *menuController) refreshDevices() {
	devices, err := c.api.GetDevices()
	if err != nil {
		logrus.WithError(err).Warn("cannot connect to daemon")
		systray.SetTitle("🚫 Offline")
		return
	}
	c.setWaiting(devices.Waiting)
	c.setDevices(devices)
}

func (c *menuController) setDevices(devices *daemon.DevicesResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(devices.Rows) > len(c.slots) {
		logrus.Warnf("only the first %d of %d rows fit the menu", len(c.slots), len(devices.Rows))
	}

	for i, slot := range c.slots {
		if i >= len(devices.Rows) {
			c.slotAddress[i] = ""
			slot.Hide()
			continue
		}
		row := devices.Rows[i]
		slot.SetTitle(row.Label)
		if row.Kind == devicelist.RowHeader {
			c.slotAddress[i] = ""
			slot.Disable()
		} else {
			c.slotAddress[i] = row.Address
			slot.Enable()
		}
		slot.Show()
	}
}

func (c *menuController) setWaiting(waiting bool) {
	if waiting {
		c.waitingItem.Show()
	} else {
		c.waitingItem.Hide()
	}
}

func (c *menuController) refreshMonitor() {
	snap, err := c.api.GetMonitor()
	if errors.Is(err, client.ErrNotFound) {
		c.nameItem.SetTitle("No device open")
		c.addressItem.Hide()
		c.batteryItem.SetTitle(monitor.FallbackText)
		systray.SetTitle(trayTitle(nil))
		return
	}
	if err != nil {
		logrus.WithError(err).Warn("failed to get device status")
		return
	}
	c.showSnapshot(snap)
}

func (c *menuController) showSnapshot(snap *monitor.Snapshot) {
	c.nameItem.SetTitle(fmt.Sprintf("%s (%s)", snap.Selection.Name, snap.State))
	c.addressItem.SetTitle(snap.Selection.Address)
	c.addressItem.Show()
	c.setDisplay(snap.Text, snap.Level)
}

func (c *menuController) setDisplay(text string, level *int) {
	c.batteryItem.SetTitle(lastLine(text))
	systray.SetTitle(trayTitle(level))
}

func trayTitle(level *int) string {
	if level == nil {
		return "🔋 -"
	}
	return fmt.Sprintf("🔋 %d%%", *level)
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	return lines[len(lines)-1]
}
