package client

import (
	"encoding/json"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/bluebatt/pkg/config"
	"github.com/charlie0129/bluebatt/pkg/daemon"
	"github.com/charlie0129/bluebatt/pkg/devicelist"
	"github.com/charlie0129/bluebatt/pkg/gatt"
	"github.com/charlie0129/bluebatt/pkg/monitor"
)

func (c *Client) GetDevices() (*daemon.DevicesResponse, error) {
	ret, err := c.Get("/devices")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get devices")
	}

	var devices daemon.DevicesResponse
	if err := json.Unmarshal([]byte(ret), &devices); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal devices")
	}

	return &devices, nil
}

// SelectDevice opens the device row showing address in the daemon's current
// device list. It fails with a 409 if the list no longer shows it.
func (c *Client) SelectDevice(address string) (*monitor.Snapshot, error) {
	payload, err := json.Marshal(address)
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/devices/select", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to select device")
	}
	return parseSnapshot(ret)
}

// OpenDevice opens a device without going through the device list.
func (c *Client) OpenDevice(sel devicelist.Selection) (*monitor.Snapshot, error) {
	payload, err := json.Marshal(sel)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/monitor", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open device")
	}
	return parseSnapshot(ret)
}

func (c *Client) GetMonitor() (*monitor.Snapshot, error) {
	ret, err := c.Get("/monitor")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get device status")
	}
	return parseSnapshot(ret)
}

func (c *Client) CloseDevice() (string, error) {
	ret, err := c.Delete("/monitor")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to close device")
	}
	return unquote(ret), nil
}

func (c *Client) GetPermissions() (*daemon.PermissionsResponse, error) {
	ret, err := c.Get("/permissions")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get permissions")
	}

	var perms daemon.PermissionsResponse
	if err := json.Unmarshal([]byte(ret), &perms); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal permissions")
	}

	return &perms, nil
}

func (c *Client) SetPermission(p gatt.Permission, granted bool) (string, error) {
	ret, err := c.Put("/permissions/"+string(p), strconv.FormatBool(granted))
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) SetPollInterval(seconds int) (string, error) {
	ret, err := c.Put("/poll-interval", strconv.Itoa(seconds))
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

func parseSnapshot(ret string) (*monitor.Snapshot, error) {
	var snap monitor.Snapshot
	if err := json.Unmarshal([]byte(ret), &snap); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal device status")
	}
	return &snap, nil
}

// unquote turns a JSON string reply into plain text. Anything else is
// returned as is.
func unquote(resp string) string {
	resp = strings.TrimSpace(resp)
	var s string
	if err := json.Unmarshal([]byte(resp), &s); err != nil {
		return resp
	}
	return s
}
