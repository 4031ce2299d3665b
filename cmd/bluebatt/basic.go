package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/bluebatt/pkg/daemon"
	"github.com/charlie0129/bluebatt/pkg/devicelist"
	"github.com/charlie0129/bluebatt/pkg/monitor"
	"github.com/charlie0129/bluebatt/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func printDevices(cmd *cobra.Command, devices *daemon.DevicesResponse) {
	if devices.Waiting {
		cmd.Println("Waiting for Bluetooth permissions. Grant them with 'bluebatt permission connect grant' and 'bluebatt permission scan grant'.")
	}
	for i, row := range devices.Rows {
		if row.Kind == devicelist.RowHeader {
			cmd.Println(bold("%s", row.Label))
			continue
		}
		cmd.Printf("  [%d] %s\n", i, row.Label)
	}
}

func NewDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Short:   "List paired Bluetooth devices",
		GroupID: gBasic,
		Long: `List the Bluetooth devices this computer is paired with.

The device that is connected right now is listed first. Pick one with 'bluebatt select <number>'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := apiClient.GetDevices()
			if err != nil {
				return err
			}
			printDevices(cmd, devices)
			return nil
		},
	}
}

func printSnapshot(cmd *cobra.Command, snap *monitor.Snapshot) {
	cmd.Println(snap.Text)
}

// resolveRow turns a row number or an address into the address of a device
// row. Numbers are looked up in devices, which the caller fetched just now.
func resolveRow(devices *daemon.DevicesResponse, arg string) (string, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		// Not a number, let the daemon validate it as an address.
		return arg, nil
	}
	if index < 0 || index >= len(devices.Rows) {
		return "", fmt.Errorf("no row %d, run 'bluebatt devices' to see the list", index)
	}
	row := devices.Rows[index]
	if row.Kind != devicelist.RowDevice {
		return "", fmt.Errorf("row %d (%q) is not a device", index, row.Label)
	}
	return row.Address, nil
}

func NewSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "select [number|address]",
		Short:   "Open a device from the device list",
		GroupID: gBasic,
		Args:    cobra.ExactArgs(1),
		Long: `Open a device from the device list and start reading its battery level.

Pass either the number shown by 'bluebatt devices' or the device address. A number is matched
against the list as it is now, and the device it resolves to is printed before it is opened.
Any previously opened device is closed first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := apiClient.GetDevices()
			if err != nil {
				return err
			}

			address, err := resolveRow(devices, args[0])
			if err != nil {
				return err
			}

			snap, err := apiClient.SelectDevice(address)
			if err != nil {
				return fmt.Errorf("failed to select device %s: %w", address, err)
			}

			logrus.Infof("opened %s (%s)", snap.Selection.Name, snap.Selection.Address)
			printSnapshot(cmd, snap)
			return nil
		},
	}
}

func NewMonitorCommand() *cobra.Command {
	var sel devicelist.Selection

	cmd := &cobra.Command{
		Use:     "monitor",
		Short:   "Open a device by address",
		GroupID: gBasic,
		Long: `Open a device by its hardware address, without going through the device list.

Unless --connected is given, the device is treated as not connected and no battery level is read.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sel.Address == "" {
				return fmt.Errorf("--address is required")
			}
			if sel.Name == "" {
				sel.Name = sel.Address
			}

			snap, err := apiClient.OpenDevice(sel)
			if err != nil {
				return err
			}

			printSnapshot(cmd, snap)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&sel.Address, "address", "", "hardware address, e.g. AA:BB:CC:DD:EE:FF")
	f.StringVar(&sel.Name, "name", "", "name to display, defaults to the address")
	f.BoolVar(&sel.Connected, "connected", false, "whether the device is connected")

	return cmd
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Close the open device",
		GroupID: gBasic,
		Long:    `Stop reading the battery level and release the connection to the open device.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.CloseDevice()
			if err != nil {
				return err
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}
