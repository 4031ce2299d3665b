package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

func NewPermissionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "permission",
		Short:   "Grant or revoke Bluetooth permissions",
		GroupID: gAdvanced,
		Long: `Grant or revoke the Bluetooth permissions bluebatt needs.

bluebatt needs both 'connect' and 'scan' to list devices and read their battery level. When one is missing, the device list stays empty until you answer with grant or revoke. Answers are saved to the config file.`,
	}

	cmd.AddCommand(
		newPermissionCommand(gatt.PermissionConnect, "permission to connect to paired devices"),
		newPermissionCommand(gatt.PermissionScan, "permission to look up paired devices"),
	)

	return cmd
}

func newPermissionCommand(p gatt.Permission, short string) *cobra.Command {
	return newGrantRevokeCommand(
		string(p),
		short,
		fmt.Sprintf("Grant or revoke the %s %s.", p, short),
		func() (string, error) { return apiClient.SetPermission(p, true) },
		func() (string, error) { return apiClient.SetPermission(p, false) },
	)
}

func NewPollIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "poll-interval [seconds]",
		Short:   "Set how often the battery level is read",
		GroupID: gAdvanced,
		Long: `Set how many seconds to wait after a successful battery read before reading again.

The default is 60. The new interval applies to devices opened afterwards.`,
		RunE: func(_ *cobra.Command, args []string) error {
			seconds, err := parseIntArg(args, "seconds")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetPollInterval(seconds)
			if err != nil {
				return fmt.Errorf("failed to set poll interval: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			return nil
		},
	}
}
