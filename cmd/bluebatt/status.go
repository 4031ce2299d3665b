package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/bluebatt/pkg/client"
	"github.com/charlie0129/bluebatt/pkg/config"
	"github.com/charlie0129/bluebatt/pkg/daemon"
	"github.com/charlie0129/bluebatt/pkg/gatt"
	"github.com/charlie0129/bluebatt/pkg/monitor"
)

type statusData struct {
	snapshot    *monitor.Snapshot
	permissions *daemon.PermissionsResponse
	config      *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	snap, err := apiClient.GetMonitor()
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return nil, fmt.Errorf("failed to get device status: %w", err)
	}

	perms, err := apiClient.GetPermissions()
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		snapshot:    snap,
		permissions: perms,
		config:      conf,
	}, nil
}

type statusJSON struct {
	Device        *monitor.Snapshot           `json:"device"`
	Permissions   *daemon.PermissionsResponse `json:"permissions"`
	Configuration *config.RawFileConfig       `json:"configuration"`
}

func stateText(snap *monitor.Snapshot) string {
	switch snap.State {
	case monitor.StatePolling.String():
		if snap.Stalled {
			return color.YellowString("%s (stalled)", snap.State)
		}
		return color.GreenString("%s", snap.State)
	case monitor.StateDisconnected.String(), monitor.StateClosed.String():
		return color.RedString("%s", snap.State)
	default:
		return snap.State
	}
}

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of bluebatt",
		Long:    `Get the open device, its battery level, permissions and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(statusJSON{
					Device:        data.snapshot,
					Permissions:   data.permissions,
					Configuration: data.config,
				}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			conf := config.NewFileFromConfig(data.config, "")

			cmd.Println(bold("Device:"))
			if data.snapshot == nil {
				cmd.Println("  No device open. Pick one with 'bluebatt devices' and 'bluebatt select'.")
			} else {
				snap := data.snapshot
				cmd.Printf("  Name: %s\n", bold("%s", snap.Selection.Name))
				cmd.Printf("  Address: %s\n", snap.Selection.Address)
				cmd.Printf("  Connected when opened: %s\n", bool2Text(snap.Selection.Connected))
				cmd.Printf("  State: %s\n", bold("%s", stateText(snap)))
				if snap.Level != nil {
					cmd.Printf("  Battery: %s\n", bold("%d%%", *snap.Level))
				}
				cmd.Printf("  Reads in a row: %d\n", snap.ContinuousPolls)
				cmd.Println()
				cmd.Println(bold("Display:"))
				cmd.Println(snap.Text)
			}

			cmd.Println()

			cmd.Println(bold("Permissions:"))
			for _, p := range data.permissions.Permissions {
				cmd.Printf("  %s: granted %s, available %s\n", p.Name, bool2Text(p.Granted), bool2Text(p.Available))
			}
			if data.permissions.Pending > 0 {
				cmd.Printf("  %d request(s) waiting for an answer\n", data.permissions.Pending)
			}

			cmd.Println()

			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Poll interval: %s\n", bold("%s", conf.PollInterval()))
			cmd.Printf("  Adapter: %s\n", conf.Adapter())
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			cmd.Printf("  Connect permission granted: %s\n", bool2Text(conf.Granted(gatt.PermissionConnect)))
			cmd.Printf("  Scan permission granted: %s\n", bool2Text(conf.Granted(gatt.PermissionScan)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}
