package gui

import (
	"context"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/bluebatt/pkg/client"
	"github.com/charlie0129/bluebatt/pkg/events"
	"github.com/charlie0129/bluebatt/pkg/version"
)

func NewGUICommand(unixSocketPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gui",
		Short: "Start the bluebatt tray icon",
		Long: `Start the bluebatt tray icon.

The tray shows the battery level of the open device and lets you pick another paired device. The daemon must be running.`,
		Run: func(_ *cobra.Command, _ []string) {
			Run(*unixSocketPath)
		},
	}

	return cmd
}

func Run(unixSocketPath string) {
	apiClient := client.NewClient(unixSocketPath)

	logrus.WithField("version", version.Version).WithField("gitCommit", version.GitCommit).Info("bluebatt gui")

	ctx, cancel := context.WithCancel(context.Background())
	ctrl := newMenuController(apiClient)

	systray.Run(func() {
		ctrl.build()
		go ctrl.handleClicks(ctx)
		go startEventBridge(ctx, apiClient, ctrl)
	}, func() {
		cancel()
		logrus.Info("bluebatt gui exiting")
	})
}

// startEventBridge subscribes to daemon events and refreshes the tray on demand.
func startEventBridge(ctx context.Context, api *client.Client, ctrl *menuController) {
	for ev := range api.SubscribeEvents(ctx) {
		logrus.WithFields(logrus.Fields{
			"event": ev.Name,
			"data":  string(ev.Data),
		}).Debug("new event")

		switch ev.Name {
		case events.MonitorBattery:
			payload, err := events.DecodeAs[events.MonitorBatteryEvent](ev)
			if err != nil {
				logrus.WithError(err).Error("failed to decode monitor.battery event")
				continue
			}
			ctrl.setDisplay(payload.Text, &payload.Level)
		case events.DevicesUpdated:
			payload, err := events.DecodeAs[events.DevicesUpdatedEvent](ev)
			if err != nil {
				logrus.WithError(err).Error("failed to decode devices.updated event")
				continue
			}
			ctrl.setWaiting(payload.Waiting)
		case events.MonitorState, events.MonitorClosed:
			ctrl.refreshMonitor()
		}
	}
}
