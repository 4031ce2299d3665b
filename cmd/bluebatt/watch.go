package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/bluebatt/pkg/client"
	"github.com/charlie0129/bluebatt/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Follow the battery level of the open device",
		GroupID: gBasic,
		Long: `Print the display of the open device, then print it again every time a new battery level is read.

Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			snap, err := apiClient.GetMonitor()
			switch {
			case err == nil:
				printSnapshot(cmd, snap)
			case errors.Is(err, client.ErrNotFound):
				logrus.Info("no device open yet, waiting")
			default:
				return err
			}

			for ev := range apiClient.SubscribeEvents(ctx) {
				switch ev.Name {
				case events.MonitorBattery:
					payload, err := events.DecodeAs[events.MonitorBatteryEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode monitor.battery event")
						continue
					}
					cmd.Println()
					cmd.Println(payload.Text)
				case events.MonitorState:
					payload, err := events.DecodeAs[events.MonitorStateEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode monitor.state event")
						continue
					}
					logrus.WithFields(logrus.Fields{
						"address": payload.Address,
						"from":    payload.From,
						"to":      payload.To,
					}).Info("device state changed")
				case events.MonitorClosed:
					logrus.Info("device closed")
				}
			}
			return nil
		},
	}
}
