package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/bluebatt/pkg/daemon"
	"github.com/charlie0129/bluebatt/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	opts := daemon.Options{}

	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run bluebatt daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run bluebatt daemon in the foreground.

The daemon talks to BlueZ on the system bus and serves the device list and the open device on the unix socket. It is normally started by systemd, see 'bluebatt install'.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Persistent flags are parsed by now.
			opts.ConfigPath = configPath
			opts.UnixSocketPath = unixSocketPath

			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
				"socket":  opts.UnixSocketPath,
			}).Info("bluebatt daemon starting")
			return daemon.Run(opts)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&opts.AllowNonRoot, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.StringVar(&opts.Adapter, "adapter", "",
		"Bluetooth controller to use for this run, e.g. hci1. Defaults to the adapter in the config file.")

	return cmd
}
