package config

import (
	"time"

	"github.com/charlie0129/bluebatt/pkg/gatt"
)

type Config interface {
	PollInterval() time.Duration
	Adapter() string
	AllowNonRootAccess() bool
	// Granted reports whether the user granted p. The platform may still
	// refuse it.
	Granted(p gatt.Permission) bool

	SetPollInterval(time.Duration)
	SetAdapter(string)
	SetAllowNonRootAccess(bool)
	SetGranted(p gatt.Permission, granted bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
