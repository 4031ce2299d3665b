package client

import pkgerrors "github.com/pkg/errors"

var (
	// ErrDaemonNotRunning is returned when the daemon socket does not exist
	ErrDaemonNotRunning = pkgerrors.New("daemon not running")

	// ErrPermissionDenied is returned when the socket is not accessible to this user
	ErrPermissionDenied = pkgerrors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon, e.g. no device is open
	ErrNotFound = pkgerrors.New("404 not found")
)
