package gatt

import pkgerrors "github.com/pkg/errors"

// Permission is a runtime-grantable capability.
type Permission string

const (
	PermissionConnect Permission = "connect"
	PermissionScan    Permission = "scan"
)

// AllPermissions lists every capability bluebatt needs, in request order.
var AllPermissions = []Permission{PermissionConnect, PermissionScan}

// ParsePermission converts a user supplied name into a Permission.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionConnect, PermissionScan:
		return Permission(s), nil
	default:
		return "", pkgerrors.Errorf("unknown permission %q, must be one of %v", s, AllPermissions)
	}
}

// Authorizer answers whether capabilities are available, and asks for the
// missing ones.
type Authorizer interface {
	// Missing returns the subset of perms that is not granted right now.
	Missing(perms ...Permission) []Permission
	// Request asks for perms. result is called exactly once, possibly from
	// another goroutine, with true only if every permission was granted.
	Request(perms []Permission, result func(granted bool))
}
