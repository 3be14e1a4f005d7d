//go:build windows
// +build windows

package dbus

import "os"

// checkKeyringOwner is a no-op on Windows: the DBUS_COOKIE_SHA1 keyring
// convention is POSIX-specific, and Windows peers normally authenticate
// with EXTERNAL instead.
func checkKeyringOwner(info os.FileInfo) error {
	return nil
}
