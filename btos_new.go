//go:build go1.20
// +build go1.20

package dbus

import "unsafe"

// toString converts a byte slice to a string without allocating. Used by
// the wire decoder to turn a freshly-read string/signature/object-path
// payload into a Go string without copying it a second time.
func toString(b []byte) string {
	return unsafe.String(&b[0], len(b))
}
