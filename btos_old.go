//go:build !go1.20
// +build !go1.20

package dbus

import (
	"reflect"
	"unsafe"
)

// toString converts a byte slice to a string without allocating. Used by
// the wire decoder to turn a freshly-read string/signature/object-path
// payload into a Go string without copying it a second time; pre-1.20
// builds fall back to the reflect.StringHeader trick since unsafe.String
// isn't available yet.
func toString(b []byte) string {
	var s string
	h := (*reflect.StringHeader)(unsafe.Pointer(&s))
	h.Data = uintptr(unsafe.Pointer(&b[0]))
	h.Len = len(b)

	return s
}
