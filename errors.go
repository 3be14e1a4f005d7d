package dbus

import "github.com/pkg/errors"

// Sentinel errors returned by this library's connection, transport, and
// service-side code. Callers compare against these with errors.Is.
var (
	ErrDialTimeout      = errors.New("dbus: dial timeout")
	ErrUnknownAddress   = errors.New("dbus: no usable address")
	ErrUnknownFamily    = errors.New("dbus: unsupported transport family")
	ErrMissingParams    = errors.New("dbus: missing required address parameters")
	ErrAuthFailed       = errors.New("dbus: authentication failed")
	ErrSignatureTooLong = errors.New("dbus: signature exceeds 255 bytes")

	ErrServiceNotFound   = errors.New("dbus: destination not found")
	ErrObjectNotFound    = errors.New("dbus: object not found")
	ErrInterfaceNotFound = errors.New("dbus: interface not found")
	ErrMethodNotFound    = errors.New("dbus: method not found")
	ErrPropertyNotFound  = errors.New("dbus: property not found")

	ErrObjectExists    = errors.New("dbus: object already exported")
	ErrInterfaceExists = errors.New("dbus: interface already exported on this object")
	ErrMethodExists    = errors.New("dbus: method already defined on this interface")
	ErrPropertyExists  = errors.New("dbus: property already defined on this interface")
	ErrSignalExists    = errors.New("dbus: signal already defined on this interface")

	ErrPropertyReadOnly = errors.New("dbus: property is read-only")
	ErrInvalidArgs      = errors.New("dbus: invalid arguments")
	ErrAccessForbidden  = errors.New("dbus: access forbidden by introspected property mode")
)

// Standard DBus error names used when mapping a Go error returned from an
// exported method into a TypeError reply.
const (
	ErrNameServiceUnknown   = "org.freedesktop.DBus.Error.ServiceUnknown"
	ErrNameUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	ErrNameUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrNameUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrNameUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrNamePropertyReadOnly = "org.freedesktop.DBus.Error.PropertyReadOnly"
	ErrNameInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrNameFailed           = "org.freedesktop.DBus.Error.Failed"
	ErrNameNoReply          = "org.freedesktop.DBus.Error.NoReply"
	ErrNameAccessDenied     = "org.freedesktop.DBus.Error.AccessDenied"
)

// errorNameFor maps a well-known sentinel to the DBus error name sent on
// the wire when a method call cannot be routed or executed.
func errorNameFor(err error) string {
	switch {
	case errors.Is(err, ErrServiceNotFound):
		return ErrNameServiceUnknown
	case errors.Is(err, ErrObjectNotFound):
		return ErrNameUnknownObject
	case errors.Is(err, ErrInterfaceNotFound):
		return ErrNameUnknownInterface
	case errors.Is(err, ErrMethodNotFound):
		return ErrNameUnknownMethod
	case errors.Is(err, ErrPropertyNotFound):
		return ErrNameUnknownProperty
	case errors.Is(err, ErrPropertyReadOnly):
		return ErrNamePropertyReadOnly
	case errors.Is(err, ErrInvalidArgs):
		return ErrNameInvalidArgs
	case errors.Is(err, ErrAccessForbidden):
		return ErrNameAccessDenied
	default:
		return ErrNameFailed
	}
}
