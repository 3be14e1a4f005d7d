package dbus

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// BusObject is the interface of Object, exported to let callers mock a
// remote object in tests.
type BusObject interface {
	Call(method string, flags Flags, args ...interface{}) *Call
	CallWithContext(ctx context.Context, method string, flags Flags, args ...interface{}) *Call
	Go(method string, flags Flags, ch chan *Call, args ...interface{}) *Call
	GetProperty(p string) (Variant, error)
	SetProperty(p string, v interface{}) error
	Destination() string
	Path() ObjectPath
}

// Object represents a remote object on which methods and properties can be
// invoked and read, identified by a destination bus name and object path.
type Object struct {
	conn *Conn
	dest string
	path ObjectPath
}

var _ BusObject = (*Object)(nil)

// Call calls a method with the given arguments and blocks until the reply
// has arrived or the connection is closed. method must be formatted as
// "interface.method", e.g. "org.freedesktop.DBus.Hello".
func (o *Object) Call(method string, flags Flags, args ...interface{}) *Call {
	return <-o.Go(method, flags, make(chan *Call, 1), args...).Done
}

// CallWithContext acts like Call but returns early with ctx.Err() if ctx is
// cancelled before the reply arrives.
func (o *Object) CallWithContext(ctx context.Context, method string, flags Flags, args ...interface{}) *Call {
	done := make(chan *Call, 1)
	call := o.Go(method, flags, done, args...)
	select {
	case <-ctx.Done():
		return &Call{Err: ctx.Err()}
	case c := <-done:
		return c
	}
}

// Go calls a method with the given arguments asynchronously. It returns a
// Call whose Done channel is ch (or a freshly allocated one if ch is nil),
// which receives the Call itself once the reply has arrived.
func (o *Object) Go(method string, flags Flags, ch chan *Call, args ...interface{}) *Call {
	iface, member, err := splitMethod(method)
	if err != nil {
		return errorCall(ch, err)
	}
	msg := new(Message)
	msg.Type = TypeMethodCall
	msg.Flags = flags & (FlagNoAutoStart | FlagNoReplyExpected | FlagAllowInteractiveAuthorization)
	msg.Headers = make(map[HeaderField]Variant)
	msg.Headers[FieldPath] = MakeVariant(o.path)
	msg.Headers[FieldDestination] = MakeVariant(o.dest)
	msg.Headers[FieldMember] = MakeVariant(member)
	if iface != "" {
		msg.Headers[FieldInterface] = MakeVariant(iface)
	}
	if len(args) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(args...))
		msg.Body = args
	}
	if msg.Flags&FlagNoReplyExpected != 0 {
		o.conn.Send(msg, nil)
		call := &Call{Destination: o.dest, Path: o.path, Method: method, Args: args, Done: ch}
		call.Err = nil
		if ch != nil {
			ch <- call
		}
		return call
	}
	return o.conn.Send(msg, ch)
}

// GetProperty calls org.freedesktop.DBus.Properties.Get for the property
// named p, which must be given as "interface.property".
func (o *Object) GetProperty(p string) (Variant, error) {
	iface, name, err := splitMethod(p)
	if err != nil {
		return Variant{}, err
	}
	var result Variant
	err = o.Call("org.freedesktop.DBus.Properties.Get", 0, iface, name).Store(&result)
	return result, err
}

// SetProperty calls org.freedesktop.DBus.Properties.Set for the property
// named p, which must be given as "interface.property".
func (o *Object) SetProperty(p string, v interface{}) error {
	iface, name, err := splitMethod(p)
	if err != nil {
		return err
	}
	return o.Call("org.freedesktop.DBus.Properties.Set", 0, iface, name, MakeVariant(v)).Err
}

// GetAllProperties calls org.freedesktop.DBus.Properties.GetAll for the
// given interface.
func (o *Object) GetAllProperties(iface string) (map[string]Variant, error) {
	var result map[string]Variant
	err := o.Call("org.freedesktop.DBus.Properties.GetAll", 0, iface).Store(&result)
	return result, err
}

// Introspect calls org.freedesktop.DBus.Introspectable.Introspect and
// returns the raw introspection XML document.
func (o *Object) Introspect() (string, error) {
	var xml string
	err := o.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Store(&xml)
	return xml, err
}

// AddMatchSignal subscribes to signals with the given interface and member
// emitted by this object's destination and path. Received signals arrive on
// whatever channel the caller registered with Conn.Signal.
func (o *Object) AddMatchSignal(iface, member string) error {
	rule := []MatchOption{
		WithMatchSender(o.dest),
		WithMatchObjectPath(o.path),
		WithMatchInterface(iface),
		WithMatchMember(member),
	}
	return o.conn.AddMatchSignal(rule...)
}

// Destination returns the destination bus name this object proxies.
func (o *Object) Destination() string { return o.dest }

// Path returns the object path this object proxies.
func (o *Object) Path() ObjectPath { return o.path }

func splitMethod(method string) (iface, member string, err error) {
	i := strings.LastIndex(method, ".")
	if i == -1 {
		return "", "", errors.Errorf("dbus: invalid method name %q", method)
	}
	return method[:i], method[i+1:], nil
}

func errorCall(ch chan *Call, err error) *Call {
	call := &Call{Err: err, Done: ch}
	if ch != nil {
		ch <- call
	}
	return call
}
