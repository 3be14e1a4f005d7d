// Package prop provides the Properties struct which can be used to implement
// org.freedesktop.DBus.Properties.
package prop

import (
	"sync"

	"github.com/myq1991/node-dbus-sdk-sub000"
	"github.com/myq1991/node-dbus-sdk-sub000/introspect"
)

// EmitType controls how org.freedesktop.DBus.Properties.PropertiesChanged is
// emitted for a property. If it is EmitTrue, the signal is emitted. If it is
// EmitInvalidates, the signal is also emitted, but the new value of the
// property is not disclosed.
type EmitType byte

const (
	EmitFalse EmitType = iota
	EmitTrue
	EmitInvalidates
)

// ErrIfaceNotFound is the error returned to peers who try to access
// properties on interfaces that aren't found.
var ErrIfaceNotFound = &dbus.Error{Name: dbus.ErrNameUnknownInterface}

// ErrPropNotFound is the error returned to peers trying to access properties
// that aren't found.
var ErrPropNotFound = &dbus.Error{Name: dbus.ErrNameUnknownProperty}

// ErrReadOnly is the error returned to peers trying to set a read-only
// property.
var ErrReadOnly = &dbus.Error{Name: dbus.ErrNamePropertyReadOnly}

// ErrInvalidType is returned to peers that set a property to a value of
// invalid type.
var ErrInvalidType = &dbus.Error{Name: dbus.ErrNameInvalidArgs}

// IntrospectData is the introspection data for the
// org.freedesktop.DBus.Properties interface.
var IntrospectData = introspect.Interface{
	Name: "org.freedesktop.DBus.Properties",
	Methods: []introspect.Method{
		{
			Name: "Get",
			Args: []introspect.Arg{
				{Name: "interface", Direction: "in", Type: "s"},
				{Name: "property", Direction: "in", Type: "s"},
				{Name: "value", Direction: "out", Type: "v"},
			},
		},
		{
			Name: "GetAll",
			Args: []introspect.Arg{
				{Name: "interface", Direction: "in", Type: "s"},
				{Name: "props", Direction: "out", Type: "a{sv}"},
			},
		},
		{
			Name: "Set",
			Args: []introspect.Arg{
				{Name: "interface", Direction: "in", Type: "s"},
				{Name: "property", Direction: "in", Type: "s"},
				{Name: "value", Direction: "in", Type: "v"},
			},
		},
	},
	Signals: []introspect.Signal{
		{
			Name: "PropertiesChanged",
			Args: []introspect.Arg{
				{Name: "interface", Type: "s"},
				{Name: "changed_properties", Type: "a{sv}"},
				{Name: "invalidated_properties", Type: "as"},
			},
		},
	},
}

// IntrospectDataString is the introspection data for the
// org.freedesktop.DBus.Properties interface, as a string.
const IntrospectDataString = `
	<interface name="org.freedesktop.DBus.Properties">
		<method name="Get">
			<arg name="interface" direction="in" type="s"/>
			<arg name="property" direction="in" type="s"/>
			<arg name="value" direction="out" type="v"/>
		</method>
		<method name="GetAll">
			<arg name="interface" direction="in" type="s"/>
			<arg name="props" direction="out" type="a{sv}"/>
		</method>
		<method name="Set">
			<arg name="interface" direction="in" type="s"/>
			<arg name="property" direction="in" type="s"/>
			<arg name="value" direction="in" type="v"/>
		</method>
		<signal name="PropertiesChanged">
			<arg name="interface" type="s"/>
			<arg name="changed_properties" type="a{sv}"/>
			<arg name="invalidated_properties" type="as"/>
		</signal>
	</interface>
`

// Prop represents a single property. It is used for creating a Properties
// value.
type Prop struct {
	// Initial value. Must be a DBus-representable type.
	Value interface{}

	// If true, the value can be modified by calls to Set.
	Writable bool

	// If not nil, anytime this property is changed by Set, the new value is
	// sent to this channel.
	Chan chan interface{}

	// Controls how org.freedesktop.DBus.Properties.PropertiesChanged is
	// emitted if this property changes.
	Emit EmitType
}

// Properties is a set of values that can be made available to the message
// bus using the org.freedesktop.DBus.Properties interface. It is safe for
// concurrent use by multiple goroutines.
type Properties struct {
	m    map[string]map[string]Prop
	mut  sync.RWMutex
	conn *dbus.Conn
	path dbus.ObjectPath

	// pending holds properties changed since the last flush, keyed by
	// interface, preserving insertion order of the first change to each
	// property within a batch.
	pending    map[string][]string
	pendingMut sync.Mutex
	coalesce   bool
}

// New returns a new Properties structure that manages the given properties.
// The key for the first-level map of props is the name of the interface; the
// second-level key is the name of the property. The returned structure is
// exported as org.freedesktop.DBus.Properties on path.
func New(conn *dbus.Conn, path dbus.ObjectPath, props map[string]map[string]Prop) *Properties {
	p := &Properties{m: props, conn: conn, path: path, pending: make(map[string][]string)}
	conn.Export(p, path, "org.freedesktop.DBus.Properties")
	return p
}

// NewCoalescing returns a Properties structure like New, except that
// PropertiesChanged is not emitted immediately on Set; callers must call
// Flush to emit one batched signal per interface touched since the last
// flush. Changes to the same property between flushes keep the position of
// the first change, matching the order callers observe in the flushed
// signal.
func NewCoalescing(conn *dbus.Conn, path dbus.ObjectPath, props map[string]map[string]Prop) *Properties {
	p := New(conn, path, props)
	p.coalesce = true
	return p
}

// Get implements org.freedesktop.DBus.Properties.Get.
func (p *Properties) Get(iface, property string) (dbus.Variant, *dbus.Error) {
	p.mut.RLock()
	defer p.mut.RUnlock()
	m, ok := p.m[iface]
	if !ok {
		return dbus.Variant{}, ErrIfaceNotFound
	}
	prop, ok := m[property]
	if !ok {
		return dbus.Variant{}, ErrPropNotFound
	}
	return dbus.MakeVariant(prop.Value), nil
}

// GetAll implements org.freedesktop.DBus.Properties.GetAll.
func (p *Properties) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	p.mut.RLock()
	defer p.mut.RUnlock()
	m, ok := p.m[iface]
	if !ok {
		return nil, ErrIfaceNotFound
	}
	rm := make(map[string]dbus.Variant, len(m))
	for k, v := range m {
		rm[k] = dbus.MakeVariant(v.Value)
	}
	return rm, nil
}

// GetMust returns the value of the given property and panics if either the
// interface or the property name are invalid.
func (p *Properties) GetMust(iface, property string) interface{} {
	p.mut.RLock()
	defer p.mut.RUnlock()
	return p.m[iface][property].Value
}

// Introspection returns the introspection data that represents the
// properties of iface.
func (p *Properties) Introspection(iface string) []introspect.Property {
	p.mut.RLock()
	defer p.mut.RUnlock()
	m := p.m[iface]
	s := make([]introspect.Property, 0, len(m))
	for k, v := range m {
		ip := introspect.Property{Name: k, Type: dbus.SignatureOf(v.Value).String()}
		if v.Writable {
			ip.Access = "readwrite"
		} else {
			ip.Access = "read"
		}
		s = append(s, ip)
	}
	return s
}

// set sets the given property and emits PropertiesChanged if appropriate.
// p.mut must already be locked.
func (p *Properties) set(iface, property string, v interface{}) {
	old := p.m[iface][property]
	p.m[iface][property] = Prop{Value: v, Writable: old.Writable, Chan: old.Chan, Emit: old.Emit}
	if old.Emit == EmitFalse {
		return
	}
	if p.coalesce {
		p.queue(iface, property)
		return
	}
	p.emit(iface, property, old.Emit, v)
}

func (p *Properties) emit(iface, property string, emit EmitType, v interface{}) {
	switch emit {
	case EmitInvalidates:
		p.conn.Emit(p.path, "org.freedesktop.DBus.Properties.PropertiesChanged",
			iface, map[string]dbus.Variant{}, []string{property})
	case EmitTrue:
		p.conn.Emit(p.path, "org.freedesktop.DBus.Properties.PropertiesChanged",
			iface, map[string]dbus.Variant{property: dbus.MakeVariant(v)},
			[]string{})
	}
}

// queue records property as changed for iface, preserving the position of
// its first appearance since the last Flush.
func (p *Properties) queue(iface, property string) {
	p.pendingMut.Lock()
	defer p.pendingMut.Unlock()
	for _, name := range p.pending[iface] {
		if name == property {
			return
		}
	}
	p.pending[iface] = append(p.pending[iface], property)
}

// Flush emits one PropertiesChanged signal per interface with properties
// queued since the last Flush (or since New, for a coalescing Properties),
// then clears the queue. It is a no-op for a non-coalescing Properties.
func (p *Properties) Flush() {
	if !p.coalesce {
		return
	}
	p.pendingMut.Lock()
	pending := p.pending
	p.pending = make(map[string][]string)
	p.pendingMut.Unlock()

	p.mut.RLock()
	defer p.mut.RUnlock()
	for iface, names := range pending {
		changed := make(map[string]dbus.Variant)
		invalidated := make([]string, 0)
		for _, name := range names {
			prop, ok := p.m[iface][name]
			if !ok {
				continue
			}
			switch prop.Emit {
			case EmitTrue:
				changed[name] = dbus.MakeVariant(prop.Value)
			case EmitInvalidates:
				invalidated = append(invalidated, name)
			}
		}
		if len(changed) == 0 && len(invalidated) == 0 {
			continue
		}
		p.conn.Emit(p.path, "org.freedesktop.DBus.Properties.PropertiesChanged",
			iface, changed, invalidated)
	}
}

// Set implements org.freedesktop.DBus.Properties.Set.
func (p *Properties) Set(iface, property string, newv dbus.Variant) *dbus.Error {
	p.mut.Lock()
	defer p.mut.Unlock()
	m, ok := p.m[iface]
	if !ok {
		return ErrIfaceNotFound
	}
	prop, ok := m[property]
	if !ok {
		return ErrPropNotFound
	}
	if !prop.Writable {
		return ErrReadOnly
	}
	if dbus.SignatureOf(prop.Value) != newv.Signature() {
		return ErrInvalidType
	}
	p.set(iface, property, newv.Value())
	if prop.Chan != nil {
		prop.Chan <- newv.Value()
	}
	return nil
}

// SetMust sets the value of the given property and panics if the interface
// or the property name are invalid or if the types of v and the property to
// be changed don't match.
func (p *Properties) SetMust(iface, property string, v interface{}) {
	p.mut.Lock()
	defer p.mut.Unlock()
	if dbus.SignatureOf(p.m[iface][property].Value) != dbus.SignatureOf(v) {
		panic(ErrInvalidType)
	}
	p.set(iface, property, v)
}
