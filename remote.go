package dbus

import (
	"sync"

	"github.com/myq1991/node-dbus-sdk-sub000/introspect"
	"github.com/pkg/errors"
)

// ServiceHandle is an introspection-backed handle onto a remote service,
// addressed by well-known or unique bus name. Unlike the low-level Object,
// it tracks the name's current unique owner and caches the shape of the
// object tree exposed under it; both are repaired automatically when the
// name's ownership changes (see Conn.NameEvents).
type ServiceHandle struct {
	conn *Conn
	name string

	mu       sync.Mutex
	owner    string
	ownerSet bool
	objects  map[ObjectPath]*ObjectHandle
}

// Service returns the ServiceHandle for name on this connection, creating
// and caching one on first use.
func (conn *Conn) Service(name string) *ServiceHandle {
	conn.svcHandlesLck.Lock()
	defer conn.svcHandlesLck.Unlock()
	if conn.svcHandles == nil {
		conn.svcHandles = make(map[string]*ServiceHandle)
	}
	if s, ok := conn.svcHandles[name]; ok {
		return s
	}
	s := &ServiceHandle{conn: conn, name: name, objects: make(map[ObjectPath]*ObjectHandle)}
	conn.svcHandles[name] = s
	return s
}

// Name returns the well-known or unique bus name this handle addresses.
func (s *ServiceHandle) Name() string { return s.name }

// Owner returns the current unique name owning s.Name(), issuing
// GetNameOwner and caching the result on first call. Later calls return the
// cached value until a NameOwnerChanged event repairs it.
func (s *ServiceHandle) Owner() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerSet {
		return s.owner, nil
	}
	owner, err := s.conn.GetNameOwner(s.name)
	if err != nil {
		return "", err
	}
	s.owner = owner
	s.ownerSet = true
	return owner, nil
}

// repair updates the cached owner after a NameOwnerChanged event naming
// s.name, and drops every cached ObjectHandle's introspection: a new owner
// may expose an entirely different object tree at the same paths.
func (s *ServiceHandle) repair(newOwner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = newOwner
	s.ownerSet = newOwner != ""
	for _, o := range s.objects {
		o.invalidate()
	}
}

// Object returns a cached ObjectHandle for path under this service.
func (s *ServiceHandle) Object(path ObjectPath) *ObjectHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[path]; ok {
		return o
	}
	o := &ObjectHandle{svc: s, path: path, bus: s.conn.Object(s.name, path)}
	s.objects[path] = o
	return o
}

// ListObjects recursively introspects starting at root (typically "/") and
// returns every object path discovered under it, including root itself.
func (s *ServiceHandle) ListObjects(root ObjectPath) ([]ObjectPath, error) {
	var paths []ObjectPath
	var walk func(ObjectPath) error
	walk = func(p ObjectPath) error {
		node, err := introspect.Call(s.conn.Object(s.name, p))
		if err != nil {
			return errors.Wrapf(err, "dbus: introspecting %s at %s", s.name, p)
		}
		paths = append(paths, p)
		prefix := string(p)
		if prefix != "/" {
			prefix += "/"
		}
		for _, child := range node.Children {
			if err := walk(ObjectPath(prefix + child.Name)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return paths, nil
}

// ObjectHandle is a remote object reached through a ServiceHandle, caching
// its introspected interface shapes until invalidated by an owner change.
type ObjectHandle struct {
	svc  *ServiceHandle
	path ObjectPath
	bus  *Object

	mu     sync.Mutex
	ifaces map[string]*InterfaceHandle
}

// Path returns the object path this handle addresses.
func (o *ObjectHandle) Path() ObjectPath { return o.path }

// invalidate drops all cached InterfaceHandles for this object.
func (o *ObjectHandle) invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ifaces = nil
}

// Interface fetches (or returns a cached) InterfaceHandle named name by
// introspecting this object path and locating the matching <interface>
// element in the returned document.
func (o *ObjectHandle) Interface(name string) (*InterfaceHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ifaces == nil {
		o.ifaces = make(map[string]*InterfaceHandle)
	}
	if iface, ok := o.ifaces[name]; ok {
		return iface, nil
	}
	node, err := introspect.Call(o.bus)
	if err != nil {
		return nil, errors.Wrapf(err, "dbus: introspecting %s", o.path)
	}
	for _, i := range node.Interfaces {
		if i.Name != name {
			continue
		}
		iface := newInterfaceHandle(o, i)
		o.ifaces[name] = iface
		return iface, nil
	}
	return nil, ErrInterfaceNotFound
}

// InterfaceHandle exposes the methods and properties of one interface on an
// ObjectHandle, as described by its introspection data.
type InterfaceHandle struct {
	obj  *ObjectHandle
	name string

	methods    map[string]introspect.Method
	properties map[string]introspect.Property
}

func newInterfaceHandle(o *ObjectHandle, i introspect.Interface) *InterfaceHandle {
	h := &InterfaceHandle{
		obj:        o,
		name:       i.Name,
		methods:    make(map[string]introspect.Method, len(i.Methods)),
		properties: make(map[string]introspect.Property, len(i.Properties)),
	}
	for _, m := range i.Methods {
		h.methods[m.Name] = m
	}
	for _, p := range i.Properties {
		h.properties[p.Name] = p
	}
	return h
}

// Name returns the interface name this handle addresses.
func (i *InterfaceHandle) Name() string { return i.name }

// inArgCount counts m's direction="in" arguments (direction omitted on a
// method argument defaults to "in" per the introspection DTD).
func inArgCount(m introspect.Method) int {
	n := 0
	for _, a := range m.Args {
		if a.Direction == "in" || a.Direction == "" {
			n++
		}
	}
	return n
}

// Call invokes method (the bare member name, not "interface.method") with
// args, blocking until the reply arrives or the connection is closed, and
// returns the reply body as a sequence of out-argument values.
func (i *InterfaceHandle) Call(method string, args ...interface{}) ([]interface{}, error) {
	m, ok := i.methods[method]
	if !ok {
		return nil, ErrMethodNotFound
	}
	if want := inArgCount(m); want != len(args) {
		return nil, errors.Errorf("dbus: %s.%s expects %d argument(s), got %d", i.name, method, want, len(args))
	}
	call := i.obj.bus.Call(i.name+"."+method, 0, args...)
	if call.Err != nil {
		return nil, call.Err
	}
	return call.Body, nil
}

// Go invokes method asynchronously, mirroring (*Object).Go.
func (i *InterfaceHandle) Go(method string, ch chan *Call, args ...interface{}) *Call {
	return i.obj.bus.Go(i.name+"."+method, 0, ch, args...)
}

// GetProperty reads property name, rejecting with ErrAccessForbidden when
// the introspected access attribute is "write".
func (i *InterfaceHandle) GetProperty(name string) (Variant, error) {
	p, ok := i.properties[name]
	if !ok {
		return Variant{}, ErrPropertyNotFound
	}
	if p.Access == "write" {
		return Variant{}, ErrAccessForbidden
	}
	return i.obj.bus.GetProperty(i.name + "." + name)
}

// SetProperty writes property name, rejecting with ErrAccessForbidden when
// the introspected access attribute is "read".
func (i *InterfaceHandle) SetProperty(name string, v interface{}) error {
	p, ok := i.properties[name]
	if !ok {
		return ErrPropertyNotFound
	}
	if p.Access == "read" {
		return ErrAccessForbidden
	}
	return i.obj.bus.SetProperty(i.name+"."+name, v)
}

// AddMatchSignal subscribes to member signals on this interface, delivered
// through whatever channel the caller registered with Conn.Signal.
func (i *InterfaceHandle) AddMatchSignal(member string) error {
	return i.obj.bus.AddMatchSignal(i.name, member)
}
