package dbus

import (
	"encoding/xml"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// exportedMethod is a single exported Go method backing a method call on an
// interface. The last return value must be of type *Error; a non-nil value
// is sent back to the caller as an error reply instead of a method reply.
type exportedMethod struct {
	value reflect.Value
}

func (m exportedMethod) call(args []interface{}) ([]interface{}, *Error) {
	t := m.value.Type()
	if t.NumIn() != len(args) {
		return nil, &errInvalidArgs
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		want := t.In(i)
		v := reflect.ValueOf(a)
		if a == nil {
			return nil, &errInvalidArgs
		}
		if !v.Type().AssignableTo(want) {
			if v.Type().ConvertibleTo(want) {
				v = v.Convert(want)
			} else {
				return nil, &errInvalidArgs
			}
		}
		in[i] = v
	}
	out := m.value.Call(in)
	errVal := out[len(out)-1]
	if !errVal.IsNil() {
		return nil, errVal.Interface().(*Error)
	}
	ret := make([]interface{}, len(out)-1)
	for i := 0; i < len(out)-1; i++ {
		ret[i] = out[i].Interface()
	}
	return ret, nil
}

var errInvalidArgs = Error{ErrNameInvalidArgs, []interface{}{"invalid type or number of arguments"}}
var errUnknownMethod = Error{ErrNameUnknownMethod, []interface{}{"unknown method"}}

// exportedIntf is a single interface exported on an object path.
type exportedIntf struct {
	name    string
	value   interface{}
	methods map[string]exportedMethod
}

func newExportedIntf(name string, v interface{}) *exportedIntf {
	ei := &exportedIntf{name: name, value: v, methods: make(map[string]exportedMethod)}
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	errType := reflect.TypeOf(&Error{})
	for i := 0; i < rv.NumMethod(); i++ {
		mt := rt.Method(i)
		m := rv.Method(i)
		ft := m.Type()
		if ft.NumOut() == 0 || ft.Out(ft.NumOut()-1) != errType {
			continue
		}
		ei.methods[mt.Name] = exportedMethod{value: m}
	}
	return ei
}

// object holds the set of interfaces exported at a single object path.
type object struct {
	mut    sync.RWMutex
	ifaces map[string]*exportedIntf
}

func (o *object) ifaceNames() []string {
	o.mut.RLock()
	defer o.mut.RUnlock()
	names := make([]string, 0, len(o.ifaces))
	for name := range o.ifaces {
		names = append(names, name)
	}
	return names
}

// Service hosts local objects under a well-known bus name and answers
// method calls routed to them over a Conn. A root object "/" is created
// automatically, carrying org.freedesktop.DBus.ObjectManager.
type Service struct {
	conn *Conn
	name string
	log  *logrus.Entry

	mut     sync.RWMutex
	objects map[ObjectPath]*object
	running bool
}

// NewService creates a Service bound to conn, validates name, and installs
// it as the connection's object-export registry. At most one Service may be
// installed per Conn; calling NewService again on the same Conn replaces
// the object registry used by previously exported objects.
func NewService(conn *Conn, name string) (*Service, error) {
	if err := validateServiceName(name); err != nil {
		return nil, err
	}
	svc := &Service{conn: conn, name: name, objects: make(map[ObjectPath]*object), log: conn.log}
	conn.svcLck.Lock()
	conn.service = svc
	conn.svcLck.Unlock()

	svc.ensureObject("/")
	svc.setIface(newObjectManager(svc), "/", "org.freedesktop.DBus.ObjectManager")
	return svc, nil
}

// Name returns the service's well-known bus name.
func (s *Service) Name() string { return s.name }

// Run requests the service's well-known name on the bus and begins
// answering method calls routed to it. The connection's inbound dispatch
// loop (already running since Dial/newConn) is what actually delivers
// calls; Run only claims ownership of the name.
func (s *Service) Run() error {
	r, err := s.conn.RequestName(s.name, NameFlagReplaceExisting)
	if err != nil {
		return errors.Wrapf(err, "dbus: requesting name %q", s.name)
	}
	if r != RequestReplyPrimaryOwner && r != RequestReplyAlreadyOwner {
		return errors.Errorf("dbus: name %q unavailable (reply %d)", s.name, r)
	}
	s.mut.Lock()
	s.running = true
	s.mut.Unlock()
	return nil
}

// Stop releases the service's well-known name. Exported objects remain
// registered and continue to answer calls addressed to the connection's
// unique name.
func (s *Service) Stop() error {
	s.mut.Lock()
	s.running = false
	s.mut.Unlock()
	_, err := s.conn.ReleaseName(s.name)
	return err
}

// ensureObject returns the object registered at path, creating one
// pre-populated with Peer, Introspectable, and a placeholder Properties
// interface if it doesn't exist yet. Installing the triad here, rather than
// special-casing Peer/Introspectable in handleCall, means every object's
// obj.ifaces carries the same interfaces a real bus-hosted object would, so
// introspection and GetManagedObjects see a uniform set without the caller
// exporting anything.
func (s *Service) ensureObject(path ObjectPath) *object {
	s.mut.Lock()
	defer s.mut.Unlock()
	obj, ok := s.objects[path]
	if !ok {
		obj = &object{ifaces: map[string]*exportedIntf{
			"org.freedesktop.DBus.Peer": newExportedIntf("org.freedesktop.DBus.Peer",
				peerObject{conn: s.conn}),
			"org.freedesktop.DBus.Introspectable": newExportedIntf("org.freedesktop.DBus.Introspectable",
				&introspectableObject{svc: s, path: path}),
			"org.freedesktop.DBus.Properties": newExportedIntf("org.freedesktop.DBus.Properties",
				properties{}),
		}}
		s.objects[path] = obj
	}
	return obj
}

// ifacesSnapshot projects obj's currently exported interfaces into the
// {interface: {property: value}} shape used by InterfacesAdded and
// GetManagedObjects, consulting the Properties interface (if any) for each
// interface's current values.
func ifacesSnapshot(obj *object) map[string]map[string]Variant {
	obj.mut.RLock()
	defer obj.mut.RUnlock()
	var props propertyProvider
	if pi, ok := obj.ifaces["org.freedesktop.DBus.Properties"]; ok {
		props, _ = pi.value.(propertyProvider)
	}
	snap := make(map[string]map[string]Variant, len(obj.ifaces))
	for name := range obj.ifaces {
		if name == "org.freedesktop.DBus.ObjectManager" {
			continue
		}
		if props != nil {
			if all, err := props.GetAll(name); err == nil {
				snap[name] = all
				continue
			}
		}
		snap[name] = map[string]Variant{}
	}
	return snap
}

func (s *Service) setIface(v interface{}, path ObjectPath, iface string) {
	s.mut.RLock()
	obj := s.objects[path]
	s.mut.RUnlock()
	obj.mut.Lock()
	obj.ifaces[iface] = newExportedIntf(iface, v)
	obj.mut.Unlock()
}

// AddObject creates path (if it does not already exist), pre-populated with
// the standard Peer/Introspectable/Properties triad, and emits
// InterfacesAdded for it so peers learn about the object before any
// application-specific interface is exported on it.
func (s *Service) AddObject(path ObjectPath) error {
	if err := validateObjectPath(path); err != nil {
		return err
	}
	s.mut.RLock()
	_, exists := s.objects[path]
	s.mut.RUnlock()
	if exists {
		return nil
	}
	obj := s.ensureObject(path)
	s.conn.Emit("/", "org.freedesktop.DBus.ObjectManager.InterfacesAdded", path, ifacesSnapshot(obj))
	return nil
}

// RemoveObject deletes path and everything exported on it, emitting
// InterfacesRemoved with the full set of interface names that were exported.
func (s *Service) RemoveObject(path ObjectPath) error {
	s.mut.Lock()
	obj, ok := s.objects[path]
	if !ok {
		s.mut.Unlock()
		return nil
	}
	delete(s.objects, path)
	s.mut.Unlock()
	s.conn.Emit("/", "org.freedesktop.DBus.ObjectManager.InterfacesRemoved", path, obj.ifaceNames())
	return nil
}

// Export publishes v as the given interface at path, replacing any
// previous export of the same interface at that path. Methods of v are
// matched to DBus method calls by name; a method is eligible if its last
// return value has type *Error. path is created automatically if it does
// not already exist. Emits InterfacesAdded for newly-exported interfaces.
func (s *Service) Export(v interface{}, path ObjectPath, iface string) error {
	if err := validateObjectPath(path); err != nil {
		return err
	}
	if err := validateInterfaceName(iface); err != nil {
		return err
	}
	obj := s.ensureObject(path)

	obj.mut.Lock()
	_, existed := obj.ifaces[iface]
	obj.ifaces[iface] = newExportedIntf(iface, v)
	obj.mut.Unlock()

	if !existed {
		s.conn.Emit("/", "org.freedesktop.DBus.ObjectManager.InterfacesAdded",
			path, map[string]map[string]Variant{iface: {}})
	}
	return nil
}

// Unexport removes a previously exported interface from path, emitting
// InterfacesRemoved.
func (s *Service) Unexport(path ObjectPath, iface string) {
	s.mut.RLock()
	obj, ok := s.objects[path]
	s.mut.RUnlock()
	if !ok {
		return
	}
	obj.mut.Lock()
	_, existed := obj.ifaces[iface]
	delete(obj.ifaces, iface)
	obj.mut.Unlock()
	if existed {
		s.conn.Emit("/", "org.freedesktop.DBus.ObjectManager.InterfacesRemoved", path, []string{iface})
	}
}

// Export publishes v as the given interface at path on conn's installed
// service, creating one (named after conn's unique name) if none exists
// yet. This is the convenience entry point used by packages (such as prop)
// that only have a *Conn to work with.
func (conn *Conn) Export(v interface{}, path ObjectPath, iface string) error {
	conn.svcLck.Lock()
	svc := conn.service
	if svc == nil {
		svc = &Service{conn: conn, objects: make(map[ObjectPath]*object), log: conn.log}
		conn.service = svc
	}
	conn.svcLck.Unlock()
	return svc.Export(v, path, iface)
}

// Unexport removes a previously exported interface via conn's installed
// service, if any.
func (conn *Conn) Unexport(path ObjectPath, iface string) {
	conn.svcLck.RLock()
	svc := conn.service
	conn.svcLck.RUnlock()
	if svc != nil {
		svc.Unexport(path, iface)
	}
}

// Emit sends a signal with the given interface, member (given together as
// "interface.member") and body, originating from path.
func (conn *Conn) Emit(path ObjectPath, name string, body ...interface{}) error {
	iface, member, err := splitMethod(name)
	if err != nil {
		return err
	}
	msg := new(Message)
	msg.Type = TypeSignal
	msg.Headers = make(map[HeaderField]Variant)
	msg.Headers[FieldPath] = MakeVariant(path)
	msg.Headers[FieldInterface] = MakeVariant(iface)
	msg.Headers[FieldMember] = MakeVariant(member)
	if len(body) > 0 {
		msg.Headers[FieldSignature] = MakeVariant(SignatureOf(body...))
		msg.Body = body
	}
	conn.Send(msg, nil)
	return nil
}

// handleCall routes an incoming method-call message to an exported
// interface, replying with either a method reply or an error message. Peer
// and Introspectable are ordinary entries in obj.ifaces (installed by
// ensureObject), not special-cased here; the only fallback kept is for a
// path with no Service or no registered object at all, where a bare
// Peer/Introspect response is still owed for peer-to-peer liveness.
func (conn *Conn) handleCall(msg *Message) {
	sender, _ := msg.Headers[FieldSender].value.(string)
	serial := msg.Serial()
	path, _ := msg.Headers[FieldPath].value.(ObjectPath)
	ifaceName, _ := msg.Headers[FieldInterface].value.(string)
	member, _ := msg.Headers[FieldMember].value.(string)

	conn.svcLck.RLock()
	svc := conn.service
	conn.svcLck.RUnlock()

	var obj *object
	if svc != nil {
		svc.mut.RLock()
		obj = svc.objects[path]
		svc.mut.RUnlock()
	}

	if obj == nil {
		switch ifaceName {
		case "org.freedesktop.DBus.Peer":
			conn.handlePeerCall(member, sender, serial)
			return
		case "org.freedesktop.DBus.Introspectable":
			if member == "Introspect" {
				conn.handleBareIntrospect(sender, serial)
				return
			}
		}
		conn.sendError(errorFor(ErrObjectNotFound), sender, serial)
		return
	}

	obj.mut.RLock()
	iface, ok := obj.ifaces[ifaceName]
	obj.mut.RUnlock()
	if !ok {
		conn.sendError(errorFor(ErrInterfaceNotFound), sender, serial)
		return
	}
	m, ok := iface.methods[member]
	if !ok {
		conn.sendError(errUnknownMethod, sender, serial)
		return
	}
	ret, callErr := m.call(msg.Body)
	if callErr != nil {
		conn.sendError(*callErr, sender, serial)
		return
	}
	if msg.Flags&FlagNoReplyExpected == 0 {
		conn.sendReply(sender, serial, ret...)
	}
}

func errorFor(err error) Error {
	return Error{errorNameFor(err), []interface{}{err.Error()}}
}

func (conn *Conn) handlePeerCall(member, sender string, serial uint32) {
	switch member {
	case "Ping":
		conn.sendReply(sender, serial)
	case "GetMachineId":
		conn.sendReply(sender, serial, conn.machineID())
	default:
		conn.sendError(errUnknownMethod, sender, serial)
	}
}

// handleBareIntrospect answers Introspect for a path that has no registered
// object (no Service installed, or nothing exported at that path): just
// enough to tell a peer that Peer and Introspectable are reachable here.
func (conn *Conn) handleBareIntrospect(sender string, serial uint32) {
	node := xmlNode{Interfaces: []xmlInterface{
		{Name: "org.freedesktop.DBus.Peer", Methods: []xmlMethod{
			{Name: "Ping"},
			{Name: "GetMachineId", Args: []xmlArg{{Name: "machine_uuid", Type: "s", Direction: "out"}}},
		}},
		{Name: "org.freedesktop.DBus.Introspectable", Methods: []xmlMethod{
			{Name: "Introspect", Args: []xmlArg{{Name: "xml_data", Type: "s", Direction: "out"}}},
		}},
	}}
	b, err := xml.Marshal(node)
	if err != nil {
		conn.sendError(errorFor(ErrInterfaceNotFound), sender, serial)
		return
	}
	conn.sendReply(sender, serial, string(b))
}

func isChildPath(parent, child ObjectPath) bool {
	p, c := string(parent), string(child)
	if p == "/" {
		return len(c) > 1
	}
	return len(c) > len(p) && c[:len(p)] == p && c[len(p)] == '/'
}

func childSegment(parent, child ObjectPath) string {
	p, c := string(parent), string(child)
	rest := c[len(p):]
	if len(rest) > 0 && rest[0] == '/' {
		rest = rest[1:]
	}
	for i, ch := range rest {
		if ch == '/' {
			return rest[:i]
		}
	}
	return rest
}

func introspectInterfaceOf(iface *exportedIntf) xmlInterface {
	xi := xmlInterface{Name: iface.name}
	for name, m := range iface.methods {
		t := m.value.Type()
		args := make([]xmlArg, 0, t.NumIn()+t.NumOut()-1)
		for i := 0; i < t.NumIn(); i++ {
			args = append(args, xmlArg{Type: SignatureOfType(t.In(i)).String(), Direction: "in"})
		}
		for i := 0; i < t.NumOut()-1; i++ {
			args = append(args, xmlArg{Type: SignatureOfType(t.Out(i)).String(), Direction: "out"})
		}
		xi.Methods = append(xi.Methods, xmlMethod{Name: name, Args: args})
	}
	return xi
}

// xmlNode and friends model the introspection XML document produced when
// answering org.freedesktop.DBus.Introspectable.Introspect against locally
// exported objects. These mirror the wire format but are kept private: the
// introspect package provides the public, client-facing equivalents used to
// parse a remote object's introspection data.
type xmlNode struct {
	XMLName    xml.Name       `xml:"node"`
	Name       string         `xml:"name,attr,omitempty"`
	Interfaces []xmlInterface `xml:"interface"`
	Children   []xmlNode      `xml:"node"`
}

type xmlInterface struct {
	Name       string        `xml:"name,attr"`
	Methods    []xmlMethod   `xml:"method"`
	Signals    []xmlSignal   `xml:"signal"`
	Properties []xmlProperty `xml:"property"`
}

type xmlMethod struct {
	Name string   `xml:"name,attr"`
	Args []xmlArg `xml:"arg"`
}

type xmlSignal struct {
	Name string   `xml:"name,attr"`
	Args []xmlArg `xml:"arg"`
}

type xmlProperty struct {
	Name   string `xml:"name,attr"`
	Type   string `xml:"type,attr"`
	Access string `xml:"access,attr"`
}

type xmlArg struct {
	Name      string `xml:"name,attr,omitempty"`
	Type      string `xml:"type,attr"`
	Direction string `xml:"direction,attr,omitempty"`
}
