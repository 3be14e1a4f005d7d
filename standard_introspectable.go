package dbus

import "encoding/xml"

// introspectableObject implements org.freedesktop.DBus.Introspectable for a
// single object path, installed on every object a Service creates so that
// Introspectable shows up in obj.ifaces like any other exported interface
// instead of being special-cased in Conn.handleCall.
type introspectableObject struct {
	svc  *Service
	path ObjectPath
}

// Introspect renders the introspection XML document for the interfaces
// exported at this path, plus a <node> child for each immediate descendant
// path registered on the same Service.
func (o *introspectableObject) Introspect() (string, *Error) {
	node := xmlNode{}

	o.svc.mut.RLock()
	obj, ok := o.svc.objects[o.path]
	if ok {
		obj.mut.RLock()
		for _, iface := range obj.ifaces {
			node.Interfaces = append(node.Interfaces, introspectInterfaceOf(iface))
		}
		obj.mut.RUnlock()
	}
	for child := range o.svc.objects {
		if child == o.path || !isChildPath(o.path, child) {
			continue
		}
		node.Children = append(node.Children, xmlNode{Name: childSegment(o.path, child)})
	}
	o.svc.mut.RUnlock()

	b, err := xml.Marshal(node)
	if err != nil {
		return "", &errInvalidArgs
	}
	return string(b), nil
}
