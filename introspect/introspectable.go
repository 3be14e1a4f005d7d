package introspect

import (
	"encoding/xml"
	"strings"

	"github.com/myq1991/node-dbus-sdk-sub000"
)

// Introspectable implements org.freedesktop.DBus.Introspectable.
//
// You can create it by converting the XML-formatted introspection data from
// a string to an Introspectable or by calling NewIntrospectable with a Node,
// then export it as org.freedesktop.DBus.Introspectable on your object.
type Introspectable string

// NewIntrospectable returns an Introspectable that returns the introspection
// data that corresponds to the given Node.
func NewIntrospectable(n *Node) Introspectable {
	b, err := xml.Marshal(n)
	if err != nil {
		panic(err)
	}
	return Introspectable(b)
}

// Introspect implements org.freedesktop.DBus.Introspectable.Introspect.
func (i Introspectable) Introspect() (string, *dbus.Error) {
	return string(i), nil
}

// Call calls org.freedesktop.DBus.Introspectable.Introspect on the object
// identified by dest and path and parses the result into a Node.
func Call(o dbus.BusObject) (*Node, error) {
	var xmldata string
	var node Node
	err := o.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Store(&xmldata)
	if err != nil {
		return nil, err
	}
	err = xml.NewDecoder(strings.NewReader(xmldata)).Decode(&node)
	if err != nil {
		return nil, err
	}
	if node.Name == "" {
		node.Name = string(o.Path())
	}
	return &node, nil
}
