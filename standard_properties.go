package dbus

// properties is the zero-value org.freedesktop.DBus.Properties handler
// auto-installed on every object a Service creates. It answers every
// Get/Set with "unknown property" and GetAll with an empty set, since no
// properties have actually been registered; ensureObject installs it purely
// so GetManagedObjects and introspection see a uniform Properties interface
// on every object. A call to prop.New for the same path overwrites this
// placeholder with a real, backed implementation.
type properties struct{}

var errPropertyNotFound = Error{ErrNameUnknownProperty, []interface{}{"property not found"}}

func (properties) Get(iface, property string) (Variant, *Error) {
	return Variant{}, &errPropertyNotFound
}

func (properties) GetAll(iface string) (map[string]Variant, *Error) {
	return map[string]Variant{}, nil
}

func (properties) Set(iface, property string, value Variant) *Error {
	return &errPropertyNotFound
}
