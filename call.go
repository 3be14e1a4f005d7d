package dbus

// Call represents a pending or completed method call.
type Call struct {
	Destination string
	Path        ObjectPath
	Method      string
	Args        []interface{}

	// Strobes when the call is complete.
	Done chan *Call

	// After completion, Err is nil if Body holds the reply values, or
	// the Error returned by the peer / a local transport failure.
	Err  error
	Body []interface{}
}

// Store projects the reply body into retvalues, which must be pointers to
// DBus-representable values. It returns the call's Err if the call failed.
func (c *Call) Store(retvalues ...interface{}) error {
	if c.Err != nil {
		return c.Err
	}
	return Store(c.Body, retvalues...)
}
