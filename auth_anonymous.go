package dbus

// AuthAnonymous returns an Auth that authenticates as an anonymous user
func AuthAnonymous() Auth {
	return authAnonymous{}
}

// authAnonymous implements the ANONYMOUS authentication mechanism.
type authAnonymous struct {
}

func (a authAnonymous) FirstData() ([]byte, []byte, AuthStatus) {
	return []byte("ANONYMOUS"), []byte(""), AuthOk
}

func (a authAnonymous) HandleData(b []byte) ([]byte, AuthStatus) {
	return nil, AuthError
}

// ServerAuthAnonymous returns a ServerAuth that accepts any peer without
// checking credentials, the server-side counterpart of AuthAnonymous. Useful
// for a peer-to-peer listener on a transport that carries no credentials of
// its own (e.g. anything but a Unix socket).
func ServerAuthAnonymous() ServerAuth {
	return serverAuthAnonymous{}
}

type serverAuthAnonymous struct{}

func (a serverAuthAnonymous) Name() string { return "ANONYMOUS" }

// Supported unconditionally reports true: ANONYMOUS carries no credentials
// of its own and is the fallback this library's Server uses on any
// transport that can't furnish the peer identity EXTERNAL needs.
func (a serverAuthAnonymous) Supported(tr transport) bool { return true }

func (a serverAuthAnonymous) HandleAuth(b []byte, tr transport) ([]byte, ServerAuthStatus) {
	return nil, ServerAuthOk
}

func (a serverAuthAnonymous) HandleData(b []byte) ([]byte, ServerAuthStatus) {
	return nil, ServerAuthRejected
}
