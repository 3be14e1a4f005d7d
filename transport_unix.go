//go:build !windows && !solaris
// +build !windows,!solaris

package dbus

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
)

// unixTransport is a transport over a Unix domain socket.
//
// Per this library's scope, Unix file descriptors are never passed
// out-of-band via SCM_RIGHTS: UnixFDIndex values are bookkeeping only, and
// SendMessage refuses a body carrying a raw UnixFD. What this transport does
// read from the socket is the connecting peer's uid (SO_PEERCRED, via
// peerCredentials; Linux only) so the EXTERNAL mechanism can verify a
// claimed uid on the server side.
type unixTransport struct {
	*net.UnixConn
	hasPeerUid bool
	peerUid    uint32
}

func newUnixTransport(keys string) (transport, error) {
	abstract := getKey(keys, "abstract")
	path := getKey(keys, "path")
	switch {
	case abstract == "" && path == "":
		return nil, errors.New("dbus: invalid address (neither path nor abstract set)")
	case abstract != "" && path == "":
		conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: "@" + abstract, Net: "unix"})
		if err != nil {
			return nil, errors.Wrap(err, "dbus: dial unix")
		}
		return newUnixTransportFromConn(conn), nil
	case abstract == "" && path != "":
		conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
		if err != nil {
			return nil, errors.Wrap(err, "dbus: dial unix")
		}
		return newUnixTransportFromConn(conn), nil
	default:
		return nil, errors.New("dbus: invalid address (both path and abstract set)")
	}
}

func newUnixTransportFromConn(conn *net.UnixConn) *unixTransport {
	t := &unixTransport{UnixConn: conn}
	t.hasPeerUid, t.peerUid = peerCredentials(conn)
	return t
}

func (t *unixTransport) SendNullByte() error {
	_, err := t.Write([]byte{0})
	return err
}

// SupportsUnixFDs always reports false: see UnixFD's documentation.
func (t *unixTransport) SupportsUnixFDs() bool { return false }

func (t *unixTransport) EnableUnixFDs() {}

func (t *unixTransport) ReadMessage() (*Message, error) {
	return DecodeMessage(t.UnixConn)
}

func (t *unixTransport) SendMessage(msg *Message) error {
	for _, v := range msg.Body {
		if _, ok := v.(UnixFD); ok {
			return errors.New("dbus: unix fd passing not enabled")
		}
	}
	return msg.EncodeTo(t.UnixConn, binary.LittleEndian)
}
