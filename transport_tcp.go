package dbus

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// tcpTransport is a transport over TCP. It carries no credentials of its
// own, so a listener accepting one can only authenticate peers with
// ANONYMOUS or a cookie-based mechanism, never EXTERNAL (see
// serverAuthExternal.Supported). Nagle's algorithm is disabled since DBus
// messages are written as a single small burst per call and waiting to
// coalesce them only adds latency. Framing, null-byte, and unix-fd
// behaviour are identical to any other non-Unix-socket transport, so they
// are delegated to genericTransport rather than duplicated here.
type tcpTransport struct {
	genericTransport
}

func newTCPTransport(keys string) (transport, error) {
	host := getKey(keys, "host")
	port := getKey(keys, "port")
	if host == "" || port == "" {
		return nil, errors.New("dbus: invalid address (host or port not set)")
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil, errors.Wrap(err, "dbus: resolving tcp address")
	}
	if len(addrs) == 0 {
		return nil, errors.New("dbus: invalid address or address not found")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, errors.Wrap(err, "dbus: invalid tcp port")
	}
	conn, err := net.DialTCP("tcp", nil, &net.TCPAddr{IP: net.ParseIP(addrs[0]), Port: portNum})
	if err != nil {
		return nil, errors.Wrap(err, "dbus: dial tcp")
	}
	if err := conn.SetNoDelay(true); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "dbus: disabling Nagle's algorithm")
	}
	return &tcpTransport{genericTransport{conn}}, nil
}
