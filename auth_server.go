package dbus

import (
	"bufio"
	"bytes"

	"github.com/pkg/errors"
)

// serverMechanismList renders the REJECTED line's list of mechanism names
// supported by this listener.
func serverMechanismList(methods []ServerAuth) []byte {
	names := make([][]byte, len(methods))
	for i, m := range methods {
		names[i] = []byte(m.Name())
	}
	return bytes.Join(names, []byte(" "))
}

// serverAuth runs the listening side of the SASL-style handshake described
// by the DBus specification: read the leading NUL byte, then answer AUTH
// commands until one of methods accepts the peer or the line is closed.
func (conn *Conn) serverAuth(methods []ServerAuth) error {
	if len(methods) == 0 {
		methods = []ServerAuth{ServerAuthExternal(nil)}
	}
	in := bufio.NewReader(conn.transport)

	b, err := in.ReadByte()
	if err != nil {
		return errors.Wrap(err, "dbus: server auth")
	}
	if b != 0 {
		return errors.New("dbus: server auth: expected leading NUL byte")
	}

	for {
		s, err := authReadLine(in)
		if err != nil {
			return errors.Wrap(err, "dbus: server auth")
		}
		if len(s) == 0 {
			continue
		}
		switch string(s[0]) {
		case "AUTH":
			if len(s) < 2 {
				authWriteLine(conn.transport, []byte("ERROR"))
				continue
			}
			m := conn.lookupServerAuth(methods, string(s[1]))
			if m == nil {
				conn.log.WithField("mechanism", string(s[1])).Debug("dbus: client offered unsupported auth mechanism")
				authWriteLine(conn.transport, []byte("REJECTED"), serverMechanismList(methods))
				continue
			}
			conn.log.WithField("mechanism", m.Name()).Debug("dbus: client offered auth mechanism")
			var initial []byte
			if len(s) > 2 {
				initial = s[2]
			}
			data, status := m.HandleAuth(initial, conn.transport)
			ok, err := conn.serverAuthLoop(m, data, status, in, methods)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		case "BEGIN":
			// BEGIN before any successful AUTH; protocol error, keep waiting.
			authWriteLine(conn.transport, []byte("ERROR"))
		default:
			authWriteLine(conn.transport, []byte("ERROR"))
		}
	}
}

func (conn *Conn) lookupServerAuth(methods []ServerAuth, name string) ServerAuth {
	for _, m := range methods {
		if m.Name() == name && m.Supported(conn.transport) {
			return m
		}
	}
	return nil
}

// serverAuthLoop drives one mechanism to completion after its first
// HandleAuth call, returning ok=true once BEGIN has been received following
// an OK.
func (conn *Conn) serverAuthLoop(m ServerAuth, data []byte, status ServerAuthStatus, in *bufio.Reader, methods []ServerAuth) (bool, error) {
	for {
		switch status {
		case ServerAuthOk:
			if err := authWriteLine(conn.transport, []byte("OK"), []byte(conn.uuid)); err != nil {
				return false, err
			}
			s, err := authReadLine(in)
			if err != nil {
				return false, errors.Wrap(err, "dbus: server auth")
			}
			if len(s) > 0 && string(s[0]) == "BEGIN" {
				return true, nil
			}
			conn.log.WithField("mechanism", m.Name()).Debug("dbus: auth rejected, BEGIN not received after OK")
			authWriteLine(conn.transport, []byte("REJECTED"), serverMechanismList(methods))
			return false, nil
		case ServerAuthContinue:
			if err := authWriteLine(conn.transport, []byte("DATA"), data); err != nil {
				return false, err
			}
			s, err := authReadLine(in)
			if err != nil {
				return false, errors.Wrap(err, "dbus: server auth")
			}
			if len(s) == 0 {
				authWriteLine(conn.transport, []byte("ERROR"))
				continue
			}
			switch string(s[0]) {
			case "DATA":
				var payload []byte
				if len(s) > 1 {
					payload = s[1]
				}
				data, status = m.HandleData(payload)
			case "CANCEL", "ERROR":
				authWriteLine(conn.transport, []byte("REJECTED"), serverMechanismList(methods))
				return false, nil
			default:
				authWriteLine(conn.transport, []byte("ERROR"))
			}
		default: // ServerAuthRejected, ServerAuthError
			conn.log.WithField("mechanism", m.Name()).Debug("dbus: auth mechanism rejected peer")
			authWriteLine(conn.transport, []byte("REJECTED"), serverMechanismList(methods))
			return false, nil
		}
	}
}
