package dbus

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// AuthStatus represents the status returned by a client-side authentication
// mechanism, as suggested by the DBus specification.
type AuthStatus byte

const (
	// Authentication is finished; next command from the server should be an OK.
	AuthOk AuthStatus = iota

	// Additional data is needed; next command from the server should be a DATA.
	AuthContinue

	// Error; the server sent invalid data and the current authentication
	// process should be aborted.
	AuthError
)

// Auth defines the behaviour of a client-side authentication mechanism.
type Auth interface {
	// FirstData returns the name of the mechanism, the argument to the
	// first AUTH command, and the next expected status.
	FirstData() (name []byte, resp []byte, status AuthStatus)

	// HandleData processes a DATA command from the server and returns the
	// argument to the next DATA command and the next status. If len(resp)
	// is 0, no DATA command is sent.
	HandleData(data []byte) (resp []byte, status AuthStatus)
}

// ServerAuthStatus represents the status returned by a server-side
// authentication mechanism.
type ServerAuthStatus byte

const (
	ServerAuthOk ServerAuthStatus = iota
	ServerAuthContinue
	ServerAuthRejected
	ServerAuthError
)

// ServerAuth defines the behaviour of a server-side authentication
// mechanism, used when this library hosts a peer-to-peer listener (see
// Server/Serve).
type ServerAuth interface {
	Name() string
	Supported(tr transport) bool
	HandleAuth(b []byte, tr transport) ([]byte, ServerAuthStatus)
	HandleData(b []byte) ([]byte, ServerAuthStatus)
}

type authState byte

const (
	waitingForData authState = iota
	waitingForOk
	waitingForReject
)

// defaultAuthMethods returns the mechanisms tried, in order, when a caller
// does not configure its own via WithAuth.
func defaultAuthMethods() []Auth {
	methods := []Auth{AuthCookieSha1{}, AuthAnonymous()}
	if u, err := currentUser(); err == nil {
		methods = append([]Auth{AuthExternal(u)}, methods...)
	}
	return methods
}

// auth runs the SASL-style handshake described by the DBus specification: a
// leading NUL byte, then an AUTH command for each configured mechanism in
// turn until one succeeds or all are rejected.
func (conn *Conn) auth() error {
	methods := conn.authMethods
	if len(methods) == 0 {
		methods = defaultAuthMethods()
	}
	in := bufio.NewReader(conn.transport)
	if _, err := conn.transport.Write([]byte{0}); err != nil {
		return errors.Wrap(err, "dbus: auth")
	}
	for _, m := range methods {
		name, data, status := m.FirstData()
		conn.log.WithField("mechanism", string(name)).Debug("dbus: attempting auth mechanism")
		segs := [][]byte{[]byte("AUTH"), name}
		if len(data) > 0 {
			segs = append(segs, data)
		}
		if err := authWriteLine(conn.transport, segs...); err != nil {
			return errors.Wrap(err, "dbus: auth")
		}
		var (
			err error
			ok  bool
		)
		switch status {
		case AuthOk:
			err, ok = conn.tryAuth(m, waitingForOk, in)
		case AuthContinue:
			err, ok = conn.tryAuth(m, waitingForData, in)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if ok {
			return authWriteLine(conn.transport, []byte("BEGIN"))
		}
		conn.log.WithField("mechanism", string(name)).Debug("dbus: auth mechanism rejected by server")
	}
	return ErrAuthFailed
}

func (conn *Conn) tryAuth(m Auth, state authState, in *bufio.Reader) (error, bool) {
	for {
		s, err := authReadLine(in)
		if err != nil {
			return err, false
		}
		cmd := ""
		if len(s) > 0 {
			cmd = string(s[0])
		}
		switch {
		case state == waitingForData && cmd == "DATA":
			if len(s) != 2 {
				if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
					return err, false
				}
				continue
			}
			data, status := m.HandleData(s[1])
			switch status {
			case AuthOk, AuthContinue:
				if len(data) != 0 {
					if err := authWriteLine(conn.transport, []byte("DATA"), data); err != nil {
						return err, false
					}
				}
				if status == AuthOk {
					state = waitingForOk
				}
			case AuthError:
				if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
					return err, false
				}
			}
		case state == waitingForData && cmd == "REJECTED":
			return nil, false
		case state == waitingForData && cmd == "ERROR":
			if err := authWriteLine(conn.transport, []byte("CANCEL")); err != nil {
				return err, false
			}
			state = waitingForReject
		case state == waitingForData && cmd == "OK":
			if len(s) == 2 {
				conn.uuid = string(s[1])
			}
			return nil, true
		case state == waitingForData:
			if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
				return err, false
			}
		case state == waitingForOk && cmd == "OK":
			if len(s) == 2 {
				conn.uuid = string(s[1])
			}
			return nil, true
		case state == waitingForOk && cmd == "REJECTED":
			return nil, false
		case state == waitingForOk && (cmd == "DATA" || cmd == "ERROR"):
			if err := authWriteLine(conn.transport, []byte("CANCEL")); err != nil {
				return err, false
			}
			state = waitingForReject
		case state == waitingForOk:
			if err := authWriteLine(conn.transport, []byte("ERROR")); err != nil {
				return err, false
			}
		case state == waitingForReject && cmd == "REJECTED":
			return nil, false
		case state == waitingForReject:
			return errors.New("dbus: authentication protocol error"), false
		}
	}
}

func authReadLine(in *bufio.Reader) ([][]byte, error) {
	data, err := in.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	data = bytes.TrimRight(data, "\r\n")
	return bytes.Split(data, []byte{' '}), nil
}

func authWriteLine(out io.Writer, data ...[]byte) error {
	buf := make([]byte, 0)
	for i, v := range data {
		buf = append(buf, v...)
		if i != len(data)-1 {
			buf = append(buf, ' ')
		}
	}
	buf = append(buf, '\r', '\n')
	n, err := out.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrUnexpectedEOF
	}
	return nil
}
