//go:build !windows && !solaris
// +build !windows,!solaris

package dbus

import (
	"os/user"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// unixDialPair spins up a peer-to-peer Server/Conn pair over a real Unix
// domain socket, authenticating with the EXTERNAL mechanism so the server
// side exercises unixTransport's SO_PEERCRED-backed uid check.
func unixDialPair(t *testing.T, serverMethods ...ServerAuth) (hostConn, cliConn *Conn) {
	t.Helper()
	addr := "unix:path=" + filepath.Join(t.TempDir(), "transport-test.sock")

	if len(serverMethods) == 0 {
		serverMethods = []ServerAuth{ServerAuthExternal(nil)}
	}
	srv, err := NewServer(addr, "transport-unix-test-uuid", serverMethods...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	acceptCh := make(chan *Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := srv.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
	}()

	u, err := user.Current()
	if err != nil {
		t.Fatalf("user.Current: %v", err)
	}
	cli, err := Dial(addr, WithAuth(AuthExternal(u.Uid)), WithoutHello())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("Accept: %v", err)
	case host := <-acceptCh:
		return host, cli
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Accept")
	}
	return nil, nil
}

// Per unixTransport's documented scope, Unix file descriptors are never
// passed out-of-band via SCM_RIGHTS; this library only reads the peer's
// credentials from the socket to authenticate the peer's uid during EXTERNAL
// auth. TestUnixTransportRejectsUnixFD checks both: a client claiming the
// current uid is accepted, and a message carrying a UnixFD value is still
// refused by the transport.
func TestUnixTransportRejectsUnixFD(t *testing.T) {
	host, cli := unixDialPair(t)
	defer host.Close()
	defer cli.Close()

	if cli.SupportsUnixFDs() {
		t.Fatal("client transport reports UnixFD support, want false")
	}
	if host.SupportsUnixFDs() {
		t.Fatal("host transport reports UnixFD support, want false")
	}

	err := cli.Object("org.freedesktop.DBus", "/org/freedesktop/DBus").Call("org.freedesktop.DBus.Peer.Ping", 0, UnixFD(0)).Err
	if err == nil {
		t.Fatal("expected an error sending a UnixFD-bearing call, got nil")
	}
}

// TestUnixTransportExternalRejectsWrongUid verifies that EXTERNAL auth is
// actually checked against SO_PEERCRED, not merely accepted on faith: a
// client claiming an implausible uid must be rejected by the server.
func TestUnixTransportExternalRejectsWrongUid(t *testing.T) {
	addr := "unix:path=" + filepath.Join(t.TempDir(), "transport-reject-test.sock")
	srv, err := NewServer(addr, "transport-unix-reject-uuid", ServerAuthExternal(nil))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	acceptErrCh := make(chan error, 1)
	go func() {
		_, err := srv.Accept()
		acceptErrCh <- err
	}()

	// uid 65534 ("nobody" on most systems) does not match the uid actually
	// connecting over the socket, nor root, so the server must reject it.
	const impersonatedUID = 65534
	_, err = Dial(addr, WithAuth(AuthExternal(strconv.Itoa(impersonatedUID))), WithoutHello())
	if err == nil {
		t.Fatal("expected Dial to fail authentication with a mismatched uid, got nil error")
	}

	select {
	case err := <-acceptErrCh:
		if err == nil {
			t.Fatal("expected Accept to fail once the client's auth is rejected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Accept to observe the rejected auth")
	}
}
