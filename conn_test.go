package dbus

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// pipeTransport adapts a net.Conn (as returned by net.Pipe) to the
// transport interface, for exercising the handshake and dispatch loops
// without a real Unix socket.
type pipeTransport struct {
	net.Conn
}

func (t pipeTransport) SendNullByte() error {
	_, err := t.Write([]byte{0})
	return err
}

func (t pipeTransport) SupportsUnixFDs() bool { return false }

func (t pipeTransport) EnableUnixFDs() {}

func (t pipeTransport) ReadMessage() (*Message, error) {
	return DecodeMessage(t.Conn)
}

func (t pipeTransport) SendMessage(msg *Message) error {
	return msg.EncodeTo(t.Conn, binary.LittleEndian)
}

// newPipeConns returns two directly-connected Conns, neither backed by a
// bus daemon: left is the dialing side (ANONYMOUS, Hello skipped), right is
// the listening side (also ANONYMOUS, as Server.Accept would configure it).
func newPipeConns(t *testing.T) (left, right *Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	type result struct {
		conn *Conn
		err  error
	}
	rc := make(chan result, 1)
	go func() {
		conn, err := newConn(pipeTransport{c2}, withServerAuth("test-uuid", []ServerAuth{ServerAuthAnonymous()}))
		rc <- result{conn, err}
	}()
	lconn, err := newConn(pipeTransport{c1}, WithAuth(AuthAnonymous()), WithoutHello())
	if err != nil {
		t.Fatalf("dial side: %v", err)
	}
	r := <-rc
	if r.err != nil {
		t.Fatalf("accept side: %v", r.err)
	}
	return lconn, r.conn
}

type greeter struct{}

func (greeter) Hello(name string) (string, *Error) {
	return "hello, " + name, nil
}

func TestPeerToPeerExportAndCall(t *testing.T) {
	left, right := newPipeConns(t)
	defer left.Close()
	defer right.Close()

	if err := right.Export(greeter{}, "/org/example/Greeter", "org.example.Greeter"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	obj := left.Object("", "/org/example/Greeter")
	var reply string
	call := obj.Call("org.example.Greeter.Hello", 0, "world")
	if call.Err != nil {
		t.Fatalf("Call: %v", call.Err)
	}
	if err := call.Store(&reply); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if reply != "hello, world" {
		t.Errorf("got %q, want %q", reply, "hello, world")
	}
}

func TestPeerToPeerUnknownMethod(t *testing.T) {
	left, right := newPipeConns(t)
	defer left.Close()
	defer right.Close()

	if err := right.Export(greeter{}, "/org/example/Greeter", "org.example.Greeter"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	obj := left.Object("", "/org/example/Greeter")
	call := obj.Call("org.example.Greeter.Missing", 0)
	if call.Err == nil {
		t.Error("expected an error calling an unexported method")
	}
}

func TestPeerToPeerPing(t *testing.T) {
	left, right := newPipeConns(t)
	defer left.Close()
	defer right.Close()

	obj := left.Object("", "/")
	call := obj.Call("org.freedesktop.DBus.Peer.Ping", 0)
	if call.Err != nil {
		t.Fatalf("Ping: %v", call.Err)
	}
}

func TestPeerToPeerAuthRejected(t *testing.T) {
	c1, c2 := net.Pipe()
	rc := make(chan error, 1)
	go func() {
		_, err := newConn(pipeTransport{c2}, withServerAuth("test-uuid", []ServerAuth{ServerAuthExternal(nil)}))
		rc <- err
	}()
	_, err := newConn(pipeTransport{c1}, WithAuth(AuthAnonymous()), WithoutHello())
	if err == nil {
		t.Error("expected the dial side to fail when the listener only accepts EXTERNAL")
	}
	if err := <-rc; err == nil {
		t.Error("expected the accept side to fail as well")
	}
}

func TestPeerToPeerEmittedSignal(t *testing.T) {
	left, right := newPipeConns(t)
	defer left.Close()
	defer right.Close()

	ch := make(chan *Signal, 1)
	left.Signal(ch)

	if err := right.Emit("/org/example/Greeter", "org.example.Greeter.Greeted", "world"); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case sig := <-ch:
		if sig.Name != "org.example.Greeter.Greeted" || sig.Body[0] != "world" {
			t.Errorf("got %+v, want Greeted(world)", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}
