package dbus

import (
	"net"
	"testing"
)

type rwcPipe struct {
	net.Conn
}

func (p rwcPipe) Close() error { return p.Conn.Close() }

func newGenericTransportPair() (genericTransport, genericTransport) {
	c1, c2 := net.Pipe()
	return genericTransport{rwcPipe{c1}}, genericTransport{rwcPipe{c2}}
}

func TestGenericTransportNullByteRoundTrip(t *testing.T) {
	a, b := newGenericTransportPair()
	defer a.Close()
	defer b.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- a.SendNullByte() }()
	if err := b.ReadNullByte(); err != nil {
		t.Fatalf("ReadNullByte: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("SendNullByte: %v", err)
	}
}

func TestGenericTransportUnsupportsUnixFDs(t *testing.T) {
	a, _ := newGenericTransportPair()
	defer a.Close()
	if a.SupportsUnixFDs() {
		t.Error("genericTransport should never support unix fds")
	}
	a.EnableUnixFDs() // no-op, must not panic
}

func TestGenericTransportSendMessageRejectsUnixFD(t *testing.T) {
	a, b := newGenericTransportPair()
	defer a.Close()
	defer b.Close()

	msg := new(Message)
	msg.Type = TypeMethodCall
	msg.Headers = map[HeaderField]Variant{
		FieldPath:      MakeVariant(ObjectPath("/org/example")),
		FieldMember:    MakeVariant("Foo"),
		FieldInterface: MakeVariant("org.example.Foo"),
	}
	msg.Body = []interface{}{UnixFD(3)}

	if err := a.SendMessage(msg); err == nil {
		t.Error("expected SendMessage to reject a body containing a raw UnixFD")
	}
}

func TestGenericTransportSendAndReadMessage(t *testing.T) {
	a, b := newGenericTransportPair()
	defer a.Close()
	defer b.Close()

	msg := new(Message)
	msg.Type = TypeMethodCall
	msg.Flags = FlagNoReplyExpected
	msg.Headers = map[HeaderField]Variant{
		FieldPath:      MakeVariant(ObjectPath("/org/example")),
		FieldMember:    MakeVariant("Foo"),
		FieldInterface: MakeVariant("org.example.Foo"),
		FieldSignature: MakeVariant(Signature{"s"}),
	}
	msg.Body = []interface{}{"hello"}

	errCh := make(chan error, 1)
	go func() { errCh <- a.SendMessage(msg) }()

	got, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.Body[0] != "hello" {
		t.Errorf("got body %v, want [hello]", got.Body)
	}
}

func TestNewTCPTransportMissingHostPort(t *testing.T) {
	if _, err := newTCPTransport(""); err == nil {
		t.Error("expected an error when host/port are missing")
	}
}
