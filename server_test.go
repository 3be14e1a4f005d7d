package dbus

import (
	"path/filepath"
	"testing"
)

func TestNewServerRejectsBadAddresses(t *testing.T) {
	if _, err := NewServer("no-colon", "test-uuid"); err == nil {
		t.Error("expected an error when the address has no transport prefix")
	}
	if _, err := NewServer("carrier-pigeon:path=/tmp/x", "test-uuid"); err == nil {
		t.Error("expected an error for an unsupported transport family")
	}
	if _, err := NewServer("unix:", "test-uuid"); err == nil {
		t.Error("expected an error when neither path nor abstract is set")
	}
	if _, err := NewServer("unix:path=/tmp/a,abstract=b", "test-uuid"); err == nil {
		t.Error("expected an error when both path and abstract are set")
	}
}

func TestServerAcceptAuthenticatesAnonymousClient(t *testing.T) {
	dir := t.TempDir()
	addr := "unix:path=" + filepath.Join(dir, "server.sock")

	srv, err := NewServer(addr, "test-uuid", ServerAuthAnonymous())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv.Uuid() != "test-uuid" {
		t.Errorf("got uuid %q, want test-uuid", srv.Uuid())
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

	client, err := Dial(addr, WithAuth(AuthAnonymous()), WithoutHello())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	select {
	case err := <-errCh:
		t.Fatalf("Accept: %v", err)
	case conn := <-acceptCh:
		defer conn.Close()
	}
}
