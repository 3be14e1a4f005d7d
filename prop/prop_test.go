package prop

import (
	"path/filepath"
	"testing"
	"time"

	dbus "github.com/myq1991/node-dbus-sdk-sub000"
)

// dialPair spins up a peer-to-peer Server/Conn pair over a real Unix socket
// (no session bus required) and returns the accepting side (hostConn, where
// Properties is installed) and the dialing side (cliConn, used to call in).
func dialPair(t *testing.T) (hostConn, cliConn *dbus.Conn) {
	t.Helper()
	addr := "unix:path=" + filepath.Join(t.TempDir(), "prop-test.sock")

	srv, err := dbus.NewServer(addr, "prop-test-uuid", dbus.ServerAuthAnonymous())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	acceptCh := make(chan *dbus.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := srv.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
	}()

	cli, err := dbus.Dial(addr, dbus.WithAuth(dbus.AuthAnonymous()), dbus.WithoutHello())
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

const testIface = "org.example.Test"
const testPath = dbus.ObjectPath("/org/example/Test")

func TestGetAndSet(t *testing.T) {
	host, cli := dialPair(t)
	defer host.Close()
	defer cli.Close()

	spec := map[string]map[string]Prop{
		testIface: {
			"ReadWrite": {Value: int32(1), Writable: true, Emit: EmitTrue},
			"ReadOnly":  {Value: "fixed", Writable: false, Emit: EmitFalse},
		},
	}
	New(host, testPath, spec)

	obj := cli.Object("", testPath)

	v, err := obj.GetProperty(testIface + ".ReadWrite")
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if v.Value() != int32(1) {
		t.Errorf("got %v, want 1", v.Value())
	}

	if err := obj.SetProperty(testIface+".ReadWrite", int32(2)); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	v, err = obj.GetProperty(testIface + ".ReadWrite")
	if err != nil {
		t.Fatalf("GetProperty after Set: %v", err)
	}
	if v.Value() != int32(2) {
		t.Errorf("got %v, want 2", v.Value())
	}
}

func TestSetReadOnlyPropertyRejected(t *testing.T) {
	host, cli := dialPair(t)
	defer host.Close()
	defer cli.Close()

	spec := map[string]map[string]Prop{
		testIface: {
			"ReadOnly": {Value: "fixed", Writable: false, Emit: EmitFalse},
		},
	}
	New(host, testPath, spec)

	obj := cli.Object("", testPath)
	err := obj.SetProperty(testIface+".ReadOnly", "new value")
	if err == nil {
		t.Fatal("expected an error setting a read-only property")
	}
	dbusErr, ok := err.(dbus.Error)
	if !ok {
		t.Fatalf("got %T, want dbus.Error", err)
	}
	if dbusErr.Name != dbus.ErrNamePropertyReadOnly {
		t.Errorf("got error name %q, want %q", dbusErr.Name, dbus.ErrNamePropertyReadOnly)
	}
}

func TestSetUnknownInterfaceAndProperty(t *testing.T) {
	host, cli := dialPair(t)
	defer host.Close()
	defer cli.Close()

	spec := map[string]map[string]Prop{
		testIface: {"ReadWrite": {Value: int32(1), Writable: true, Emit: EmitTrue}},
	}
	New(host, testPath, spec)

	obj := cli.Object("", testPath)

	if _, err := obj.GetProperty("org.example.Missing.ReadWrite"); err == nil {
		t.Error("expected an error for an unknown interface")
	} else if dbusErr, ok := err.(dbus.Error); !ok || dbusErr.Name != dbus.ErrNameUnknownInterface {
		t.Errorf("got %v, want %q", err, dbus.ErrNameUnknownInterface)
	}

	if _, err := obj.GetProperty(testIface + ".Missing"); err == nil {
		t.Error("expected an error for an unknown property")
	} else if dbusErr, ok := err.(dbus.Error); !ok || dbusErr.Name != dbus.ErrNameUnknownProperty {
		t.Errorf("got %v, want %q", err, dbus.ErrNameUnknownProperty)
	}
}

func TestSetInvalidTypeRejected(t *testing.T) {
	host, cli := dialPair(t)
	defer host.Close()
	defer cli.Close()

	spec := map[string]map[string]Prop{
		testIface: {"ReadWrite": {Value: int32(1), Writable: true, Emit: EmitTrue}},
	}
	New(host, testPath, spec)

	obj := cli.Object("", testPath)
	err := obj.SetProperty(testIface+".ReadWrite", "not an int32")
	if err == nil {
		t.Fatal("expected an error setting a property to a mismatched type")
	}
	if dbusErr, ok := err.(dbus.Error); !ok || dbusErr.Name != dbus.ErrNameInvalidArgs {
		t.Errorf("got %v, want %q", err, dbus.ErrNameInvalidArgs)
	}
}

func TestGetAllAndIntrospection(t *testing.T) {
	host, cli := dialPair(t)
	defer host.Close()
	defer cli.Close()

	spec := map[string]map[string]Prop{
		testIface: {
			"A": {Value: int32(1), Writable: true, Emit: EmitTrue},
			"B": {Value: "two", Writable: false, Emit: EmitFalse},
		},
	}
	props := New(host, testPath, spec)

	obj := cli.Object("", testPath)
	all, err := obj.GetAllProperties(testIface)
	if err != nil {
		t.Fatalf("GetAllProperties: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d properties, want 2", len(all))
	}
	if all["A"].Value() != int32(1) || all["B"].Value() != "two" {
		t.Errorf("got %v, want A=1, B=two", all)
	}

	introspection := props.Introspection(testIface)
	access := make(map[string]string, len(introspection))
	for _, p := range introspection {
		access[p.Name] = p.Access
	}
	if access["A"] != "readwrite" || access["B"] != "read" {
		t.Errorf("got %v, want A=readwrite, B=read", access)
	}
}

func TestPropertiesChangedEmittedOnSet(t *testing.T) {
	host, cli := dialPair(t)
	defer host.Close()
	defer cli.Close()

	spec := map[string]map[string]Prop{
		testIface: {"A": {Value: int32(1), Writable: true, Emit: EmitTrue}},
	}
	New(host, testPath, spec)

	sigCh := make(chan *dbus.Signal, 1)
	cli.Signal(sigCh)
	if err := cli.Object("", testPath).SetProperty(testIface+".A", int32(9)); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}

	select {
	case sig := <-sigCh:
		if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" {
			t.Errorf("got signal %q, want PropertiesChanged", sig.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PropertiesChanged")
	}
}

func TestCoalescingFlushBatchesChanges(t *testing.T) {
	host, cli := dialPair(t)
	defer host.Close()
	defer cli.Close()

	spec := map[string]map[string]Prop{
		testIface: {
			"A": {Value: int32(1), Writable: true, Emit: EmitTrue},
			"B": {Value: int32(2), Writable: true, Emit: EmitTrue},
		},
	}
	props := NewCoalescing(host, testPath, spec)

	sigCh := make(chan *dbus.Signal, 4)
	cli.Signal(sigCh)

	props.SetMust(testIface, "A", int32(11))
	props.SetMust(testIface, "B", int32(22))

	select {
	case <-sigCh:
		t.Fatal("expected no PropertiesChanged before Flush")
	case <-time.After(200 * time.Millisecond):
	}

	props.Flush()

	select {
	case sig := <-sigCh:
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok || len(changed) != 2 {
			t.Errorf("got body %v, want a 2-entry changed-properties map", sig.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the flushed PropertiesChanged")
	}
}
