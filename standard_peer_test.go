package dbus

import "testing"

func TestMachineIDStableAndNonEmpty(t *testing.T) {
	conn := &Conn{}
	first := conn.machineID()
	if first == "" {
		t.Fatal("expected a non-empty machine id")
	}
	if second := conn.machineID(); second != first {
		t.Errorf("got %q on second call, want %q (cached)", second, first)
	}
}
