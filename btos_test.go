package dbus

import "testing"

func TestToString(t *testing.T) {
	b := []byte("hello")
	if got := toString(b); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}
