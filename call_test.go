package dbus

import (
	"errors"
	"testing"
)

func TestCallStoreReturnsErrWithoutTouchingBody(t *testing.T) {
	wantErr := errors.New("boom")
	c := &Call{Err: wantErr, Body: []interface{}{"ignored"}}
	var dest string
	if err := c.Store(&dest); err != wantErr {
		t.Errorf("got %v, want %v", err, wantErr)
	}
	if dest != "" {
		t.Errorf("expected dest to be untouched, got %q", dest)
	}
}

func TestCallStoreProjectsBody(t *testing.T) {
	c := &Call{Body: []interface{}{int32(7), "ok"}}
	var n int32
	var s string
	if err := c.Store(&n, &s); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n != 7 || s != "ok" {
		t.Errorf("got (%d, %q), want (7, ok)", n, s)
	}
}
