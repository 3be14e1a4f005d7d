package dbus

import (
	"errors"
	"testing"
)

func TestErrorNameForSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrServiceNotFound, ErrNameServiceUnknown},
		{ErrObjectNotFound, ErrNameUnknownObject},
		{ErrInterfaceNotFound, ErrNameUnknownInterface},
		{ErrMethodNotFound, ErrNameUnknownMethod},
		{ErrPropertyNotFound, ErrNameUnknownProperty},
		{ErrPropertyReadOnly, ErrNamePropertyReadOnly},
		{ErrInvalidArgs, ErrNameInvalidArgs},
		{errors.New("something else"), ErrNameFailed},
	}
	for _, c := range cases {
		if got := errorNameFor(c.err); got != c.want {
			t.Errorf("errorNameFor(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestErrorNameForWrappedSentinel(t *testing.T) {
	wrapped := errors.New("wrapping: " + ErrObjectNotFound.Error())
	if got := errorNameFor(wrapped); got != ErrNameFailed {
		t.Errorf("got %q for an unrelated error with a similar message, want %q", got, ErrNameFailed)
	}

	if got := errorNameFor(errWrap(ErrMethodNotFound)); got != ErrNameUnknownMethod {
		t.Errorf("got %q for a properly wrapped sentinel, want %q", got, ErrNameUnknownMethod)
	}
}

func errWrap(err error) error {
	return &wrappedErr{err}
}

type wrappedErr struct{ err error }

func (w *wrappedErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrappedErr) Unwrap() error { return w.err }

func TestErrorBody(t *testing.T) {
	e := Error{Name: "org.example.Failed", Body: []interface{}{"boom"}}
	if e.Error() != "boom" {
		t.Errorf("got %q, want %q", e.Error(), "boom")
	}

	empty := Error{Name: "org.example.Failed"}
	if empty.Error() == "" {
		t.Error("expected a non-empty fallback error message")
	}
}
