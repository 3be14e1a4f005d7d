package dbus

import (
	"reflect"
	"testing"
)

func TestObjectPathIsValid(t *testing.T) {
	cases := []struct {
		path  ObjectPath
		valid bool
	}{
		{"/", true},
		{"/org/example/Foo", true},
		{"/org/example/Foo_1", true},
		{"", false},
		{"org/example", false},
		{"/org/example/", false},
		{"/org//example", false},
		{"/org/exa-mple", false},
	}
	for _, c := range cases {
		if got := c.path.IsValid(); got != c.valid {
			t.Errorf("ObjectPath(%q).IsValid() = %v, want %v", c.path, got, c.valid)
		}
	}
}

func TestStoreScalars(t *testing.T) {
	var i int32
	var s string
	err := Store([]interface{}{int32(42), "hello"}, &i, &s)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if i != 42 || s != "hello" {
		t.Errorf("got (%d, %q), want (42, hello)", i, s)
	}
}

func TestStoreLengthMismatch(t *testing.T) {
	var i int32
	if err := Store([]interface{}{int32(1), int32(2)}, &i); err == nil {
		t.Error("expected a length mismatch error")
	}
}

func TestStoreTypeMismatch(t *testing.T) {
	var i int32
	if err := Store([]interface{}{"not an int"}, &i); err == nil {
		t.Error("expected a type mismatch error")
	}
}

type storeTarget struct {
	A int32
	B string
}

func TestStoreIntoStruct(t *testing.T) {
	var target storeTarget
	err := Store([]interface{}{[]interface{}{int32(1), "two"}}, &target)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	want := storeTarget{A: 1, B: "two"}
	if !reflect.DeepEqual(target, want) {
		t.Errorf("got %+v, want %+v", target, want)
	}
}

func TestStoreIntoStructFieldCountMismatch(t *testing.T) {
	var target storeTarget
	err := Store([]interface{}{[]interface{}{int32(1)}}, &target)
	if err == nil {
		t.Error("expected a field count mismatch error")
	}
}

func TestAlignment(t *testing.T) {
	cases := []struct {
		t    reflect.Type
		want int
	}{
		{byteType, 1},
		{int16Type, 2},
		{uint16Type, 2},
		{int32Type, 4},
		{stringType, 4},
		{objectPathType, 4},
		{int64Type, 8},
		{float64Type, 8},
		{variantType, 1},
		{signatureType, 1},
	}
	for _, c := range cases {
		if got := alignment(c.t); got != c.want {
			t.Errorf("alignment(%v) = %d, want %d", c.t, got, c.want)
		}
	}
}

func TestIsKeyType(t *testing.T) {
	if !isKeyType(stringType) {
		t.Error("string should be a valid key type")
	}
	if !isKeyType(int32Type) {
		t.Error("int32 should be a valid key type")
	}
	if isKeyType(variantType) {
		t.Error("variant should not be a valid key type")
	}
}

func TestInvalidTypeErrorMessage(t *testing.T) {
	err := InvalidTypeError{Type: reflect.TypeOf(make(chan int))}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}
