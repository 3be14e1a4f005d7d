package dbus

import (
	"reflect"

	"github.com/pkg/errors"
)

var (
	byteType        = reflect.TypeOf(byte(0))
	boolType        = reflect.TypeOf(false)
	uint8Type       = reflect.TypeOf(uint8(0))
	int16Type       = reflect.TypeOf(int16(0))
	uint16Type      = reflect.TypeOf(uint16(0))
	int32Type       = reflect.TypeOf(int32(0))
	uint32Type      = reflect.TypeOf(uint32(0))
	int64Type       = reflect.TypeOf(int64(0))
	uint64Type      = reflect.TypeOf(uint64(0))
	float64Type     = reflect.TypeOf(float64(0))
	stringType      = reflect.TypeOf("")
	signatureType   = reflect.TypeOf(Signature{""})
	objectPathType  = reflect.TypeOf(ObjectPath(""))
	variantType     = reflect.TypeOf(Variant{Signature{""}, nil})
	interfacesType  = reflect.TypeOf([]interface{}{})
	unixFDType      = reflect.TypeOf(UnixFD(0))
	unixFDIndexType = reflect.TypeOf(UnixFDIndex(0))
)

// InvalidTypeError signals that a value which cannot be represented in the
// DBus wire format was passed to a function.
type InvalidTypeError struct {
	Type reflect.Type
}

func (err InvalidTypeError) Error() string {
	return "dbus: invalid type " + err.Type.String()
}

// Store copies the values contained in src to dest, which must be a slice of
// pointers. It converts slices of interfaces from src to corresponding structs
// in dest. An error is returned if the lengths of src and dest or the types of
// their elements don't match.
func Store(src []interface{}, dest ...interface{}) error {
	if len(src) != len(dest) {
		return errors.Errorf("dbus.Store: length mismatch (%d args, %d dest)", len(src), len(dest))
	}

	for i, v := range src {
		if reflect.TypeOf(dest[i]).Elem() == reflect.TypeOf(v) {
			reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
		} else if vs, ok := v.([]interface{}); ok {
			retv := reflect.ValueOf(dest[i]).Elem()
			if retv.Kind() != reflect.Struct {
				return errors.New("dbus.Store: type mismatch")
			}
			t := retv.Type()
			ndest := make([]interface{}, 0, retv.NumField())
			for i := 0; i < retv.NumField(); i++ {
				field := t.Field(i)
				if field.PkgPath == "" && field.Tag.Get("dbus") != "-" {
					ndest = append(ndest, retv.Field(i).Addr().Interface())
				}
			}
			if len(vs) != len(ndest) {
				return errors.New("dbus.Store: type mismatch")
			}
			if err := Store(vs, ndest...); err != nil {
				return errors.Wrap(err, "dbus.Store")
			}
		} else {
			return errors.Errorf("dbus.Store: type mismatch at index %d (%T != %T)", i, v, dest[i])
		}
	}
	return nil
}

// An ObjectPath is an object path as defined by the DBus spec.
type ObjectPath string

// IsValid returns whether the object path is valid.
func (o ObjectPath) IsValid() bool {
	s := string(o)
	if len(s) == 0 || len(s) > 255 {
		return false
	}
	if s[0] != '/' {
		return false
	}
	if s == "/" {
		return true
	}
	if s[len(s)-1] == '/' {
		return false
	}
	start := 1
	for i := 1; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			if i == start {
				return false
			}
			for _, c := range s[start:i] {
				if !isMemberChar(c) {
					return false
				}
			}
			start = i + 1
		}
	}
	return true
}

// A UnixFD is a Unix file descriptor. Per this library's scope, a UnixFD is
// never dereferenced, dup'd, or transmitted out-of-band: on the wire it is
// carried as a 32-bit index only (see UnixFDIndex).
type UnixFD int32

// A UnixFDIndex is the wire representation of a Unix file descriptor in a
// message: an index into a side table the caller maintains out of band.
type UnixFDIndex uint32

// alignment returns the alignment of values of type t.
func alignment(t reflect.Type) int {
	switch t {
	case variantType:
		return 1
	case objectPathType:
		return 4
	case signatureType:
		return 1
	}
	switch t.Kind() {
	case reflect.Uint8:
		return 1
	case reflect.Uint16, reflect.Int16:
		return 2
	case reflect.Uint32, reflect.Int32, reflect.String, reflect.Array, reflect.Slice, reflect.Map:
		return 4
	case reflect.Uint64, reflect.Int64, reflect.Float64, reflect.Struct:
		return 8
	case reflect.Ptr:
		return alignment(t.Elem())
	}
	return 1
}

// isKeyType returns whether t is a valid type for a DBus dict key.
func isKeyType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int16, reflect.Int32, reflect.Int64, reflect.Float64,
		reflect.String:

		return true
	}
	return false
}
