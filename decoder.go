package dbus

import (
	"encoding/binary"
	"io"
	"math"
)

// A decoder reads signed values from the DBus wire format, driven directly
// by a signature string rather than by a destination Go type: the decoder
// always hands back a plain value tree (scalars, []byte, []interface{},
// map[...]interface{}, Variant), and callers project that into typed Go
// destinations with Store.
type decoder struct {
	in     io.Reader
	order  binary.ByteOrder
	pos    int
	narrow bool
}

// newDecoder returns a new decoder that reads values from in, encoded in the
// given byte order. fds is accepted for symmetry with the encoder's side
// table but is otherwise unused: per this library's scope, UnixFDIndex
// values decode to their plain numeric index, never a real descriptor.
func newDecoder(in io.Reader, order binary.ByteOrder, fds []int32) *decoder {
	return &decoder{in: in, order: order}
}

// DecodeNarrow controls whether 64-bit integers are re-projected into
// float64 when representable within 53 bits, for callers that want
// JSON-safe numbers instead of exact 64-bit values. Only the top-level
// values returned by Decode are re-projected; 64-bit integers nested inside
// arrays, structs, dicts or variants are returned unchanged.
func (dec *decoder) DecodeNarrow(v bool) {
	dec.narrow = v
}

func (dec *decoder) align(n int) error {
	if dec.pos%n == 0 {
		return nil
	}
	pad := n - (dec.pos % n)
	buf := make([]byte, pad)
	if _, err := io.ReadFull(dec.in, buf); err != nil {
		return err
	}
	dec.pos += pad
	return nil
}

func (dec *decoder) read(buf []byte) error {
	if _, err := io.ReadFull(dec.in, buf); err != nil {
		return err
	}
	dec.pos += len(buf)
	return nil
}

// Decode decodes the values described by sig from the underlying reader and
// returns them as a plain value sequence, one element per top-level type in
// sig.
func (dec *decoder) Decode(sig Signature) (vs []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	s := sig.str
	for s != "" {
		verr, rem := validSingle(s, 0)
		if verr != nil {
			return nil, verr
		}
		single := s[:len(s)-len(rem)]
		v := dec.decodeSig(single, 0)
		if dec.narrow {
			v = narrow(v)
		}
		vs = append(vs, v)
		s = rem
	}
	return vs, nil
}

// decodeSig decodes exactly one complete type described by s (which must be
// a single valid type, e.g. "i" or "a(si)") and panics on any error.
func (dec *decoder) decodeSig(s string, depth int) interface{} {
	if depth > 64 {
		panic(FormatError("input exceeds container depth limit"))
	}
	switch s[0] {
	case 'y':
		var b [1]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return b[0]
	case 'b':
		if err := dec.align(4); err != nil {
			panic(err)
		}
		var b [4]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		switch dec.order.Uint32(b[:]) {
		case 0:
			return false
		case 1:
			return true
		default:
			panic(FormatError("invalid value for boolean"))
		}
	case 'n':
		if err := dec.align(2); err != nil {
			panic(err)
		}
		var b [2]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return int16(dec.order.Uint16(b[:]))
	case 'q':
		if err := dec.align(2); err != nil {
			panic(err)
		}
		var b [2]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return dec.order.Uint16(b[:])
	case 'i':
		if err := dec.align(4); err != nil {
			panic(err)
		}
		var b [4]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return int32(dec.order.Uint32(b[:]))
	case 'u':
		if err := dec.align(4); err != nil {
			panic(err)
		}
		var b [4]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return dec.order.Uint32(b[:])
	case 'h':
		if err := dec.align(4); err != nil {
			panic(err)
		}
		var b [4]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return UnixFDIndex(dec.order.Uint32(b[:]))
	case 'x':
		if err := dec.align(8); err != nil {
			panic(err)
		}
		var b [8]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return int64(dec.order.Uint64(b[:]))
	case 't':
		if err := dec.align(8); err != nil {
			panic(err)
		}
		var b [8]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return dec.order.Uint64(b[:])
	case 'd':
		if err := dec.align(8); err != nil {
			panic(err)
		}
		var b [8]byte
		if err := dec.read(b[:]); err != nil {
			panic(err)
		}
		return math.Float64frombits(dec.order.Uint64(b[:]))
	case 's', 'o':
		length := dec.decodeSig("u", depth).(uint32)
		b := make([]byte, int(length)+1)
		if err := dec.read(b); err != nil {
			panic(err)
		}
		var str string
		if length > 0 {
			str = toString(b[:length])
		}
		if s[0] == 'o' {
			if !ObjectPath(str).IsValid() {
				panic(FormatError("invalid object path: " + str))
			}
			return ObjectPath(str)
		}
		return str
	case 'g':
		var lb [1]byte
		if err := dec.read(lb[:]); err != nil {
			panic(err)
		}
		b := make([]byte, int(lb[0])+1)
		if err := dec.read(b); err != nil {
			panic(err)
		}
		sig, err := ParseSignature(string(b[:lb[0]]))
		if err != nil {
			panic(err)
		}
		return sig
	case 'v':
		var lb [1]byte
		if err := dec.read(lb[:]); err != nil {
			panic(err)
		}
		b := make([]byte, int(lb[0])+1)
		if err := dec.read(b); err != nil {
			panic(err)
		}
		innerStr := string(b[:lb[0]])
		sig, err := ParseSignature(innerStr)
		if err != nil {
			panic(err)
		}
		if !sig.Single() {
			panic(FormatError("variant signature has multiple types"))
		}
		inner := dec.decodeSig(innerStr, depth+1)
		return Variant{sig: sig, value: inner}
	case 'a':
		return dec.decodeArray(s, depth)
	case '(':
		if err := dec.align(8); err != nil {
			panic(err)
		}
		inner := s[1 : len(s)-1]
		fields := make([]interface{}, 0)
		for inner != "" {
			verr, rem := validSingle(inner, depth+1)
			if verr != nil {
				panic(verr)
			}
			single := inner[:len(inner)-len(rem)]
			fields = append(fields, dec.decodeSig(single, depth+1))
			inner = rem
		}
		return fields
	}
	panic(SignatureError{Sig: s, Reason: "invalid type character"})
}

func (dec *decoder) decodeArray(s string, depth int) interface{} {
	if s[1] == '{' {
		return dec.decodeDict(s, depth)
	}
	elem := s[1:]
	if err := dec.align(4); err != nil {
		panic(err)
	}
	length := dec.decodeSig("u", depth).(uint32)
	elemAlign := alignmentOfSig(elem)
	if err := dec.align(elemAlign); err != nil {
		panic(err)
	}
	if elem == "y" {
		b := make([]byte, length)
		if length > 0 {
			if err := dec.read(b); err != nil {
				panic(err)
			}
		}
		return b
	}
	spos := dec.pos
	seq := make([]interface{}, 0)
	verr, rem := validSingle(elem, depth+1)
	if verr != nil {
		panic(verr)
	}
	single := elem[:len(elem)-len(rem)]
	for dec.pos < spos+int(length) {
		seq = append(seq, dec.decodeSig(single, depth+1))
	}
	return seq
}

func (dec *decoder) decodeDict(s string, depth int) interface{} {
	inner := s[2 : len(s)-1]
	verr, rem := validSingle(inner, depth+1)
	if verr != nil {
		panic(verr)
	}
	keySig := inner[:len(inner)-len(rem)]
	valSig := rem

	if err := dec.align(4); err != nil {
		panic(err)
	}
	length := dec.decodeSig("u", depth).(uint32)
	if err := dec.align(8); err != nil {
		panic(err)
	}
	spos := dec.pos

	if keySig == "s" {
		m := make(map[string]interface{})
		for dec.pos < spos+int(length) {
			if err := dec.align(8); err != nil {
				panic(err)
			}
			k := dec.decodeSig(keySig, depth+2).(string)
			v := dec.decodeSig(valSig, depth+2)
			m[k] = v
		}
		return m
	}
	m := make(map[interface{}]interface{})
	for dec.pos < spos+int(length) {
		if err := dec.align(8); err != nil {
			panic(err)
		}
		k := dec.decodeSig(keySig, depth+2)
		v := dec.decodeSig(valSig, depth+2)
		m[k] = v
	}
	return m
}

// alignmentOfSig returns the wire alignment of a single complete type
// signature, mirroring encoder's alignment(reflect.Type) but operating on
// the signature string directly.
func alignmentOfSig(s string) int {
	switch s[0] {
	case 'y', 'g':
		return 1
	case 'n', 'q':
		return 2
	case 'b', 'i', 'u', 'h', 's', 'o', 'a':
		return 4
	case 'x', 't', 'd', '(':
		return 8
	case 'v':
		return 1
	}
	return 1
}

// narrow re-projects 64-bit integers representable within 53 bits into
// float64, for callers that prefer JSON-safe numbers over exact int64/uint64
// values. Values outside that range are left untouched.
func narrow(v interface{}) interface{} {
	const maxSafe = 1 << 53
	switch n := v.(type) {
	case int64:
		if n >= -maxSafe && n <= maxSafe {
			return float64(n)
		}
	case uint64:
		if n <= maxSafe {
			return float64(n)
		}
	}
	return v
}

// A FormatError represents an error in the wire format (e.g. an invalid
// value for a boolean, or truncated input).
type FormatError string

func (e FormatError) Error() string {
	return "dbus format error: " + string(e)
}
