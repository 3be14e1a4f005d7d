package dbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

const protoVersion byte = 1

// Flags represents the possible flags of a DBus message.
type Flags byte

const (
	FlagNoReplyExpected Flags = 1 << iota
	FlagNoAutoStart
	FlagAllowInteractiveAuthorization
)

// Type represents the possible types of a DBus message.
type Type byte

const (
	TypeMethodCall Type = 1 + iota
	TypeMethodReply
	TypeError
	TypeSignal
	typeMax
)

// HeaderField represents the possible byte codes for the headers of a DBus
// message.
type HeaderField byte

const (
	FieldPath HeaderField = 1 + iota
	FieldInterface
	FieldMember
	FieldErrorName
	FieldReplySerial
	FieldDestination
	FieldSender
	FieldSignature
	FieldUnixFds
	fieldMax
)

// An InvalidMessageError describes the reason why a DBus message is regarded
// as invalid.
type InvalidMessageError string

func (e InvalidMessageError) Error() string {
	return "invalid message: " + string(e)
}

var fieldTypes = map[HeaderField]reflect.Type{
	FieldPath:        objectPathType,
	FieldInterface:   stringType,
	FieldMember:      stringType,
	FieldErrorName:   stringType,
	FieldReplySerial: uint32Type,
	FieldDestination: stringType,
	FieldSender:      stringType,
	FieldSignature:   signatureType,
	FieldUnixFds:     uint32Type,
}

var requiredFields = map[Type][]HeaderField{
	TypeMethodCall:  {FieldPath, FieldMember},
	TypeMethodReply: {FieldReplySerial},
	TypeError:       {FieldErrorName, FieldReplySerial},
	TypeSignal:      {FieldPath, FieldInterface, FieldMember},
}

// Message represents a single DBus message, with a body already decoded into
// a plain argument sequence (one element per top-level type in the
// signature header field).
type Message struct {
	Order binary.ByteOrder

	Type
	Flags
	serial  uint32
	Headers map[HeaderField]Variant
	Body    []interface{}
}

// Serial returns the message's serial number.
func (msg *Message) Serial() uint32 { return msg.serial }

// SetSerial sets the message's serial number. Only the connection that owns
// the serial counter should call this.
func (msg *Message) SetSerial(s uint32) { msg.serial = s }

type header struct {
	Field   HeaderField
	Variant Variant
}

// CountFds returns the number of UnixFD-typed values in the body, which
// determines the value stored under FieldUnixFds. This library never
// transmits the descriptors themselves (see UnixFD's documentation); the
// count exists only so the header field stays wire-accurate for peers that
// do support fd passing.
func (msg *Message) CountFds() int {
	n := 0
	for _, v := range msg.Body {
		switch v.(type) {
		case UnixFDIndex:
			n++
		case []UnixFDIndex:
			rv := reflect.ValueOf(v)
			n += rv.Len()
		}
	}
	return n
}

// DecodeMessage tries to decode a single message from the given reader. The
// byte order is figured out from the first byte. The possibly returned error
// may either be an error of the underlying reader or an InvalidMessageError.
//
// Per §4.4/§4.8, the fixed 16-byte header is read first so fields-length and
// body-length are known before any further bytes are consumed.
func DecodeMessage(rd io.Reader) (*Message, error) {
	var fixed [16]byte
	if _, err := io.ReadFull(rd, fixed[:]); err != nil {
		return nil, err
	}
	var order binary.ByteOrder
	switch fixed[0] {
	case 'l':
		order = binary.LittleEndian
	case 'B':
		order = binary.BigEndian
	default:
		return nil, InvalidMessageError("invalid byte order")
	}

	msg := new(Message)
	msg.Order = order
	msg.Type = Type(fixed[1])
	msg.Flags = Flags(fixed[2])
	// fixed[3] is the protocol version; only version 1 is understood.
	if fixed[3] != protoVersion {
		return nil, InvalidMessageError("unsupported protocol version")
	}
	bodyLength := order.Uint32(fixed[4:8])
	msg.serial = order.Uint32(fixed[8:12])
	fieldsLength := order.Uint32(fixed[12:16])

	dec := newDecoder(rd, order, nil)
	dec.pos = 16
	vs, err := dec.Decode(Signature{"a(yv)"})
	if err != nil {
		return nil, err
	}
	headers, err := toHeaders(vs[0])
	if err != nil {
		return nil, err
	}
	msg.Headers = make(map[HeaderField]Variant, len(headers))
	for _, h := range headers {
		msg.Headers[h.Field] = h.Variant
	}
	_ = fieldsLength // informational only; the decoder consumes exactly a(yv)

	if err := dec.align(8); err != nil {
		return nil, err
	}

	if err := msg.IsValid(); err != nil {
		return nil, err
	}

	if bodyLength > 0 {
		sig, _ := msg.Headers[FieldSignature].value.(Signature)
		body, err := dec.Decode(sig)
		if err != nil {
			return nil, err
		}
		msg.Body = body
	}
	return msg, nil
}

// toHeaders converts the decoded []interface{} sequence for a(yv) into a
// []header slice; each element of v is itself a []interface{}{byte, Variant}
// because the decoder never materializes user struct types.
func toHeaders(v interface{}) ([]header, error) {
	entries, ok := v.([]interface{})
	if !ok {
		return nil, InvalidMessageError("malformed header array")
	}
	hs := make([]header, 0, len(entries))
	for _, e := range entries {
		fields, ok := e.([]interface{})
		if !ok || len(fields) != 2 {
			return nil, InvalidMessageError("malformed header entry")
		}
		code, ok := fields[0].(byte)
		if !ok {
			return nil, InvalidMessageError("malformed header field code")
		}
		variant, ok := fields[1].(Variant)
		if !ok {
			return nil, InvalidMessageError("malformed header field value")
		}
		hs = append(hs, header{Field: HeaderField(code), Variant: variant})
	}
	return hs, nil
}

// EncodeTo encodes and sends a message to the given writer in the given byte
// order. If the message is not valid or an error occurs when writing, an
// error is returned.
func (msg *Message) EncodeTo(out io.Writer, order binary.ByteOrder) error {
	if err := msg.IsValid(); err != nil {
		return err
	}
	bodyBuf := new(bytes.Buffer)
	if len(msg.Body) > 0 {
		enc := newEncoder(bodyBuf, order, nil)
		if err := enc.Encode(msg.Body...); err != nil {
			return errors.Wrap(err, "dbus: encoding message body")
		}
	}

	headers := make([]header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, header{k, v})
	}

	buf := new(bytes.Buffer)
	enc := newEncoder(buf, order, nil)
	var orderByte byte
	switch order {
	case binary.LittleEndian:
		orderByte = 'l'
	case binary.BigEndian:
		orderByte = 'B'
	default:
		return InvalidMessageError("invalid byte order")
	}
	if err := enc.Encode(orderByte, msg.Type, msg.Flags, protoVersion,
		uint32(bodyBuf.Len()), msg.serial, headers); err != nil {
		return errors.Wrap(err, "dbus: encoding message header")
	}
	enc.align(8)
	if _, err := bodyBuf.WriteTo(buf); err != nil {
		return err
	}
	if _, err := buf.WriteTo(out); err != nil {
		return err
	}
	return nil
}

// IsValid checks whether message is a valid message and returns an
// InvalidMessageError if it is not.
func (msg *Message) IsValid() error {
	switch msg.Order {
	case binary.LittleEndian, binary.BigEndian, nil:
	default:
		return InvalidMessageError("invalid byte order")
	}
	if msg.Flags & ^(FlagNoAutoStart|FlagNoReplyExpected|FlagAllowInteractiveAuthorization) != 0 {
		return InvalidMessageError("invalid flags")
	}
	if msg.Type == 0 || msg.Type >= typeMax {
		return InvalidMessageError("invalid message type")
	}
	for k, v := range msg.Headers {
		if k == 0 || k >= fieldMax {
			return InvalidMessageError("invalid header")
		}
		if reflect.TypeOf(v.value) != fieldTypes[k] {
			return InvalidMessageError("invalid type of header field")
		}
	}
	for _, v := range requiredFields[msg.Type] {
		if _, ok := msg.Headers[v]; !ok {
			return InvalidMessageError("missing required header")
		}
	}
	if path, ok := msg.Headers[FieldPath]; ok {
		if !path.value.(ObjectPath).IsValid() {
			return InvalidMessageError("invalid path")
		}
	}
	if len(msg.Body) != 0 {
		if _, ok := msg.Headers[FieldSignature]; !ok {
			return InvalidMessageError("missing signature")
		}
	}
	return nil
}

// String returns a string representation of a message similar to the format
// of dbus-monitor.
func (msg *Message) String() string {
	if err := msg.IsValid(); err != nil {
		return "<invalid>"
	}
	s := map[Type]string{
		TypeMethodCall:  "method call",
		TypeMethodReply: "reply",
		TypeError:       "error",
		TypeSignal:      "signal",
	}[msg.Type]
	if v, ok := msg.Headers[FieldSender]; ok {
		s += " from " + v.value.(string)
	}
	if v, ok := msg.Headers[FieldDestination]; ok {
		s += " to " + v.value.(string)
	} else {
		s += " to <null>"
	}
	s += " serial " + strconv.FormatUint(uint64(msg.serial), 10)
	if v, ok := msg.Headers[FieldPath]; ok {
		s += " path " + string(v.value.(ObjectPath))
	}
	if v, ok := msg.Headers[FieldInterface]; ok {
		s += " interface " + v.value.(string)
	}
	if v, ok := msg.Headers[FieldErrorName]; ok {
		s += " name " + v.value.(string)
	}
	if v, ok := msg.Headers[FieldMember]; ok {
		s += " member " + v.value.(string)
	}
	for i, v := range msg.Body {
		s += fmt.Sprintf("\n  %v", v)
		_ = i
	}
	return s
}
