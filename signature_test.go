package dbus

import (
	"reflect"
	"testing"
)

var sigTests = []struct {
	vs  []interface{}
	sig Signature
}{
	{
		[]interface{}{new(int32)},
		Signature{"i"},
	},
	{
		[]interface{}{new(Variant), new([]map[int32]string)},
		Signature{"vaa{is}"},
	},
	{
		[]interface{}{new(string), new(ObjectPath), new(Signature)},
		Signature{"sog"},
	},
}

func TestSignatureOf(t *testing.T) {
	for i, v := range sigTests {
		sig := SignatureOf(v.vs...)
		if sig != v.sig {
			t.Errorf("test %d: got %q, expected %q", i+1, sig.str, v.sig.str)
		}
		svs := v.sig.Values()
		if len(svs) != len(v.vs) {
			t.Errorf("test %d: got %d values, expected %d", i+1, len(svs), len(v.vs))
			continue
		}
		for j := range svs {
			if t1, t2 := reflect.TypeOf(svs[j]), reflect.TypeOf(v.vs[j]); t1 != t2 {
				t.Errorf("test %d: got %s, expected %s", i+1, t1, t2)
			}
		}
	}
}

func TestParseSignature(t *testing.T) {
	valid := []string{"", "i", "ai", "a{si}", "(is)", "a{s(iv)}", "ay", "h"}
	for _, s := range valid {
		if _, err := ParseSignature(s); err != nil {
			t.Errorf("ParseSignature(%q): unexpected error: %v", s, err)
		}
	}
	invalid := []string{"{si}", "a{s}", "(is", "z", "a{sii}"}
	for _, s := range invalid {
		if _, err := ParseSignature(s); err == nil {
			t.Errorf("ParseSignature(%q): expected error, got nil", s)
		}
	}
}

func TestSignatureSingle(t *testing.T) {
	single := ParseSignatureMust("i")
	if !single.Single() {
		t.Error("\"i\" should be a single complete type")
	}
	multi := ParseSignatureMust("ii")
	if multi.Single() {
		t.Error("\"ii\" should not be a single complete type")
	}
}

func TestSignatureEmpty(t *testing.T) {
	if !(Signature{}).Empty() {
		t.Error("zero Signature should be empty")
	}
	if ParseSignatureMust("i").Empty() {
		t.Error("\"i\" should not be empty")
	}
}

func TestSignatureOfTypePanicsOnUnrepresentable(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic signing a channel type")
		}
	}()
	SignatureOfType(reflect.TypeOf(make(chan int)))
}
