package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		StringField(10, "counter.hits"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestTypedFieldRoundTrips(t *testing.T) {
	fields := []Field{
		U32Field(1, 400),
		U64Field(2, 1<<40),
		I64Field(3, -77),
		BoolField(4, true),
	}
	decoded, err := DecodeFields(EncodeFields(fields))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if v, err := U32FromBytes(decoded[0].Value); err != nil || v != 400 {
		t.Fatalf("u32 mismatch: v=%d err=%v", v, err)
	}
	if v, err := U64FromBytes(decoded[1].Value); err != nil || v != 1<<40 {
		t.Fatalf("u64 mismatch: v=%d err=%v", v, err)
	}
	if v, err := I64FromBytes(decoded[2].Value); err != nil || v != -77 {
		t.Fatalf("i64 mismatch: v=%d err=%v", v, err)
	}
	if v, err := BoolFromBytes(decoded[3].Value); err != nil || !v {
		t.Fatalf("bool mismatch: v=%v err=%v", v, err)
	}
}

func TestGetAllPreservesOrder(t *testing.T) {
	fields := []Field{
		BytesField(50, []byte("first")),
		StringField(10, "key"),
		BytesField(50, []byte("second")),
	}
	all := GetAll(fields, 50)
	if len(all) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(all))
	}
	if string(all[0].Value) != "first" || string(all[1].Value) != "second" {
		t.Fatalf("order not preserved: %q %q", all[0].Value, all[1].Value)
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestMustTypeMismatch(t *testing.T) {
	f := StringField(10, "key")
	if err := MustType(f, TypeString); err != nil {
		t.Fatalf("unexpected mismatch: %v", err)
	}
	if err := MustType(f, TypeU64); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}
