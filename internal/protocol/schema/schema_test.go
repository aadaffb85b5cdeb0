package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/driftkv/internal/protocol/tlv"
	"github.com/danmuck/driftkv/internal/testutil/testlog"
)

func incrementFields() []tlv.Field {
	return []tlv.Field{
		tlv.U64Field(FieldRequestID, 7),
		tlv.StringField(FieldKey, "counter.hits"),
		tlv.I64Field(FieldAmount, 1),
	}
}

func TestValidateAcceptsCompleteMessage(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgIncrement, incrementFields()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateIgnoresUnknownFields(t *testing.T) {
	testlog.Start(t)
	fields := append(incrementFields(), tlv.BytesField(9999, []byte{0x01}))
	if err := Validate(MsgIncrement, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredField(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U64Field(FieldRequestID, 7),
		tlv.StringField(FieldKey, "counter.hits"),
	}
	err := Validate(MsgIncrement, fields)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.FieldID != FieldAmount {
		t.Fatalf("unexpected field id: %d", verr.FieldID)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U64Field(FieldRequestID, 7),
		tlv.StringField(FieldKey, "counter.hits"),
		tlv.U64Field(FieldAmount, 1), // amount must be i64
	}
	err := Validate(MsgIncrement, fields)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Reason != "type mismatch" {
		t.Fatalf("unexpected reason: %q", verr.Reason)
	}
}

func TestValidateUnknownMessageCode(t *testing.T) {
	testlog.Start(t)
	err := Validate(0x7C, nil)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIsResponse(t *testing.T) {
	testlog.Start(t)
	if IsResponse(MsgIncrement) || IsResponse(MsgSnapshotRead) {
		t.Fatalf("request codes classified as responses")
	}
	if !IsResponse(MsgOperationResult) || !IsResponse(MsgError) {
		t.Fatalf("response codes not classified as responses")
	}
}
