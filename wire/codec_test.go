package wire

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/driftkv/internal/protocol/schema"
	"github.com/danmuck/driftkv/internal/testutil/testlog"
)

func TestPrimitiveMessageRoundTrips(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		code byte
		msg  Message
	}{
		{"increment", schema.MsgIncrement, Increment{Key: "counter.hits", Amount: 3}},
		{"decrement", schema.MsgDecrement, Decrement{Key: "counter.hits", Amount: 2}},
		{"set_update", schema.MsgSetUpdate, SetUpdate{
			Key:     "set.users",
			Adds:    [][]byte{[]byte("alice"), []byte("bob")},
			Removes: [][]byte{[]byte("mallory")},
		}},
		{"get_counter", schema.MsgGetCounter, GetCounter{Key: "counter.hits"}},
		{"get_set", schema.MsgGetSet, GetSet{Key: "set.users"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, payload, err := EncodeMessage(42, tc.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if code != tc.code {
				t.Fatalf("code mismatch: got=0x%02x want=0x%02x", code, tc.code)
			}
			decoded, requestID, err := DecodeMessage(code, payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if requestID != 42 {
				t.Fatalf("request id mismatch: %d", requestID)
			}
			if !reflect.DeepEqual(decoded, tc.msg) {
				t.Fatalf("message mismatch: got=%+v want=%+v", decoded, tc.msg)
			}
		})
	}
}

func TestAtomicUpdateEnvelopeRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := AtomicUpdate{
		Ops: []Message{
			Increment{Key: "counter.hits", Amount: 1},
			SetUpdate{Key: "set.users", Adds: [][]byte{[]byte("alice")}},
			Decrement{Key: "counter.misses", Amount: 4},
		},
		Clock: []byte{0, 0, 0, 0, 0, 0, 0, 9},
	}
	code, payload, err := EncodeMessage(7, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, requestID, err := DecodeMessage(code, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, ok := decoded.(AtomicUpdate)
	if !ok {
		t.Fatalf("unexpected variant %T", decoded)
	}
	if requestID != 7 {
		t.Fatalf("request id mismatch: %d", requestID)
	}
	if len(out.Ops) != 3 {
		t.Fatalf("expected 3 members, got %d", len(out.Ops))
	}
	if !reflect.DeepEqual(out.Ops[0], in.Ops[0]) || !reflect.DeepEqual(out.Ops[2], in.Ops[2]) {
		t.Fatalf("member order not preserved: %+v", out.Ops)
	}
	if !bytes.Equal(out.Clock, in.Clock) {
		t.Fatalf("clock mismatch: %x", out.Clock)
	}
}

func TestEnvelopeClockAbsenceIsPreserved(t *testing.T) {
	testlog.Start(t)
	code, payload, err := EncodeMessage(7, SnapshotRead{Ops: []Message{GetCounter{Key: "counter.hits"}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, _, err := DecodeMessage(code, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.(SnapshotRead).Clock != nil {
		t.Fatalf("absent clock decoded as %x", decoded.(SnapshotRead).Clock)
	}
}

func TestEncodeRejectsNestedEnvelope(t *testing.T) {
	testlog.Start(t)
	_, _, err := EncodeMessage(1, AtomicUpdate{
		Ops: []Message{AtomicUpdate{Ops: []Message{Increment{Key: "k", Amount: 1}}}},
	})
	if !errors.Is(err, ErrNestedEnvelope) {
		t.Fatalf("expected ErrNestedEnvelope, got %v", err)
	}
}

func TestEncodeRejectsReadInAtomicUpdate(t *testing.T) {
	testlog.Start(t)
	_, _, err := EncodeMessage(1, AtomicUpdate{Ops: []Message{GetCounter{Key: "k"}}})
	if !errors.Is(err, ErrEnvelopeMember) {
		t.Fatalf("expected ErrEnvelopeMember, got %v", err)
	}
	_, _, err = EncodeMessage(1, SnapshotRead{Ops: []Message{Increment{Key: "k", Amount: 1}}})
	if !errors.Is(err, ErrEnvelopeMember) {
		t.Fatalf("expected ErrEnvelopeMember, got %v", err)
	}
}

func TestResponseRoundTrips(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		resp Response
	}{
		{"operation_result", OperationResult{RequestID: 1, Success: true}},
		{"operation_failed", OperationResult{RequestID: 2, Success: false}},
		{"counter_value", CounterValue{RequestID: 3, Value: -12}},
		{"set_value", SetValue{RequestID: 4, Blob: []byte{0, 0, 0, 0}}},
		{"atomic_result", AtomicUpdateResult{RequestID: 5, Success: true, Clock: []byte{9}}},
		{"error_reply", ErrorReply{RequestID: 6, Code: 503, Message: "overloaded"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, payload, err := EncodeResponse(tc.resp)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := DecodeResponse(code, payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(decoded, tc.resp) {
				t.Fatalf("response mismatch: got=%+v want=%+v", decoded, tc.resp)
			}
		})
	}
}

func TestSnapshotReadResultRecursiveRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := SnapshotReadResult{
		RequestID: 11,
		Success:   true,
		Clock:     []byte{0, 0, 0, 0, 0, 0, 0, 3},
		Results: []Response{
			CounterValue{Value: 5},
			SetValue{Blob: []byte{0, 0, 0, 0}},
		},
	}
	code, payload, err := EncodeResponse(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeResponse(code, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := decoded.(SnapshotReadResult)
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 sub-results, got %d", len(out.Results))
	}
	if v, ok := out.Results[0].(CounterValue); !ok || v.Value != 5 {
		t.Fatalf("sub-result 0 mismatch: %+v", out.Results[0])
	}
	if _, ok := out.Results[1].(SetValue); !ok {
		t.Fatalf("sub-result 1 mismatch: %+v", out.Results[1])
	}
}

func TestEncodeRejectsEnvelopeSubResult(t *testing.T) {
	testlog.Start(t)
	_, _, err := EncodeResponse(SnapshotReadResult{
		RequestID: 1,
		Success:   true,
		Results:   []Response{OperationResult{Success: true}},
	})
	if !errors.Is(err, ErrSubResultVariant) {
		t.Fatalf("expected ErrSubResultVariant, got %v", err)
	}
}

func TestDecodeUnknownCode(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeResponse(0x7C, nil); err == nil {
		t.Fatalf("expected error for unknown code")
	}
	if _, _, err := DecodeMessage(0x7C, nil); err == nil {
		t.Fatalf("expected error for unknown code")
	}
}
