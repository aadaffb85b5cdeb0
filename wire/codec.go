package wire

import (
	"errors"
	"fmt"

	"github.com/danmuck/driftkv/internal/protocol/schema"
	"github.com/danmuck/driftkv/internal/protocol/tlv"
)

var (
	ErrUnknownCode      = errors.New("wire: unrecognized message code")
	ErrNestedEnvelope   = errors.New("wire: envelope member must be a primitive operation")
	ErrEnvelopeMember   = errors.New("wire: message not allowed in this envelope")
	ErrSubResultVariant = errors.New("wire: sub-result must be a value response")
)

// Codec is the default frame-body codec. It satisfies the session layer's
// codec contract.
type Codec struct{}

func (Codec) Encode(requestID uint64, msg Message) (byte, []byte, error) {
	return EncodeMessage(requestID, msg)
}

func (Codec) Decode(code byte, payload []byte) (Response, error) {
	return DecodeResponse(code, payload)
}

// EncodeMessage serializes one request into a message code and TLV payload.
// Envelope members are encoded recursively with request id zero; only the
// envelope itself carries the live id.
func EncodeMessage(requestID uint64, msg Message) (byte, []byte, error) {
	var (
		code   byte
		fields []tlv.Field
	)
	fields = append(fields, tlv.U64Field(schema.FieldRequestID, requestID))

	switch m := msg.(type) {
	case Increment:
		code = schema.MsgIncrement
		fields = append(fields,
			tlv.StringField(schema.FieldKey, m.Key),
			tlv.I64Field(schema.FieldAmount, m.Amount),
		)
	case Decrement:
		code = schema.MsgDecrement
		fields = append(fields,
			tlv.StringField(schema.FieldKey, m.Key),
			tlv.I64Field(schema.FieldAmount, m.Amount),
		)
	case SetUpdate:
		code = schema.MsgSetUpdate
		fields = append(fields, tlv.StringField(schema.FieldKey, m.Key))
		for _, elem := range m.Adds {
			fields = append(fields, tlv.BytesField(schema.FieldSetAdd, elem))
		}
		for _, elem := range m.Removes {
			fields = append(fields, tlv.BytesField(schema.FieldSetRemove, elem))
		}
	case GetCounter:
		code = schema.MsgGetCounter
		fields = append(fields, tlv.StringField(schema.FieldKey, m.Key))
	case GetSet:
		code = schema.MsgGetSet
		fields = append(fields, tlv.StringField(schema.FieldKey, m.Key))
	case AtomicUpdate:
		code = schema.MsgAtomicUpdate
		memberFields, err := encodeMembers(m.Ops, writeMember)
		if err != nil {
			return 0, nil, err
		}
		fields = append(fields, memberFields...)
		if m.Clock != nil {
			fields = append(fields, tlv.BytesField(schema.FieldClock, m.Clock))
		}
	case SnapshotRead:
		code = schema.MsgSnapshotRead
		memberFields, err := encodeMembers(m.Ops, readMember)
		if err != nil {
			return 0, nil, err
		}
		fields = append(fields, memberFields...)
		if m.Clock != nil {
			fields = append(fields, tlv.BytesField(schema.FieldClock, m.Clock))
		}
	default:
		return 0, nil, fmt.Errorf("%w: %T", ErrUnknownCode, msg)
	}

	if err := schema.Validate(code, fields); err != nil {
		return 0, nil, err
	}
	return code, tlv.EncodeFields(fields), nil
}

type memberKind int

const (
	writeMember memberKind = iota
	readMember
)

func memberAllowed(code byte, kind memberKind) bool {
	switch kind {
	case writeMember:
		return code == schema.MsgIncrement || code == schema.MsgDecrement || code == schema.MsgSetUpdate
	default:
		return code == schema.MsgGetCounter || code == schema.MsgGetSet
	}
}

func encodeMembers(ops []Message, kind memberKind) ([]tlv.Field, error) {
	fields := make([]tlv.Field, 0, len(ops))
	for _, op := range ops {
		switch op.(type) {
		case AtomicUpdate, SnapshotRead:
			return nil, ErrNestedEnvelope
		}
		code, payload, err := EncodeMessage(0, op)
		if err != nil {
			return nil, err
		}
		if !memberAllowed(code, kind) {
			return nil, fmt.Errorf("%w: %T", ErrEnvelopeMember, op)
		}
		blob := make([]byte, 0, 1+len(payload))
		blob = append(blob, code)
		blob = append(blob, payload...)
		fields = append(fields, tlv.BytesField(schema.FieldOpBlob, blob))
	}
	return fields, nil
}

// DecodeMessage parses one request frame body. It is the server-side
// counterpart of EncodeMessage, used by the protocol simulator.
func DecodeMessage(code byte, payload []byte) (Message, uint64, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, 0, err
	}
	if err := schema.Validate(code, fields); err != nil {
		return nil, 0, err
	}
	requestID := requiredU64(fields, schema.FieldRequestID)

	switch code {
	case schema.MsgIncrement:
		return Increment{
			Key:    requiredString(fields, schema.FieldKey),
			Amount: requiredI64(fields, schema.FieldAmount),
		}, requestID, nil
	case schema.MsgDecrement:
		return Decrement{
			Key:    requiredString(fields, schema.FieldKey),
			Amount: requiredI64(fields, schema.FieldAmount),
		}, requestID, nil
	case schema.MsgSetUpdate:
		return SetUpdate{
			Key:     requiredString(fields, schema.FieldKey),
			Adds:    bytesValues(fields, schema.FieldSetAdd),
			Removes: bytesValues(fields, schema.FieldSetRemove),
		}, requestID, nil
	case schema.MsgGetCounter:
		return GetCounter{Key: requiredString(fields, schema.FieldKey)}, requestID, nil
	case schema.MsgGetSet:
		return GetSet{Key: requiredString(fields, schema.FieldKey)}, requestID, nil
	case schema.MsgAtomicUpdate:
		ops, err := decodeMembers(fields, writeMember)
		if err != nil {
			return nil, 0, err
		}
		return AtomicUpdate{Ops: ops, Clock: optionalBytes(fields, schema.FieldClock)}, requestID, nil
	case schema.MsgSnapshotRead:
		ops, err := decodeMembers(fields, readMember)
		if err != nil {
			return nil, 0, err
		}
		return SnapshotRead{Ops: ops, Clock: optionalBytes(fields, schema.FieldClock)}, requestID, nil
	default:
		return nil, 0, fmt.Errorf("%w: 0x%02x", ErrUnknownCode, code)
	}
}

func decodeMembers(fields []tlv.Field, kind memberKind) ([]Message, error) {
	blobs := tlv.GetAll(fields, schema.FieldOpBlob)
	ops := make([]Message, 0, len(blobs))
	for _, f := range blobs {
		if len(f.Value) < 1 {
			return nil, fmt.Errorf("%w: empty member blob", ErrEnvelopeMember)
		}
		code := f.Value[0]
		if !memberAllowed(code, kind) {
			return nil, fmt.Errorf("%w: code 0x%02x", ErrEnvelopeMember, code)
		}
		op, _, err := DecodeMessage(code, f.Value[1:])
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// EncodeResponse serializes one reply into a message code and TLV payload.
func EncodeResponse(resp Response) (byte, []byte, error) {
	var (
		code   byte
		fields []tlv.Field
	)
	fields = append(fields, tlv.U64Field(schema.FieldRequestID, resp.ResponseID()))

	switch r := resp.(type) {
	case OperationResult:
		code = schema.MsgOperationResult
		fields = append(fields, tlv.BoolField(schema.FieldSuccess, r.Success))
	case CounterValue:
		code = schema.MsgCounterValue
		fields = append(fields, tlv.I64Field(schema.FieldCounterValue, r.Value))
	case SetValue:
		code = schema.MsgSetValue
		fields = append(fields, tlv.BytesField(schema.FieldSetBlob, r.Blob))
	case AtomicUpdateResult:
		code = schema.MsgAtomicUpdateResult
		fields = append(fields, tlv.BoolField(schema.FieldSuccess, r.Success))
		if r.Clock != nil {
			fields = append(fields, tlv.BytesField(schema.FieldClock, r.Clock))
		}
	case SnapshotReadResult:
		code = schema.MsgSnapshotReadResult
		fields = append(fields, tlv.BoolField(schema.FieldSuccess, r.Success))
		if r.Clock != nil {
			fields = append(fields, tlv.BytesField(schema.FieldClock, r.Clock))
		}
		for _, sub := range r.Results {
			switch sub.(type) {
			case CounterValue, SetValue:
			default:
				return 0, nil, fmt.Errorf("%w: %T", ErrSubResultVariant, sub)
			}
			subCode, subPayload, err := EncodeResponse(sub)
			if err != nil {
				return 0, nil, err
			}
			blob := make([]byte, 0, 1+len(subPayload))
			blob = append(blob, subCode)
			blob = append(blob, subPayload...)
			fields = append(fields, tlv.BytesField(schema.FieldSubResult, blob))
		}
	case ErrorReply:
		code = schema.MsgError
		fields = append(fields, tlv.U32Field(schema.FieldErrorCode, r.Code))
		if r.Message != "" {
			fields = append(fields, tlv.StringField(schema.FieldErrorMessage, r.Message))
		}
	default:
		return 0, nil, fmt.Errorf("%w: %T", ErrUnknownCode, resp)
	}

	if err := schema.Validate(code, fields); err != nil {
		return 0, nil, err
	}
	return code, tlv.EncodeFields(fields), nil
}

// DecodeResponse parses one reply frame body. Sub-results of a snapshot read
// are decoded recursively by the same mapping.
func DecodeResponse(code byte, payload []byte) (Response, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(code, fields); err != nil {
		return nil, err
	}
	requestID := requiredU64(fields, schema.FieldRequestID)

	switch code {
	case schema.MsgOperationResult:
		return OperationResult{
			RequestID: requestID,
			Success:   requiredBool(fields, schema.FieldSuccess),
		}, nil
	case schema.MsgCounterValue:
		return CounterValue{
			RequestID: requestID,
			Value:     requiredI64(fields, schema.FieldCounterValue),
		}, nil
	case schema.MsgSetValue:
		blob, _ := tlv.GetField(fields, schema.FieldSetBlob)
		return SetValue{RequestID: requestID, Blob: blob.Value}, nil
	case schema.MsgAtomicUpdateResult:
		return AtomicUpdateResult{
			RequestID: requestID,
			Success:   requiredBool(fields, schema.FieldSuccess),
			Clock:     optionalBytes(fields, schema.FieldClock),
		}, nil
	case schema.MsgSnapshotReadResult:
		result := SnapshotReadResult{
			RequestID: requestID,
			Success:   requiredBool(fields, schema.FieldSuccess),
			Clock:     optionalBytes(fields, schema.FieldClock),
		}
		for _, f := range tlv.GetAll(fields, schema.FieldSubResult) {
			if len(f.Value) < 1 {
				return nil, fmt.Errorf("%w: empty sub-result blob", ErrSubResultVariant)
			}
			subCode := f.Value[0]
			if subCode != schema.MsgCounterValue && subCode != schema.MsgSetValue {
				return nil, fmt.Errorf("%w: code 0x%02x", ErrSubResultVariant, subCode)
			}
			sub, err := DecodeResponse(subCode, f.Value[1:])
			if err != nil {
				return nil, err
			}
			result.Results = append(result.Results, sub)
		}
		return result, nil
	case schema.MsgError:
		reply := ErrorReply{RequestID: requestID}
		if f, ok := tlv.GetField(fields, schema.FieldErrorCode); ok {
			if v, err := tlv.U32FromBytes(f.Value); err == nil {
				reply.Code = v
			}
		}
		if f, ok := tlv.GetField(fields, schema.FieldErrorMessage); ok {
			reply.Message = string(f.Value)
		}
		return reply, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownCode, code)
	}
}

// Required-field accessors assume schema.Validate already ran.

func requiredString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}

func requiredU64(fields []tlv.Field, id uint16) uint64 {
	f, _ := tlv.GetField(fields, id)
	v, _ := tlv.U64FromBytes(f.Value)
	return v
}

func requiredI64(fields []tlv.Field, id uint16) int64 {
	f, _ := tlv.GetField(fields, id)
	v, _ := tlv.I64FromBytes(f.Value)
	return v
}

func requiredBool(fields []tlv.Field, id uint16) bool {
	f, _ := tlv.GetField(fields, id)
	v, _ := tlv.BoolFromBytes(f.Value)
	return v
}

func optionalBytes(fields []tlv.Field, id uint16) []byte {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return nil
	}
	return f.Value
}

func bytesValues(fields []tlv.Field, id uint16) [][]byte {
	all := tlv.GetAll(fields, id)
	if len(all) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(all))
	for _, f := range all {
		out = append(out, f.Value)
	}
	return out
}
