package schema

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/driftkv/internal/protocol/tlv"
)

// Message codes from the wire contract. Requests occupy the low range,
// responses set the high bit.
const (
	MsgIncrement    byte = 0x01
	MsgDecrement    byte = 0x02
	MsgSetUpdate    byte = 0x03
	MsgGetCounter   byte = 0x10
	MsgGetSet       byte = 0x11
	MsgAtomicUpdate byte = 0x20
	MsgSnapshotRead byte = 0x21

	MsgOperationResult    byte = 0x80
	MsgCounterValue       byte = 0x81
	MsgSetValue           byte = 0x82
	MsgAtomicUpdateResult byte = 0x83
	MsgSnapshotReadResult byte = 0x84
	MsgError              byte = 0xFF
)

// Field IDs from the wire contract.
const (
	FieldRequestID uint16 = 1

	FieldKey       uint16 = 10
	FieldAmount    uint16 = 11
	FieldSetAdd    uint16 = 12
	FieldSetRemove uint16 = 13

	FieldClock uint16 = 20

	FieldSuccess      uint16 = 30
	FieldCounterValue uint16 = 31
	FieldSetBlob      uint16 = 32
	FieldSubResult    uint16 = 33

	FieldErrorCode    uint16 = 40
	FieldErrorMessage uint16 = 41

	FieldOpBlob uint16 = 50
)

// Requirement is one required field (id, type) for a message code.
type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageCode byte
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_code=0x%02x: %s", e.MessageCode, e.Reason)
	}
	return fmt.Sprintf("schema: message_code=0x%02x field=%d: %s", e.MessageCode, e.FieldID, e.Reason)
}

var requirements = map[byte][]Requirement{
	MsgIncrement: {
		{FieldRequestID, tlv.TypeU64},
		{FieldKey, tlv.TypeString},
		{FieldAmount, tlv.TypeI64},
	},
	MsgDecrement: {
		{FieldRequestID, tlv.TypeU64},
		{FieldKey, tlv.TypeString},
		{FieldAmount, tlv.TypeI64},
	},
	MsgSetUpdate: {
		{FieldRequestID, tlv.TypeU64},
		{FieldKey, tlv.TypeString},
	},
	MsgGetCounter: {
		{FieldRequestID, tlv.TypeU64},
		{FieldKey, tlv.TypeString},
	},
	MsgGetSet: {
		{FieldRequestID, tlv.TypeU64},
		{FieldKey, tlv.TypeString},
	},
	MsgAtomicUpdate: {
		{FieldRequestID, tlv.TypeU64},
	},
	MsgSnapshotRead: {
		{FieldRequestID, tlv.TypeU64},
	},
	MsgOperationResult: {
		{FieldRequestID, tlv.TypeU64},
		{FieldSuccess, tlv.TypeBool},
	},
	MsgCounterValue: {
		{FieldRequestID, tlv.TypeU64},
		{FieldCounterValue, tlv.TypeI64},
	},
	MsgSetValue: {
		{FieldRequestID, tlv.TypeU64},
		{FieldSetBlob, tlv.TypeBytes},
	},
	MsgAtomicUpdateResult: {
		{FieldRequestID, tlv.TypeU64},
		{FieldSuccess, tlv.TypeBool},
	},
	MsgSnapshotReadResult: {
		{FieldRequestID, tlv.TypeU64},
		{FieldSuccess, tlv.TypeBool},
	},
	MsgError: {
		{FieldRequestID, tlv.TypeU64},
		{FieldErrorCode, tlv.TypeU32},
	},
}

// IsResponse reports whether code is in the response range.
func IsResponse(code byte) bool {
	return code&0x80 != 0
}

// Validate enforces required fields and required field types for a message code.
// Unknown fields are ignored so the contract can grow without breaking peers.
func Validate(code byte, fields []tlv.Field) error {
	reqs, ok := requirements[code]
	if !ok {
		log.Error().Uint8("message_code", code).Msg("schema: unknown message code")
		return ValidationError{MessageCode: code, Reason: "unknown message code"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Uint8("message_code", code).
				Uint16("field_id", req.ID).
				Msg("schema: missing required field")
			return ValidationError{MessageCode: code, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint8("message_code", code).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema: field type mismatch")
			return ValidationError{MessageCode: code, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
