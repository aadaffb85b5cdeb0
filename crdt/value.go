package crdt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrInvalidSetBlob = errors.New("crdt: invalid set value blob")

// Value is a wire-level value for one object, before reconstruction.
type Value interface {
	isValue()
}

// CounterValue is a counter's integer value.
type CounterValue int64

// SetValue is a set's element list.
type SetValue [][]byte

func (CounterValue) isValue() {}
func (SetValue) isValue()     {}

// EncodeSetValue serializes elements as a u32 element count followed by
// u32-length-prefixed element bytes.
func EncodeSetValue(elems [][]byte) []byte {
	size := 4
	for _, e := range elems {
		size += 4 + len(e)
	}
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(len(elems)))
	for _, e := range elems {
		out = binary.BigEndian.AppendUint32(out, uint32(len(e)))
		out = append(out, e...)
	}
	return out
}

// DecodeSetValue parses a set value blob. An empty blob decodes to an empty
// set.
func DecodeSetValue(blob []byte) (SetValue, error) {
	if len(blob) == 0 {
		return SetValue{}, nil
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("%w: short count", ErrInvalidSetBlob)
	}
	count := binary.BigEndian.Uint32(blob[:4])
	rest := blob[4:]
	// Each element needs at least its 4-byte length prefix, which bounds
	// how many the remaining bytes can hold. The count is untrusted input
	// and must not size an allocation on its own.
	if count > uint32(len(rest))/4 {
		return nil, fmt.Errorf("%w: count exceeds blob size", ErrInvalidSetBlob)
	}
	elems := make(SetValue, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: short element length", ErrInvalidSetBlob)
		}
		l := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < l {
			return nil, fmt.Errorf("%w: short element", ErrInvalidSetBlob)
		}
		elem := make([]byte, l)
		copy(elem, rest[:l])
		elems = append(elems, elem)
		rest = rest[l:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrInvalidSetBlob)
	}
	return elems, nil
}
