// Package crdt holds the client-side data-type layer: primitive operations,
// replicated objects that stage local updates as operation lists, and value
// reconstruction from wire-level results.
package crdt

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyKey        = errors.New("crdt: empty key")
	ErrUnknownDataType = errors.New("crdt: unknown data type")
)

// DataType identifies a replicated data type.
type DataType uint8

const (
	TypeCounter DataType = iota + 1
	TypeSet
)

func (t DataType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeSet:
		return "set"
	default:
		return fmt.Sprintf("datatype(%d)", uint8(t))
	}
}

// ParseDataType maps a config/CLI name to a DataType.
func ParseDataType(name string) (DataType, error) {
	switch name {
	case "counter":
		return TypeCounter, nil
	case "set":
		return TypeSet, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDataType, name)
	}
}

// Clock is an opaque causal token issued by the store. A nil Clock means
// "no clock supplied" and is treated as a distinct ignore marker, not as a
// zero point in history.
type Clock []byte

// Operation is one primitive update or read against a single key.
type Operation interface {
	OperationKey() string
	isOperation()
}

// Increment adds Amount to a counter.
type Increment struct {
	Key    string
	Amount int64
}

// Decrement subtracts Amount from a counter.
type Decrement struct {
	Key    string
	Amount int64
}

// SetUpdate applies element additions and removals to a set.
type SetUpdate struct {
	Key     string
	Adds    [][]byte
	Removes [][]byte
}

// GetCounter reads a counter value.
type GetCounter struct {
	Key string
}

// GetSet reads a set value.
type GetSet struct {
	Key string
}

func (o Increment) OperationKey() string  { return o.Key }
func (o Decrement) OperationKey() string  { return o.Key }
func (o SetUpdate) OperationKey() string  { return o.Key }
func (o GetCounter) OperationKey() string { return o.Key }
func (o GetSet) OperationKey() string     { return o.Key }

func (Increment) isOperation()  {}
func (Decrement) isOperation()  {}
func (SetUpdate) isOperation()  {}
func (GetCounter) isOperation() {}
func (GetSet) isOperation()     {}

// IsWrite reports whether op belongs in an atomic update envelope.
func IsWrite(op Operation) bool {
	switch op.(type) {
	case Increment, Decrement, SetUpdate:
		return true
	default:
		return false
	}
}

// IsRead reports whether op belongs in a snapshot read envelope.
func IsRead(op Operation) bool {
	switch op.(type) {
	case GetCounter, GetSet:
		return true
	default:
		return false
	}
}

// Object is a replicated object with staged local updates. Operations
// returns the staged updates in the order they were made; it does not
// clear them, so a failed store can be retried by the caller.
type Object interface {
	Key() string
	Type() DataType
	Operations() []Operation
}

// ReadOperation builds the read primitive for one (key, type) pair.
func ReadOperation(key string, t DataType) (Operation, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	switch t {
	case TypeCounter:
		return GetCounter{Key: key}, nil
	case TypeSet:
		return GetSet{Key: key}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownDataType, t)
	}
}

// FromValue reconstructs an object from a wire-level value.
func FromValue(key string, v Value) (Object, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	switch val := v.(type) {
	case CounterValue:
		c := NewCounter(key)
		c.value = int64(val)
		return c, nil
	case SetValue:
		s := NewSet(key)
		for _, elem := range val {
			s.elems[string(elem)] = struct{}{}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownDataType, v)
	}
}
