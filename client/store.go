package client

import (
	"context"
	"fmt"

	"github.com/danmuck/driftkv/crdt"
)

// KeySpec names one (key, type) pair for a snapshot read.
type KeySpec struct {
	Key  string
	Type crdt.DataType
}

// Store applies an object's staged operations sequentially and
// non-atomically: each primitive is submitted on its own, and the first
// failure short-circuits without rolling back primitives already applied.
// Callers that need all-or-nothing semantics use AtomicStore instead.
func (s *Session) Store(ctx context.Context, obj crdt.Object) error {
	ops := obj.Operations()
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		msg, err := writeMessage(op)
		if err != nil {
			return err
		}
		resp, err := s.Submit(ctx, msg, s.cfg.RequestTimeout)
		if err != nil {
			return err
		}
		if err := decodeOperationResult(resp); err != nil {
			return err
		}
	}
	return nil
}

// Get reads one object and reconstructs it from the returned value.
func (s *Session) Get(ctx context.Context, key string, t crdt.DataType) (crdt.Object, error) {
	op, err := crdt.ReadOperation(key, t)
	if err != nil {
		return nil, err
	}
	msg, err := readMessage(op)
	if err != nil {
		return nil, err
	}
	resp, err := s.Submit(ctx, msg, s.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	var value crdt.Value
	switch t {
	case crdt.TypeCounter:
		v, err := decodeCounterValue(resp)
		if err != nil {
			return nil, err
		}
		value = crdt.CounterValue(v)
	case crdt.TypeSet:
		v, err := decodeSetValue(resp)
		if err != nil {
			return nil, err
		}
		value = v
	default:
		return nil, fmt.Errorf("%w: %s", crdt.ErrUnknownDataType, t)
	}
	return crdt.FromValue(key, value)
}

// AtomicStore flattens all objects' staged operations, in caller order, into
// one atomic update envelope and returns the commit clock. The update either
// applies fully or not at all; there is no partial success.
func (s *Session) AtomicStore(ctx context.Context, objs []crdt.Object, clock crdt.Clock) (crdt.Clock, error) {
	var ops []crdt.Operation
	for _, obj := range objs {
		ops = append(ops, obj.Operations()...)
	}
	if len(ops) == 0 {
		return clock, nil
	}

	msg, err := atomicUpdateMessage(ops, clock)
	if err != nil {
		return nil, err
	}
	resp, err := s.Submit(ctx, msg, s.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return decodeAtomicUpdateResult(resp)
}

// SnapshotGet reads all requested keys at one consistent snapshot. Returned
// objects align positionally with specs regardless of any server-side
// reordering inside the envelope.
func (s *Session) SnapshotGet(ctx context.Context, specs []KeySpec, clock crdt.Clock) (crdt.Clock, []crdt.Object, error) {
	if len(specs) == 0 {
		return clock, nil, nil
	}

	ops := make([]crdt.Operation, 0, len(specs))
	for _, spec := range specs {
		op, err := crdt.ReadOperation(spec.Key, spec.Type)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, op)
	}

	msg, err := snapshotReadMessage(ops, clock)
	if err != nil {
		return nil, nil, err
	}
	resp, err := s.Submit(ctx, msg, s.cfg.RequestTimeout)
	if err != nil {
		return nil, nil, err
	}

	newClock, values, err := decodeSnapshotReadResult(resp)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != len(specs) {
		return nil, nil, fmt.Errorf("%w: %d sub-results for %d operations",
			ErrUnexpectedResponse, len(values), len(specs))
	}

	objs := make([]crdt.Object, 0, len(specs))
	for i, spec := range specs {
		obj, err := crdt.FromValue(spec.Key, values[i])
		if err != nil {
			return nil, nil, err
		}
		if obj.Type() != spec.Type {
			return nil, nil, fmt.Errorf("%w: result %d is a %s, requested %s",
				ErrUnexpectedResponse, i, obj.Type(), spec.Type)
		}
		objs = append(objs, obj)
	}
	return newClock, objs, nil
}
