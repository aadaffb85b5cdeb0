package client

import (
	"fmt"

	"github.com/danmuck/driftkv/crdt"
	"github.com/danmuck/driftkv/wire"
)

// writeMessage maps one write primitive to its own wire message.
func writeMessage(op crdt.Operation) (wire.Message, error) {
	switch o := op.(type) {
	case crdt.Increment:
		return wire.Increment{Key: o.Key, Amount: o.Amount}, nil
	case crdt.Decrement:
		return wire.Decrement{Key: o.Key, Amount: o.Amount}, nil
	case crdt.SetUpdate:
		return wire.SetUpdate{Key: o.Key, Adds: o.Adds, Removes: o.Removes}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotWriteOperation, op)
	}
}

// readMessage maps one read primitive to its own wire message.
func readMessage(op crdt.Operation) (wire.Message, error) {
	switch o := op.(type) {
	case crdt.GetCounter:
		return wire.GetCounter{Key: o.Key}, nil
	case crdt.GetSet:
		return wire.GetSet{Key: o.Key}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotReadOperation, op)
	}
}

// atomicUpdateMessage concatenates write primitives, in caller order, into
// one atomic envelope. The clock is attached only when supplied; nil is the
// ignore marker, not a zero clock.
func atomicUpdateMessage(ops []crdt.Operation, clock crdt.Clock) (wire.AtomicUpdate, error) {
	members := make([]wire.Message, 0, len(ops))
	for _, op := range ops {
		msg, err := writeMessage(op)
		if err != nil {
			return wire.AtomicUpdate{}, err
		}
		members = append(members, msg)
	}
	return wire.AtomicUpdate{Ops: members, Clock: clock}, nil
}

// snapshotReadMessage concatenates read primitives, in caller order, into
// one snapshot envelope. Clock handling mirrors the write path.
func snapshotReadMessage(ops []crdt.Operation, clock crdt.Clock) (wire.SnapshotRead, error) {
	members := make([]wire.Message, 0, len(ops))
	for _, op := range ops {
		msg, err := readMessage(op)
		if err != nil {
			return wire.SnapshotRead{}, err
		}
		members = append(members, msg)
	}
	return wire.SnapshotRead{Ops: members, Clock: clock}, nil
}
