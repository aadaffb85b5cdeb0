package client

import (
	"fmt"

	"github.com/danmuck/driftkv/crdt"
	"github.com/danmuck/driftkv/wire"
)

// Response decoding maps wire variants onto domain results. Every decoder
// handles ErrorReply, so a server-side failure surfaces on any operation.

func decodeOperationResult(resp wire.Response) error {
	switch r := resp.(type) {
	case wire.OperationResult:
		if !r.Success {
			return ErrOperationFailed
		}
		return nil
	case wire.ErrorReply:
		return &ServerError{Code: r.Code, Message: r.Message}
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
}

func decodeCounterValue(resp wire.Response) (int64, error) {
	switch r := resp.(type) {
	case wire.CounterValue:
		return r.Value, nil
	case wire.ErrorReply:
		return 0, &ServerError{Code: r.Code, Message: r.Message}
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
}

func decodeSetValue(resp wire.Response) (crdt.SetValue, error) {
	switch r := resp.(type) {
	case wire.SetValue:
		elems, err := crdt.DecodeSetValue(r.Blob)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return elems, nil
	case wire.ErrorReply:
		return nil, &ServerError{Code: r.Code, Message: r.Message}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
}

func decodeAtomicUpdateResult(resp wire.Response) (crdt.Clock, error) {
	switch r := resp.(type) {
	case wire.AtomicUpdateResult:
		if !r.Success {
			return nil, ErrTransactionAborted
		}
		return crdt.Clock(r.Clock), nil
	case wire.ErrorReply:
		return nil, &ServerError{Code: r.Code, Message: r.Message}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
}

// decodeSnapshotReadResult returns the snapshot clock and one value per
// envelope operation, in envelope order. Sub-results are decoded by the
// same counter/set mapping as standalone reads.
func decodeSnapshotReadResult(resp wire.Response) (crdt.Clock, []crdt.Value, error) {
	switch r := resp.(type) {
	case wire.SnapshotReadResult:
		if !r.Success {
			return nil, nil, ErrTransactionAborted
		}
		values := make([]crdt.Value, 0, len(r.Results))
		for _, sub := range r.Results {
			switch v := sub.(type) {
			case wire.CounterValue:
				values = append(values, crdt.CounterValue(v.Value))
			case wire.SetValue:
				elems, err := crdt.DecodeSetValue(v.Blob)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
				}
				values = append(values, elems)
			default:
				return nil, nil, fmt.Errorf("%w: sub-result %T", ErrUnexpectedResponse, sub)
			}
		}
		return crdt.Clock(r.Clock), values, nil
	case wire.ErrorReply:
		return nil, nil, &ServerError{Code: r.Code, Message: r.Message}
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
}
