// Package wire defines the message variants exchanged with a DriftKV store
// and the default codec translating them to and from frame bodies. The
// session layer treats this package as an opaque boundary behind the
// client.Codec interface.
package wire

// Message is one outbound request variant.
type Message interface {
	isMessage()
}

// Increment adds Amount to the counter at Key.
type Increment struct {
	Key    string
	Amount int64
}

// Decrement subtracts Amount from the counter at Key.
type Decrement struct {
	Key    string
	Amount int64
}

// SetUpdate applies element additions and removals to the set at Key.
type SetUpdate struct {
	Key     string
	Adds    [][]byte
	Removes [][]byte
}

// GetCounter reads the counter at Key.
type GetCounter struct {
	Key string
}

// GetSet reads the set at Key.
type GetSet struct {
	Key string
}

// AtomicUpdate bundles write primitives for atomic application. A nil Clock
// means no causal dependency is declared.
type AtomicUpdate struct {
	Ops   []Message
	Clock []byte
}

// SnapshotRead bundles read primitives for a consistent multi-key read. A
// nil Clock means the store picks the snapshot point.
type SnapshotRead struct {
	Ops   []Message
	Clock []byte
}

func (Increment) isMessage()    {}
func (Decrement) isMessage()    {}
func (SetUpdate) isMessage()    {}
func (GetCounter) isMessage()   {}
func (GetSet) isMessage()       {}
func (AtomicUpdate) isMessage() {}
func (SnapshotRead) isMessage() {}
