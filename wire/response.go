package wire

// Response is one inbound reply variant. ResponseID returns the echoed
// request id; envelope sub-results carry id zero.
type Response interface {
	ResponseID() uint64
	isResponse()
}

// OperationResult acknowledges a single write primitive.
type OperationResult struct {
	RequestID uint64
	Success   bool
}

// CounterValue is a counter read result.
type CounterValue struct {
	RequestID uint64
	Value     int64
}

// SetValue is a set read result. The blob requires further decoding by the
// data-type layer.
type SetValue struct {
	RequestID uint64
	Blob      []byte
}

// AtomicUpdateResult is the outcome of an AtomicUpdate envelope. Clock is
// the commit position on success.
type AtomicUpdateResult struct {
	RequestID uint64
	Success   bool
	Clock     []byte
}

// SnapshotReadResult is the outcome of a SnapshotRead envelope. Results are
// ordered to match the envelope's operations.
type SnapshotReadResult struct {
	RequestID uint64
	Success   bool
	Clock     []byte
	Results   []Response
}

// ErrorReply is a server-side failure for one request.
type ErrorReply struct {
	RequestID uint64
	Code      uint32
	Message   string
}

func (r OperationResult) ResponseID() uint64    { return r.RequestID }
func (r CounterValue) ResponseID() uint64       { return r.RequestID }
func (r SetValue) ResponseID() uint64           { return r.RequestID }
func (r AtomicUpdateResult) ResponseID() uint64 { return r.RequestID }
func (r SnapshotReadResult) ResponseID() uint64 { return r.RequestID }
func (r ErrorReply) ResponseID() uint64         { return r.RequestID }

func (OperationResult) isResponse()    {}
func (CounterValue) isResponse()       {}
func (SetValue) isResponse()           {}
func (AtomicUpdateResult) isResponse() {}
func (SnapshotReadResult) isResponse() {}
func (ErrorReply) isResponse()         {}
