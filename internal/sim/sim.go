// Package sim is an in-memory DriftKV server speaking the real wire
// protocol. It backs cmd/driftsim for local development and the client test
// suite, with fault injection hooks for timeout and disconnect scenarios.
package sim

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/driftkv/crdt"
	"github.com/danmuck/driftkv/internal/observability"
	"github.com/danmuck/driftkv/internal/protocol/frame"
	"github.com/danmuck/driftkv/wire"
)

// Faults injects failure behavior keyed by the keys a request touches.
type Faults struct {
	// FailKeys makes updates touching these keys report success=false.
	FailKeys map[string]bool
	// SilentKeys swallows requests touching these keys without replying.
	SilentKeys map[string]bool
	// CloseKeys closes the connection instead of replying.
	CloseKeys map[string]bool
}

// Server is one simulated store.
type Server struct {
	mu       sync.Mutex
	counters map[string]int64
	sets     map[string]map[string]struct{}
	clock    uint64
	faults   Faults

	limits   frame.Limits
	ln       net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	requests atomic.Uint64
}

func NewServer() *Server {
	return &Server{
		counters: make(map[string]int64),
		sets:     make(map[string]map[string]struct{}),
		limits:   frame.DefaultLimits(),
		done:     make(chan struct{}),
	}
}

// SetFaults replaces the active fault injection table.
func (s *Server) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// Requests returns the number of frames handled so far.
func (s *Server) Requests() uint64 {
	return s.requests.Load()
}

// CounterValue returns the stored counter value for key.
func (s *Server) CounterValue(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

// SetElements returns the stored set membership for key, sorted.
func (s *Server) SetElements(key string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedElems(s.sets[key])
}

// Start listens on addr and serves until Close. It returns the bound
// address so tests can listen on port 0.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return ln.Addr().String(), nil
}

func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.ln != nil {
			_ = s.ln.Close()
		}
	})
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("sim: accept failed")
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	connID := uuid.NewString()
	logger := log.With().Str("conn_id", connID).Logger()
	logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("sim: connection open")

	reader := bufio.NewReader(conn)
	for {
		fr, err := frame.ReadFrame(reader, s.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug().Err(err).Msg("sim: read ended")
			}
			return
		}
		s.requests.Add(1)
		observability.RecordSimFrame(fr.Code)

		msg, requestID, err := wire.DecodeMessage(fr.Code, fr.Payload)
		if err != nil {
			logger.Warn().Err(err).Uint8("code", fr.Code).Msg("sim: undecodable request")
			s.reply(conn, wire.ErrorReply{RequestID: requestID, Code: 400, Message: "bad request"}, logger)
			continue
		}

		switch s.faultFor(msg) {
		case faultSilent:
			logger.Debug().Uint64("request_id", requestID).Msg("sim: swallowing request")
			continue
		case faultClose:
			logger.Debug().Uint64("request_id", requestID).Msg("sim: closing mid-request")
			return
		}

		s.reply(conn, s.apply(requestID, msg), logger)
	}
}

func (s *Server) reply(conn net.Conn, resp wire.Response, logger zerolog.Logger) {
	code, payload, err := wire.EncodeResponse(resp)
	if err != nil {
		logger.Error().Err(err).Msg("sim: encode reply failed")
		return
	}
	if err := frame.WriteFrame(conn, frame.Frame{Code: code, Payload: payload}, s.limits); err != nil {
		logger.Debug().Err(err).Msg("sim: write reply failed")
	}
}

type faultKind int

const (
	faultNone faultKind = iota
	faultSilent
	faultClose
)

func (s *Server) faultFor(msg wire.Message) faultKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range messageKeys(msg) {
		if s.faults.SilentKeys[key] {
			return faultSilent
		}
		if s.faults.CloseKeys[key] {
			return faultClose
		}
	}
	return faultNone
}

// apply executes one request against the store under the lock.
func (s *Server) apply(requestID uint64, msg wire.Message) wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case wire.Increment, wire.Decrement, wire.SetUpdate:
		if s.failsLocked(msg) {
			return wire.OperationResult{RequestID: requestID, Success: false}
		}
		s.applyWriteLocked(msg)
		s.clock++
		return wire.OperationResult{RequestID: requestID, Success: true}

	case wire.GetCounter:
		return wire.CounterValue{RequestID: requestID, Value: s.counters[m.Key]}

	case wire.GetSet:
		return wire.SetValue{RequestID: requestID, Blob: crdt.EncodeSetValue(sortedElems(s.sets[m.Key]))}

	case wire.AtomicUpdate:
		for _, op := range m.Ops {
			if s.failsLocked(op) {
				return wire.AtomicUpdateResult{RequestID: requestID, Success: false}
			}
		}
		for _, op := range m.Ops {
			s.applyWriteLocked(op)
		}
		s.clock++
		return wire.AtomicUpdateResult{RequestID: requestID, Success: true, Clock: s.clockBytesLocked()}

	case wire.SnapshotRead:
		results := make([]wire.Response, 0, len(m.Ops))
		for _, op := range m.Ops {
			switch o := op.(type) {
			case wire.GetCounter:
				results = append(results, wire.CounterValue{Value: s.counters[o.Key]})
			case wire.GetSet:
				results = append(results, wire.SetValue{Blob: crdt.EncodeSetValue(sortedElems(s.sets[o.Key]))})
			}
		}
		return wire.SnapshotReadResult{
			RequestID: requestID,
			Success:   true,
			Clock:     s.clockBytesLocked(),
			Results:   results,
		}

	default:
		return wire.ErrorReply{RequestID: requestID, Code: 400, Message: "unsupported request"}
	}
}

func (s *Server) failsLocked(msg wire.Message) bool {
	for _, key := range messageKeys(msg) {
		if s.faults.FailKeys[key] {
			return true
		}
	}
	return false
}

func (s *Server) applyWriteLocked(msg wire.Message) {
	switch m := msg.(type) {
	case wire.Increment:
		s.counters[m.Key] += m.Amount
	case wire.Decrement:
		s.counters[m.Key] -= m.Amount
	case wire.SetUpdate:
		set, ok := s.sets[m.Key]
		if !ok {
			set = make(map[string]struct{})
			s.sets[m.Key] = set
		}
		for _, elem := range m.Adds {
			set[string(elem)] = struct{}{}
		}
		for _, elem := range m.Removes {
			delete(set, string(elem))
		}
	}
}

func (s *Server) clockBytesLocked() []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, s.clock)
	return out
}

func messageKeys(msg wire.Message) []string {
	switch m := msg.(type) {
	case wire.Increment:
		return []string{m.Key}
	case wire.Decrement:
		return []string{m.Key}
	case wire.SetUpdate:
		return []string{m.Key}
	case wire.GetCounter:
		return []string{m.Key}
	case wire.GetSet:
		return []string{m.Key}
	case wire.AtomicUpdate:
		return memberKeys(m.Ops)
	case wire.SnapshotRead:
		return memberKeys(m.Ops)
	default:
		return nil
	}
}

func memberKeys(ops []wire.Message) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, messageKeys(op)...)
	}
	return out
}

func sortedElems(set map[string]struct{}) [][]byte {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}
