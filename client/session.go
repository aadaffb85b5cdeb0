package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/driftkv/internal/observability"
	"github.com/danmuck/driftkv/internal/protocol/frame"
	"github.com/danmuck/driftkv/wire"
)

// Codec serializes requests and parses replies. wire.Codec is the default;
// the session never looks inside a payload itself.
type Codec interface {
	Encode(requestID uint64, msg wire.Message) (code byte, payload []byte, err error)
	Decode(code byte, payload []byte) (wire.Response, error)
}

// Session is one live connection to a DriftKV store with single-flight
// request tracking. All session state is owned by the run loop goroutine:
// submissions, inbound frames, timer fires, and disconnects are handled as
// serialized events, never concurrently.
type Session struct {
	cfg   Config
	codec Codec
	id    string
	log   zerolog.Logger
	tr    *transport

	submitCh chan *pendingRequest
	closeCh  chan struct{}
	done     chan struct{}

	closeOnce sync.Once

	// Loop-owned state. Request ids increase monotonically per session, so
	// a response surviving past its request's timeout can never match a
	// later request.
	nextID  uint64
	pending *pendingRequest
}

type pendingRequest struct {
	id      uint64
	msg     wire.Message
	timeout time.Duration
	op      string
	reply   chan submitResult
	timer   *time.Timer
	timerCh <-chan time.Time
	started time.Time
}

type submitResult struct {
	resp wire.Response
	err  error
}

// Connect dials the store and starts the session loop.
func Connect(ctx context.Context, addr string, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	conn, err := dial(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		codec:    wire.Codec{},
		id:       uuid.NewString(),
		tr:       newTransport(conn, cfg),
		submitCh: make(chan *pendingRequest),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.log = log.With().Str("session_id", s.id).Str("addr", addr).Logger()

	go s.run()
	s.tr.arm()
	s.log.Debug().Msg("session connected")
	return s, nil
}

// ID returns the session's correlation id used in logs and metrics.
func (s *Session) ID() string { return s.id }

// Submit sends one message and blocks until the matching response, the
// timeout, or session termination. Timeout NoTimeout disables the timer.
// A submission while another request is in flight fails with
// ErrSessionBusy.
func (s *Session) Submit(ctx context.Context, msg wire.Message, timeout time.Duration) (wire.Response, error) {
	req := &pendingRequest{
		msg:     msg,
		timeout: timeout,
		op:      operationLabel(msg),
		reply:   make(chan submitResult, 1),
	}

	select {
	case s.submitCh <- req:
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close terminates the session. A pending request resolves with
// ErrDisconnected, matching a remote-initiated disconnect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	<-s.done
	return nil
}

func (s *Session) run() {
	defer close(s.done)
	for {
		var timerCh <-chan time.Time
		if s.pending != nil {
			timerCh = s.pending.timerCh
		}

		select {
		case req := <-s.submitCh:
			if terminate := s.handleSubmit(req); terminate {
				return
			}
		case fr := <-s.tr.frames:
			s.handleFrame(fr)
		case <-timerCh:
			s.handleTimeout()
		case err := <-s.tr.readErr:
			s.handleDisconnect(err)
			return
		case <-s.closeCh:
			s.resolvePending(nil, ErrDisconnected, "closed")
			s.tr.close()
			s.log.Debug().Msg("session closed")
			return
		}
	}
}

// handleSubmit starts one request. The returned flag is true when a send
// failure terminated the session.
func (s *Session) handleSubmit(req *pendingRequest) bool {
	if s.pending != nil {
		req.reply <- submitResult{err: ErrSessionBusy}
		return false
	}

	s.nextID++
	req.id = s.nextID

	code, payload, err := s.codec.Encode(req.id, req.msg)
	if err != nil {
		req.reply <- submitResult{err: err}
		return false
	}

	req.started = time.Now()
	if err := s.tr.send(frame.Frame{Code: code, Payload: payload}); err != nil {
		// The transport is already closed; the caller must still observe
		// the failure, so reply before terminating.
		s.log.Warn().Err(err).Str("op", req.op).Msg("send failed, terminating session")
		observability.RecordClientRequest(req.op, "send_error", time.Since(req.started))
		observability.RecordClientDisconnect()
		req.reply <- submitResult{err: fmt.Errorf("%w: %v", ErrSendFailed, err)}
		return true
	}

	if req.timeout > NoTimeout {
		req.timer = time.NewTimer(req.timeout)
		req.timerCh = req.timer.C
	}
	s.pending = req
	return false
}

func (s *Session) handleFrame(fr frame.Frame) {
	resp, err := s.codec.Decode(fr.Code, fr.Payload)
	if err != nil {
		// Unrecognized or malformed variants never terminate the session.
		s.log.Warn().Err(err).Uint8("code", fr.Code).Msg("undecodable frame")
		s.resolvePending(nil, fmt.Errorf("%w: %v", ErrDecode, err), "decode_error")
		s.tr.arm()
		return
	}

	if s.pending == nil || resp.ResponseID() != s.pending.id {
		// A response for a request that already timed out. Discard it
		// instead of misrouting it to the next request.
		s.log.Warn().
			Uint64("response_id", resp.ResponseID()).
			Msg("stale response discarded")
		observability.RecordClientStaleResponse()
		s.tr.arm()
		return
	}

	s.resolvePending(resp, nil, "ok")
	s.tr.arm()
}

func (s *Session) handleTimeout() {
	req := s.pending
	if req == nil {
		return
	}
	s.log.Debug().Uint64("request_id", req.id).Str("op", req.op).Msg("request timed out")
	// The timer already fired, so resolvePending must not stop it again.
	req.timer = nil
	s.resolvePending(nil, ErrRequestTimeout, "timeout")
}

func (s *Session) handleDisconnect(err error) {
	s.log.Debug().Err(err).Msg("transport disconnected")
	observability.RecordClientDisconnect()
	s.resolvePending(nil, fmt.Errorf("%w: %v", ErrDisconnected, err), "disconnected")
	s.tr.close()
}

// resolvePending completes the in-flight request, if any: the timer is
// stopped exactly once, the slot cleared, and the caller released.
func (s *Session) resolvePending(resp wire.Response, err error, outcome string) {
	req := s.pending
	if req == nil {
		return
	}
	if req.timer != nil {
		req.timer.Stop()
	}
	s.pending = nil
	observability.RecordClientRequest(req.op, outcome, time.Since(req.started))
	req.reply <- submitResult{resp: resp, err: err}
}

func operationLabel(msg wire.Message) string {
	switch msg.(type) {
	case wire.Increment:
		return "increment"
	case wire.Decrement:
		return "decrement"
	case wire.SetUpdate:
		return "set_update"
	case wire.GetCounter:
		return "get_counter"
	case wire.GetSet:
		return "get_set"
	case wire.AtomicUpdate:
		return "atomic_update"
	case wire.SnapshotRead:
		return "snapshot_read"
	default:
		return "unknown"
	}
}
