package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/driftkv/crdt"
	"github.com/danmuck/driftkv/internal/protocol/frame"
	"github.com/danmuck/driftkv/internal/sim"
	"github.com/danmuck/driftkv/internal/testutil/testlog"
	"github.com/danmuck/driftkv/wire"
)

func startSim(t *testing.T) (*sim.Server, string) {
	t.Helper()
	srv := sim.NewServer()
	addr, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("start sim: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, addr
}

func connectTest(t *testing.T, addr string) *Session {
	t.Helper()
	cfg := Config{
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
	}
	s, err := Connect(context.Background(), addr, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached")
}

func TestStoreIncrementReturnsOk(t *testing.T) {
	testlog.Start(t)
	srv, addr := startSim(t)
	s := connectTest(t, addr)

	counter := crdt.NewCounter("counter.hits")
	counter.Increment(3).Increment(2)
	if err := s.Store(context.Background(), counter); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := srv.CounterValue("counter.hits"); got != 5 {
		t.Fatalf("unexpected stored value: %d", got)
	}
	if got := srv.Requests(); got != 2 {
		t.Fatalf("expected 2 wire requests, got %d", got)
	}
}

func TestSubmitTimeoutLeavesSessionUsable(t *testing.T) {
	testlog.Start(t)
	srv, addr := startSim(t)
	srv.SetFaults(sim.Faults{SilentKeys: map[string]bool{"counter.slow": true}})
	s := connectTest(t, addr)

	start := time.Now()
	_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.slow"}, 50*time.Millisecond)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("timed out too early: %v", elapsed)
	}

	// The session stays usable after a request-local timeout.
	resp, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.ok"}, 2*time.Second)
	if err != nil {
		t.Fatalf("submit after timeout: %v", err)
	}
	if _, ok := resp.(wire.CounterValue); !ok {
		t.Fatalf("unexpected response %T", resp)
	}
}

func TestSecondSubmissionIsRejectedAsBusy(t *testing.T) {
	testlog.Start(t)
	srv, addr := startSim(t)
	srv.SetFaults(sim.Faults{SilentKeys: map[string]bool{"counter.slow": true}})
	s := connectTest(t, addr)

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.slow"}, 500*time.Millisecond)
		firstDone <- err
	}()
	waitFor(t, func() bool { return srv.Requests() >= 1 })

	_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.other"}, 500*time.Millisecond)
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if err := <-firstDone; !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected first request to time out, got %v", err)
	}
}

func TestDisconnectMidRequestResolvesExactlyOnce(t *testing.T) {
	testlog.Start(t)
	srv, addr := startSim(t)
	srv.SetFaults(sim.Faults{CloseKeys: map[string]bool{"counter.dead": true}})
	s := connectTest(t, addr)

	_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.dead"}, 2*time.Second)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}

	// The session terminated; later submissions fail fast.
	_, err = s.Submit(context.Background(), wire.GetCounter{Key: "counter.ok"}, 2*time.Second)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

// failingConn stands in for a connection whose send path has broken while
// reads still block normally.
type failingConn struct {
	net.Conn
}

func (failingConn) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestSendFailureIsObservedByCaller(t *testing.T) {
	testlog.Start(t)
	_, addr := startSim(t)
	s := connectTest(t, addr)

	// Break only the write path. The read loop keeps blocking on the live
	// connection, so the failure must surface through the send itself.
	s.tr.conn = failingConn{s.tr.conn}

	_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.ok"}, time.Second)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}

	// A send failure is transport-fatal.
	_, err = s.Submit(context.Background(), wire.GetCounter{Key: "counter.ok"}, time.Second)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	testlog.Start(t)
	_, addr := startSim(t)
	s := connectTest(t, addr)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.ok"}, time.Second)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = Connect(context.Background(), addr, Config{ConnectTimeout: time.Second})
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

// scriptedServer reads protocol requests and lets a test reply frame by
// frame, for scenarios the simulator intentionally does not script.
type scriptedServer struct {
	t    *testing.T
	ln   net.Listener
	conn net.Conn
}

func newScriptedServer(t *testing.T) *scriptedServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &scriptedServer{t: t, ln: ln}
	t.Cleanup(srv.close)
	return srv
}

func (s *scriptedServer) addr() string { return s.ln.Addr().String() }

func (s *scriptedServer) accept() {
	s.t.Helper()
	conn, err := s.ln.Accept()
	if err != nil {
		s.t.Errorf("accept: %v", err)
		return
	}
	s.conn = conn
}

func (s *scriptedServer) readRequest() (wire.Message, uint64, error) {
	fr, err := frame.ReadFrame(s.conn, frame.DefaultLimits())
	if err != nil {
		return nil, 0, err
	}
	return wire.DecodeMessage(fr.Code, fr.Payload)
}

func (s *scriptedServer) writeResponse(resp wire.Response) error {
	code, payload, err := wire.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return frame.WriteFrame(s.conn, frame.Frame{Code: code, Payload: payload}, frame.DefaultLimits())
}

func (s *scriptedServer) writeRawFrame(f frame.Frame) error {
	return frame.WriteFrame(s.conn, f, frame.DefaultLimits())
}

func (s *scriptedServer) close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	_ = s.ln.Close()
}

func TestStaleResponseAfterTimeoutIsDiscarded(t *testing.T) {
	testlog.Start(t)
	srv := newScriptedServer(t)

	serverDone := make(chan error, 1)
	go func() {
		srv.accept()
		if srv.conn == nil {
			serverDone <- errors.New("no connection")
			return
		}

		// First request: swallow it so the client times out.
		_, firstID, err := srv.readRequest()
		if err != nil {
			serverDone <- err
			return
		}

		// Second request: reply with the stale response first, then the
		// real one. The client must not misroute the stale response.
		_, secondID, err := srv.readRequest()
		if err != nil {
			serverDone <- err
			return
		}
		if err := srv.writeResponse(wire.CounterValue{RequestID: firstID, Value: 111}); err != nil {
			serverDone <- err
			return
		}
		serverDone <- srv.writeResponse(wire.CounterValue{RequestID: secondID, Value: 222})
	}()

	s := connectTest(t, srv.addr())

	_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.a"}, 60*time.Millisecond)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}

	resp, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.b"}, 2*time.Second)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	value, ok := resp.(wire.CounterValue)
	if !ok {
		t.Fatalf("unexpected response %T", resp)
	}
	if value.Value != 222 {
		t.Fatalf("stale response misrouted: got %d", value.Value)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestUndecodableFrameIsNonFatal(t *testing.T) {
	testlog.Start(t)
	srv := newScriptedServer(t)

	serverDone := make(chan error, 1)
	go func() {
		srv.accept()
		if srv.conn == nil {
			serverDone <- errors.New("no connection")
			return
		}

		if _, _, err := srv.readRequest(); err != nil {
			serverDone <- err
			return
		}
		// Unrecognized variant: must surface as a decode error without
		// terminating the session.
		if err := srv.writeRawFrame(frame.Frame{Code: 0x7C, Payload: []byte{1, 2, 3}}); err != nil {
			serverDone <- err
			return
		}

		_, secondID, err := srv.readRequest()
		if err != nil {
			serverDone <- err
			return
		}
		serverDone <- srv.writeResponse(wire.CounterValue{RequestID: secondID, Value: 7})
	}()

	s := connectTest(t, srv.addr())

	_, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.a"}, 2*time.Second)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}

	resp, err := s.Submit(context.Background(), wire.GetCounter{Key: "counter.b"}, 2*time.Second)
	if err != nil {
		t.Fatalf("submit after decode error: %v", err)
	}
	if value := resp.(wire.CounterValue).Value; value != 7 {
		t.Fatalf("unexpected value: %d", value)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
}
