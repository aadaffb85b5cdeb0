package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/driftkv/internal/protocol/frame"
)

// transport owns the stream connection. Inbound frames are delivered one at
// a time: the read loop blocks until armed, reads exactly one frame, hands
// it over, and waits for the next arm. The session re-arms after handling
// each delivery.
type transport struct {
	conn         net.Conn
	reader       *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration

	armCh   chan struct{}
	frames  chan frame.Frame
	readErr chan error

	done      chan struct{}
	closeOnce sync.Once
}

func dial(ctx context.Context, addr string, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.KeepAlive {
		dialer.KeepAlive = cfg.KeepAlivePeriod
	} else {
		dialer.KeepAlive = -1
	}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if !cfg.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := clientTLSConfig(addr, cfg.TLS)
	if err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return conn, nil
}

func clientTLSConfig(addr string, cfg TLSConfig) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(cfg.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	out.ServerName = serverName

	if caPath := strings.TrimSpace(cfg.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("client: parse tls ca bundle: %s", caPath)
		}
		out.RootCAs = pool
	}
	return out, nil
}

func newTransport(conn net.Conn, cfg Config) *transport {
	t := &transport{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		limits:       cfg.Limits,
		writeTimeout: cfg.WriteTimeout,
		armCh:        make(chan struct{}, 1),
		frames:       make(chan frame.Frame),
		readErr:      make(chan error, 1),
		done:         make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *transport) readLoop() {
	for {
		select {
		case <-t.armCh:
		case <-t.done:
			return
		}
		fr, err := frame.ReadFrame(t.reader, t.limits)
		if err != nil {
			select {
			case t.readErr <- err:
			case <-t.done:
			}
			return
		}
		select {
		case t.frames <- fr:
		case <-t.done:
			return
		}
	}
}

// arm releases the read loop for exactly one more frame.
func (t *transport) arm() {
	select {
	case t.armCh <- struct{}{}:
	default:
	}
}

// send writes one frame. A write failure closes the transport: the
// connection state is unknown after a partial write, so the failure is
// fatal to the session rather than to the current request only.
func (t *transport) send(f frame.Frame) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := frame.WriteFrame(t.conn, f, t.limits); err != nil {
		t.close()
		return err
	}
	_ = t.conn.SetWriteDeadline(time.Time{})
	return nil
}

func (t *transport) close() {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
	})
}
