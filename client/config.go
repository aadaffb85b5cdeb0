package client

import (
	"time"

	"github.com/danmuck/driftkv/internal/protocol/frame"
)

// NoTimeout disables the per-request timer on Submit.
const NoTimeout time.Duration = 0

// TLSConfig enables TLS on the client transport.
type TLSConfig struct {
	Enabled            bool
	ServerName         string
	CAFile             string
	InsecureSkipVerify bool
}

// Config defines transport and request defaults for one session.
type Config struct {
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	WriteTimeout    time.Duration
	KeepAlive       bool
	KeepAlivePeriod time.Duration

	// ReconnectInterval is reserved for a future reconnect policy. Nothing
	// reads it today: a session terminates on disconnect and the caller
	// creates a fresh one to retry.
	ReconnectInterval time.Duration

	Limits frame.Limits
	TLS    TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		RequestTimeout:    10 * time.Second,
		WriteTimeout:      15 * time.Second,
		KeepAlive:         true,
		KeepAlivePeriod:   30 * time.Second,
		ReconnectInterval: 10 * time.Second,
		Limits:            frame.DefaultLimits(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.KeepAlivePeriod <= 0 {
		c.KeepAlivePeriod = def.KeepAlivePeriod
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = def.ReconnectInterval
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}
