package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// LengthSize is the byte width of the big-endian length prefix. The length
// counts the message code byte plus the payload, never itself.
const LengthSize = 4

var (
	ErrEmptyFrame      = errors.New("frame: zero-length frame")
	ErrShortFrame      = errors.New("frame: truncated frame body")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Frame is one complete wire message: a one-byte message code and an opaque
// payload whose format is owned by the codec layer.
type Frame struct {
	Code    byte
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var prefix [LengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Frame{}, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return Frame{}, ErrEmptyFrame
	}
	if length-1 > limits.MaxPayloadBytes {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length-1)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortFrame
		}
		return Frame{}, err
	}

	return Frame{Code: body[0], Payload: body[1:]}, nil
}

// Encode returns the full wire bytes for f.
func Encode(f Frame, limits Limits) ([]byte, error) {
	payloadLen := uint32(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, payloadLen)
	}
	buf := make([]byte, LengthSize+1+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:LengthSize], payloadLen+1)
	buf[LengthSize] = f.Code
	copy(buf[LengthSize+1:], f.Payload)
	return buf, nil
}

// WriteFrame writes one frame to w as a single buffer so a partial frame is
// never interleaved on a shared connection.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	buf, err := Encode(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
