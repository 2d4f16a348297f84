package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"
)

// Frame layout: 4-byte big-endian payload length, then the payload.
const headerSize = 4

// MaxFrameSize bounds a single payload. Custom maps are the largest
// legitimate frames; anything bigger is a broken or hostile peer.
const MaxFrameSize = 8 << 20

// Deadline profiles per read mode.
const (
	ControlTimeout    = 5 * time.Second
	GameHeaderTimeout = 800 * time.Millisecond
	GameBodyTimeout   = 500 * time.Millisecond
	ProbeTimeout      = 1 * time.Second
	WriteTimeout      = 5 * time.Second
)

var (
	// ErrClosed: the peer is gone. Covers timeouts, short reads and
	// resets on control-mode reads; callers treat it as hard disconnect.
	ErrClosed = errors.New("protocol: connection closed")

	// ErrNoUpdate: an in-game read saw no frame within the tick window.
	// The seat is still alive, it just sent nothing this tick.
	ErrNoUpdate = errors.New("protocol: no update this tick")

	// ErrConnLost: an in-game read hit a transport fault mid-frame.
	ErrConnLost = errors.New("protocol: connection lost")

	errFrameTooLarge = errors.New("protocol: frame exceeds size limit")
)

// ReadFrame reads one control-mode frame: up to 5 s for the header,
// then up to 5 s for the body. Every fault collapses to ErrClosed.
func ReadFrame(conn net.Conn) ([]byte, error) {
	payload, err := readFrame(conn, ControlTimeout, ControlTimeout)
	if err != nil {
		return nil, ErrClosed
	}
	return payload, nil
}

// ReadGameFrame reads one frame inside a session tick: up to 0.8 s for
// the header and 0.5 s for the body. A header timeout means the seat
// sent nothing this tick (ErrNoUpdate); any other fault is ErrConnLost.
func ReadGameFrame(conn net.Conn) ([]byte, error) {
	payload, err := readFrame(conn, GameHeaderTimeout, GameBodyTimeout)
	if err != nil {
		if errors.Is(err, errHeaderTimeout) {
			return nil, ErrNoUpdate
		}
		return nil, ErrConnLost
	}
	return payload, nil
}

// ReadProbeFrame reads one frame with the 1 s liveness-probe deadline.
func ReadProbeFrame(conn net.Conn) ([]byte, error) {
	payload, err := readFrame(conn, ProbeTimeout, ProbeTimeout)
	if err != nil {
		return nil, ErrClosed
	}
	return payload, nil
}

// WriteFrame writes a length-prefixed frame with a 5 s deadline.
// On failure the peer is considered gone; the caller's contract is to
// disconnect it, so the underlying error is reduced to ErrClosed.
func WriteFrame(conn net.Conn, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if err := conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return ErrClosed
	}
	if _, err := conn.Write(buf); err != nil {
		return ErrClosed
	}
	return nil
}

var errHeaderTimeout = errors.New("protocol: header timeout")

func readFrame(conn net.Conn, headerTimeout, bodyTimeout time.Duration) ([]byte, error) {
	var header [headerSize]byte
	if err := conn.SetReadDeadline(time.Now().Add(headerTimeout)); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, errHeaderTimeout
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, errFrameTooLarge
	}

	payload := make([]byte, length)
	if err := conn.SetReadDeadline(time.Now().Add(bodyTimeout)); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
