package game

import (
	"encoding/json"
	"log/slog"
	"net"

	"github.com/teaandpython/wodserver/internal/protocol"
)

// Player is the in-memory handle for one live connection. It is
// exclusively owned by whichever subsystem currently drives it (queue,
// room or session); ownership moves, it is never shared.
type Player struct {
	Username string
	Rating   int // rating snapshot taken at session entry
	conn     net.Conn
}

// NewPlayer wraps an authenticated connection.
func NewPlayer(username string, rating int, conn net.Conn) *Player {
	return &Player{Username: username, Rating: rating, conn: conn}
}

// Send encodes and writes one frame. Failures are the caller's cue to
// disconnect the peer.
func (p *Player) Send(m protocol.Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	return protocol.WriteFrame(p.conn, payload)
}

// SendRaw writes an already-encoded payload. Broadcasts encode once
// and fan out with this.
func (p *Player) SendRaw(payload []byte) error {
	return protocol.WriteFrame(p.conn, payload)
}

// ReadControl reads one frame with control deadlines.
func (p *Player) ReadControl() (protocol.Message, error) {
	payload, err := protocol.ReadFrame(p.conn)
	if err != nil {
		return nil, err
	}
	m, err := protocol.Decode(payload)
	if err != nil {
		return nil, protocol.ErrClosed
	}
	return m, nil
}

// ReadGame reads one frame with in-game deadlines. Returns
// protocol.ErrNoUpdate when the seat sent nothing this tick and
// protocol.ErrConnLost on a transport fault.
func (p *Player) ReadGame() (protocol.Message, error) {
	payload, err := protocol.ReadGameFrame(p.conn)
	if err != nil {
		return nil, err
	}
	m, err := protocol.Decode(payload)
	if err != nil {
		return nil, protocol.ErrConnLost
	}
	return m, nil
}

// IsConnected liveness-probes the peer: send "check", expect the same
// string echoed within a second.
func (p *Player) IsConnected() bool {
	probe, _ := json.Marshal("check")
	if err := protocol.WriteFrame(p.conn, probe); err != nil {
		return false
	}
	payload, err := protocol.ReadProbeFrame(p.conn)
	if err != nil {
		return false
	}
	var echo string
	if err := json.Unmarshal(payload, &echo); err != nil {
		return false
	}
	return echo == "check"
}

// EnableNoDelay turns off Nagle before in-game traffic starts.
func (p *Player) EnableNoDelay() {
	if tc, ok := p.conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			slog.Debug("setting TCP_NODELAY", "username", p.Username, "err", err)
		}
	}
}

// Close closes the underlying connection.
func (p *Player) Close() {
	p.conn.Close()
}

// Disconnect closes the player's connection and frees their seat in
// the online registry. Safe to call more than once.
func Disconnect(reg *Registry, p *Player) {
	if p == nil {
		return
	}
	slog.Info("disconnect", "username", p.Username)
	reg.Remove(p.Username)
	p.conn.Close()
}
