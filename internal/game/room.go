package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teaandpython/wodserver/internal/model"
	"github.com/teaandpython/wodserver/internal/protocol"
)

// sweepInterval is how often the room sweeper probes seated players.
const sweepInterval = 4 * time.Second

// Room is a private lobby keyed by a client-chosen code. The player at
// index 0 is the host and the only one who may start the game.
type Room struct {
	Code      string
	Mode      model.Mode
	Players   []*Player
	CustomMap []byte // nil = stock map
}

// Ready reports whether the room can start: enough seats filled.
func (r *Room) Ready() bool {
	return len(r.Players) >= r.Mode.TargetPlayers()
}

// Snapshot is what a joining player is told about the room.
func (r *Room) Snapshot() protocol.Message {
	names := make([]string, len(r.Players))
	for i, p := range r.Players {
		names[i] = p.Username
	}
	m := protocol.Message{"mode": string(r.Mode), "players": names}
	if r.CustomMap != nil {
		m["map"] = string(r.CustomMap)
	} else {
		m["map"] = nil
	}
	return m
}

// Rooms is the registry of private rooms. Creation, lookup and
// deletion happen under one mutex; a room leaves the registry exactly
// once, either by starting or by emptying out.
type Rooms struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	registry *Registry
	sessions Starter

	interval time.Duration
}

// NewRooms creates the room registry.
func NewRooms(registry *Registry, sessions Starter) *Rooms {
	return &Rooms{
		rooms:    make(map[string]*Room),
		registry: registry,
		sessions: sessions,
		interval: sweepInterval,
	}
}

// Exists reports whether a room with this code is registered.
func (rs *Rooms) Exists(code string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.rooms[code]
	return ok
}

// Create registers a new room with host at seat 0. Returns false if
// the code is already taken (the caller should join instead).
func (rs *Rooms) Create(code string, mode model.Mode, host *Player, customMap []byte) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.rooms[code]; ok {
		return false
	}
	rs.rooms[code] = &Room{
		Code:      code,
		Mode:      mode,
		Players:   []*Player{host},
		CustomMap: customMap,
	}
	slog.Info("room created", "code", code, "mode", mode, "host", host.Username)
	return true
}

// Join appends a player to an existing room and returns the snapshot
// to send them. Returns nil when the room is gone.
func (rs *Rooms) Join(code string, p *Player) protocol.Message {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[code]
	if !ok {
		return nil
	}
	room.Players = append(room.Players, p)
	slog.Info("room joined", "code", code, "username", p.Username, "seats", len(room.Players))
	return room.Snapshot()
}

// Count returns the number of live rooms.
func (rs *Rooms) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms)
}

// Sweep probes every seated player every ~4 s, evicts the dead,
// deletes emptied rooms, and starts a room when its host says so.
func (rs *Rooms) Sweep(ctx context.Context) error {
	slog.Info("room sweeper running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rs.interval):
		}
		rs.sweepOnce()
	}
}

func (rs *Rooms) sweepOnce() {
	rs.mu.Lock()
	codes := make([]string, 0, len(rs.rooms))
	for code := range rs.rooms {
		codes = append(codes, code)
	}
	rs.mu.Unlock()

	for _, code := range codes {
		rs.sweepRoom(code)
	}
}

// sweepRoom holds the registry mutex for the whole probe pass; probe
// reads are 1 s-bounded so a room pins the lock only briefly, and
// seat lists cannot shift mid-probe.
func (rs *Rooms) sweepRoom(code string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[code]
	if !ok {
		return
	}

	names := make([]string, len(room.Players))
	for i, p := range room.Players {
		names[i] = p.Username
	}

	alive := room.Players[:0]
	start := false
	for i, p := range room.Players {
		status := protocol.Message{"players": names}
		if i == 0 {
			status["ready"] = room.Ready()
		}
		if err := p.Send(status); err != nil {
			Disconnect(rs.registry, p)
			continue
		}
		reply, err := p.readStatusReply()
		if err != nil {
			Disconnect(rs.registry, p)
			continue
		}
		alive = append(alive, p)
		if i == 0 && reply.Str("action") == "start" {
			start = true
		}
	}
	room.Players = alive

	if len(room.Players) == 0 {
		delete(rs.rooms, code)
		slog.Info("room emptied", "code", code)
		return
	}

	if start && room.Ready() {
		delete(rs.rooms, code)
		rs.startRoom(room)
	}
}

// startRoom hands the first target_player_count seats to a session and
// makes everyone else a spectator. Rooms never affect Elo.
func (rs *Rooms) startRoom(room *Room) {
	target := room.Mode.TargetPlayers()
	seats := room.Players[:target]
	spectators := room.Players[target:]
	slog.Info("room starting", "code", room.Code, "mode", room.Mode,
		"seats", target, "spectators", len(spectators))
	rs.sessions.Start(room.Mode, seats, room.CustomMap, false, spectators)
}

// readStatusReply reads one probe-deadline reply to a room status
// message.
func (p *Player) readStatusReply() (protocol.Message, error) {
	payload, err := protocol.ReadProbeFrame(p.conn)
	if err != nil {
		return nil, err
	}
	m, err := protocol.Decode(payload)
	if err != nil {
		return nil, protocol.ErrClosed
	}
	return m, nil
}
