package game

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/teaandpython/wodserver/internal/model"
)

// Matchmaker drives the solo queues: the 1v1 pairer and the mixed
// 3/4-player filler.
type Matchmaker struct {
	queues   map[model.Mode]*Queue
	registry *Registry
	sessions Starter

	// Scan intervals; production values by default, tests shrink them.
	pairSleep time.Duration
	scanSleep time.Duration
}

// NewMatchmaker wires the matchmaker over the four queues.
func NewMatchmaker(queues map[model.Mode]*Queue, registry *Registry, sessions Starter) *Matchmaker {
	return &Matchmaker{
		queues:    queues,
		registry:  registry,
		sessions:  sessions,
		pairSleep: 20 * time.Second,
		scanSleep: time.Second,
	}
}

// Queue returns the mailbox for a mode.
func (m *Matchmaker) Queue(mode model.Mode) *Queue {
	return m.queues[mode]
}

// Run1v1 accumulates 1v1 players, pairs neighbours by rating and
// spawns a session per pair. The 20-second sleep between scans widens
// the rating window a batch can span; it is not a fairness guarantee.
func (m *Matchmaker) Run1v1(ctx context.Context) error {
	slog.Info("1v1 matchmaker running")
	q := m.queues[model.Mode1v1]
	var held []*Player

	for {
		if err := sleepCtx(ctx, 0); err != nil {
			return nil
		}

		for {
			p, ok := q.TryDequeue()
			if !ok {
				break
			}
			held = append(held, p)
		}

		if len(held) >= 2 {
			sort.SliceStable(held, func(i, j int) bool {
				return held[i].Rating < held[j].Rating
			})
			i := 0
			for ; i+1 < len(held); i += 2 {
				m.sessions.Start(model.Mode1v1, []*Player{held[i], held[i+1]}, nil, true, nil)
			}
			held = append([]*Player(nil), held[i:]...)
			continue
		}

		held = m.evictDead(held)
		if err := sleepCtx(ctx, m.pairSleep); err != nil {
			return nil
		}
	}
}

// RunV34 fills 4-player games from the strict v4 and flexible v34
// queues, falling back to 3-player games from v3 + v34. Strict players
// are seated first so flexible ones fill the gaps.
func (m *Matchmaker) RunV34(ctx context.Context) error {
	slog.Info("v3/v4 matchmaker running")
	var held3, held4, held34 []*Player

	for {
		held3 = drain(m.queues[model.ModeV3], held3)
		held4 = drain(m.queues[model.ModeV4], held4)
		held34 = drain(m.queues[model.ModeV34], held34)

		switch {
		case len(held4)+len(held34) >= 4:
			players, rest4, rest34 := fill(held4, held34, 4)
			held4, held34 = rest4, rest34
			m.sessions.Start(model.ModeV4, players, nil, true, nil)
		case len(held3)+len(held34) >= 3:
			players, rest3, rest34 := fill(held3, held34, 3)
			held3, held34 = rest3, rest34
			m.sessions.Start(model.ModeV3, players, nil, true, nil)
		default:
			held3 = m.evictDead(held3)
			held4 = m.evictDead(held4)
			held34 = m.evictDead(held34)
			if err := sleepCtx(ctx, m.scanSleep); err != nil {
				return nil
			}
		}
	}
}

// fill takes up to n players preferring the strict list, topping up
// from the flexible one. Precondition: len(strict)+len(flexible) >= n.
func fill(strict, flexible []*Player, n int) (players, restStrict, restFlexible []*Player) {
	take := min(n, len(strict))
	players = append(players, strict[:take]...)
	restStrict = append([]*Player(nil), strict[take:]...)

	need := n - take
	players = append(players, flexible[:need]...)
	restFlexible = append([]*Player(nil), flexible[need:]...)
	return players, restStrict, restFlexible
}

// evictDead liveness-probes held players and disconnects the dead.
func (m *Matchmaker) evictDead(held []*Player) []*Player {
	alive := held[:0]
	for _, p := range held {
		if p.IsConnected() {
			alive = append(alive, p)
			continue
		}
		slog.Info("evicting dead player from queue", "username", p.Username)
		Disconnect(m.registry, p)
	}
	return alive
}

// sleepCtx sleeps or returns early with ctx.Err on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// drain moves everything waiting in q onto held.
func drain(q *Queue, held []*Player) []*Player {
	for {
		p, ok := q.TryDequeue()
		if !ok {
			return held
		}
		held = append(held, p)
	}
}
