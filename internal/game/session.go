package game

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/teaandpython/wodserver/internal/model"
	"github.com/teaandpython/wodserver/internal/protocol"
)

// TickPeriod is the floor between successive tick broadcasts.
const TickPeriod = 1030 * time.Millisecond

// peaceWindow is how many ticks a peace vote stays live before the
// counter resets.
const peaceWindow = 20

// Starter launches game sessions. *SessionRunner in production; tests
// substitute recorders.
type Starter interface {
	Start(mode model.Mode, players []*Player, customMap []byte, scored bool, spectators []*Player)
}

// SessionRunner spawns and drives game sessions.
type SessionRunner struct {
	store    Store
	registry *Registry
	tick     time.Duration
}

// NewSessionRunner wires a runner with the production tick period.
func NewSessionRunner(store Store, registry *Registry) *SessionRunner {
	return &SessionRunner{store: store, registry: registry, tick: TickPeriod}
}

// Start launches a session goroutine. Ownership of every player and
// spectator handle moves to the session.
func (r *SessionRunner) Start(mode model.Mode, players []*Player, customMap []byte, scored bool, spectators []*Player) {
	go r.run(mode, players, customMap, scored, spectators)
}

// mapRange returns the random map id range for a mode.
func mapRange(mode model.Mode) (lo, hi int) {
	switch mode {
	case model.ModeV3:
		return 31, 33
	case model.ModeV4:
		return 37, 39
	default:
		return 1, 30
	}
}

type session struct {
	runner     *SessionRunner
	mode       model.Mode
	players    []*Player
	spectators []*Player
	scored     bool

	active map[int]bool // seats still read from

	peaceVotes int
	peaceTimer int
}

func (r *SessionRunner) run(mode model.Mode, players []*Player, customMap []byte, scored bool, spectators []*Player) {
	s := &session{
		runner:     r,
		mode:       mode,
		players:    players,
		spectators: spectators,
		scored:     scored,
		active:     make(map[int]bool, len(players)),
	}
	defer s.teardown()
	// A fault in one session must never take the process down with it;
	// teardown still runs and frees the seats.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session panic", "mode", mode, "panic", r)
		}
	}()

	// Seat assignment is the shuffled order; index doubles as color.
	rand.Shuffle(len(s.players), func(i, j int) {
		s.players[i], s.players[j] = s.players[j], s.players[i]
	})
	for i := range s.players {
		s.active[i] = true
	}

	mapID := 0
	if customMap == nil {
		lo, hi := mapRange(mode)
		mapID = lo + rand.Intn(hi-lo+1)
	}

	names := s.displayNames()
	usernames := make([]string, len(s.players))
	for i, p := range s.players {
		usernames[i] = p.Username
	}
	slog.Info("session start", "mode", mode, "map", mapID, "players", usernames, "scored", scored)

	for i, p := range s.players {
		p.EnableNoDelay()
		setup := protocol.Message{"color": i, "map": mapID, "players": names}
		if err := p.Send(setup); err != nil {
			slog.Warn("session: setup send failed", "username", p.Username)
		}
	}
	for _, sp := range s.spectators {
		sp.EnableNoDelay()
		_ = sp.Send(protocol.Message{"color": nil, "map": mapID, "players": names})
	}

	time.Sleep(time.Second)
	s.loop()
}

// displayNames builds per-seat names, title first when the user has one.
func (s *session) displayNames() []string {
	usernames := make([]string, len(s.players))
	for i, p := range s.players {
		usernames[i] = p.Username
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	titles, err := s.runner.store.GetTitles(ctx, usernames)
	if err != nil {
		slog.Error("session: title fetch", "err", err)
		return usernames
	}
	names := make([]string, len(usernames))
	for i, u := range usernames {
		if titles[i] != "" {
			names[i] = titles[i] + " " + u
		} else {
			names[i] = u
		}
	}
	return names
}

func (s *session) loop() {
	for {
		tickStart := time.Now()

		inputs := s.gatherInputs()

		if len(s.players) == 2 {
			if s.classify1v1(inputs) {
				return
			}
		} else {
			if s.classifyMulti(inputs) {
				return
			}
		}

		if s.tallyPeace(inputs) {
			return
		}

		s.broadcast(s.merge(inputs))

		if d := s.runner.tick - time.Since(tickStart); d > 0 {
			time.Sleep(d)
		}
	}
}

// gatherInputs reads every active seat concurrently within the tick
// window. A silent seat yields an empty message; a faulted one yields
// a synthesized connection-lost terminal.
func (s *session) gatherInputs() []protocol.Message {
	inputs := make([]protocol.Message, len(s.players))
	var wg sync.WaitGroup
	for i := range s.players {
		if !s.active[i] {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.players[i].ReadGame()
			switch err {
			case nil:
				inputs[i] = m
			case protocol.ErrNoUpdate:
				inputs[i] = protocol.Message{}
			default:
				inputs[i] = protocol.ConnLostMessage()
			}
		}(i)
	}
	wg.Wait()
	return inputs
}

// classify1v1 inspects both seats' inputs for terminal signals.
// Returns true when the session is over.
func (s *session) classify1v1(inputs []protocol.Message) bool {
	e0 := protocol.ParseEndGame(inputs[0])
	e1 := protocol.ParseEndGame(inputs[1])

	// A claim naming a seat that does not exist ends the session with
	// no winner; it is never used as an index.
	if s.badSeat(e0) || s.badSeat(e1) {
		slog.Info("session end: winner claim names no seat, no winner")
		return true
	}

	switch {
	case e0.Kind != protocol.EndNone && e1.Kind != protocol.EndNone:
		s.finish1v1Both(inputs, e0, e1)
		return true
	case e0.Kind != protocol.EndNone:
		s.finish1v1Single(inputs, 0, e0)
		return true
	case e1.Kind != protocol.EndNone:
		s.finish1v1Single(inputs, 1, e1)
		return true
	}
	return false
}

func (s *session) finish1v1Both(inputs []protocol.Message, e0, e1 protocol.EndGame) {
	forfeit0 := e0.Kind == protocol.EndSurrender || e0.Kind == protocol.EndConnLost
	forfeit1 := e1.Kind == protocol.EndSurrender || e1.Kind == protocol.EndConnLost

	switch {
	case e0.Kind == protocol.EndSeat && e1.Kind == protocol.EndSeat && e0.Seat == e1.Seat:
		s.finish(e0.Seat, pickStats(inputs, 2))
	case forfeit0 && forfeit1:
		slog.Info("session end: both seats gone, no winner")
	case forfeit0:
		s.declareWinner(1, pickStats(inputs, 2))
	case forfeit1:
		s.declareWinner(0, pickStats(inputs, 2))
	default:
		slog.Info("session end: conflicting claims, no winner")
	}
}

// finish1v1Single handles a tick where only seat r reported end-game.
func (s *session) finish1v1Single(inputs []protocol.Message, r int, e protocol.EndGame) {
	other := 1 - r

	if e.Kind == protocol.EndSurrender || e.Kind == protocol.EndConnLost {
		s.declareWinner(other, pickStats(inputs, 2))
		return
	}
	if e.Kind == protocol.EndDraw {
		// Draws come from mutual peace votes; a one-sided draw report
		// ends the session with no winner.
		slog.Info("session end: one-sided draw report, no winner")
		return
	}

	// Forward the terminal marker and give the silent seat one more
	// tick-bounded read to confirm.
	_ = s.players[other].Send(protocol.WinnerMessage(e.Seat))
	follow, err := s.players[other].ReadGame()
	if err != nil {
		// Nothing (or nobody) on the other end: the claim stands.
		s.finish(e.Seat, pickStats(inputs, 2))
		return
	}
	fe := protocol.ParseEndGame(follow)
	switch {
	case fe.Kind == protocol.EndSeat && fe.Seat == e.Seat:
		if st := parseStats(follow, 2); st != nil {
			s.finish(e.Seat, st)
			return
		}
		s.finish(e.Seat, pickStats(inputs, 2))
	case fe.Kind == protocol.EndNone:
		s.finish(e.Seat, pickStats(inputs, 2))
	default:
		slog.Info("session end: follow-up disagrees, no winner")
	}
}

// classifyMulti handles termination for 3+ player sessions.
// Returns true when the session is over.
func (s *session) classifyMulti(inputs []protocol.Message) bool {
	for i := range s.players {
		if !s.active[i] {
			continue
		}
		e := protocol.ParseEndGame(inputs[i])
		if e.Kind == protocol.EndSurrender || e.Kind == protocol.EndConnLost {
			slog.Info("seat dropped", "seat", i, "username", s.players[i].Username)
			Disconnect(s.runner.registry, s.players[i])
			delete(s.active, i)
			inputs[i] = protocol.Message{}
		}
	}

	if len(s.active) < 2 {
		for i := range s.active {
			// Lone survivor wins; ask them for the final report.
			_ = s.players[i].Send(protocol.WinnerMessage(i))
			var st *MatchStats
			if report, err := s.players[i].ReadGame(); err == nil {
				st = parseStats(report, len(s.players))
			}
			s.finish(i, st)
			return true
		}
		slog.Info("session end: all seats gone, no winner")
		return true
	}

	for i := range s.players {
		if !s.active[i] {
			continue
		}
		e := protocol.ParseEndGame(inputs[i])
		if e.Kind == protocol.EndSeat {
			if s.badSeat(e) {
				slog.Info("session end: winner claim names no seat, no winner")
				return true
			}
			for j := range s.active {
				if j != i {
					_ = s.players[j].Send(protocol.WinnerMessage(e.Seat))
				}
			}
			s.finish(e.Seat, parseStats(inputs[i], len(s.players)))
			return true
		}
	}
	return false
}

// tallyPeace counts mutual draw votes. A tick with at least one vote
// arms a 20-tick timer; the counter reaching the active seat count
// ends the session in a draw.
func (s *session) tallyPeace(inputs []protocol.Message) bool {
	voted := false
	for i := range s.players {
		if s.active[i] && inputs[i].Has("peace") {
			voted = true
			break
		}
	}
	if voted {
		s.peaceVotes++
		s.peaceTimer = peaceWindow
	} else if s.peaceTimer > 0 {
		s.peaceTimer--
		if s.peaceTimer == 0 {
			s.peaceVotes = 0
		}
	}

	if s.peaceVotes < len(s.active) || s.peaceVotes == 0 {
		return false
	}

	slog.Info("session end: peace")
	for i := range s.active {
		_ = s.players[i].Send(protocol.DrawMessage())
	}
	var st *MatchStats
	for i := range s.active {
		if report, err := s.players[i].ReadGame(); err == nil {
			st = parseStats(report, len(s.players))
		}
		break
	}
	if s.scored {
		s.apply(-1, st)
	}
	return true
}

// badSeat reports whether a winner claim names a seat outside the table.
func (s *session) badSeat(e protocol.EndGame) bool {
	return e.Kind == protocol.EndSeat && (e.Seat < 0 || e.Seat >= len(s.players))
}

// merge folds this tick's inputs into one delta. Seats are visited in
// ascending index order so a later seat's value wins a key collision.
func (s *session) merge(inputs []protocol.Message) protocol.Message {
	merged := protocol.Message{}
	for i := range s.players {
		if !s.active[i] {
			continue
		}
		for k, v := range inputs[i] {
			merged[k] = v
		}
	}
	return merged
}

func (s *session) broadcast(m protocol.Message) {
	payload, err := m.Encode()
	if err != nil {
		slog.Error("session: encoding broadcast", "err", err)
		return
	}
	for i := range s.players {
		if s.active[i] {
			_ = s.players[i].SendRaw(payload)
		}
	}
	alive := s.spectators[:0]
	for _, sp := range s.spectators {
		if err := sp.SendRaw(payload); err != nil {
			Disconnect(s.runner.registry, sp)
			continue
		}
		alive = append(alive, sp)
	}
	s.spectators = alive
}

// declareWinner tells the winning seat it won, then applies the result.
func (s *session) declareWinner(w int, st *MatchStats) {
	_ = s.players[w].Send(protocol.WinnerMessage(w))
	s.finish(w, st)
}

func (s *session) finish(w int, st *MatchStats) {
	slog.Info("session end", "winner", w, "username", s.players[w].Username)
	s.apply(w, st)
}

// apply persists the outcome. Private-room draws never reach here;
// room wins do, with Scored=false (counters only, no Elo or money).
func (s *session) apply(w int, st *MatchStats) {
	usernames := make([]string, len(s.players))
	for i, p := range s.players {
		usernames[i] = p.Username
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := ApplyResult(ctx, s.runner.store, MatchResult{
		Players: usernames,
		Winner:  w,
		Scored:  s.scored,
		Stats:   st,
	})
	if err != nil {
		slog.Error("session: applying result", "err", err)
	}
}

// teardown closes every seat and spectator and frees their usernames.
func (s *session) teardown() {
	for _, p := range s.players {
		Disconnect(s.runner.registry, p)
	}
	for _, sp := range s.spectators {
		Disconnect(s.runner.registry, sp)
	}
}

// parseStats extracts the {casualties, time} report from a terminal
// payload. Returns nil when absent or malformed.
func parseStats(m protocol.Message, seats int) *MatchStats {
	raw, ok := m["stats"].(map[string]any)
	if !ok {
		return nil
	}
	sub := protocol.Message(raw)
	casualties := sub.Ints("casualties")
	if len(casualties) < seats {
		return nil
	}
	t, _ := sub.Int("time")
	return &MatchStats{Casualties: casualties, Time: t}
}

// pickStats returns the first seat report carrying stats this tick.
func pickStats(inputs []protocol.Message, seats int) *MatchStats {
	for _, m := range inputs {
		if m == nil {
			continue
		}
		if st := parseStats(m, seats); st != nil {
			return st
		}
	}
	return nil
}
