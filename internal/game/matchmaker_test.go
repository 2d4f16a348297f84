package game

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaandpython/wodserver/internal/model"
)

func (f *fakeStarter) snapshot() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall(nil), f.calls...)
}

func newTestMatchmaker(reg *Registry, starter *fakeStarter) *Matchmaker {
	queues := map[model.Mode]*Queue{
		model.Mode1v1: NewQueue(),
		model.ModeV3:  NewQueue(),
		model.ModeV4:  NewQueue(),
		model.ModeV34: NewQueue(),
	}
	m := NewMatchmaker(queues, reg, starter)
	m.pairSleep = 10 * time.Millisecond
	m.scanSleep = 10 * time.Millisecond
	return m
}

func TestMatchmaker_1v1PairsByRating(t *testing.T) {
	reg := NewRegistry()
	starter := &fakeStarter{}
	m := newTestMatchmaker(reg, starter)

	ratings := map[string]int{"a": 800, "b": 1200, "c": 1000, "d": 900}
	for _, name := range []string{"b", "a", "c", "d"} {
		m.Queue(model.Mode1v1).Enqueue(NewPlayer(name, ratings[name], nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run1v1(ctx)

	require.Eventually(t, func() bool {
		return starter.count() == 2
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	for _, call := range starter.snapshot() {
		assert.Equal(t, model.Mode1v1, call.mode)
		assert.Len(t, call.players, 2)
		assert.True(t, call.scored, "queue games affect Elo")
		assert.Nil(t, call.customMap)
	}

	// Sorted by rating the pairs must be (a,d) and (c,b).
	pairs := map[string]string{}
	for _, call := range starter.snapshot() {
		pairs[call.players[0].Username] = call.players[1].Username
	}
	assert.Equal(t, map[string]string{"a": "d", "c": "b"}, pairs)
}

func TestMatchmaker_1v1EvictsDeadLeftover(t *testing.T) {
	reg := NewRegistry()
	starter := &fakeStarter{}
	m := newTestMatchmaker(reg, starter)

	require.True(t, reg.Add("ghost"))
	clientEnd, serverEnd := net.Pipe()
	clientEnd.Close()

	m.Queue(model.Mode1v1).Enqueue(NewPlayer("a", 900, nil))
	m.Queue(model.Mode1v1).Enqueue(NewPlayer("b", 1000, nil))
	m.Queue(model.Mode1v1).Enqueue(NewPlayer("ghost", 2000, serverEnd))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run1v1(ctx)

	require.Eventually(t, func() bool {
		return starter.count() == 1
	}, 5*time.Second, 5*time.Millisecond)

	// The odd player out is liveness-probed and dropped.
	assert.Eventually(t, func() bool {
		return !reg.Contains("ghost")
	}, 5*time.Second, 5*time.Millisecond)
}

func TestMatchmaker_V34StrictSeatedFirst(t *testing.T) {
	reg := NewRegistry()
	starter := &fakeStarter{}
	m := newTestMatchmaker(reg, starter)

	for _, name := range []string{"s1", "s2", "s3"} {
		m.Queue(model.ModeV4).Enqueue(NewPlayer(name, 1000, nil))
	}
	m.Queue(model.ModeV34).Enqueue(NewPlayer("f1", 1000, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunV34(ctx)

	require.Eventually(t, func() bool {
		return starter.count() == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	call := starter.snapshot()[0]
	assert.Equal(t, model.ModeV4, call.mode)
	require.Len(t, call.players, 4)
	names := make([]string, 4)
	for i, p := range call.players {
		names[i] = p.Username
	}
	assert.Equal(t, []string{"s1", "s2", "s3", "f1"}, names,
		"strict players take seats before flexible ones")
}

func TestMatchmaker_V34FallsBackToThree(t *testing.T) {
	reg := NewRegistry()
	starter := &fakeStarter{}
	m := newTestMatchmaker(reg, starter)

	m.Queue(model.ModeV3).Enqueue(NewPlayer("s1", 1000, nil))
	for _, name := range []string{"f1", "f2"} {
		m.Queue(model.ModeV34).Enqueue(NewPlayer(name, 1000, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunV34(ctx)

	require.Eventually(t, func() bool {
		return starter.count() == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	call := starter.snapshot()[0]
	assert.Equal(t, model.ModeV3, call.mode)
	assert.Len(t, call.players, 3)
}

func TestFill(t *testing.T) {
	strict := []*Player{{Username: "s1"}, {Username: "s2"}}
	flexible := []*Player{{Username: "f1"}, {Username: "f2"}, {Username: "f3"}}

	players, restStrict, restFlexible := fill(strict, flexible, 4)
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Username
	}
	assert.Equal(t, []string{"s1", "s2", "f1", "f2"}, names)
	assert.Empty(t, restStrict)
	require.Len(t, restFlexible, 1)
	assert.Equal(t, "f3", restFlexible[0].Username)

	// All seats from the strict side when it has enough.
	players, restStrict, _ = fill(strict, flexible, 2)
	assert.Len(t, players, 2)
	assert.Empty(t, restStrict)
}
