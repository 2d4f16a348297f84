package game

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaandpython/wodserver/internal/db"
	"github.com/teaandpython/wodserver/internal/model"
)

// fakeGameStore implements Store over in-memory users.
type fakeGameStore struct {
	mu      sync.Mutex
	scores  map[string]int
	titles  map[string]string
	applied [][]db.MatchUpdate
	stats   map[string]model.Stats
	games   map[string]int
	wins    map[string]int
	money   map[string]int
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{
		scores: map[string]int{},
		titles: map[string]string{},
		stats:  map[string]model.Stats{},
		games:  map[string]int{},
		wins:   map[string]int{},
		money:  map[string]int{},
	}
}

func (f *fakeGameStore) GetScore(_ context.Context, username string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.scores[username]; ok {
		return s, nil
	}
	return model.DefaultScore, nil
}

func (f *fakeGameStore) GetTitles(_ context.Context, usernames []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(usernames))
	for i, u := range usernames {
		out[i] = f.titles[u]
	}
	return out, nil
}

// ApplyMatchResult mirrors the real store's transaction semantics over
// the in-memory maps.
func (f *fakeGameStore) ApplyMatchResult(_ context.Context, updates []db.MatchUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, updates)
	for _, u := range updates {
		f.games[u.Username]++
		if u.Win {
			f.wins[u.Username]++
		}
		if u.SetScore != nil {
			f.scores[u.Username] = *u.SetScore
		}
		f.money[u.Username] += u.MoneyDelta
		if u.MergeStats != nil {
			cur, ok := f.stats[u.Username]
			if !ok {
				cur = model.DefaultStats()
			}
			f.stats[u.Username] = u.MergeStats(cur)
		}
	}
	return nil
}

func TestEloDeltas_Conservation(t *testing.T) {
	pairs := [][2]int{{1000, 1000}, {1200, 800}, {800, 1200}, {2400, 1000}, {1000, 2400}}
	for _, p := range pairs {
		deltas := EloDeltas([]int{p[0], p[1]}, 0)
		assert.InDelta(t, 0, deltas[0]+deltas[1], 1e-9,
			"winner gain equals loser loss before rounding")
		assert.Greater(t, deltas[0], 0.0)
		assert.Less(t, deltas[1], 0.0)
	}
}

func TestEloDeltas_UpsetPaysMore(t *testing.T) {
	underdog := EloDeltas([]int{800, 1200}, 0)
	favourite := EloDeltas([]int{1200, 800}, 0)
	assert.Greater(t, underdog[0], favourite[0],
		"beating a stronger opponent yields a bigger delta")
}

func TestEloDeltas_EqualRatingsHalfK(t *testing.T) {
	deltas := EloDeltas([]int{1000, 1000}, 0)
	assert.InDelta(t, 25.0, deltas[0], 1e-9)
}

func TestApplyResult_ScoredWin(t *testing.T) {
	store := newFakeGameStore()
	store.scores["alice"] = 1000
	store.scores["bob"] = 1000

	err := ApplyResult(context.Background(), store, MatchResult{
		Players: []string{"alice", "bob"},
		Winner:  0,
		Scored:  true,
		Stats:   &MatchStats{Casualties: []int{0, 5}, Time: 120},
	})
	require.NoError(t, err)

	assert.Equal(t, 1025, store.scores["alice"], "winner rises")
	assert.Equal(t, 975, store.scores["bob"], "loser falls")
	assert.Equal(t, 1, store.games["alice"])
	assert.Equal(t, 1, store.games["bob"])
	assert.Equal(t, 1, store.wins["alice"])
	assert.Equal(t, 0, store.wins["bob"])
	assert.Equal(t, 1, store.money["alice"], "participants-1 currency")
	assert.Equal(t, 0, store.money["bob"])

	winner := store.stats["alice"]
	assert.Equal(t, 5, winner.UnitsDestroyed, "opponent's casualties")
	assert.Equal(t, 120, winner.ShortestGame)
	assert.Equal(t, 0, winner.MinimalCasualties)

	loser := store.stats["bob"]
	assert.Equal(t, 0, loser.UnitsDestroyed)
	assert.Equal(t, 3600, loser.ShortestGame, "records are winner-only")
}

func TestApplyResult_RoundedSumBounded(t *testing.T) {
	store := newFakeGameStore()
	ratings := []int{1000, 1387, 912, 1641}
	players := []string{"a", "b", "c", "d"}
	total := 0
	for i, p := range players {
		store.scores[p] = ratings[i]
		total += ratings[i]
	}

	err := ApplyResult(context.Background(), store, MatchResult{
		Players: players,
		Winner:  2,
		Scored:  true,
	})
	require.NoError(t, err)

	after := 0
	for _, p := range players {
		after += store.scores[p]
	}
	drift := int(math.Abs(float64(after - total)))
	assert.LessOrEqual(t, drift, 2, "rounding drift within ceil(n/2)")
}

func TestApplyResult_NoCheatGuard(t *testing.T) {
	store := newFakeGameStore()

	err := ApplyResult(context.Background(), store, MatchResult{
		Players: []string{"alice", "bob"},
		Winner:  0,
		Scored:  true,
		Stats:   &MatchStats{Casualties: []int{0, 0}, Time: 5},
	})
	require.NoError(t, err)

	winner := store.stats["alice"]
	assert.Equal(t, 3600, winner.ShortestGame, "zero-casualty game never sets records")
	assert.Equal(t, 100, winner.MinimalCasualties)
}

func TestApplyResult_DevDefeated(t *testing.T) {
	store := newFakeGameStore()

	err := ApplyResult(context.Background(), store, MatchResult{
		Players: []string{"alice", "TeaAndPython"},
		Winner:  0,
		Scored:  true,
		Stats:   &MatchStats{Casualties: []int{1, 2}, Time: 300},
	})
	require.NoError(t, err)
	assert.True(t, store.stats["alice"].DevDefeated)

	// Losing to the dev does not count.
	store2 := newFakeGameStore()
	err = ApplyResult(context.Background(), store2, MatchResult{
		Players: []string{"alice", "TeaAndPython"},
		Winner:  1,
		Scored:  true,
		Stats:   &MatchStats{Casualties: []int{2, 1}, Time: 300},
	})
	require.NoError(t, err)
	assert.False(t, store2.stats["alice"].DevDefeated)
}

func TestApplyResult_MultiplayerUnitsSplit(t *testing.T) {
	store := newFakeGameStore()

	err := ApplyResult(context.Background(), store, MatchResult{
		Players: []string{"a", "b", "c"},
		Winner:  1,
		Scored:  true,
		Stats:   &MatchStats{Casualties: []int{4, 5, 8}, Time: 200},
	})
	require.NoError(t, err)

	// floor((4+5+8)/3) = 5 for everyone.
	for _, p := range []string{"a", "b", "c"} {
		assert.Equal(t, 5, store.stats[p].UnitsDestroyed, p)
	}
	assert.Equal(t, 2, store.money["b"])
	assert.Equal(t, 5, store.stats["b"].MinimalCasualties, "winner's own casualties")
}

func TestApplyResult_RoomWinSkipsEloAndMoney(t *testing.T) {
	store := newFakeGameStore()
	store.scores["alice"] = 1500
	store.scores["bob"] = 900

	err := ApplyResult(context.Background(), store, MatchResult{
		Players: []string{"alice", "bob"},
		Winner:  0,
		Scored:  false,
		Stats:   &MatchStats{Casualties: []int{1, 3}, Time: 90},
	})
	require.NoError(t, err)

	assert.Equal(t, 1500, store.scores["alice"], "no Elo in private rooms")
	assert.Equal(t, 900, store.scores["bob"])
	assert.Equal(t, 0, store.money["alice"], "no currency in private rooms")
	assert.Equal(t, 1, store.games["alice"], "games still counted")
	assert.Equal(t, 1, store.wins["alice"])
}

func TestApplyResult_Draw(t *testing.T) {
	store := newFakeGameStore()
	store.scores["a"] = 1100
	store.scores["b"] = 1000
	store.scores["c"] = 900

	err := ApplyResult(context.Background(), store, MatchResult{
		Players: []string{"a", "b", "c"},
		Winner:  -1,
		Scored:  true,
		Stats:   &MatchStats{Casualties: []int{3, 3, 3}, Time: 400},
	})
	require.NoError(t, err)

	for _, p := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, store.games[p])
		assert.Equal(t, 0, store.wins[p])
		assert.Equal(t, 3, store.stats[p].UnitsDestroyed)
	}
	assert.Equal(t, 1100, store.scores["a"], "draw leaves ratings untouched")
}
