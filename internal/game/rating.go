package game

import (
	"context"
	"log/slog"
	"math"

	"github.com/teaandpython/wodserver/internal/db"
	"github.com/teaandpython/wodserver/internal/model"
)

// Store is the slice of the user store the game runtime needs.
// *db.DB satisfies it; tests inject fakes.
type Store interface {
	GetScore(ctx context.Context, username string) (int, error)
	GetTitles(ctx context.Context, usernames []string) ([]string, error)
	ApplyMatchResult(ctx context.Context, updates []db.MatchUpdate) error
}

// eloK is the rating K-factor.
const eloK = 50.0

// devUsername unlocks the dev_defeated achievement when beaten in 1v1.
const devUsername = "TeaAndPython"

// EloDeltas computes per-participant rating changes for winner seat w.
// Each loser transfers K*(1 - expected) to the winner; the unrounded
// sum of all deltas is zero.
func EloDeltas(ratings []int, w int) []float64 {
	deltas := make([]float64, len(ratings))
	for i, r := range ratings {
		if i == w {
			continue
		}
		d := eloK * (1.0 - 1.0/(1.0+math.Pow(10, float64(r-ratings[w])/400.0)))
		deltas[i] -= d
		deltas[w] += d
	}
	return deltas
}

// MatchStats is the end-of-game report attached to a terminal payload:
// per-seat casualty counts and the game duration in seconds.
type MatchStats struct {
	Casualties []int
	Time       int
}

// anyCasualties is the sanity check on a reported result: a game where
// nobody lost a unit never updates the record fields.
func (s *MatchStats) anyCasualties() bool {
	if s == nil {
		return false
	}
	for _, c := range s.Casualties {
		if c > 0 {
			return true
		}
	}
	return false
}

// MatchResult describes a finished session for the rating applier.
type MatchResult struct {
	Players []string // seat order
	Winner  int      // -1 = draw / no winner
	Scored  bool     // false for private rooms: no Elo, no money
	Stats   *MatchStats
}

// ApplyResult persists the outcome for every participant in one store
// transaction: Elo, win/game counters, currency and stats records.
func ApplyResult(ctx context.Context, store Store, res MatchResult) error {
	n := len(res.Players)
	w := res.Winner

	var deltas []float64
	if res.Scored && w >= 0 {
		ratings := make([]int, n)
		for i, username := range res.Players {
			score, err := store.GetScore(ctx, username)
			if err != nil {
				slog.Error("rating: score fetch", "username", username, "err", err)
				score = model.DefaultScore
			}
			ratings[i] = score
		}
		deltas = EloDeltas(ratings, w)
		for i := range deltas {
			deltas[i] += float64(ratings[i])
		}
	}

	updates := make([]db.MatchUpdate, 0, n)
	for i, username := range res.Players {
		u := db.MatchUpdate{Username: username}
		if deltas != nil {
			newScore := int(math.Round(deltas[i]))
			u.SetScore = &newScore
		}
		if i == w {
			u.Win = true
			if res.Scored {
				u.MoneyDelta = n - 1
			}
		}
		u.MergeStats = statsMerger(res, i)
		updates = append(updates, u)
	}

	return store.ApplyMatchResult(ctx, updates)
}

// statsMerger folds the match report into seat i's lifetime stats.
func statsMerger(res MatchResult, i int) func(model.Stats) model.Stats {
	st := res.Stats
	if st == nil || len(st.Casualties) < len(res.Players) {
		return nil
	}
	n := len(res.Players)
	w := res.Winner

	return func(s model.Stats) model.Stats {
		if n == 2 {
			s.UnitsDestroyed += st.Casualties[1-i]
		} else {
			total := 0
			for _, c := range st.Casualties {
				total += c
			}
			s.UnitsDestroyed += total / n
		}

		if i == w && st.anyCasualties() {
			if st.Time < s.ShortestGame {
				s.ShortestGame = st.Time
			}
			if st.Casualties[w] < s.MinimalCasualties {
				s.MinimalCasualties = st.Casualties[w]
			}
		}
		if i == w && n == 2 && res.Players[1-w] == devUsername {
			s.DevDefeated = true
		}
		return s
	}
}
