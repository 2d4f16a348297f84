package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teaandpython/wodserver/internal/model"
)

// ErrNotFound is returned when a lookup matches no user.
var ErrNotFound = errors.New("db: user not found")

// ExistsByUsername reports whether a user with this username exists.
func (d *DB) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username %q: %w", username, err)
	}
	return exists, nil
}

// ExistsByEmail reports whether any user has this email.
func (d *DB) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return exists, nil
}

// ExistsBySteamID reports whether any user has this steam id.
func (d *DB) ExistsBySteamID(ctx context.Context, steamID string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE steam_id = $1)`, steamID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking steam id: %w", err)
	}
	return exists, nil
}

// GetEmail returns the user's email ("" when unset).
func (d *DB) GetEmail(ctx context.Context, username string) (string, error) {
	var email *string
	err := d.pool.QueryRow(ctx,
		`SELECT email FROM users WHERE username = $1`, username,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying email for %q: %w", username, err)
	}
	if email == nil {
		return "", nil
	}
	return *email, nil
}

// GetScore returns the user's current rating.
func (d *DB) GetScore(ctx context.Context, username string) (int, error) {
	var score int
	err := d.pool.QueryRow(ctx,
		`SELECT score FROM users WHERE username = $1`, username,
	).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying score for %q: %w", username, err)
	}
	return score, nil
}

// GetPasswordHash returns the stored bcrypt hash for a username.
func (d *DB) GetPasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := d.pool.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE username = $1`, username,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying password hash for %q: %w", username, err)
	}
	return hash, nil
}

// GetUsernameBySteamID resolves a steam id to a username.
func (d *DB) GetUsernameBySteamID(ctx context.Context, steamID string) (string, error) {
	var username string
	err := d.pool.QueryRow(ctx,
		`SELECT username FROM users WHERE steam_id = $1`, steamID,
	).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying username by steam id: %w", err)
	}
	return username, nil
}

// GetTitles returns each username's title, in input order ("" when unset).
func (d *DB) GetTitles(ctx context.Context, usernames []string) ([]string, error) {
	titles := make([]string, len(usernames))
	for i, u := range usernames {
		var title *string
		err := d.pool.QueryRow(ctx,
			`SELECT title FROM users WHERE username = $1`, u,
		).Scan(&title)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("querying title for %q: %w", u, err)
		}
		if title != nil {
			titles[i] = *title
		}
	}
	return titles, nil
}

// GetLastActive returns the user's last_active timestamp (seconds since
// epoch). Used by the unverified-account reaper.
func (d *DB) GetLastActive(ctx context.Context, username string) (int64, error) {
	var last int64
	err := d.pool.QueryRow(ctx,
		`SELECT last_active FROM users WHERE username = $1`, username,
	).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying last_active for %q: %w", username, err)
	}
	return last, nil
}

// StatsBundle is the full profile row behind the get-stats reply.
type StatsBundle struct {
	Username string
	Title    string
	Score    int
	Rank     int
	Games    int
	Wins     int
	Money    int
	Items    []string
	Stats    model.Stats
}

// GetStatsBundle loads the user's profile with their rank (1 + number
// of users with a strictly higher score).
func (d *DB) GetStatsBundle(ctx context.Context, username string) (*StatsBundle, error) {
	var (
		b         StatsBundle
		title     *string
		itemsJSON []byte
		statsJSON []byte
	)
	err := d.pool.QueryRow(ctx,
		`SELECT username, title, score, games, wins, money, items, stats,
		        (SELECT COUNT(*) + 1 FROM users o WHERE o.score > u.score) AS rank
		 FROM users u WHERE username = $1`, username,
	).Scan(&b.Username, &title, &b.Score, &b.Games, &b.Wins, &b.Money,
		&itemsJSON, &statsJSON, &b.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying stats bundle for %q: %w", username, err)
	}
	if title != nil {
		b.Title = *title
	}
	if err := json.Unmarshal(itemsJSON, &b.Items); err != nil {
		return nil, fmt.Errorf("decoding items for %q: %w", username, err)
	}
	b.Stats = model.DefaultStats()
	if err := json.Unmarshal(statsJSON, &b.Stats); err != nil {
		return nil, fmt.Errorf("decoding stats for %q: %w", username, err)
	}
	return &b, nil
}

// InsertUser creates a new user row with default score and stats.
func (d *DB) InsertUser(ctx context.Context, u model.User) error {
	statsJSON, err := json.Marshal(u.Stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	items := u.Items
	if items == nil {
		items = []string{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, steam_id, email, score,
		                    wins, games, last_active, title, money, items, stats)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8,
		         NULLIF($9, ''), $10, $11, $12)`,
		u.Username, u.PasswordHash, u.SteamID, u.Email, u.Score,
		u.Wins, u.Games, u.LastActive, u.Title, u.Money, itemsJSON, statsJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting user %q: %w", u.Username, err)
	}
	return nil
}

// DeleteUser removes a user row. Deleting an absent user is not an error.
func (d *DB) DeleteUser(ctx context.Context, username string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("deleting user %q: %w", username, err)
	}
	return nil
}

// SetPasswordHash replaces the user's password hash.
func (d *DB) SetPasswordHash(ctx context.Context, username, hash string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1 WHERE username = $2`, hash, username)
	if err != nil {
		return fmt.Errorf("setting password hash for %q: %w", username, err)
	}
	return nil
}

// SetSteamID links a steam id to the user.
func (d *DB) SetSteamID(ctx context.Context, username, steamID string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE users SET steam_id = $1 WHERE username = $2`, steamID, username)
	if err != nil {
		return fmt.Errorf("setting steam id for %q: %w", username, err)
	}
	return nil
}

// SetTitle sets the user's display title.
func (d *DB) SetTitle(ctx context.Context, username, title string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE users SET title = NULLIF($1, '') WHERE username = $2`, title, username)
	if err != nil {
		return fmt.Errorf("setting title for %q: %w", username, err)
	}
	return nil
}

// SetLastActive stamps the user's last_active to now.
func (d *DB) SetLastActive(ctx context.Context, username string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE users SET last_active = $1 WHERE username = $2`,
		time.Now().Unix(), username)
	if err != nil {
		return fmt.Errorf("setting last_active for %q: %w", username, err)
	}
	return nil
}

// UserSummary is one row of the admin list view.
type UserSummary struct {
	Username string
	Score    int
	Games    int
	Wins     int
}

// ListUsers returns every user's summary, best score first.
func (d *DB) ListUsers(ctx context.Context) ([]UserSummary, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT username, score, games, wins FROM users ORDER BY score DESC, username`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []UserSummary
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.Username, &u.Score, &u.Games, &u.Wins); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading user rows: %w", err)
	}
	return out, nil
}

// MatchUpdate is one participant's row of a finished match.
type MatchUpdate struct {
	Username   string
	Win        bool
	SetScore   *int // nil leaves the rating untouched
	MoneyDelta int
	// MergeStats folds this match into the user's lifetime stats.
	// nil means no stats change for this participant.
	MergeStats func(model.Stats) model.Stats
}

// ApplyMatchResult applies all participants' updates in one
// transaction, so a half-scored match can never persist.
func (d *DB) ApplyMatchResult(ctx context.Context, updates []MatchUpdate) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning match result tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		var statsJSON []byte
		err := tx.QueryRow(ctx,
			`SELECT stats FROM users WHERE username = $1 FOR UPDATE`, u.Username,
		).Scan(&statsJSON)
		if errors.Is(err, pgx.ErrNoRows) {
			// Account deleted mid-match; skip the seat, keep the rest.
			continue
		}
		if err != nil {
			return fmt.Errorf("locking user %q: %w", u.Username, err)
		}

		stats := model.DefaultStats()
		if err := json.Unmarshal(statsJSON, &stats); err != nil {
			return fmt.Errorf("decoding stats for %q: %w", u.Username, err)
		}
		if u.MergeStats != nil {
			stats = u.MergeStats(stats)
		}
		merged, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("encoding stats for %q: %w", u.Username, err)
		}

		winInc := 0
		if u.Win {
			winInc = 1
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET games = games + 1,
			                  wins  = wins + $2,
			                  score = COALESCE($3, score),
			                  money = money + $4,
			                  stats = $5
			 WHERE username = $1`,
			u.Username, winInc, u.SetScore, u.MoneyDelta, merged)
		if err != nil {
			return fmt.Errorf("updating user %q: %w", u.Username, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing match result: %w", err)
	}
	return nil
}

// ErrInsufficientFunds is returned by DeductAndAppendItem when the
// user cannot afford the purchase.
var ErrInsufficientFunds = errors.New("db: insufficient funds")

// DeductAndAppendItem atomically charges price and appends item to the
// user's inventory.
func (d *DB) DeductAndAppendItem(ctx context.Context, username string, price int, item string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning purchase tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		money     int
		itemsJSON []byte
	)
	err = tx.QueryRow(ctx,
		`SELECT money, items FROM users WHERE username = $1 FOR UPDATE`, username,
	).Scan(&money, &itemsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking user %q: %w", username, err)
	}
	if money < price {
		return ErrInsufficientFunds
	}

	var items []string
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return fmt.Errorf("decoding items for %q: %w", username, err)
	}
	items = append(items, item)
	updated, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding items for %q: %w", username, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET money = money - $2, items = $3 WHERE username = $1`,
		username, price, updated)
	if err != nil {
		return fmt.Errorf("charging user %q: %w", username, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing purchase: %w", err)
	}
	return nil
}

// MergeCampaignProgress unions new level ids into the user's campaign
// progress and returns the merged set with the completion flag.
// Completion trips once the set exceeds 29 levels and never resets.
func (d *DB) MergeCampaignProgress(ctx context.Context, username string, levels []int) ([]int, bool, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning campaign tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var statsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT stats FROM users WHERE username = $1 FOR UPDATE`, username,
	).Scan(&statsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("locking user %q: %w", username, err)
	}

	stats := model.DefaultStats()
	if err := json.Unmarshal(statsJSON, &stats); err != nil {
		return nil, false, fmt.Errorf("decoding stats for %q: %w", username, err)
	}

	seen := make(map[int]bool, len(stats.CampaignProgress))
	for _, id := range stats.CampaignProgress {
		seen[id] = true
	}
	for _, id := range levels {
		if !seen[id] {
			seen[id] = true
			stats.CampaignProgress = append(stats.CampaignProgress, id)
		}
	}
	if len(stats.CampaignProgress) > 29 {
		stats.CampaignCompleted = true
	}

	merged, err := json.Marshal(stats)
	if err != nil {
		return nil, false, fmt.Errorf("encoding stats for %q: %w", username, err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE users SET stats = $2 WHERE username = $1`, username, merged)
	if err != nil {
		return nil, false, fmt.Errorf("updating stats for %q: %w", username, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing campaign merge: %w", err)
	}
	return stats.CampaignProgress, stats.CampaignCompleted, nil
}
