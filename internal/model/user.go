package model

// User represents a player account stored in the database.
type User struct {
	Username     string
	PasswordHash string
	SteamID      string // empty = not linked
	Email        string // empty = not set
	Score        int
	Wins         int
	Games        int
	LastActive   int64 // seconds since epoch
	Title        string
	Money        int
	Items        []string
	Stats        Stats
}

// Stats is the per-user lifetime statistics blob.
type Stats struct {
	UnitsDestroyed    int   `json:"units_destroyed"`
	ShortestGame      int   `json:"shortest_game"` // seconds
	MinimalCasualties int   `json:"minimal_casualties"`
	DevDefeated       bool  `json:"dev_defeated"`
	CampaignCompleted bool  `json:"campaign_completed"`
	CampaignProgress  []int `json:"campaign_progress"`
}

// DefaultStats returns the stats a fresh account starts with.
func DefaultStats() Stats {
	return Stats{
		ShortestGame:      3600,
		MinimalCasualties: 100,
	}
}

// DefaultScore is the rating every new account starts with.
const DefaultScore = 1000

// Mode identifies a game mode / queue.
type Mode string

const (
	Mode1v1 Mode = "1v1"
	ModeV3  Mode = "v3"
	ModeV4  Mode = "v4"
	ModeV34 Mode = "v34"
)

// TargetPlayers returns the seat count a mode fills.
// ModeV34 has no fixed size and returns 0.
func (m Mode) TargetPlayers() int {
	switch m {
	case Mode1v1:
		return 2
	case ModeV3:
		return 3
	case ModeV4:
		return 4
	default:
		return 0
	}
}

// Valid reports whether m is one of the known queue modes.
func (m Mode) Valid() bool {
	switch m {
	case Mode1v1, ModeV3, ModeV4, ModeV34:
		return true
	}
	return false
}
