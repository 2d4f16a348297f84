package auth

import (
	"context"

	"github.com/teaandpython/wodserver/internal/model"
)

// UserStore is the slice of the user store the auth flows need.
// *db.DB satisfies it; tests inject fakes.
type UserStore interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsBySteamID(ctx context.Context, steamID string) (bool, error)
	GetEmail(ctx context.Context, username string) (string, error)
	GetPasswordHash(ctx context.Context, username string) (string, error)
	GetUsernameBySteamID(ctx context.Context, steamID string) (string, error)
	GetLastActive(ctx context.Context, username string) (int64, error)
	InsertUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context, username string) error
	SetPasswordHash(ctx context.Context, username, hash string) error
	SetSteamID(ctx context.Context, username, steamID string) error
	SetLastActive(ctx context.Context, username string) error
}
