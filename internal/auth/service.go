// Package auth implements registration, two-step email login, Steam
// auth and the credentialed authorize check.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teaandpython/wodserver/internal/db"
	"github.com/teaandpython/wodserver/internal/mail"
	"github.com/teaandpython/wodserver/internal/model"
	"github.com/teaandpython/wodserver/internal/protocol"
)

// inactiveThreshold: an account that never logged in within this many
// seconds of registering is deleted by the reaper. Two seconds shy of
// the code TTL so the check fires reliably after the 30-minute sleep.
const inactiveThreshold = int64(CodeTTL/time.Second) - 2

// Service runs the auth and registration flows.
type Service struct {
	store  UserStore
	mailer mail.Sender
	codes  *CodeTable

	// reapDelay is CodeTTL in production; tests shrink it.
	reapDelay time.Duration
}

// NewService wires the auth service.
func NewService(store UserStore, mailer mail.Sender) *Service {
	return &Service{
		store:     store,
		mailer:    mailer,
		codes:     NewCodeTable(),
		reapDelay: CodeTTL,
	}
}

// Codes exposes the pending-code table for the janitor.
func (s *Service) Codes() *CodeTable {
	return s.codes
}

// Register1 creates an account and mails a verification code.
// On success the caller's connection may close; a background reaper
// deletes the account if it is never verified.
func (s *Service) Register1(ctx context.Context, username, email, steamID string) protocol.Message {
	if username == "" || email == "" {
		return protocol.Fail(protocol.ErrKindUsernameTaken)
	}
	taken, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		slog.Error("register1: username check", "err", err)
		return protocol.Fail(protocol.ErrKindUsernameTaken)
	}
	if taken {
		return protocol.Fail(protocol.ErrKindUsernameTaken)
	}
	emailTaken, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		slog.Error("register1: email check", "err", err)
		return protocol.Fail(protocol.ErrKindEmailTaken)
	}
	if emailTaken {
		return protocol.Fail(protocol.ErrKindEmailTaken)
	}

	password := GeneratePassword()
	hash, err := HashPassword(password)
	if err != nil {
		slog.Error("register1: hashing password", "err", err)
		return protocol.Fail(protocol.ErrKindEmailInvalid)
	}

	user := model.User{
		Username:     username,
		PasswordHash: hash,
		SteamID:      steamID,
		Email:        email,
		Score:        model.DefaultScore,
		LastActive:   time.Now().Unix(),
		Items:        []string{},
		Stats:        model.DefaultStats(),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		slog.Error("register1: inserting user", "username", username, "err", err)
		return protocol.Fail(protocol.ErrKindUsernameTaken)
	}

	code := GenerateCode()
	s.codes.Set(username, code)

	if err := s.sendCode(email, code); err != nil {
		// Roll back: without the code the account can never verify.
		slog.Warn("register1: sending code failed", "username", username, "err", err)
		s.codes.Delete(username)
		if derr := s.store.DeleteUser(ctx, username); derr != nil {
			slog.Error("register1: rollback failed", "username", username, "err", derr)
		}
		return protocol.Fail(protocol.ErrKindEmailInvalid)
	}

	go s.reapUnverified(username)

	slog.Info("registered", "username", username)
	return protocol.OK(nil)
}

// reapUnverified deletes the account and its pending code if the user
// never became active. Idempotent against a concurrent login2.
func (s *Service) reapUnverified(username string) {
	time.Sleep(s.reapDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	last, err := s.store.GetLastActive(ctx, username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			slog.Error("reaper: last_active lookup", "username", username, "err", err)
		}
		return
	}
	if time.Now().Unix()-last < inactiveThreshold {
		return // verified in time
	}
	s.codes.Delete(username)
	if err := s.store.DeleteUser(ctx, username); err != nil {
		slog.Error("reaper: deleting user", "username", username, "err", err)
		return
	}
	slog.Info("reaped unverified account", "username", username)
}

// Login1 starts the two-step email login by mailing a fresh code.
func (s *Service) Login1(ctx context.Context, username, email string) protocol.Message {
	stored, err := s.store.GetEmail(ctx, username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			slog.Error("login1: email lookup", "username", username, "err", err)
		}
		return protocol.Fail(protocol.ErrKindUserDoesNotExist)
	}
	if stored == "" || stored != email {
		return protocol.Fail(protocol.ErrKindEmailDoesNotMatch)
	}

	code := GenerateCode()
	s.codes.Set(username, code)
	if err := s.sendCode(email, code); err != nil {
		slog.Warn("login1: sending code failed", "username", username, "err", err)
		s.codes.Delete(username)
		return protocol.Fail(protocol.ErrKindEmailInvalid)
	}
	// The code table expires the entry after 30 minutes on its own.
	return protocol.OK(nil)
}

// Login2 completes the email login: on a matching code the password is
// rotated and the new one returned to the client, which stores it for
// auto-login. Rotation on every login is a deliberate client contract.
func (s *Service) Login2(ctx context.Context, username, code, steamID string) protocol.Message {
	pending, ok := s.codes.Get(username)
	if !ok {
		return protocol.Fail(protocol.ErrKindExpiredCode)
	}
	if pending != code {
		return protocol.Fail(protocol.ErrKindWrongCode)
	}

	password, msg := s.rotatePassword(ctx, username)
	if msg != nil {
		return msg
	}
	s.codes.Delete(username)

	if steamID != "" {
		if err := s.store.SetSteamID(ctx, username, steamID); err != nil {
			slog.Error("login2: linking steam id", "username", username, "err", err)
		}
	}

	slog.Info("login complete", "username", username)
	return protocol.OK(protocol.Message{"password": password})
}

// SteamRegister creates an account bound to a steam id, no email.
func (s *Service) SteamRegister(ctx context.Context, username, steamID string) protocol.Message {
	taken, err := s.store.ExistsByUsername(ctx, username)
	if err != nil || taken {
		return protocol.Fail(protocol.ErrKindUsernameTaken)
	}
	idTaken, err := s.store.ExistsBySteamID(ctx, steamID)
	if err != nil || idTaken {
		return protocol.Fail(protocol.ErrKindSteamIDTaken)
	}

	password := GeneratePassword()
	hash, err := HashPassword(password)
	if err != nil {
		slog.Error("steam register: hashing password", "err", err)
		return protocol.Fail(protocol.ErrKindUsernameTaken)
	}
	user := model.User{
		Username:     username,
		PasswordHash: hash,
		SteamID:      steamID,
		Score:        model.DefaultScore,
		LastActive:   time.Now().Unix(),
		Items:        []string{},
		Stats:        model.DefaultStats(),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		slog.Error("steam register: inserting user", "username", username, "err", err)
		return protocol.Fail(protocol.ErrKindUsernameTaken)
	}

	slog.Info("steam account registered", "username", username)
	return protocol.OK(protocol.Message{"username": username, "password": password})
}

// SteamLogin resolves the steam id and rotates the password.
func (s *Service) SteamLogin(ctx context.Context, steamID string) protocol.Message {
	username, err := s.store.GetUsernameBySteamID(ctx, steamID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			slog.Error("steam login: lookup", "err", err)
		}
		return protocol.Fail(protocol.ErrKindUserNotFound)
	}

	password, msg := s.rotatePassword(ctx, username)
	if msg != nil {
		return msg
	}
	slog.Info("steam login", "username", username)
	return protocol.OK(protocol.Message{"username": username, "password": password})
}

// rotatePassword generates and stores a fresh password, stamping
// last_active. Returns the plaintext, or a failure reply.
func (s *Service) rotatePassword(ctx context.Context, username string) (string, protocol.Message) {
	password := GeneratePassword()
	hash, err := HashPassword(password)
	if err != nil {
		slog.Error("rotating password: hash", "username", username, "err", err)
		return "", protocol.Fail(protocol.ErrKindAuthorizeFail)
	}
	if err := s.store.SetPasswordHash(ctx, username, hash); err != nil {
		slog.Error("rotating password: store", "username", username, "err", err)
		return "", protocol.Fail(protocol.ErrKindAuthorizeFail)
	}
	if err := s.store.SetLastActive(ctx, username); err != nil {
		slog.Error("rotating password: last_active", "username", username, "err", err)
	}
	return password, nil
}

// Authorize verifies a username/password pair and stamps last_active
// on success.
func (s *Service) Authorize(ctx context.Context, username, password string) bool {
	hash, err := s.store.GetPasswordHash(ctx, username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			slog.Error("authorize: hash lookup", "username", username, "err", err)
		}
		return false
	}
	if !CheckPassword(hash, password) {
		return false
	}
	if err := s.store.SetLastActive(ctx, username); err != nil {
		slog.Error("authorize: last_active", "username", username, "err", err)
	}
	return true
}

func (s *Service) sendCode(email, code string) error {
	return s.mailer.Send(email, "War of Dots verification code",
		"Your verification code: "+code)
}
