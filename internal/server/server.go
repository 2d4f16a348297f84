// Package server accepts client connections and routes their first
// message to the auth flows, the profile requests or the matchmaking
// runtime.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/teaandpython/wodserver/internal/auth"
	"github.com/teaandpython/wodserver/internal/config"
	"github.com/teaandpython/wodserver/internal/db"
	"github.com/teaandpython/wodserver/internal/game"
	"github.com/teaandpython/wodserver/internal/model"
)

// Store is everything the dispatcher needs from the user store.
// *db.DB satisfies it; tests inject fakes.
type Store interface {
	game.Store
	GetStatsBundle(ctx context.Context, username string) (*db.StatsBundle, error)
	SetTitle(ctx context.Context, username, title string) error
	DeductAndAppendItem(ctx context.Context, username string, price int, item string) error
	MergeCampaignProgress(ctx context.Context, username string, levels []int) ([]int, bool, error)
}

// Server is the TCP front door on :9056.
type Server struct {
	cfg      config.GameServer
	auth     *auth.Service
	store    Store
	registry *game.Registry
	rooms    *game.Rooms
	queues   map[model.Mode]*game.Queue

	listener net.Listener
	mu       sync.Mutex
}

// NewServer wires the dispatcher.
func NewServer(
	cfg config.GameServer,
	authSvc *auth.Service,
	store Store,
	registry *game.Registry,
	rooms *game.Rooms,
	queues map[model.Mode]*game.Queue,
) *Server {
	return &Server{
		cfg:      cfg,
		auth:     authSvc,
		store:    store,
		registry: registry,
		rooms:    rooms,
		queues:   queues,
	}
}

// Addr returns the listen address, nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops accepting.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on cfg.BindAddress:cfg.Port and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on a ready listener. Split out so tests
// can pass an ephemeral-port listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("game server started", "address", ln.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("failed to accept connection", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
	wg.Wait()
	return nil
}
