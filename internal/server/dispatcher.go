package server

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/teaandpython/wodserver/internal/db"
	"github.com/teaandpython/wodserver/internal/game"
	"github.com/teaandpython/wodserver/internal/model"
	"github.com/teaandpython/wodserver/internal/protocol"
)

// handleConnection reads the first message and routes it. Short-lived
// request types answer and close; queue/room entries hand the
// connection to the matchmaking runtime and return without closing.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	var player *game.Player
	handedOff := false

	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher panic", "remote", conn.RemoteAddr(), "panic", r)
			if player != nil {
				game.Disconnect(s.registry, player)
				return
			}
			conn.Close()
			return
		}
		if !handedOff {
			conn.Close()
		}
	}()

	payload, err := protocol.ReadFrame(conn)
	if err != nil {
		return
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		return
	}

	if msg.Str("version") != s.cfg.ProtocolVersion {
		s.reply(conn, protocol.Fail(protocol.ErrKindVersionFail))
		return
	}

	msgType := msg.Str("type")
	slog.Debug("dispatch", "type", msgType, "remote", conn.RemoteAddr())

	switch msgType {
	case "register1":
		s.reply(conn, s.auth.Register1(ctx, msg.Str("username"), msg.Str("email"), msg.Str("steam_id")))
	case "login1":
		s.reply(conn, s.auth.Login1(ctx, msg.Str("username"), msg.Str("email")))
	case "login2":
		s.reply(conn, s.auth.Login2(ctx, msg.Str("username"), msg.Str("code"), msg.Str("steam_id")))
	case "steam_register":
		s.reply(conn, s.auth.SteamRegister(ctx, msg.Str("username"), msg.Str("steam_id")))
	case "steam_login":
		s.reply(conn, s.auth.SteamLogin(ctx, msg.Str("steam_id")))
	default:
		username := msg.Str("username")
		if !s.auth.Authorize(ctx, username, msg.Str("password")) {
			slog.Info("authorize failed", "username", username, "remote", conn.RemoteAddr())
			s.reply(conn, protocol.Fail(protocol.ErrKindAuthorizeFail))
			return
		}

		switch msgType {
		case "get-stats":
			s.reply(conn, s.handleGetStats(ctx, username))
		case "buy-item":
			s.reply(conn, s.handleBuyItem(ctx, username, msg))
		case "set-title":
			s.reply(conn, s.handleSetTitle(ctx, username, msg))
		case "sync-campaign":
			s.reply(conn, s.handleSyncCampaign(ctx, username, msg))
		case "1v1", "v3", "v4", "v34":
			player, handedOff = s.enterMatchmaking(ctx, conn, username, model.Mode(msgType), msg)
		default:
			slog.Warn("unknown message type", "type", msgType, "remote", conn.RemoteAddr())
			s.reply(conn, protocol.Fail(protocol.ErrKindConnectionFail))
		}
	}
}

// reply sends a single envelope; send failures just close the peer.
func (s *Server) reply(conn net.Conn, m protocol.Message) {
	payload, err := m.Encode()
	if err != nil {
		slog.Error("encoding reply", "err", err)
		return
	}
	_ = protocol.WriteFrame(conn, payload)
}

func (s *Server) handleGetStats(ctx context.Context, username string) protocol.Message {
	b, err := s.store.GetStatsBundle(ctx, username)
	if err != nil {
		slog.Error("get-stats", "username", username, "err", err)
		return protocol.Fail(protocol.ErrKindGetStatsFail)
	}
	return protocol.OK(protocol.Message{
		"username":           b.Username,
		"title":              b.Title,
		"score":              b.Score,
		"rank":               b.Rank,
		"number_of_games":    b.Games,
		"number_of_wins":     b.Wins,
		"units_destroyed":    b.Stats.UnitsDestroyed,
		"shortest_game":      b.Stats.ShortestGame,
		"minimal_casualties": b.Stats.MinimalCasualties,
		"dev_defeated":       b.Stats.DevDefeated,
		"campaign_completed": b.Stats.CampaignCompleted,
		"money":              b.Money,
		"items":              b.Items,
	})
}

func (s *Server) handleBuyItem(ctx context.Context, username string, msg protocol.Message) protocol.Message {
	price, ok := msg.Int("price")
	if !ok || price < 0 {
		return protocol.Fail(protocol.ErrKindInvalidPrice)
	}
	item := msg.Str("item")
	err := s.store.DeductAndAppendItem(ctx, username, price, item)
	if err != nil {
		if !errors.Is(err, db.ErrInsufficientFunds) && !errors.Is(err, db.ErrNotFound) {
			slog.Error("buy-item", "username", username, "err", err)
		}
		return protocol.Fail(protocol.ErrKindGeneric)
	}
	slog.Info("item purchased", "username", username, "item", item, "price", price)
	return protocol.OK(nil)
}

func (s *Server) handleSetTitle(ctx context.Context, username string, msg protocol.Message) protocol.Message {
	if err := s.store.SetTitle(ctx, username, msg.Str("title")); err != nil {
		slog.Error("set-title", "username", username, "err", err)
		return protocol.Fail(protocol.ErrKindGeneric)
	}
	return protocol.OK(nil)
}

func (s *Server) handleSyncCampaign(ctx context.Context, username string, msg protocol.Message) protocol.Message {
	progress, completed, err := s.store.MergeCampaignProgress(ctx, username, msg.Ints("progress"))
	if err != nil {
		slog.Error("sync-campaign", "username", username, "err", err)
		return protocol.Fail(protocol.ErrKindGeneric)
	}
	return protocol.OK(protocol.Message{"progress": progress, "completed": completed})
}

// enterMatchmaking claims the username in the online registry, builds
// the player handle and hands it to a queue or a room. Returns the
// player and whether connection ownership moved away from the
// dispatcher.
func (s *Server) enterMatchmaking(ctx context.Context, conn net.Conn, username string, mode model.Mode, msg protocol.Message) (*game.Player, bool) {
	if !mode.Valid() {
		s.reply(conn, protocol.Fail(protocol.ErrKindConnectionFail))
		return nil, false
	}

	// The online check and the queue/room insertion happen under the
	// registry claim: a second session for the same username cannot
	// slip in between.
	if !s.registry.Add(username) {
		slog.Info("already online", "username", username)
		s.reply(conn, protocol.Fail(protocol.ErrKindUserOnlineFail))
		return nil, false
	}

	rating, err := s.store.GetScore(ctx, username)
	if err != nil {
		slog.Error("rating snapshot", "username", username, "err", err)
		s.registry.Remove(username)
		s.reply(conn, protocol.Fail(protocol.ErrKindConnectionFail))
		return nil, false
	}
	player := game.NewPlayer(username, rating, conn)

	code := msg.Str("code")
	if code == "" {
		s.queues[mode].Enqueue(player)
		slog.Info("queued", "username", username, "mode", mode)
		return player, true
	}

	if !s.enterRoom(player, mode, code, msg.Bool("custom_map")) {
		game.Disconnect(s.registry, player)
		return player, false
	}
	return player, true
}

// enterRoom joins or creates the private room. The creator may upload
// a custom map in one extra round trip before the room exists.
func (s *Server) enterRoom(player *game.Player, mode model.Mode, code string, hasCustomMap bool) bool {
	if !s.rooms.Exists(code) {
		var customMap []byte
		if hasCustomMap {
			if err := player.Send(protocol.Message{"custom_map": 1}); err != nil {
				return false
			}
			reply, err := player.ReadControl()
			if err != nil {
				return false
			}
			if blob := reply.Str("map"); blob != "" {
				customMap = []byte(blob)
			}
		}
		if s.rooms.Create(code, mode, player, customMap) {
			if err := player.Send(protocol.OK(nil)); err != nil {
				// Sweeper will evict the dead host shortly.
				slog.Debug("room ack send failed", "username", player.Username)
			}
			return true
		}
		// Lost the creation race; fall through to a plain join.
	}

	snapshot := s.rooms.Join(code, player)
	if snapshot == nil {
		// Room vanished between lookup and join; retry as creator once.
		if s.rooms.Create(code, mode, player, nil) {
			_ = player.Send(protocol.OK(nil))
			return true
		}
		return false
	}
	_ = player.Send(protocol.OK(snapshot))
	return true
}
