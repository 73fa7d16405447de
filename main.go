package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"xiwangsha-server/api"
	"xiwangsha-server/auth"
	"xiwangsha-server/broadcast"
	"xiwangsha-server/card"
	"xiwangsha-server/config"
	"xiwangsha-server/game"
	"xiwangsha-server/loghandler"
	"xiwangsha-server/room"
	"xiwangsha-server/storage"
	"xiwangsha-server/ws"
)

// app is the wired server: rooms, websocket hub and HTTP routes.
type app struct {
	rooms  *room.Manager
	hub    *ws.Hub
	router http.Handler

	saves sync.WaitGroup // in-flight match history writes
}

// newApp wires every component. store and authn may be nil.
func newApp(cfg *config.Config, store storage.HistoryStore, authn ws.Authenticator) *app {
	a := &app{rooms: room.NewManager(cfg, card.Default(), broadcast.New())}
	if store != nil {
		a.rooms.OnGameEnd = func(res game.MatchResult) {
			a.saves.Add(1)
			go func() {
				defer a.saves.Done()
				saveMatch(store, res)
			}()
		}
	}
	a.hub = ws.NewHub(cfg, a.rooms, authn)
	h := api.NewHandler(cfg, a.rooms, store, authn)
	a.router = api.SetupRoutes(h, a.hub.ServeWS)
	return a
}

// saveMatch records a finished game. It runs off the session goroutine.
func saveMatch(store storage.HistoryStore, res game.MatchResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	players := make([]storage.PlayerResult, 0, len(res.Players))
	for _, p := range res.Players {
		players = append(players, storage.PlayerResult{
			ID:         p.ID,
			Name:       p.Name,
			UserID:     p.UserID,
			San:        p.Vitality,
			Eliminated: p.Eliminated,
		})
	}
	err := store.InsertMatch(ctx, storage.MatchRecord{
		RoomID:       res.RoomID,
		RoomName:     res.RoomName,
		WinnerID:     res.WinnerID,
		WinnerName:   res.WinnerName,
		WinnerUserID: res.WinnerUserID,
		Players:      players,
		LogLength:    res.LogLength,
		StartedAt:    res.StartedAt,
		EndedAt:      res.EndedAt,
	})
	if err != nil {
		slog.Error("save match failed", "tag", "storage", "room", res.RoomID, "err", err)
		return
	}
	slog.Info("match saved", "tag", "storage", "room", res.RoomID, "winner", res.WinnerName)
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, cfg.SlogLevel())))
	if envErr != nil {
		slog.Info("no .env file found; using environment variables", "tag", "main")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		slog.Error("open history store", "tag", "main", "err", err)
		os.Exit(1)
	}
	if store == nil {
		slog.Info("history: no DATABASE_URL or SQLITE_PATH, finished matches are not recorded", "tag", "main")
	}

	var authn ws.Authenticator
	if cfg.AuthBaseURL != "" {
		v, err := auth.NewValidator(cfg.AuthBaseURL)
		if err != nil {
			slog.Error("auth setup failed", "tag", "main", "err", err)
			os.Exit(1)
		}
		authn = v
		slog.Info("auth: configured", "tag", "main", "base_url", cfg.AuthBaseURL)
	} else {
		slog.Info("auth: AUTH_BASE_URL is not set, guests connect without a token", "tag", "main")
	}

	slog.Info("configuration", "tag", "main",
		"max_players", cfg.MaxPlayers, "initial_san", cfg.InitialVitality, "hand_size", cfg.HandSize,
		"late_join", cfg.LateJoin, "response_timeout_sec", cfg.ResponseTimeoutSec, "port", cfg.HTTPPort)

	a := newApp(cfg, store, authn)
	go a.hub.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("server listening", "tag", "main", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen failed", "tag", "main", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down", "tag", "main")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "tag", "main", "err", err)
	}
	a.rooms.Shutdown()
	a.saves.Wait()
	if store != nil {
		store.Close()
	}
}
