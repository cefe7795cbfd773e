package rest

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playcell/bingo-backend/internal/usecase"
)

func Start(logger *slog.Logger, uGame usecase.GameUseCase, port string) error {
	h := NewHandlers(logger, uGame)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", h.PingHandler)
	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("POST /sessions/{id}/join", h.JoinSession)
	mux.HandleFunc("POST /sessions/{id}/start", h.StartSession)
	mux.HandleFunc("POST /sessions/{id}/pause", h.PauseSession)
	mux.HandleFunc("POST /sessions/{id}/resume", h.ResumeSession)
	mux.HandleFunc("PATCH /sessions/{id}", h.PatchSession)
	mux.HandleFunc("POST /sessions/{id}/reset", h.ResetBoard)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
