package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/usecase"
)

type Handlers interface {
	PingHandler(w http.ResponseWriter, r *http.Request)

	CreateSession(w http.ResponseWriter, r *http.Request)
	GetSession(w http.ResponseWriter, r *http.Request)
	JoinSession(w http.ResponseWriter, r *http.Request)
	StartSession(w http.ResponseWriter, r *http.Request)
	PauseSession(w http.ResponseWriter, r *http.Request)
	ResumeSession(w http.ResponseWriter, r *http.Request)
	PatchSession(w http.ResponseWriter, r *http.Request)
	ResetBoard(w http.ResponseWriter, r *http.Request)
}

type handlers struct {
	logger *slog.Logger
	uGame  usecase.GameUseCase
}

func NewHandlers(logger *slog.Logger, uGame usecase.GameUseCase) Handlers {
	return &handlers{
		logger: logger.With("component", "rest"),
		uGame:  uGame,
	}
}

// responsePayload is the conventional REST envelope: a session, optionally
// the acting player, or an error string.
type responsePayload struct {
	Session *entity.GameSession `json:"session,omitempty"`
	Player  *entity.Player      `json:"player,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (that *handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (that *handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var settings entity.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		that.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := that.uGame.CreateSession(r.Context(), settings)
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusCreated, responsePayload{Session: session})
}

func (that *handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := that.uGame.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusOK, responsePayload{Session: session})
}

func (that *handlers) JoinSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlayerID string `json:"player_id"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		that.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, player, err := that.uGame.JoinSession(r.Context(), r.PathValue("id"), body.PlayerID, body.Name)
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusOK, responsePayload{Session: session, Player: player})
}

func (that *handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	session, err := that.uGame.StartSession(r.Context(), r.PathValue("id"))
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusOK, responsePayload{Session: session})
}

func (that *handlers) PauseSession(w http.ResponseWriter, r *http.Request) {
	session, err := that.uGame.PauseSession(r.Context(), r.PathValue("id"))
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusOK, responsePayload{Session: session})
}

func (that *handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	session, err := that.uGame.ResumeSession(r.Context(), r.PathValue("id"))
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusOK, responsePayload{Session: session})
}

func (that *handlers) PatchSession(w http.ResponseWriter, r *http.Request) {
	var settings entity.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		that.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := that.uGame.PatchSession(r.Context(), r.PathValue("id"), settings)
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusOK, responsePayload{Session: session})
}

func (that *handlers) ResetBoard(w http.ResponseWriter, r *http.Request) {
	session, err := that.uGame.ResetBoard(r.Context(), r.PathValue("id"))
	if err != nil {
		that.writeError(w, statusFor(err), err)
		return
	}

	that.writeJSON(w, http.StatusOK, responsePayload{Session: session})
}

func (that *handlers) writeJSON(w http.ResponseWriter, status int, payload responsePayload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

func (that *handlers) writeError(w http.ResponseWriter, status int, err error) {
	that.writeJSON(w, status, responsePayload{Error: err.Error()})
}

// statusFor maps the error taxonomy onto conventional status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrSessionFull),
		errors.Is(err, apperror.ErrVersionConflict),
		errors.Is(err, apperror.ErrColorTaken),
		errors.Is(err, apperror.ErrGameIsNotStarted),
		errors.Is(err, apperror.ErrGameFinished),
		errors.Is(err, apperror.ErrCellBlocked),
		errors.Is(err, apperror.ErrCellLocked),
		errors.Is(err, apperror.ErrCellFull),
		errors.Is(err, apperror.ErrBlockOwnCell):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrInvalidBoardSize),
		errors.Is(err, apperror.ErrInvalidSettings),
		errors.Is(err, apperror.ErrInvalidCell),
		errors.Is(err, apperror.ErrInvalidBoardState),
		errors.Is(err, apperror.ErrTextTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
