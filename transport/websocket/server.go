package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/playcell/bingo-backend/internal/remotestore"
	"github.com/playcell/bingo-backend/internal/usecase"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser client is served from another origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

type Server struct {
	logger *slog.Logger
	uGame  usecase.GameUseCase
	store  remotestore.Store

	handlers map[string]func(ctx context.Context, client *client, message *Message) error
}

func New(logger *slog.Logger, uGame usecase.GameUseCase, store remotestore.Store) *Server {
	server := &Server{
		logger:   logger.With("component", "ws"),
		uGame:    uGame,
		store:    store,
		handlers: make(map[string]func(context.Context, *client, *Message) error),
	}

	server.handlers["session:join"] = server.handleJoin
	server.handlers["cell:click"] = server.handleCellClick
	server.handlers["cell:edit"] = server.handleCellEdit
	server.handlers["board:reset"] = server.handleReset
	server.handlers["game:pause"] = server.handlePause
	server.handlers["game:resume"] = server.handleResume

	return server
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveClient(ctx, w, r)
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  0, // connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// client is one websocket connection and its store subscription. The write
// mutex serializes frames between the handler goroutine and the push
// forwarder.
type client struct {
	conn        *websocket.Conn
	writeMu     sync.Mutex
	unsubscribe func()
}

func (that *client) send(action string, payload ResponsePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.conn.WriteJSON(Message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *Server) serveClient(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveClient")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := &client{conn: conn}

	// Unmounting must tear everything down: the subscription goes first,
	// then the socket.
	defer func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		_ = conn.Close()
	}()

	log.Info("WebSocket connection established")

	for {
		var message Message
		if err = conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("connection closed unexpectedly", "error", err)
			}
			return
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			continue
		}

		if err = handler(ctx, c, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)

			if sendErr := c.send(message.Action, ResponsePayload{Error: err.Error()}); sendErr != nil {
				return
			}
		}
	}
}
