package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 5 * time.Second

// subscriberConn is the part of *websocket.Conn the hub uses.
type subscriberConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Hub fans level1 updates from the broadcast queue out to local WebSocket subscribers.
type Hub struct {
	addr         string
	queue        *event.Queue
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu   sync.RWMutex
	subs map[uuid.UUID]subscriberConn

	logger *slog.Logger
}

// NewHub creates a hub listening on localhost:port.
func NewHub(port int, queue *event.Queue) *Hub {
	return &Hub{
		addr:  fmt.Sprintf("localhost:%d", port),
		queue: queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: defaultWriteTimeout,
		subs:         make(map[uuid.UUID]subscriberConn),
		logger:       slog.Default().With("module", "broadcast"),
	}
}

// Addr is the configured listen address.
func (h *Hub) Addr() string { return h.addr }

// Handler upgrades every request to a subscriber connection.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.serveSubscriber)
}

// Run listens for subscribers and pumps the broadcast queue until quit or
// ctx cancellation, then closes the listener and every subscriber.
func (h *Hub) Run(ctx context.Context) error {
	defer h.queue.Abandon()

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("broadcast listen %s: %w", h.addr, err)
	}
	srv := &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("broadcast server stopped", slog.Any("error", err))
		}
	}()
	h.logger.Info("broadcast server listening", slog.String("addr", h.addr))

	h.pump(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	h.closeAll()
	h.logger.Info("broadcast server stopped")
	return nil
}

func (h *Hub) pump(ctx context.Context) {
	for {
		env, err := h.queue.Get(ctx)
		if err != nil {
			return
		}
		if env.IsQuit() {
			return
		}

		quote, ok := env.Payload.(domain.Level1Quote)
		if !ok {
			h.logger.Warn("unexpected broadcast envelope", slog.String("envelope", env.String()))
			continue
		}
		h.Broadcast(domain.BroadcastMessage{Action: string(env.Action), Data: quote.ToBroadcast()})
	}
}

// Broadcast sends msg to every subscriber and returns how many received it.
// A failed send is logged and does not remove the subscriber.
func (h *Hub) Broadcast(msg domain.BroadcastMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast encode failed", slog.Any("error", err))
		return 0
	}

	h.mu.RLock()
	targets := make(map[uuid.UUID]subscriberConn, len(h.subs))
	for id, conn := range h.subs {
		targets[id] = conn
	}
	h.mu.RUnlock()

	delivered := 0
	for id, conn := range targets {
		if err := h.send(conn, data); err != nil {
			infra.GlobalMetrics.RecordBroadcastFailure()
			sendErr := &domain.DownstreamSendError{Subscriber: id.String(), Err: err}
			h.logger.Warn("broadcast send failed", slog.Any("error", sendErr))
			continue
		}
		delivered++
	}
	infra.GlobalMetrics.RecordBroadcast()
	return delivered
}

func (h *Hub) send(conn subscriberConn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) serveSubscriber(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("subscriber upgrade failed", slog.Any("error", err))
		return
	}

	id := h.add(conn)
	defer h.remove(id)

	// Subscribers only listen; reads detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(conn subscriberConn) uuid.UUID {
	id := uuid.New()
	h.mu.Lock()
	h.subs[id] = conn
	h.mu.Unlock()
	infra.GlobalMetrics.IncrementSubscribers()
	h.logger.Info("subscriber connected", slog.String("id", id.String()))
	return id
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	conn, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	conn.Close()
	infra.GlobalMetrics.DecrementSubscribers()
	h.logger.Info("subscriber disconnected", slog.String("id", id.String()))
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	ids := make([]uuid.UUID, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.remove(id)
	}
}
