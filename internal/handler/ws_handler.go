package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/YogevSaadon/Qode/internal/notifier"
	"github.com/YogevSaadon/Qode/internal/service"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
)

// ObserverRegistry is where WebSocket observers subscribe to a queue
type ObserverRegistry interface {
	Register(queueID string, obs notifier.Observer)
	Unregister(queueID string, obs notifier.Observer)
}

// WSHandler upgrades observers to WebSocket and subscribes them to a queue
type WSHandler struct {
	service  service.TicketingService
	registry ObserverRegistry
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewWSHandler creates a WebSocket handler. Origins restricts the Origin
// header; an empty list or "*" accepts any origin.
func NewWSHandler(svc service.TicketingService, registry ObserverRegistry, origins []string, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		service:  svc,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		log: log,
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Watch handles GET /ws/queues/:id. The observer gets the current snapshot
// first and every queue_update after it.
func (h *WSHandler) Watch(c *gin.Context) {
	queueID := c.Param("id")

	snapshot, err := h.service.Snapshot(c.Request.Context(), queueID)
	if err != nil {
		c.AbortWithStatus(statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.log.Debug("WebSocket upgrade failed", zap.String("queue_id", queueID), zap.Error(err))
		return
	}

	obs := newWSObserver(conn)
	defer conn.Close()

	// Registered before the snapshot is read; updates that race it are held
	// until the observer is primed.
	h.registry.Register(queueID, obs)
	defer h.registry.Unregister(queueID, obs)

	ctx := context.WithoutCancel(c.Request.Context())
	if fresh, err := h.service.Snapshot(ctx, queueID); err == nil {
		snapshot = fresh
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := obs.prime(ctx, payload); err != nil {
		return
	}

	h.log.Debug("Observer connected",
		zap.String("queue_id", queueID),
		zap.String("observer_id", obs.ID()),
	)

	done := make(chan struct{})
	go obs.pingLoop(done)
	obs.readLoop()
	close(done)
}

// wsObserver adapts a WebSocket connection to notifier.Observer
type wsObserver struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex

	// Until primed, only the latest update is kept in pending
	primed  bool
	pending []byte
}

func newWSObserver(conn *websocket.Conn) *wsObserver {
	return &wsObserver{id: uuid.New().String(), conn: conn}
}

func (o *wsObserver) ID() string { return o.id }

// Send writes one text frame; concurrent senders are serialized
func (o *wsObserver) Send(ctx context.Context, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.primed {
		o.pending = append(o.pending[:0], payload...)
		return nil
	}
	return o.write(ctx, payload)
}

// prime writes the snapshot, then any update that arrived while it was read
func (o *wsObserver) prime(ctx context.Context, snapshot []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.write(ctx, snapshot); err != nil {
		return err
	}
	if o.pending != nil {
		if err := o.write(ctx, o.pending); err != nil {
			return err
		}
		o.pending = nil
	}
	o.primed = true
	return nil
}

func (o *wsObserver) write(ctx context.Context, payload []byte) error {
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, payload)
}

func (o *wsObserver) ping() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (o *wsObserver) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := o.ping(); err != nil {
				_ = o.conn.Close()
				return
			}
		}
	}
}

// readLoop discards client messages and returns when the connection closes
func (o *wsObserver) readLoop() {
	o.conn.SetReadLimit(wsMaxMessageSize)
	_ = o.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}
