package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/auth"
	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/events"
)

// private events go only to the identity named in their payload
var privateEvents = map[string]bool{
	events.EventDepositReceived: true,
	events.EventWithdrawalSent:  true,
}

// wsSendBuffer is how many events a socket may lag behind before it is dropped.
const wsSendBuffer = 64

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// wsClient owns its socket's writes: one goroutine drains send.
type wsClient struct {
	conn    wsConn
	send    chan []byte
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newWSClient(conn wsConn) *wsClient {
	cl := &wsClient{
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go cl.writeLoop()
	return cl
}

func (c *wsClient) writeLoop() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

// offer queues data without blocking; false means the client is too slow.
func (c *wsClient) offer(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// push waits for room in the buffer; used for replay, before live traffic piles up.
func (c *wsClient) push(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WSHub streams exchange events to connected identities.
type WSHub struct {
	cfg        *config.Config
	subscriber events.Subscriber
	history    *events.Recorder
	log        *zap.Logger

	mu      sync.RWMutex
	clients map[string][]*wsClient
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, history *events.Recorder, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:        cfg,
		subscriber: subscriber,
		history:    history,
		log:        log,
		clients:    make(map[string][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	if h.subscriber == nil {
		return nil
	}
	return h.subscriber.Subscribe(ctx, events.StreamExchange, h.Dispatch)
}

// Dispatch delivers one event to every client allowed to see it. Sockets that
// fall wsSendBuffer events behind are disconnected.
func (h *WSHub) Dispatch(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	var targets []*wsClient
	h.mu.RLock()
	if privateEvents[event.Type] {
		owner, _ := event.Payload["identity"].(string)
		targets = append(targets, h.clients[owner]...)
	} else {
		for _, clients := range h.clients {
			targets = append(targets, clients...)
		}
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if !cl.offer(data) {
			h.log.Warn("dropping slow websocket client", zap.String("event", event.Type))
			cl.close()
		}
	}
}

func (h *WSHub) register(identity string, cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[identity] = append(h.clients[identity], cl)
}

func (h *WSHub) unregister(identity string, cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.clients[identity]
	for i, c := range list {
		if c == cl {
			h.clients[identity] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(h.clients[identity]) == 0 {
		delete(h.clients, identity)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleWS: /ws?token=<jwt>&since=<seq>. since replays public events the
// api process still remembers.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	identity := claims.Identity
	cl := newWSClient(conn)
	h.register(identity, cl)
	defer func() {
		h.unregister(identity, cl)
		cl.close()
		// the conn is invalid once the handler returns
		<-cl.stopped
	}()

	if since, err := strconv.ParseUint(conn.Query("since"), 10, 64); err == nil && h.history != nil {
		for _, ev := range h.history.Since(since) {
			if privateEvents[ev.Type] {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if !cl.push(data) {
				return
			}
		}
	}

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Connections reports how many sockets are open.
func (h *WSHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, list := range h.clients {
		n += len(list)
	}
	return n
}
