// Package notify pushes live alerts (sessions about to end) to the staff
// screens of a branch over websockets.
package notify

import (
    "encoding/json"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"
)

const (
    sendBuffer   = 16
    pongWait     = 60 * time.Second
    pingInterval = 30 * time.Second
)

// Notification is one message on the feed.
type Notification struct {
    Type         string    `json:"type"`
    BranchID     uint64    `json:"branch_id"`
    SessionID    uint64    `json:"session_id"`
    DeviceID     uint64    `json:"device_id"`
    DeviceName   string    `json:"device_name,omitempty"`
    CustomerName string    `json:"customer_name"`
    SessionEnd   time.Time `json:"session_end"`
    MinutesLeft  int       `json:"minutes_left"`
    Overdue      bool      `json:"overdue"`
}

// TypeEndingSoon marks a session inside the lead window or past its end.
const TypeEndingSoon = "session.ending_soon"

// Hub tracks the open websocket connections per branch.
type Hub struct {
    mu           sync.RWMutex
    clients      map[uint64]map[*client]struct{}
    logger       *zap.Logger
    writeTimeout time.Duration
    upgrader     websocket.Upgrader
}

type client struct {
    userID uint64
    ws     *websocket.Conn
    send   chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
    return &Hub{
        clients:      make(map[uint64]map[*client]struct{}),
        logger:       logger.Named("notify"),
        writeTimeout: 10 * time.Second,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 1024,
            CheckOrigin:     func(r *http.Request) bool { return true },
        },
    }
}

// Clients returns the number of connections subscribed to a branch.
func (h *Hub) Clients(branchID uint64) int {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return len(h.clients[branchID])
}

// ServeWS upgrades the request and blocks until the peer goes away.  The
// caller has already authenticated the user and resolved the branch.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, branchID, userID uint64) error {
    ws, err := h.upgrader.Upgrade(w, r, nil)
    if err != nil {
        h.logger.Warn("websocket upgrade failed", zap.Error(err))
        return err
    }
    c := &client{userID: userID, ws: ws, send: make(chan []byte, sendBuffer)}
    h.add(branchID, c)
    h.logger.Info("subscriber connected", zap.Uint64("branch_id", branchID), zap.Uint64("user_id", userID))

    done := make(chan struct{})
    go h.writePump(c, done)
    h.readPump(c)

    h.remove(branchID, c)
    close(done)
    _ = ws.Close()
    h.logger.Info("subscriber disconnected", zap.Uint64("branch_id", branchID), zap.Uint64("user_id", userID))
    return nil
}

// Broadcast queues n for every subscriber of its branch and returns how many
// received it.  Slow subscribers whose buffer is full miss the message.
func (h *Hub) Broadcast(n Notification) int {
    body, err := json.Marshal(n)
    if err != nil {
        h.logger.Error("marshal notification", zap.Error(err))
        return 0
    }
    h.mu.RLock()
    defer h.mu.RUnlock()
    sent := 0
    for c := range h.clients[n.BranchID] {
        select {
        case c.send <- body:
            sent++
        default:
            h.logger.Warn("dropping notification, buffer full", zap.Uint64("user_id", c.userID))
        }
    }
    return sent
}

func (h *Hub) add(branchID uint64, c *client) {
    h.mu.Lock()
    defer h.mu.Unlock()
    set, ok := h.clients[branchID]
    if !ok {
        set = make(map[*client]struct{})
        h.clients[branchID] = set
    }
    set[c] = struct{}{}
}

func (h *Hub) remove(branchID uint64, c *client) {
    h.mu.Lock()
    defer h.mu.Unlock()
    delete(h.clients[branchID], c)
    if len(h.clients[branchID]) == 0 {
        delete(h.clients, branchID)
    }
}

// readPump only drains control frames; the feed is one-way.
func (h *Hub) readPump(c *client) {
    c.ws.SetReadLimit(4096)
    _ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
    c.ws.SetPongHandler(func(string) error {
        return c.ws.SetReadDeadline(time.Now().Add(pongWait))
    })
    for {
        if _, _, err := c.ws.ReadMessage(); err != nil {
            return
        }
    }
}

func (h *Hub) writePump(c *client, done <-chan struct{}) {
    ticker := time.NewTicker(pingInterval)
    defer ticker.Stop()
    for {
        select {
        case <-done:
            return
        case msg := <-c.send:
            if err := h.write(c, websocket.TextMessage, msg); err != nil {
                _ = c.ws.Close()
                return
            }
        case <-ticker.C:
            if err := h.write(c, websocket.PingMessage, nil); err != nil {
                _ = c.ws.Close()
                return
            }
        }
    }
}

func (h *Hub) write(c *client, messageType int, data []byte) error {
    _ = c.ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
    return c.ws.WriteMessage(messageType, data)
}
