// Package realtime pushes queue snapshots to connected display clients.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"clinic-queue/internal/store"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	DefaultDebounce = 50 * time.Millisecond
	staleAfter      = 90 * time.Second
	sweepInterval   = 30 * time.Second
	writeTimeout    = 3 * time.Second
	maxWorkers      = 20
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Builder renders the current message for every client.
type Builder func(ctx context.Context) ([]byte, error)

type client struct {
	id       string
	conn     Conn
	writeMux sync.Mutex
	closed   bool
	lastPong time.Time
}

type Hub struct {
	build Builder
	delay time.Duration

	mu      sync.RWMutex
	clients map[string]*client

	timerMu sync.Mutex
	timer   *time.Timer

	cacheMu sync.RWMutex
	last    []byte
}

func NewHub(build Builder, delay time.Duration) *Hub {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Hub{
		build:   build,
		delay:   delay,
		clients: make(map[string]*client),
	}
}

// Register adds a connection and returns its client id.
func (h *Hub) Register(conn Conn) string {
	c := &client{
		id:       "client-" + uuid.NewString(),
		conn:     conn,
		lastPong: time.Now(),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[realtime] %s registered, total: %d", c.id, total)
	return c.id
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.writeMux.Lock()
	c.closed = true
	c.writeMux.Unlock()
	_ = c.conn.Close()
	log.Printf("[realtime] %s unregistered, total: %d", id, total)
}

// Touch records a pong from the client.
func (h *Hub) Touch(id string) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.writeMux.Lock()
	c.lastPong = time.Now()
	c.writeMux.Unlock()
}

// Ping writes a ping frame to one client under its write lock. It returns
// false once the client is gone or the write failed.
func (h *Hub) Ping(id string) bool {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	c.writeMux.Lock()
	if c.closed {
		c.writeMux.Unlock()
		return false
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	c.writeMux.Unlock()

	if err != nil {
		log.Printf("[realtime] %s ping error: %v", id, err)
		return false
	}
	return true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendInitial writes the last broadcast to one client, building a fresh
// message when nothing was broadcast yet.
func (h *Hub) SendInitial(ctx context.Context, id string) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	h.cacheMu.RLock()
	message := h.last
	h.cacheMu.RUnlock()
	if len(message) == 0 {
		built, err := h.build(ctx)
		if err != nil {
			log.Printf("[realtime] initial message for %s: %v", id, err)
			return
		}
		message = built
	}
	h.write(c, message)
}

// Notify schedules a broadcast. Calls within the debounce window collapse
// into one.
func (h *Hub) Notify() {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()

	if h.timer != nil {
		h.timer.Reset(h.delay)
		return
	}
	h.timer = time.AfterFunc(h.delay, func() {
		h.timerMu.Lock()
		h.timer = nil
		h.timerMu.Unlock()

		h.Broadcast(context.Background())
	})
}

// Broadcast builds the message once and writes it to every client.
func (h *Hub) Broadcast(ctx context.Context) {
	message, err := h.build(ctx)
	if err != nil {
		log.Printf("[realtime] build message: %v", err)
		return
	}

	h.cacheMu.Lock()
	h.last = message
	h.cacheMu.Unlock()

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		sem <- struct{}{}
		go func(c *client) {
			defer wg.Done()
			defer func() { <-sem }()
			h.write(c, message)
		}(c)
	}
	wg.Wait()
}

// Run relays store changes into debounced broadcasts and drops clients that
// stopped answering pings. It returns when ctx is done or changes closes.
func (h *Hub) Run(ctx context.Context, changes <-chan store.Change) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			h.Notify()
		case <-ticker.C:
			h.sweep(time.Now())
		}
	}
}

func (h *Hub) sweep(now time.Time) {
	var stale []string
	h.mu.RLock()
	for id, c := range h.clients {
		c.writeMux.Lock()
		if now.Sub(c.lastPong) > staleAfter {
			stale = append(stale, id)
		}
		c.writeMux.Unlock()
	}
	h.mu.RUnlock()

	for _, id := range stale {
		log.Printf("[realtime] %s dead (no pong)", id)
		h.Unregister(id)
	}
}

func (h *Hub) write(c *client, message []byte) {
	c.writeMux.Lock()
	if c.closed {
		c.writeMux.Unlock()
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteMessage(websocket.TextMessage, message)
	c.writeMux.Unlock()

	if err != nil {
		log.Printf("[realtime] %s write error: %v", c.id, err)
		h.Unregister(c.id)
	}
}
