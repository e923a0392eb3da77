// Package realtime keeps the set of live, authenticated websocket
// connections and pushes events to them.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
)

const DefaultHeartbeatInterval = 30 * time.Second

var ErrSlowConsumer = errors.New("realtime: connection send buffer full")

// Conn is one duplex connection owned by a single user.
type Conn interface {
	ID() string
	UserID() string
	Send(ev domain.Event) error
	Ping() error
	Close() error
}

type entry struct {
	conn  Conn
	alive bool // acked since the last ping
}

// Registry maps users to their open connections. One user may hold many.
// Every method is safe for concurrent use. The hooks are called without the
// lock held and must be set before the registry is shared.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	users map[string]map[string]*entry
	conns map[string]*entry

	// Presence is reported by one goroutine at a time. Others queue the user
	// in pending and return; the reporting goroutine drains the queue.
	presenceMu sync.Mutex
	pending    []string
	queued     map[string]struct{}
	reported   map[string]struct{} // users last reported online
	reporting  bool

	// OnPresence fires when a user's first connection registers (online)
	// or the last one goes away (offline). Calls never overlap, and each
	// reports the user's state at the time of the call, so a user's events
	// alternate and the last one matches Online.
	OnPresence func(userID string, online bool)
	// OnChange reports the total connection count after each change.
	OnChange func(total int)
	// OnTerminated fires for every connection dropped by the heartbeat.
	OnTerminated func()
	// OnDeliver is told the type of every event queued on a connection.
	OnDeliver func(eventType domain.EventType)
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		users:    make(map[string]map[string]*entry),
		conns:    make(map[string]*entry),
		queued:   make(map[string]struct{}),
		reported: make(map[string]struct{}),
	}
}

// Register adds c. Registering the same connection twice is a no-op.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	if _, ok := r.conns[c.ID()]; ok {
		r.mu.Unlock()
		return
	}
	e := &entry{conn: c, alive: true}
	r.conns[c.ID()] = e
	set, ok := r.users[c.UserID()]
	if !ok {
		set = make(map[string]*entry)
		r.users[c.UserID()] = set
	}
	set[c.ID()] = e
	first := len(set) == 1
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Debug("connection registered",
		slog.String("conn_id", c.ID()),
		slog.String("user_id", c.UserID()),
	)
	r.changed(total)
	if first {
		r.presenceChanged(c.UserID())
	}
}

// Unregister removes the connection wherever it is. It is idempotent and
// does not close the connection.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	e, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	userID := e.conn.UserID()
	last := false
	if set := r.users[userID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
			last = true
		}
	}
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Debug("connection unregistered",
		slog.String("conn_id", connID),
		slog.String("user_id", userID),
	)
	r.changed(total)
	if last {
		r.presenceChanged(userID)
	}
}

// presenceChanged queues userID and, unless another goroutine is already
// reporting, reports every queued user whose state differs from what was
// last reported. The hook runs without any lock held, so it may call back
// into the registry.
func (r *Registry) presenceChanged(userID string) {
	if r.OnPresence == nil {
		return
	}

	r.presenceMu.Lock()
	if _, ok := r.queued[userID]; !ok {
		r.queued[userID] = struct{}{}
		r.pending = append(r.pending, userID)
	}
	if r.reporting {
		r.presenceMu.Unlock()
		return
	}
	r.reporting = true

	for len(r.pending) > 0 {
		id := r.pending[0]
		r.pending = r.pending[1:]
		delete(r.queued, id)

		online := r.Online(id)
		_, wasOnline := r.reported[id]
		if online == wasOnline {
			continue
		}
		if online {
			r.reported[id] = struct{}{}
		} else {
			delete(r.reported, id)
		}

		r.presenceMu.Unlock()
		r.OnPresence(id, online)
		r.presenceMu.Lock()
	}
	r.reporting = false
	r.presenceMu.Unlock()
}

func (r *Registry) changed(total int) {
	if r.OnChange != nil {
		r.OnChange(total)
	}
}

// SendTo delivers ev to every open connection of userID and returns how many
// accepted it. Connections that fail are dropped. Offline users get nothing.
func (r *Registry) SendTo(userID string, ev domain.Event) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.users[userID]))
	for _, e := range r.users[userID] {
		targets = append(targets, e.conn)
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			r.logger.Info("dropping connection after failed send",
				slog.String("conn_id", c.ID()),
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
			r.drop(c)
			continue
		}
		sent++
	}
	if sent > 0 && r.OnDeliver != nil {
		for range sent {
			r.OnDeliver(ev.Type)
		}
	}
	return sent
}

// Ack records a liveness acknowledgement (pong or client ping).
func (r *Registry) Ack(connID string) {
	r.mu.Lock()
	if e, ok := r.conns[connID]; ok {
		e.alive = true
	}
	r.mu.Unlock()
}

// Online reports whether userID has at least one open connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Sweep terminates every connection that has not acked since the previous
// sweep and pings the rest. It returns the number terminated.
func (r *Registry) Sweep() int {
	var dead, live []Conn

	r.mu.Lock()
	for _, e := range r.conns {
		if !e.alive {
			dead = append(dead, e.conn)
			continue
		}
		e.alive = false
		live = append(live, e.conn)
	}
	r.mu.Unlock()

	for _, c := range dead {
		r.logger.Info("terminating unresponsive connection",
			slog.String("conn_id", c.ID()),
			slog.String("user_id", c.UserID()),
		)
		r.drop(c)
		if r.OnTerminated != nil {
			r.OnTerminated()
		}
	}
	for _, c := range live {
		if err := c.Ping(); err != nil {
			r.drop(c)
		}
	}
	return len(dead)
}

func (r *Registry) drop(c Conn) {
	r.Unregister(c.ID())
	_ = c.Close()
}

// Run sweeps every interval until ctx is done, then closes all connections.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			r.CloseAll()
			return
		}
	}
}

// CloseAll drops every connection.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		all = append(all, e.conn)
	}
	r.mu.RUnlock()

	for _, c := range all {
		r.drop(c)
	}
}
