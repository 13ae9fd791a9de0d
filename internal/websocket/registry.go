package chatws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Registry maps live connections to the users they authenticated as and
// evicts connections that stop answering pings.
type Registry struct {
	log *slog.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}
	users map[int64]map[*Conn]struct{}
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: make(map[*Conn]struct{}),
		users: make(map[int64]map[*Conn]struct{}),
	}
}

// Register adds an unauthenticated connection that counts as alive.
func (r *Registry) Register(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn.userID = 0
	conn.state = aliveConfirmed
	r.conns[conn] = struct{}{}
}

// Authenticate binds userID to conn. Several connections may share a user;
// re-authenticating a connection moves it to the new user.
func (r *Registry) Authenticate(conn *Conn, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; !ok {
		return false
	}
	if conn.userID != 0 {
		r.unbindLocked(conn)
	}

	conn.userID = userID
	set, ok := r.users[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.users[userID] = set
	}
	set[conn] = struct{}{}
	return true
}

// UserID returns the identity bound to conn, or 0 when it has not
// authenticated.
func (r *Registry) UserID(conn *Conn) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return conn.userID
}

func (r *Registry) MarkAlive(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; ok {
		conn.state = aliveConfirmed
	}
}

// Sweep evicts every connection still awaiting a pong from the previous
// sweep and pings the rest.
func (r *Registry) Sweep() {
	var dead, probe []*Conn

	r.mu.Lock()
	for conn := range r.conns {
		if conn.state == aliveAwaitingPong {
			r.log.Info("Evicting unresponsive connection", "conn_id", conn.ID(), "user_id", conn.userID)
			r.removeLocked(conn)
			dead = append(dead, conn)
			continue
		}
		conn.state = aliveAwaitingPong
		probe = append(probe, conn)
	}
	r.mu.Unlock()

	// Closing re-enters Deregister through the read loop, so no lock here.
	for _, conn := range dead {
		_ = conn.Close()
	}
	for _, conn := range probe {
		if err := conn.ping(); err != nil {
			r.log.Debug("Ping failed", "conn_id", conn.ID(), "err", err)
		}
	}
}

// Deregister removes conn. Unknown connections are ignored.
func (r *Registry) Deregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn)
}

// ConnectionsFor returns the live connections bound to userID.
func (r *Registry) ConnectionsFor(userID int64) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return nil
	}
	return lo.Keys(set)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close closes and forgets every connection.
func (r *Registry) Close() {
	r.mu.Lock()
	all := lo.Keys(r.conns)
	r.conns = make(map[*Conn]struct{})
	r.users = make(map[int64]map[*Conn]struct{})
	r.mu.Unlock()

	for _, conn := range all {
		_ = conn.Close()
	}
}

func (r *Registry) removeLocked(conn *Conn) {
	if _, ok := r.conns[conn]; !ok {
		return
	}
	delete(r.conns, conn)
	r.unbindLocked(conn)
}

func (r *Registry) unbindLocked(conn *Conn) {
	set, ok := r.users[conn.userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.users, conn.userID)
	}
}
