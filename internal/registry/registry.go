package registry

import (
	"sync"
	"time"

	"salonhub/internal/models"
)

// Sender is the minimal interface the registry needs to push an event at a
// live transport connection. Send must not block: implementations enqueue
// into the connection's outbound buffer and fail fast when it is full, so
// the registry never does network I/O while holding its lock.
type Sender interface {
	ID() string
	Send(ev *models.NotificationEvent) error
	Close() error
}

type connection struct {
	sender      Sender
	userID      string
	connectedAt time.Time
	lastSeenAt  time.Time
}

// Registry maps user identities to their live connections. A user may hold
// several connections at once (multi-device); events fan out to all of them.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*connection            // connectionID -> connection
	users map[string]map[string]*connection // userID -> connectionID -> connection
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]*connection),
		users: make(map[string]map[string]*connection),
	}
}

// Register adds a connection for userID. Existing connections of the same
// user are kept; registering never displaces another device.
func (r *Registry) Register(userID string, s Sender) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	c := &connection{
		sender:      s,
		userID:      userID,
		connectedAt: now,
		lastSeenAt:  now,
	}

	r.conns[s.ID()] = c

	set := r.users[userID]
	if set == nil {
		set = make(map[string]*connection)
		r.users[userID] = set
	}
	set[s.ID()] = c
}

// Unregister removes a connection. Removing an unknown connectionID is a
// no-op.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connectionID]
	if !ok {
		return
	}

	delete(r.conns, connectionID)

	set := r.users[c.userID]
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.users, c.userID)
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.users[userID]) > 0
}

// Connections reports how many live connections userID currently has.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.users[userID])
}

// Send fans ev out to every live connection of userID and returns the number
// of connections the event was handed to. Zero means the user is offline (or
// every send buffer was full); the caller decides whether to queue. Senders
// are snapshotted under the lock and enqueued outside it.
func (r *Registry) Send(userID string, ev *models.NotificationEvent) int {
	r.mu.Lock()
	senders := make([]Sender, 0, len(r.users[userID]))
	for _, c := range r.users[userID] {
		senders = append(senders, c.sender)
	}
	r.mu.Unlock()

	delivered := 0
	for _, s := range senders {
		if err := s.Send(ev); err == nil {
			delivered++
		}
	}

	return delivered
}

// Touch records activity on a connection for idle tracking.
func (r *Registry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connectionID]; ok {
		c.lastSeenAt = time.Now()
	}
}

// IdleSenders returns the connections with no recorded activity within the
// given window. Callers close them outside the registry lock; the transport
// teardown then unregisters as usual.
func (r *Registry) IdleSenders(window time.Duration) []Sender {
	cutoff := time.Now().Add(-window)

	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []Sender
	for _, c := range r.conns {
		if c.lastSeenAt.Before(cutoff) {
			idle = append(idle, c.sender)
		}
	}

	return idle
}
