package hub

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
)

// Handle is a live, writable connection owned by the registry.
type Handle interface {
	// Send queues payload for the peer. It must not block; a full or
	// closed connection reports an error.
	Send(payload []byte) error
	Open() bool
	Close()
}

// Registry maps each authenticated user to their single active connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Handle
	log   *logger.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		conns: make(map[string]Handle),
		log:   log.With("component", "registry"),
	}
}

// Add binds userID to h, closing whatever connection the user had before.
func (r *Registry) Add(userID string, h Handle) {
	r.mu.Lock()
	prev, had := r.conns[userID]
	r.conns[userID] = h
	total := len(r.conns)
	r.mu.Unlock()

	if had && prev != h {
		r.log.Info("duplicate connection, closing previous", "userId", userID)
		prev.Close()
	}
	r.log.Debug("user online", "userId", userID, "online", total)
}

// Remove drops userID's mapping. Safe to call for unknown users.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	_, had := r.conns[userID]
	delete(r.conns, userID)
	r.mu.Unlock()
	if had {
		r.log.Debug("user offline", "userId", userID)
	}
}

// Release drops userID's mapping only while it still points at h, so a
// replaced connection tearing down cannot unbind its successor.
func (r *Registry) Release(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[userID]; ok && cur == h {
		delete(r.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether userID has an open connection, evicting a stale one.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	h, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if !h.Open() {
		r.Release(userID, h)
		return false
	}
	return true
}

// SendTo writes payload to userID's connection. It returns false when the
// user is offline or the write failed; failing connections are evicted.
func (r *Registry) SendTo(userID string, payload []byte) bool {
	r.mu.RLock()
	h, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if !h.Open() {
		r.Release(userID, h)
		return false
	}
	if err := h.Send(payload); err != nil {
		r.log.Warn("send failed, evicting connection", "userId", userID, "error", err)
		if r.Release(userID, h) {
			h.Close()
		}
		return false
	}
	return true
}

// SendJSON marshals v and sends it to userID.
func (r *Registry) SendJSON(userID string, v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		r.log.Error("marshal outbound envelope", "userId", userID, "error", err)
		return false
	}
	return r.SendTo(userID, payload)
}

// Count is the number of registered users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// OnlineUsers lists registered user ids, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.conns))
	for id := range r.conns {
		users = append(users, id)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

// Sweep evicts every connection that is no longer open and returns how many
// were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	var stale []string
	for id, h := range r.conns {
		if !h.Open() {
			stale = append(stale, id)
			delete(r.conns, id)
		}
	}
	r.mu.Unlock()
	if len(stale) > 0 {
		r.log.Info("swept disconnected users", "count", len(stale), "userIds", stale)
	}
	return len(stale)
}

// Diagnostics is a snapshot of the registry for status endpoints.
type Diagnostics struct {
	OnlineCount int      `json:"onlineCount"`
	OnlineUsers []string `json:"onlineUsers"`
}

// Diagnostics returns the current registry snapshot.
func (r *Registry) Diagnostics() Diagnostics {
	users := r.OnlineUsers()
	return Diagnostics{OnlineCount: len(users), OnlineUsers: users}
}

// Kick removes userID and closes their connection.
func (r *Registry) Kick(userID string) bool {
	r.mu.Lock()
	h, ok := r.conns[userID]
	delete(r.conns, userID)
	r.mu.Unlock()
	if ok {
		h.Close()
	}
	return ok
}
