package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// PresenceObserver is notified when a user's first session connects or last
// session disconnects. Transitions are not persisted.
type PresenceObserver interface {
	PresenceChanged(userID string, online bool)
	Name() string
}

// Registry maps a user identity to its live sessions. It is the only shared
// mutable structure in the subsystem; every mutation goes through its lock,
// so concurrent register/unregister calls for the same user cannot lose
// updates. A user may hold many sessions at once (multi-device).
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]map[*Client]bool
	observers map[string]PresenceObserver
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]map[*Client]bool),
		observers: make(map[string]PresenceObserver),
	}
}

func (r *Registry) Subscribe(observer PresenceObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[observer.Name()] = observer
}

func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	wasOnline := len(r.sessions[client.userID]) > 0
	if r.sessions[client.userID] == nil {
		r.sessions[client.userID] = make(map[*Client]bool)
	}
	r.sessions[client.userID][client] = true
	total := len(r.sessions[client.userID])
	r.mu.Unlock()

	log.Printf("user %s connected (%d active sessions)", client.userID, total)
	if !wasOnline {
		r.notifyPresence(client.userID, true)
	}
}

func (r *Registry) Unregister(client *Client) {
	r.mu.Lock()
	clients, ok := r.sessions[client.userID]
	if ok {
		if _, registered := clients[client]; registered {
			delete(clients, client)
			client.closeSend()
		}
		if len(clients) == 0 {
			delete(r.sessions, client.userID)
		}
	}
	online := len(r.sessions[client.userID]) > 0
	r.mu.Unlock()

	if ok && !online {
		r.notifyPresence(client.userID, false)
	}
}

// SessionsFor returns a snapshot of the user's live sessions, possibly empty.
func (r *Registry) SessionsFor(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.sessions[userID]))
	for client := range r.sessions[userID] {
		clients = append(clients, client)
	}
	return clients
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// OnlineUsers returns a snapshot of every user with at least one session.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	return users
}

// Push fans a frame out to every live session of a user, except the excluded
// one (used to keep acks and deliveries apart on the submitting connection).
// A session whose send buffer is full is closed; it recovers via backfill on
// reconnect.
func (r *Registry) Push(userID string, frame OutboundFrame, exclude *Client) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("failed to marshal %s frame for %s: %v", frame.Type, userID, err)
		return
	}

	for _, client := range r.SessionsFor(userID) {
		if client == exclude {
			continue
		}
		if !client.enqueue(payload) {
			log.Printf("send buffer full for a session of %s, closing it", userID)
			client.closeSend()
		}
	}
}

func (r *Registry) notifyPresence(userID string, online bool) {
	r.mu.RLock()
	observers := make([]PresenceObserver, 0, len(r.observers))
	for _, obs := range r.observers {
		observers = append(observers, obs)
	}
	r.mu.RUnlock()

	for _, observer := range observers {
		go observer.PresenceChanged(userID, online)
	}
}
