// Package server tracks live clients in a capacity-bounded registry that
// serializes admission, removal and snapshots behind a single lock.
package server

import (
	"errors"
	"net"
	"sort"
	"sync"
)

// ErrRegistryFull is returned by Admit when every slot is taken.
var ErrRegistryFull = errors.New("server: registry is full")

// Registry holds the set of live clients, bounded by a fixed capacity.
// Identities are handed out from a counter owned by the registry so that
// capacity check, identity assignment and insertion happen under one lock.
type Registry struct {
	mu        sync.RWMutex
	clients   map[int]*Client
	capacity  int
	nextID    int
	rateLimit RateLimitConfig
}

// NewRegistry creates an empty registry with the given capacity. Identities
// start at firstID.
func NewRegistry(capacity, firstID int, rateLimit RateLimitConfig) *Registry {
	if capacity <= 0 {
		capacity = defaultMaxClients
	}
	if firstID <= 0 {
		firstID = defaultFirstIdentity
	}
	return &Registry{
		clients:   make(map[int]*Client, capacity),
		capacity:  capacity,
		nextID:    firstID,
		rateLimit: rateLimit,
	}
}

// Admit reserves a slot for conn and returns its client record.
// It fails with ErrRegistryFull, leaving the identity counter untouched,
// when the registry already holds capacity clients.
func (r *Registry) Admit(conn net.Conn) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.capacity {
		return nil, ErrRegistryFull
	}

	client := NewClient(r.nextID, conn, r.rateLimit)
	r.nextID++
	r.clients[client.id] = client
	return client, nil
}

// Add inserts a client built elsewhere. It reports false, dropping the
// client, when the registry is full or the identity is already live.
func (r *Registry) Add(client *Client) bool {
	if client == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.capacity {
		return false
	}
	if _, exists := r.clients[client.id]; exists {
		return false
	}
	r.clients[client.id] = client
	if client.id >= r.nextID {
		r.nextID = client.id + 1
	}
	return true
}

// Remove deletes the client with the given identity. Removing an unknown
// identity is a no-op, so cleanup may run more than once.
func (r *Registry) Remove(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// Get returns the live client with the given identity.
func (r *Registry) Get(id int) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Count returns the number of live clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Capacity returns the maximum number of live clients.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Clients returns a snapshot of live clients ordered by identity.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// CloseAll closes every live connection and returns how many were closed.
// Entries stay registered until their handlers run cleanup.
func (r *Registry) CloseAll() int {
	clients := r.Clients()
	for _, c := range clients {
		_ = c.Close()
	}
	return len(clients)
}
