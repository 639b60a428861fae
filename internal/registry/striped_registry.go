package registry

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// StripedRegistry is a lock-striped in-memory Registry. Connection IDs are
// hashed onto independently locked shards so lifecycle callbacks for
// different connections never contend, and racing calls for the same
// connection always land on the same lock.
type StripedRegistry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu sync.RWMutex
	m  map[string]string // connID -> roomID ("" until assigned)
}

// NewStripedRegistry creates an empty registry.
func NewStripedRegistry() *StripedRegistry {
	r := &StripedRegistry{}
	for i := range r.shards {
		r.shards[i].m = make(map[string]string)
	}
	return r
}

func (r *StripedRegistry) shard(connID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(connID))
	return &r.shards[h.Sum32()%shardCount]
}

// Connect registers a connection with no room assigned.
func (r *StripedRegistry) Connect(connID string) {
	s := r.shard(connID)
	s.mu.Lock()
	s.m[connID] = ""
	s.mu.Unlock()
}

// Assign records the connection's current room subscription.
func (r *StripedRegistry) Assign(connID, roomID string) {
	s := r.shard(connID)
	s.mu.Lock()
	s.m[connID] = roomID
	s.mu.Unlock()
}

// Get returns the room currently subscribed by the connection.
func (r *StripedRegistry) Get(connID string) (string, bool) {
	s := r.shard(connID)
	s.mu.RLock()
	roomID, ok := s.m[connID]
	s.mu.RUnlock()
	if !ok || roomID == "" {
		return "", false
	}
	return roomID, true
}

// Remove drops the connection entry. Safe to call repeatedly.
func (r *StripedRegistry) Remove(connID string) {
	s := r.shard(connID)
	s.mu.Lock()
	delete(s.m, connID)
	s.mu.Unlock()
}

// Len returns the number of registered connections.
func (r *StripedRegistry) Len() int {
	n := 0
	for i := range r.shards {
		r.shards[i].mu.RLock()
		n += len(r.shards[i].m)
		r.shards[i].mu.RUnlock()
	}
	return n
}
