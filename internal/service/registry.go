package service

import (
	"sort"
	"sync"
)

// Peer is a live connection a room member can be reached on.
type Peer interface {
	Send(data []byte) error
}

// Registry maps room ids to the connections of their members in this
// process. A member without a connection is tracked with a nil Peer.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Peer
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]Peer)}
}

// Track adds playerID to roomID without a connection.
func (r *Registry) Track(roomID, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.members(roomID)
	if _, ok := members[playerID]; !ok {
		members[playerID] = nil
	}
}

func (r *Registry) Attach(roomID, playerID string, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members(roomID)[playerID] = peer
}

// Detach removes playerID from roomID. It reports whether the room has no
// members left in this process.
func (r *Registry) Detach(roomID, playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return true
	}
	delete(members, playerID)
	return len(members) == 0
}

// DetachPeer removes playerID from roomID only while peer, or no connection,
// is registered for it. detached is false when another connection of the
// player holds the membership.
func (r *Registry) DetachPeer(roomID, playerID string, peer Peer) (detached, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return true, true
	}
	if cur := members[playerID]; cur != nil && cur != peer {
		return false, len(members) == 0
	}
	delete(members, playerID)
	return true, len(members) == 0
}

// Connection returns the live connection of playerID in roomID.
func (r *Registry) Connection(roomID, playerID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer := r.rooms[roomID][playerID]
	return peer, peer != nil
}

// Peers lists the connected members of roomID other than exclude, sorted.
func (r *Registry) Peers(roomID, exclude string) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms[roomID]))
	for id, peer := range r.rooms[roomID] {
		if id != exclude && peer != nil {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Has(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID]
	return ok
}

func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, roomID)
}

func (r *Registry) Rooms() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// members must be called with mu held for writing.
func (r *Registry) members(roomID string) map[string]Peer {
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Peer)
		r.rooms[roomID] = members
	}
	return members
}
