package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const maxIDAttempts = 16

// Store is the authoritative in-memory map of room id to Room.
// ARCHITECTURAL DISCOVERY: the store map and the connection index are the
// only process-wide mutable state; everything else lives inside a Room.
// Lock order is Room then Store. The store lock is never held while
// acquiring a Room lock.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	connIndex map[string]string // connID -> roomID

	now      func() time.Time
	newID    func() string
	newToken func() string
}

// NewStore creates an empty room store
func NewStore() *Store {
	return &Store{
		rooms:     make(map[string]*Room),
		connIndex: make(map[string]string),
		now:       time.Now,
		newID:     GenerateRoomID,
		newToken:  GenerateSessionSecret,
	}
}

// Create adds a room. An empty id asks the store to generate one; a given
// id that already exists fails with ErrDuplicateRoom.
func (s *Store) Create(id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, exists := s.rooms[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoom, id)
		}
		return s.insertLocked(id), nil
	}

	// FUNCTIONAL DISCOVERY: short ids collide rarely but not never, retry
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := s.newID()
		if _, exists := s.rooms[candidate]; !exists {
			return s.insertLocked(candidate), nil
		}
	}
	return nil, ErrIDExhausted
}

func (s *Store) insertLocked(id string) *Room {
	r := newRoom(id, s.newToken(), s.now())
	s.rooms[id] = r
	logrus.WithField("room_id", id).Debug("Room created")
	return r
}

// Get returns the room for id
func (s *Store) Get(id string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rooms[id]
	return r, exists
}

// Delete removes a room and every index entry pointing at it. Idempotent.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
}

// DeleteIf removes id only while it still maps to r, so a stale caller can
// never remove a newer room that reused the id.
func (s *Store) DeleteIf(id string, r *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.rooms[id]; !exists || current != r {
		return false
	}
	s.deleteLocked(id)
	return true
}

func (s *Store) deleteLocked(id string) {
	if _, exists := s.rooms[id]; !exists {
		return
	}
	delete(s.rooms, id)
	for connID, roomID := range s.connIndex {
		if roomID == id {
			delete(s.connIndex, connID)
		}
	}
	logrus.WithField("room_id", id).Debug("Room deleted")
}

// ForEach calls fn for every room present when the sweep began.
// fn runs without the store lock held and may lock the room.
func (s *Store) ForEach(fn func(*Room)) {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	for _, r := range rooms {
		fn(r)
	}
}

// Len returns the number of live rooms
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Bind records that connID participates in roomID
func (s *Store) Bind(connID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connIndex[connID] = roomID
}

// Unbind drops connID from the index if it still points at roomID
func (s *Store) Unbind(connID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, exists := s.connIndex[connID]; exists && current == roomID {
		delete(s.connIndex, connID)
	}
}

// Lookup returns the room a connection participates in with O(1) cost
func (s *Store) Lookup(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, exists := s.connIndex[connID]
	return roomID, exists
}

// GetStats returns store statistics for monitoring
func (s *Store) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"active_rooms":      len(s.rooms),
		"bound_connections": len(s.connIndex),
	}
}
