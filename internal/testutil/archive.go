package testutil

import (
	"sync"
	"time"

	"trueinterview/pkg/types"
)

// Archive records lifecycle calls in memory
type Archive struct {
	mu      sync.Mutex
	created []string
	started map[string]*types.ClientInfo
	closed  map[string]string
	chats   map[string]int
}

func NewArchive() *Archive {
	return &Archive{
		started: make(map[string]*types.ClientInfo),
		closed:  make(map[string]string),
		chats:   make(map[string]int),
	}
}

func (a *Archive) RecordRoomCreated(roomID string, createdAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, roomID)
}

func (a *Archive) RecordRoomStarted(roomID string, startedAt time.Time, info *types.ClientInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started[roomID] = info
}

func (a *Archive) RecordRoomClosed(roomID string, reason string, endedAt time.Time, chatCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed[roomID] = reason
	a.chats[roomID] = chatCount
}

// Created returns the room ids recorded as created
func (a *Archive) Created() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.created...)
}

// Started reports whether roomID was recorded as started
func (a *Archive) Started(roomID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.started[roomID]
	return ok
}

// CloseReason returns the recorded close reason for roomID
func (a *Archive) CloseReason(roomID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reason, ok := a.closed[roomID]
	return reason, ok
}

// ChatCount returns the chat count recorded at close
func (a *Archive) ChatCount(roomID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chats[roomID]
}
