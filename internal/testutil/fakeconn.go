// Package testutil holds in-memory stand-ins for the transport layer.
package testutil

import (
	"encoding/json"
	"errors"
	"sync"

	"trueinterview/pkg/interfaces"
)

// ErrClosed is returned by WriteJSON after Close
var ErrClosed = errors.New("fake connection closed")

// Recorded is one envelope a fake connection received
type Recorded struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Decode unmarshals the envelope data into v
func (r Recorded) Decode(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

// Conn records every message written to it.
type Conn struct {
	id string

	mu     sync.Mutex
	events []Recorded
	closed bool
}

// NewConn creates a recording connection with the given id
func NewConn(id string) *Conn {
	return &Conn{id: id}
}

func (c *Conn) ID() string { return c.id }

// WriteJSON round-trips v through JSON so tests see exactly what a client would
func (c *Conn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var rec Recorded
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	c.events = append(c.events, rec)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns a copy of everything received so far
func (c *Conn) Events() []Recorded {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Recorded, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the event types received, in order
func (c *Conn) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

// Last returns the most recent event of the given type
func (c *Conn) Last(eventType string) (Recorded, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == eventType {
			return c.events[i], true
		}
	}
	return Recorded{}, false
}

// Count returns how many events of the given type were received
func (c *Conn) Count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// Reset forgets everything received so far
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// Registry is a map-backed interfaces.ConnectionRegistry
type Registry struct {
	mu    sync.RWMutex
	conns map[string]interfaces.Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]interfaces.Connection)}
}

// Add registers conns and returns the registry for chaining
func (r *Registry) Add(conns ...interfaces.Connection) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range conns {
		r.conns[c.ID()] = c
	}
	return r
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

func (r *Registry) Lookup(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}
