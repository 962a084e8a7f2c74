package service

import (
	"sync"

	"github.com/google/uuid"
)

// TokenCarrier stores the caller's session token wherever the host keeps
// per-connection state, typically a cookie.
type TokenCarrier interface {
	Get() *uuid.UUID
	Set(token uuid.UUID)
	Clear()
}

// MemoryCarrier is a TokenCarrier held in memory. It is safe for concurrent
// use.
type MemoryCarrier struct {
	mu    sync.Mutex
	token *uuid.UUID
}

// NewMemoryCarrier returns a carrier holding token, which may be nil.
func NewMemoryCarrier(token *uuid.UUID) *MemoryCarrier {
	c := &MemoryCarrier{}
	if token != nil {
		c.Set(*token)
	}
	return c
}

func (c *MemoryCarrier) Get() *uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

func (c *MemoryCarrier) Set(token uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = &token
}

func (c *MemoryCarrier) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}
