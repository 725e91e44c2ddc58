// Package memory is the in-process PresenceCache used in -dev mode, where no
// Redis is available.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/conversa/internal/model"
)

const presenceTTL = 24 * time.Hour

type entry struct {
	status   model.PresenceStatus
	lastSeen time.Time
	exp      time.Time
}

type Client struct {
	mu       sync.RWMutex
	presence map[string]entry
}

func New() *Client {
	return &Client{presence: make(map[string]entry)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetStatus(ctx context.Context, userID string, status model.PresenceStatus, lastSeen time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence[userID] = entry{status: status, lastSeen: lastSeen, exp: time.Now().Add(presenceTTL)}
	return nil
}

func (c *Client) GetStatus(ctx context.Context, userID string) (model.PresenceStatus, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.presence[userID]
	if !ok || time.Now().After(e.exp) {
		return model.PresenceOffline, time.Time{}, nil
	}
	return e.status, e.lastSeen, nil
}

func (c *Client) Touch(ctx context.Context, userID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.presence[userID]
	if !ok {
		e = entry{status: model.PresenceOffline}
	}
	e.lastSeen = at
	e.exp = time.Now().Add(presenceTTL)
	c.presence[userID] = e
	return nil
}
