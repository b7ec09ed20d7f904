package remote

import (
	"context"
	"sync"
)

// MemoryClient keeps records in process. It has the same version semantics
// as a real store and lets tests inject failures.
type MemoryClient struct {
	mu      sync.Mutex
	records map[string]*Record
	saves   int

	// FailFetch and FailSave, when set, are consulted before each call; a
	// non-nil return fails the call with that error.
	FailFetch func(name string) error
	FailSave  func(rec *Record) error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{records: make(map[string]*Record)}
}

func (c *MemoryClient) Fetch(ctx context.Context, name string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailFetch != nil {
		if err := c.FailFetch(name); err != nil {
			return nil, err
		}
	}
	rec, ok := c.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (c *MemoryClient) Save(ctx context.Context, rec *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	if c.FailSave != nil {
		if err := c.FailSave(rec); err != nil {
			return nil, err
		}
	}

	cur, exists := c.records[rec.Name]
	switch {
	case exists && cur.Version != rec.Version:
		return nil, &ConflictError{Name: rec.Name, Server: cur.clone()}
	case !exists && rec.Version != 0:
		return nil, &ConflictError{Name: rec.Name}
	}

	saved := rec.clone()
	saved.Version = rec.Version + 1
	c.records[rec.Name] = saved
	return saved.clone(), nil
}

// Put stores rec as is, bumping its version. Tests use it to simulate a
// write from another device.
func (c *MemoryClient) Put(rec *Record) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	saved := rec.clone()
	if cur, ok := c.records[rec.Name]; ok {
		saved.Version = cur.Version + 1
	} else {
		saved.Version = 1
	}
	c.records[rec.Name] = saved
	return saved.clone()
}

// Saves returns how many Save calls the client has seen.
func (c *MemoryClient) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}
