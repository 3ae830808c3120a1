package loccache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

// Memory is the cache used when no Redis address is configured.
type Memory struct {
	now func() time.Time

	mu        sync.RWMutex
	locations map[uuid.UUID]memoryEntry
}

type memoryEntry struct {
	loc     models.ProfessionalLocation
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		locations: make(map[uuid.UUID]memoryEntry),
	}
}

func (c *Memory) WithClock(now func() time.Time) *Memory {
	c.now = now
	return c
}

func (c *Memory) SetProfessionalLocation(_ context.Context, loc models.ProfessionalLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.locations[loc.ProfessionalID] = memoryEntry{
		loc:     loc,
		expires: c.now().Add(locationTTL),
	}
	return nil
}

func (c *Memory) GetProfessionalLocation(_ context.Context, professionalID uuid.UUID) (*models.ProfessionalLocation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.locations[professionalID]
	if !ok || c.now().After(entry.expires) {
		return nil, nil
	}
	loc := entry.loc
	return &loc, nil
}
