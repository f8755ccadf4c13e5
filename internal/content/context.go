// Package content holds the milestone list currently served and keeps it in
// sync with the content store.
package content

import (
	"sync"
	"time"

	"github.com/folio-labs/journey/pkg/core"
)

// Context holds the current milestone list
type Context struct {
	mu         sync.RWMutex
	milestones []core.Milestone
	version    uint64
	updated    time.Time
}

// NewContext creates a Context serving milestones
func NewContext(milestones []core.Milestone) *Context {
	return &Context{
		milestones: clone(milestones),
		version:    1,
		updated:    time.Now(),
	}
}

// Milestones returns a copy of the current list
func (c *Context) Milestones() []core.Milestone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.milestones)
}

// Len returns the number of milestones
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.milestones)
}

// Version increases every time the list changes
func (c *Context) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Updated returns when the list last changed
func (c *Context) Updated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// Set replaces the list and reports whether it differs from the current one
func (c *Context) Set(milestones []core.Milestone) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if Equal(c.milestones, milestones) {
		return false
	}
	c.milestones = clone(milestones)
	c.version++
	c.updated = time.Now()
	return true
}

// Equal reports whether two lists hold the same milestones in the same order.
func Equal(a, b []core.Milestone) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalMilestone(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalMilestone(a, b core.Milestone) bool {
	if a.Role != b.Role || a.Company != b.Company || a.StartDate != b.StartDate {
		return false
	}
	if !equalOptional(a.EndDate, b.EndDate) || !equalOptional(a.Location, b.Location) {
		return false
	}
	if len(a.Highlights) != len(b.Highlights) {
		return false
	}
	for i := range a.Highlights {
		if a.Highlights[i] != b.Highlights[i] {
			return false
		}
	}
	return true
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clone(milestones []core.Milestone) []core.Milestone {
	if milestones == nil {
		return nil
	}
	out := make([]core.Milestone, len(milestones))
	copy(out, milestones)
	return out
}
