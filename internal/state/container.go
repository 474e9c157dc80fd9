package state

import (
	"errors"
	"sync"

	"bikeweather/internal/fsm"
)

// ErrConflict indicates revision mismatch for CAS replace.
var ErrConflict = errors.New("revision conflict")

// Update is one published state change.
type Update struct {
	Previous fsm.State
	Current  fsm.State
	Revision uint64
}

// Container exclusively holds current AppState for one app instance.
// Params: current state, revision counter, and subscriber channels.
// Returns: injectable single-writer state holder.
type Container struct {
	mu          sync.RWMutex
	state       fsm.State
	revision    uint64
	nextID      uint64
	subscribers map[uint64]chan Update
}

// NewContainer creates state container.
// Params: initial state.
// Returns: container at revision 1.
func NewContainer(initial fsm.State) *Container {
	return &Container{
		state:       initial,
		revision:    1,
		subscribers: make(map[uint64]chan Update),
	}
}

// Snapshot returns current state and revision.
func (c *Container) Snapshot() (fsm.State, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.revision
}

// Replace swaps state using expected revision CAS.
// Params: expected revision and replacement state.
// Returns: new revision or ErrConflict.
func (c *Container) Replace(expectedRevision uint64, next fsm.State) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.revision != expectedRevision {
		return 0, ErrConflict
	}
	update := Update{Previous: c.state, Current: next, Revision: expectedRevision + 1}
	c.state = next
	c.revision = update.Revision
	for _, ch := range c.subscribers {
		publish(ch, update)
	}
	return update.Revision, nil
}

// Subscribe registers change listener.
// Params: channel buffer size (minimum 1).
// Returns: update channel and cancel func closing it.
func (c *Container) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subscribers[id] = ch
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish delivers without blocking; a full channel drops its oldest update.
func publish(ch chan Update, update Update) {
	for {
		select {
		case ch <- update:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
