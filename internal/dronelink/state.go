package dronelink

import "time"

// InitialOperation is displayed until the first command arrives.
const InitialOperation = "STOP"

// State is what a front end renders for the local node.
type State struct {
	Role      Role       `json:"role"`
	Active    bool       `json:"active"`
	Gyro      GyroSample `json:"gyro"`
	Operation string     `json:"operation"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Updates streams State after every change, starting with the current
// one. Slow readers miss intermediate states rather than stalling the
// receive loops. The channel is closed by cancel or by Close.
func (c *Coordinator) Updates() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan State, 16)
	ch <- c.state
	if c.watchers == nil {
		close(ch)
		return ch, func() {}
	}
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
	return ch, cancel
}

// Snapshot returns the current State.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateLocked(fn)
}

func (c *Coordinator) updateLocked(fn func(*State)) {
	fn(&c.state)
	c.state.UpdatedAt = c.clock.Now().UTC()
	snap := c.state
	for _, w := range c.watchers {
		select {
		case w <- snap:
		default:
		}
	}
}
