package clicker

import (
	"context"
	"errors"
	"sync"
)

// State of a controlled loop.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateKilled:
		return "killed"
	}
	return "unknown"
}

// ErrKilled is returned from Wait after Kill was called without a cause.
var ErrKilled = errors.New("loop killed")

// Controller pauses, resumes, and kills a running loop from another
// goroutine. Use NewController; the zero value has no wake channel.
type Controller struct {
	mu    sync.Mutex
	state State
	cause error
	wake  chan struct{}
}

func NewController() *Controller {
	return &Controller{wake: make(chan struct{})}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause holds the loop before its next iteration. No-op once killed.
func (c *Controller) Pause() { c.set(StatePaused, nil) }

// Resume releases a paused loop.
func (c *Controller) Resume() { c.set(StateRunning, nil) }

// Toggle flips between running and paused and reports the new state.
func (c *Controller) Toggle() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateRunning:
		c.setLocked(StatePaused, nil)
	case StatePaused:
		c.setLocked(StateRunning, nil)
	}
	return c.state
}

// Kill stops the loop for good. The first call wins; a nil cause is
// reported as ErrKilled.
func (c *Controller) Kill(cause error) { c.set(StateKilled, cause) }

func (c *Controller) set(s State, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(s, cause)
}

func (c *Controller) setLocked(s State, cause error) {
	if c.state == StateKilled || c.state == s {
		return
	}
	c.state = s
	if s == StateKilled {
		c.cause = cause
	}
	// Wake every waiter; they re-check state on a fresh channel.
	close(c.wake)
	c.wake = make(chan struct{})
}

// Wait blocks while the controller is paused. It returns nil when the
// loop may proceed, the kill cause once killed, or ctx.Err on cancel.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, cause, wake := c.state, c.cause, c.wake
		c.mu.Unlock()

		switch state {
		case StateRunning:
			return nil
		case StateKilled:
			if cause != nil {
				return cause
			}
			return ErrKilled
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}
