// Package sigchan provides a non-blocking signal channel: it notifies that
// an event happened without carrying data, and never blocks the emitter.
package sigchan

type Chan struct {
	c chan struct{}
}

func New(bufferSize int) *Chan {
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit sends a signal; if the buffer is full the signal is dropped,
// which is fine because one pending signal already means "wake up".
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C exposes the channel for select loops.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
