package watch

import "sync"

// coalescer runs fn at most once at a time. Triggers that arrive while a run
// is in flight collapse into a single follow-up run.
type coalescer struct {
	fn func()

	mu      sync.Mutex
	running bool
	pending bool
	wg      sync.WaitGroup
}

func newCoalescer(fn func()) *coalescer {
	return &coalescer{fn: fn}
}

func (c *coalescer) trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.pending = true
		return
	}
	c.running = true
	c.wg.Add(1)
	go c.loop()
}

func (c *coalescer) loop() {
	defer c.wg.Done()
	for {
		c.fn()

		c.mu.Lock()
		if !c.pending {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.pending = false
		c.mu.Unlock()
	}
}

// wait blocks until no run is in flight.
func (c *coalescer) wait() {
	c.wg.Wait()
}
