package brainstorm

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// countdown is the single timer slot of an actor. It is only touched by
// the actor loop. Starting a countdown stops the previous one, so ticks
// of a replaced ticker are never read.
type countdown struct {
	clock     clockwork.Clock
	ticker    clockwork.Ticker
	remaining int
}

func (c *countdown) start(seconds int) {
	c.stop()
	if seconds <= 0 {
		return
	}
	c.remaining = seconds
	c.ticker = c.clock.NewTicker(time.Second)
}

func (c *countdown) stop() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.remaining = 0
}

func (c *countdown) active() bool {
	return c.ticker != nil
}

// C is nil while no countdown runs, which blocks forever in a select.
func (c *countdown) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// tick consumes one second. When it reaches zero the countdown stops
// itself and expired is true exactly once.
func (c *countdown) tick() (remaining int, expired bool) {
	if c.ticker == nil {
		return 0, false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.stop()
		return 0, true
	}
	return c.remaining, false
}
