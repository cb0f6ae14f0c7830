package ipc

import (
	"sync"
	"time"
)

// sweeper drives periodic expiry of pending calls. One ticker serves every
// outstanding call, so timeout precision equals the interval.
type sweeper struct {
	every time.Duration
	sweep func(now time.Time) int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSweeper(every time.Duration, sweep func(now time.Time) int) *sweeper {
	return &sweeper{
		every: every,
		sweep: sweep,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (s *sweeper) start() { go s.run() }

func (s *sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// halt stops the ticker and waits for an in-progress sweep to finish.
func (s *sweeper) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
