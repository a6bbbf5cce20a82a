package lock

import "sync"

// Sleeplock_t is a mutex whose waiters block the calling process instead of
// busy-waiting (spec.md §4.1). It is built from a spinlock plus an owner pid
// and a condition variable standing in for the process's sleep channel; a
// real scheduler-integrated sleeplock would mark the caller SLEEPING and
// reschedule instead of parking a goroutine, but the contract —
// acquire blocks until the holder releases — is identical.
type Sleeplock_t struct {
	mu     sync.Mutex
	cond   *sync.Cond
	locked bool
	Owner  int
	Name   string
}

func NewSleeplock(name string) *Sleeplock_t {
	s := &Sleeplock_t{Name: name}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Sleeplock_t) Acquire(pid int) {
	s.mu.Lock()
	for s.locked {
		s.cond.Wait()
	}
	s.locked = true
	s.Owner = pid
	s.mu.Unlock()
}

func (s *Sleeplock_t) Release() {
	s.mu.Lock()
	if !s.locked {
		panic("sleeplock: release while not held: " + s.Name)
	}
	s.locked = false
	s.Owner = 0
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Sleeplock_t) Holding(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked && s.Owner == pid
}
