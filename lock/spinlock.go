package lock

import (
	"sync/atomic"
)

// Spinlock_t disables interrupts on the owning simulated CPU while held and
// busy-waits via test-and-set, matching spec.md §4.1. There is no real local
// APIC/CLI instruction here — Cli_t plays the role of "this CPU's interrupt
// state" that a real kernel would keep in a per-CPU struct, grounded on
// Nonepf-xv6-in-go/kernel/spinlock.go's acquire/release pair generalized
// from a single global CPU to an explicit Cli_t handle per simulated CPU.
type Spinlock_t struct {
	locked int32
	name   string
	holder *Cli_t
}

// Cli_t is the per-simulated-CPU interrupt-enable nesting counter spec.md
// §4.1 requires ("push/pop an interrupt-enable nesting counter per CPU").
// Every goroutine that plays the role of a CPU scheduler loop owns exactly
// one Cli_t and threads it through every lock acquisition it makes.
type Cli_t struct {
	Ncli      int
	IntEnable bool
}

func NewSpinlock(name string) *Spinlock_t {
	return &Spinlock_t{name: name}
}

func (c *Cli_t) pushcli() {
	if c.Ncli == 0 {
		c.IntEnable = true // pretend interrupts were on; we never really had any
	}
	c.Ncli++
}

func (c *Cli_t) popcli() {
	if c.Ncli < 1 {
		panic("popcli: not holding any spinlock")
	}
	c.Ncli--
}

// Holding reports whether lk is currently held by anyone.
func (lk *Spinlock_t) Holding() bool {
	return atomic.LoadInt32(&lk.locked) == 1
}

func (lk *Spinlock_t) Acquire(c *Cli_t) {
	c.pushcli()
	if lk.holder == c {
		panic("spinlock: recursive acquire by same cpu: " + lk.name)
	}
	for !atomic.CompareAndSwapInt32(&lk.locked, 0, 1) {
	}
	lk.holder = c
}

func (lk *Spinlock_t) Release(c *Cli_t) {
	if lk.holder != c {
		panic("spinlock: release by non-holder: " + lk.name)
	}
	lk.holder = nil
	atomic.StoreInt32(&lk.locked, 0)
	c.popcli()
}
