// Package proc is the process table and scheduler (spec.md §4.7): a fixed
// NPROC-slot table, one mutex, and the state machine allocproc/userinit/
// fork/exit/wait/kill walk. Real per-CPU context switching (swtch, a kernel
// stack per process, forkret/trapret) is the out-of-scope collaborator
// spec.md §1 names; this kernel's "CPUs" are Go goroutines, so a process's
// RUNNING slice of execution is simply the goroutine calling into these
// functions, and Scheduler's round-robin walk only performs the bookkeeping
// half of a real scheduler (installing the vspace, flipping RUNNABLE to
// RUNNING) while Go's own runtime does the actual multiplexing — grounded
// on the teacher's goroutine-per-thread run loop in proc.go, generalized
// from per-CPU swtch to a single shared process table.
package proc

import (
	"sync"

	"teachos/defs"
	"teachos/fd"
	"teachos/vm"
)

type State_t int

const (
	UNUSED State_t = iota
	EMBRYO
	RUNNABLE
	RUNNING
	SLEEPING
	ZOMBIE
)

func (s State_t) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case EMBRYO:
		return "EMBRYO"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case SLEEPING:
		return "SLEEPING"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// Proc_t is one process table slot (spec.md §3). Chan is the sleep
// channel's key, compared by == against wakeup's key, matching the
// teacher's (and xv6's) void* channel convention via an interface value
// instead of a pointer cast.
type Proc_t struct {
	Pid        int
	ParentPid  int
	Name       string
	State      State_t
	Killed     bool
	Vs         *vm.Vspace_t
	Tf         defs.Trapframe_t
	ExitStatus int
	Chan       interface{}

	Fds [defs.NOFILE]*fd.Fd_t
	fdl sync.Mutex
}

type ptable_t struct {
	mu       sync.Mutex
	cond     *sync.Cond
	procs    [defs.NPROC]*Proc_t
	nextPid  int
	nextHint int
}

var Ptable = newPtable()

func newPtable() *ptable_t {
	pt := &ptable_t{nextPid: 1}
	pt.cond = sync.NewCond(&pt.mu)
	return pt
}

// initPid is the reparenting target exit uses; set once by Userinit.
var initPid int

// Reset discards the process table, for booting a fresh kernel instance
// within the same OS process — tests, and cmd/teachos running several
// scenarios back to back without actually restarting.
func Reset() {
	Ptable = newPtable()
	initPid = 0
}

// Allocproc finds a UNUSED slot and returns a fresh EMBRYO process (spec.md
// §4.7's state table: UNUSED -> EMBRYO). Returns -EAGAIN if the table is
// full, standing in for the teacher's Sysprocs-exhausted case.
func Allocproc(name string) (*Proc_t, defs.Err_t) {
	Ptable.mu.Lock()
	defer Ptable.mu.Unlock()

	n := len(Ptable.procs)
	for i := 0; i < n; i++ {
		idx := (Ptable.nextHint + i) % n
		if Ptable.procs[idx] == nil {
			p := &Proc_t{Pid: Ptable.nextPid, Name: name, State: EMBRYO}
			Ptable.nextPid++
			Ptable.procs[idx] = p
			Ptable.nextHint = (idx + 1) % n
			return p, 0
		}
	}
	return nil, -defs.EAGAIN
}

func find(pid int) *Proc_t {
	for _, p := range Ptable.procs {
		if p != nil && p.Pid == pid {
			return p
		}
	}
	return nil
}

// Find locates a process by pid, for callers outside this package that
// need to address a specific process by pid rather than holding its
// *Proc_t directly (cmd/teachos's scripted scenario runner, switching
// "current process" after a fork by the pid SYS_FORK returned).
func Find(pid int) *Proc_t {
	Ptable.mu.Lock()
	defer Ptable.mu.Unlock()
	return find(pid)
}

// ProcInfo_t is a read-only snapshot of one table slot, for reporting
// tools that shouldn't reach into Proc_t directly while the scheduler may
// be mutating it.
type ProcInfo_t struct {
	Pid   int
	Name  string
	State State_t
}

// Snapshot copies out pid/name/state for every live slot, for cmd/teachos's
// stats command.
func Snapshot() []ProcInfo_t {
	Ptable.mu.Lock()
	defer Ptable.mu.Unlock()

	var out []ProcInfo_t
	for _, p := range Ptable.procs {
		if p != nil {
			out = append(out, ProcInfo_t{Pid: p.Pid, Name: p.Name, State: p.State})
		}
	}
	return out
}

func slotOf(p *Proc_t) int {
	for i, c := range Ptable.procs {
		if c == p {
			return i
		}
	}
	return -1
}

// Userinit creates the first process: a fresh vspace running the inline
// bootstrap code, immediately RUNNABLE (spec.md §4.7's userinit).
func Userinit(codeBase, stackTop uintptr, initcode []byte) (*Proc_t, defs.Err_t) {
	p, err := Allocproc("init")
	if err != 0 {
		return nil, err
	}
	p.Vs = vm.Vspaceinit()
	if err := vm.Vspaceinitcode(p.Vs, codeBase, initcode); err != 0 {
		Freeproc(p)
		return nil, err
	}
	if err := vm.Vspaceinitstack(p.Vs, stackTop); err != 0 {
		Freeproc(p)
		return nil, err
	}
	vm.Register(p.Vs)

	Ptable.mu.Lock()
	p.State = RUNNABLE
	initPid = p.Pid
	Ptable.cond.Broadcast()
	Ptable.mu.Unlock()
	return p, 0
}

// Freeproc returns p's slot to UNUSED and frees its vspace registration; it
// leaves p.Fds as they are, since Exit has already closed them (spec.md §4.7 "wait ... calls freeproc which frees the
// kernel stack and vspace and returns the slot to UNUSED"). Caller must not
// be holding Ptable.mu.
func Freeproc(p *Proc_t) {
	if p.Vs != nil {
		vm.Unregister(p.Vs)
	}
	Ptable.mu.Lock()
	if idx := slotOf(p); idx >= 0 {
		Ptable.procs[idx] = nil
	}
	p.State = UNUSED
	Ptable.mu.Unlock()
}

// Scheduler loops forever holding the process-table lock only while
// selecting the next RUNNABLE slot in round-robin order, marking it RUNNING
// and installing its vspace (spec.md §4.7). It never performs a real
// context switch — there is none to perform — so it is meant to run in its
// own goroutine for the bookkeeping side-effect of keeping vm's "currently
// installed" vspace pointer in sync with whichever process it last marked
// RUNNING; Go's own goroutine scheduler supplies the actual concurrency.
func Scheduler() {
	for {
		Ptable.mu.Lock()
		var p *Proc_t
		n := len(Ptable.procs)
		for i := 0; i < n; i++ {
			idx := (Ptable.nextHint + i) % n
			c := Ptable.procs[idx]
			if c != nil && c.State == RUNNABLE {
				p = c
				Ptable.nextHint = (idx + 1) % n
				break
			}
		}
		if p == nil {
			Ptable.cond.Wait()
			Ptable.mu.Unlock()
			continue
		}
		p.State = RUNNING
		Ptable.cond.Broadcast()
		Ptable.mu.Unlock()
		vm.Vspaceinstall(p.Vs)
	}
}

// Yield gives up the CPU for one scheduling round (spec.md §4.7: RUNNING ->
// RUNNABLE, called by the timer IRQ when the current process is RUNNING)
// and blocks until Scheduler picks it back up, so that two goroutines
// yielding in a loop genuinely interleave round-robin rather than one
// racing ahead. Requires a Scheduler goroutine to be running; callers in
// tests that don't start one should not call Yield.
func Yield(p *Proc_t) {
	Ptable.mu.Lock()
	p.State = RUNNABLE
	Ptable.cond.Broadcast()
	for p.State != RUNNING {
		Ptable.cond.Wait()
	}
	Ptable.mu.Unlock()
}

// Kill sets the killed flag and wakes pid if SLEEPING; actual termination
// happens at the next trap return to user mode (spec.md §4.7, §4.8).
func Kill(pid int) defs.Err_t {
	Ptable.mu.Lock()
	defer Ptable.mu.Unlock()
	p := find(pid)
	if p == nil {
		return -defs.ESRCH
	}
	p.Killed = true
	if p.State == SLEEPING {
		p.State = RUNNABLE
		p.Chan = nil
	}
	Ptable.cond.Broadcast()
	return 0
}
