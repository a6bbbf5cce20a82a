package proc

import (
	"teachos/defs"
	"teachos/fs"
)

// Exit closes every open file, reparents children to init, becomes ZOMBIE,
// and wakes a parent sleeping on its own pid in Wait (spec.md §4.7).
//
// Closing fds happens before the process-table lock is taken, and the lock
// is released before Wakeup blocks on nothing further — so Exit never holds
// more than the one process-table lock at a time. That re-establishes the
// ncli==1 invariant spec.md §4.1 requires of any caller entering sched;
// spec.md §9 calls out the original exit as failing to establish this
// explicitly.
func Exit(fsys *fs.Fs_t, p *Proc_t, status int) {
	p.fdl.Lock()
	for i, f := range p.Fds {
		if f == nil {
			continue
		}
		f.Close(fsys, p.Pid)
		p.Fds[i] = nil
	}
	p.fdl.Unlock()

	Ptable.mu.Lock()
	p.ExitStatus = status
	p.State = ZOMBIE
	for _, c := range Ptable.procs {
		if c != nil && c.ParentPid == p.Pid {
			c.ParentPid = initPid
		}
	}
	parentPid := p.ParentPid
	Ptable.cond.Broadcast()
	Ptable.mu.Unlock()

	Wakeup(parentPid)
}

// Wait scans for a ZOMBIE child; if none exist and children remain, it
// sleeps on the caller's pid; on reaping it calls Freeproc (spec.md §4.7).
// Returns -ECHILD if the caller has no children at all.
func Wait(parent *Proc_t) (int, int, defs.Err_t) {
	for {
		Ptable.mu.Lock()
		var zombie *Proc_t
		haveChild := false
		for _, c := range Ptable.procs {
			if c != nil && c.ParentPid == parent.Pid {
				haveChild = true
				if c.State == ZOMBIE {
					zombie = c
					break
				}
			}
		}
		if zombie != nil {
			pid := zombie.Pid
			status := zombie.ExitStatus
			Ptable.mu.Unlock()
			Freeproc(zombie)
			return pid, status, 0
		}
		if !haveChild {
			Ptable.mu.Unlock()
			return -1, 0, -defs.ECHILD
		}
		Sleep(parent, parent.Pid, &Ptable.mu)
		Ptable.mu.Unlock()
	}
}
