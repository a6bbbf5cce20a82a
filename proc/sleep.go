package proc

import "sync"

// Sleep atomically releases lk and marks p SLEEPING on chanKey, resuming
// only once something calls Wakeup(chanKey) or Kill(p.Pid) (spec.md §4.1,
// §4.7). lk is any lock the caller holds at the call site (the pipe's
// mutex, the log's, ...); when it isn't Ptable's own mutex, Sleep hands
// off to Ptable's mutex first so the state change and the wait are atomic
// with respect to a concurrent Wakeup, exactly as sleep(chan, lk) requires.
func Sleep(p *Proc_t, chanKey interface{}, lk *sync.Mutex) {
	if lk != &Ptable.mu {
		Ptable.mu.Lock()
		lk.Unlock()
	}
	p.Chan = chanKey
	p.State = SLEEPING
	for p.State == SLEEPING {
		Ptable.cond.Wait()
	}
	p.Chan = nil
	if lk != &Ptable.mu {
		Ptable.mu.Unlock()
		lk.Lock()
	}
}

// Wakeup marks every SLEEPING process waiting on chanKey RUNNABLE (spec.md
// §4.1, §4.7).
func Wakeup(chanKey interface{}) {
	Ptable.mu.Lock()
	for _, p := range Ptable.procs {
		if p != nil && p.State == SLEEPING && p.Chan == chanKey {
			p.State = RUNNABLE
			p.Chan = nil
		}
	}
	Ptable.cond.Broadcast()
	Ptable.mu.Unlock()
}
