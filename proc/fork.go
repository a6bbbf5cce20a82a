package proc

import (
	"teachos/defs"
	"teachos/vm"
)

// Fork copies the parent's vspace via COW, duplicates the trap frame with
// the child's rax zeroed, shares open files by bumping their refcounts, and
// marks the child RUNNABLE (spec.md §4.7).
//
// On a failed COW copy the embryonic child must be handed to Freeproc
// rather than left EMBRYO forever — spec.md §9 names this as the bug in
// the original fork: "error reporting on fork leaves a half-copied vspace;
// on failure the implementation must call freeproc on the embryonic
// child."
func Fork(parent *Proc_t) (int, defs.Err_t) {
	child, err := Allocproc(parent.Name)
	if err != 0 {
		return -1, err
	}

	child.Vs = vm.Vspaceinit()
	if err := vm.Vspacecopy_cow(child.Vs, parent.Vs); err != 0 {
		Freeproc(child)
		return -1, err
	}

	child.Tf = parent.Tf
	child.Tf.Rax = 0
	vm.Register(child.Vs)

	parent.fdl.Lock()
	child.fdl.Lock()
	for i, f := range parent.Fds {
		if f != nil {
			f.Dup()
			child.Fds[i] = f
		}
	}
	child.fdl.Unlock()
	parent.fdl.Unlock()

	Ptable.mu.Lock()
	child.ParentPid = parent.Pid
	child.State = RUNNABLE
	Ptable.cond.Broadcast()
	Ptable.mu.Unlock()

	return child.Pid, 0
}
