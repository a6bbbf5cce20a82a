// Package trap routes traps into the rest of the kernel (spec.md §4.8), with
// one entry point per trap kind: HandleSyscall, DispatchTimer and
// DispatchPagefault. The interrupt vector stubs, CR2 read, and EOI
// sequencing are the out-of-scope collaborators spec.md §1 names; these
// entry points are what a real assembly trap entry would call into after
// decoding the vector.
//
// There is no real user-mode instruction stream in this kernel (no CPU
// emulator executes the ELF code vm.Vspaceloadcode maps in), so syscall
// arguments cannot be decoded out of trapframe registers the way the
// teacher's Userargs/Userdmap8r do from an actual user address space.
// HandleSyscall instead takes its arguments as an explicit Syscall_t,
// which a real syscall trap would have built by copying words out of the
// faulting frame's Rdi/Rsi/Rdx — the one deliberate simplification this
// package makes, recorded in DESIGN.md.
package trap

import (
	"fmt"
	"sync"

	"teachos/defs"
	"teachos/fd"
	"teachos/fs"
	"teachos/proc"
	"teachos/vm"
)

// Syscall_t is the decoded argument set a real trap entry would have
// pulled out of the trapframe before calling into the dispatch table.
type Syscall_t struct {
	No     int
	Path   string
	Mode   defs.Omode_t
	Fd     int
	OFd    int
	Buf    []byte
	Pid    int
	Status int
	N      int      // sbrk/sleep/crashn's single integer argument
	Args   []string // exec's argv; not marshaled onto the new stack since
	// there is no real user instruction stream to read it back out, per
	// this package's doc comment
}

// HandleSyscall honors a pending kill both before and after dispatching
// (spec.md §4.8 "honor a pending kill, dispatch the syscall by number,
// honor a pending kill again"), returning -EINTR if the kill lands first.
func HandleSyscall(fsys *fs.Fs_t, p *proc.Proc_t, sc Syscall_t) int {
	if p.Killed {
		return int(-defs.EINTR)
	}

	ret := dispatchSyscall(fsys, p, sc)

	if p.Killed {
		return int(-defs.EINTR)
	}
	return ret
}

func dispatchSyscall(fsys *fs.Fs_t, p *proc.Proc_t, sc Syscall_t) int {
	switch sc.No {
	case defs.SYS_FORK:
		pid, err := proc.Fork(p)
		if err != 0 {
			return int(err)
		}
		return pid

	case defs.SYS_EXIT:
		proc.Exit(fsys, p, sc.Status)
		return 0

	case defs.SYS_WAIT:
		pid, _, err := proc.Wait(p)
		if err != 0 {
			return int(err)
		}
		return pid

	case defs.SYS_KILL:
		return int(proc.Kill(sc.Pid))

	case defs.SYS_GETPID:
		return p.Pid

	case defs.SYS_OPEN:
		fdn, err := fd.OpenInode(fsys, p.Pid, &p.Fds, sc.Path, sc.Mode)
		if err != 0 {
			return int(err)
		}
		return fdn

	case defs.SYS_CLOSE:
		f, ok := fdAt(&p.Fds, sc.Fd)
		if !ok {
			return int(-defs.EBADF)
		}
		err := f.Close(fsys, p.Pid)
		p.Fds[sc.Fd] = nil
		return int(err)

	case defs.SYS_READ:
		f, ok := fdAt(&p.Fds, sc.Fd)
		if !ok {
			return int(-defs.EBADF)
		}
		n, err := fd.Read(fsys, p.Pid, f, sc.Buf)
		if err != 0 {
			return int(err)
		}
		return n

	case defs.SYS_WRITE:
		f, ok := fdAt(&p.Fds, sc.Fd)
		if !ok {
			return int(-defs.EBADF)
		}
		n, err := fd.Write(fsys, p.Pid, f, sc.Buf)
		if err != 0 {
			return int(err)
		}
		return n

	case defs.SYS_PIPE:
		rfd, wfd, err := fd.OpenPipe(&p.Fds)
		if err != 0 {
			return int(err)
		}
		sc.Buf[0] = byte(rfd)
		sc.Buf[1] = byte(wfd)
		return 0

	case defs.SYS_DUP:
		nfdn, err := fd.Dup2(&p.Fds, sc.Fd)
		if err != 0 {
			return int(err)
		}
		return nfdn

	case defs.SYS_EXEC:
		vs, entry, err := vm.Vspaceloadcode(fsys, p.Pid, sc.Path)
		if err != 0 {
			return int(err)
		}
		if err := vm.Vspaceinitstack(vs, vm.UserStackTop); err != 0 {
			return int(err)
		}
		old := p.Vs
		vm.Register(vs)
		p.Vs = vs
		if old != nil {
			vm.Unregister(old)
		}
		p.Tf.Rip = entry
		p.Tf.Rsp = vs.Stack.Base + vs.Stack.Size
		return 0

	case defs.SYS_SBRK:
		old, err := p.Vs.Vspacesbrk(sc.N)
		if err != 0 {
			return int(err)
		}
		return int(old)

	case defs.SYS_SLEEP:
		tickMu.Lock()
		target := ticks + sc.N
		for ticks < target && !p.Killed {
			proc.Sleep(p, &ticks, &tickMu)
		}
		killed := p.Killed
		tickMu.Unlock()
		if killed {
			return -1
		}
		return 0

	case defs.SYS_UPTIME:
		return currentTick()

	case defs.SYS_CRASHN:
		fsys.CrashN(sc.N)
		return 0

	case defs.SYS_FSTAT:
		f, ok := fdAt(&p.Fds, sc.Fd)
		if !ok {
			return int(-defs.EBADF)
		}
		st, err := fd.Fstat(f)
		if err != 0 {
			return int(err)
		}
		return int(st.Inum)

	default:
		return int(-defs.ENOSYS)
	}
}

func fdAt(table *[defs.NOFILE]*fd.Fd_t, fdn int) (*fd.Fd_t, bool) {
	if fdn < 0 || fdn >= len(table) || table[fdn] == nil {
		return nil, false
	}
	return table[fdn], true
}

// DispatchTimer increments the tick counter and yields the current process
// if it was RUNNING (spec.md §4.7, §4.8 "timer interrupts call yield if the
// current process is RUNNING").
func DispatchTimer(p *proc.Proc_t) {
	tickMu.Lock()
	ticks++
	tickMu.Unlock()
	proc.Wakeup(&ticks)

	if p != nil && p.State == proc.RUNNING {
		proc.Yield(p)
	}
}

// DispatchPagefault reads the faulting address and error code out of tf and
// dispatches through vm.Sys_pgfault (spec.md §4.8). A kernel-mode fault is
// an unrecoverable invariant violation, per spec.md §7's Panic tier; a
// user-mode fault the vspace can't repair marks the process killed, to be
// reaped at the next return to user mode, matching spec.md §4.8's "after
// handling, if the current process is killed and returning to user mode,
// exit".
func DispatchPagefault(p *proc.Proc_t, tf *defs.Trapframe_t) {
	if tf.Cs == defs.CS_RING0 {
		panic(fmt.Sprintf("trap: page fault from kernel mode at rip=%x", tf.Rip))
	}
	err := p.Vs.Sys_pgfault(tf.Rdi, tf.ErrorCode|defs.PF_USER)
	if err != 0 {
		p.Killed = true
	}
}

var ticks int
var tickMu sync.Mutex

func currentTick() int {
	tickMu.Lock()
	defer tickMu.Unlock()
	return ticks
}
