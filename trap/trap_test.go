package trap

import (
	"testing"

	"teachos/block"
	"teachos/defs"
	"teachos/fs"
	"teachos/mem"
	"teachos/proc"
	"teachos/vm"
)

func mkfs(t *testing.T) *fs.Fs_t {
	t.Helper()
	disk := block.NewMemDisk(32768)
	fsys, err := fs.Format(disk)
	if err != 0 {
		t.Fatalf("format: %d", err)
	}
	return fsys
}

func mkproc(t *testing.T, name string) *proc.Proc_t {
	t.Helper()
	p, err := proc.Allocproc(name)
	if err != 0 {
		t.Fatalf("allocproc: %d", err)
	}
	p.Vs = vm.Vspaceinit()
	vm.Register(p.Vs)
	return p
}

func TestHandleSyscallKilledReturnsEINTR(t *testing.T) {
	mem.Phys = mem.NewPhys()
	fsys := mkfs(t)
	p := mkproc(t, "victim")
	p.Killed = true

	if ret := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_GETPID}); ret != int(-defs.EINTR) {
		t.Fatalf("expected EINTR, got %d", ret)
	}
}

func TestHandleSyscallOpenWriteReadClose(t *testing.T) {
	mem.Phys = mem.NewPhys()
	fsys := mkfs(t)
	p := mkproc(t, "writer")

	fdn := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_OPEN, Path: "greeting", Mode: defs.O_CREATE | defs.O_RDWR})
	if fdn < 0 {
		t.Fatalf("open: %d", fdn)
	}
	n := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_WRITE, Fd: fdn, Buf: []byte("hi")})
	if n != 2 {
		t.Fatalf("write: %d", n)
	}
	buf := make([]byte, 2)
	// writes/reads on the same offset-tracking fd continue from where the
	// write left off, so reopen to read from the start.
	fdn2 := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_OPEN, Path: "greeting", Mode: defs.O_RDONLY})
	n = HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_READ, Fd: fdn2, Buf: buf})
	if n != 2 || string(buf) != "hi" {
		t.Fatalf("read back %q n=%d", buf, n)
	}
	if ret := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_CLOSE, Fd: fdn}); ret != 0 {
		t.Fatalf("close: %d", ret)
	}
}

func TestDispatchPagefaultFromKernelModePanics(t *testing.T) {
	mem.Phys = mem.NewPhys()
	p := mkproc(t, "p")
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on kernel-mode page fault")
		}
	}()
	tf := &defs.Trapframe_t{Cs: defs.CS_RING0}
	DispatchPagefault(p, tf)
}

func TestSbrkGrowsHeapAndZeroArgReturnsBreak(t *testing.T) {
	mem.Phys = mem.NewPhys()
	fsys := mkfs(t)
	p := mkproc(t, "sbrker")

	old := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_SBRK, N: 4096})
	if old != int(vm.HeapBase) {
		t.Fatalf("first sbrk should return HeapBase, got %#x", old)
	}
	cur := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_SBRK, N: 0})
	if cur != old+4096 {
		t.Fatalf("sbrk(0) should return current break, got %#x want %#x", cur, old+4096)
	}
}

func TestUptimeAdvancesWithDispatchTimer(t *testing.T) {
	mem.Phys = mem.NewPhys()
	fsys := mkfs(t)
	p := mkproc(t, "clock")
	before := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_UPTIME})
	DispatchTimer(nil)
	after := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_UPTIME})
	if after != before+1 {
		t.Fatalf("uptime should advance by one tick, got %d -> %d", before, after)
	}
}

func TestCrashNArmsFsCrashCountdown(t *testing.T) {
	mem.Phys = mem.NewPhys()
	fsys := mkfs(t)
	p := mkproc(t, "crasher")
	if ret := HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_CRASHN, N: 1}); ret != 0 {
		t.Fatalf("crashn: %d", ret)
	}
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected the armed crash to fire on the next journaled write")
		}
	}()
	HandleSyscall(fsys, p, Syscall_t{No: defs.SYS_OPEN, Path: "x", Mode: defs.O_CREATE | defs.O_RDWR})
}

func TestDispatchPagefaultGrowsStackForUserMode(t *testing.T) {
	mem.Phys = mem.NewPhys()
	p := mkproc(t, "p")
	top := uintptr(0x7fff0000)
	vm.Vspaceinitstack(p.Vs, top)
	fault := p.Vs.Stack.Base - defs.PGSIZE

	tf := &defs.Trapframe_t{Cs: defs.CS_RING3, Rdi: fault}
	DispatchPagefault(p, tf)
	if p.Killed {
		t.Fatal("legitimate stack growth should not kill the process")
	}
}
