package kernel

import (
	"testing"

	"teachos/block"
	"teachos/defs"
	"teachos/fd"
	"teachos/mem"
	"teachos/proc"
	"teachos/trap"
)

func freshMem() {
	mem.Phys = mem.NewPhys()
	proc.Reset()
}

func TestBootWiresStdioAndStartsInitRunnable(t *testing.T) {
	freshMem()
	disk := block.NewMemDisk(32768)

	k, err := Boot(disk, true, []byte{0x90, 0x90})
	if err != 0 {
		t.Fatalf("boot: %d", err)
	}
	if k.Init.State != proc.RUNNABLE {
		t.Fatalf("init should be RUNNABLE after boot, got %v", k.Init.State)
	}
	for i := 0; i < 3; i++ {
		if k.Init.Fds[i] == nil {
			t.Fatalf("stdio fd %d not wired", i)
		}
	}
}

func TestBootIsIdempotentAcrossReboot(t *testing.T) {
	freshMem()
	disk := block.NewMemDisk(32768)

	k1, err := Boot(disk, true, []byte{0x90})
	if err != 0 {
		t.Fatalf("first boot: %d", err)
	}

	fdn, err := fd.OpenInode(k1.Fs, k1.Init.Pid, &k1.Init.Fds, "greeting", defs.O_CREATE|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("open: %d", err)
	}
	if n := trap.HandleSyscall(k1.Fs, k1.Init, trap.Syscall_t{No: defs.SYS_WRITE, Fd: fdn, Buf: []byte("hi")}); n != 2 {
		t.Fatalf("write: %d", n)
	}

	freshMem()
	k2, err := Boot(disk, false, []byte{0x90})
	if err != 0 {
		t.Fatalf("reboot: %d", err)
	}
	fdn2, err := fd.OpenInode(k2.Fs, k2.Init.Pid, &k2.Init.Fds, "greeting", defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("reopen after reboot: %d", err)
	}
	buf := make([]byte, 2)
	n := trap.HandleSyscall(k2.Fs, k2.Init, trap.Syscall_t{No: defs.SYS_READ, Fd: fdn2, Buf: buf})
	if n != 2 || string(buf) != "hi" {
		t.Fatalf("data lost across reboot: %q n=%d", buf, n)
	}
}
