// Package kernel is the boot sequence: it brings up the physical allocator,
// wires it to the virtual-memory layer's swap callbacks, opens or formats
// the file system, creates the first process, and starts the scheduler
// goroutine (spec.md §4.7's userinit/scheduler). The bootloader, E820
// memory map, GDT/IDT setup, and runtime.Install_traphandler wiring the
// teacher's kernel/main.go performs are the out-of-scope collaborators
// spec.md §1 names — this package picks up where those would have handed
// off, grounded on main()'s physmem/fs/exec bring-up sequence in the
// teacher's kernel/main.go but without any of its SMP/ACPI/APIC machinery,
// which has no analogue in a kernel with no real CPUs to start.
package kernel

import (
	"os"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"teachos/block"
	"teachos/defs"
	"teachos/fd"
	"teachos/fs"
	"teachos/mem"
	"teachos/proc"
	"teachos/vm"
)

// initCodeBase is where Userinit maps the first process's bootstrap code;
// arbitrary, since there is no real virtual address layout to respect.
const initCodeBase uintptr = 0x1000

// Kernel_t holds the live singletons wired together at boot, returned to
// cmd/teachos so it can drive syscalls and timer ticks into them.
type Kernel_t struct {
	Fs   *fs.Fs_t
	Init *proc.Proc_t
}

// Boot wires mem's swap-eviction callbacks to vm's implementations (spec.md
// §4.5 "invokes markswapped on every process's vspace ... finally
// reinstalls the current vspace's page tables"), opens disk as a file
// system (formatting it first if fresh is true), attaches the disk's swap
// region to the physical allocator, mints the first process
// running initcode, and starts the scheduler goroutine. Mirrors the
// teacher's main(): physmem bring-up, then fs.StartFS, then the first exec.
func Boot(disk block.Disk_i, fresh bool, initcode []byte) (*Kernel_t, defs.Err_t) {
	mem.Phys.SetMarkSwapped(vm.MarkSwapped)
	mem.Phys.SetReinstall(vm.Reinstall)

	var fsys *fs.Fs_t
	var err defs.Err_t
	if fresh {
		fsys, err = fs.Format(disk)
	} else {
		fsys, err = fs.Boot(disk)
	}
	if err != 0 {
		return nil, err
	}
	mem.Phys.AttachSwap(mem.NewSwapmem(disk, fsys.Superblock().Swapstart))

	if _, merr := fsys.Mknod(0, "console", defs.CONSOLE); merr != 0 && merr != -defs.EEXIST {
		return nil, merr
	}

	init, perr := proc.Userinit(initCodeBase, vm.UserStackTop, initcode)
	if perr != 0 {
		return nil, perr
	}
	if ferr := wireStdio(fsys, init); ferr != 0 {
		return nil, ferr
	}

	go proc.Scheduler()

	log.Infof("kernel: booted pid %d, fresh=%v", init.Pid, fresh)
	return &Kernel_t{Fs: fsys, Init: init}, 0
}

// wireStdio opens /console three times into fds 0, 1, and 2, the in-scope
// stand-in for the teacher's fd_stdin/fd_stdout/fd_stderr globals wired up
// in main()'s exec closure.
func wireStdio(fsys *fs.Fs_t, p *proc.Proc_t) defs.Err_t {
	for i := 0; i < 3; i++ {
		mode := defs.O_RDONLY
		if i > 0 {
			mode = defs.O_WRONLY
		}
		fdn, err := fd.OpenInode(fsys, p.Pid, &p.Fds, "console", defs.Omode_t(mode))
		if err != 0 {
			return err
		}
		if fdn != i {
			return -defs.EINVAL
		}
	}
	return 0
}

// OpenDisk opens a flat disk image on the host file system, the in-scope
// stand-in for a real block device spec.md §1 excludes. It does not format:
// the returned bool reports whether the image was absent or empty, and Boot
// formats when given true.
func OpenDisk(path string, nblocks int) (block.Disk_i, bool, error) {
	existed, err := diskHasContent(path)
	if err != nil {
		return nil, false, errors.Wrap(err, "kernel: stat disk image")
	}
	d, err := block.OpenFileDisk(path, nblocks)
	if err != nil {
		return nil, false, err
	}
	return d, !existed, nil
}

func diskHasContent(path string) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Size() > 0, nil
}
