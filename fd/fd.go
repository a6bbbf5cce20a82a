// Package fd is the file descriptor and pipe layer (spec.md §4.9): a
// system-wide pool of NFILE file_info entries, opened by inode or pipe,
// referenced by per-process descriptor tables. Grounded on the teacher's
// fd.go Fd_t/Cwd_t split, replacing its fdops.Fdops_i interface indirection
// (built for many device/socket backends this kernel doesn't have) with a
// closed two-case tagged union of inode and pipe, the only backends spec.md
// names.
package fd

import (
	"sync"

	"teachos/defs"
	"teachos/fs"
)

const (
	FD_READ  = 0x1
	FD_WRITE = 0x2
)

// Fd_t is one system-wide open-file entry, shared by dup'd and forked
// descriptors via Ref. Exactly one of Ip/Pipe is set.
type Fd_t struct {
	mu    sync.Mutex
	Ref   int
	Perms int // FD_READ | FD_WRITE
	Off   int // only meaningful for Ip

	Ip   *fs.Imemnode_t
	Pipe *Pipe_t
}

var (
	poolMu sync.Mutex
	pool   [defs.NFILE]*Fd_t
)

// allocFile reserves a system-wide file_info slot (spec.md §4.9).
func allocFile() (*Fd_t, defs.Err_t) {
	poolMu.Lock()
	defer poolMu.Unlock()
	for i := range pool {
		if pool[i] == nil {
			f := &Fd_t{Ref: 1}
			pool[i] = f
			return f, 0
		}
	}
	return nil, -defs.EMFILE
}

func freeFile(f *Fd_t) {
	poolMu.Lock()
	for i := range pool {
		if pool[i] == f {
			pool[i] = nil
			break
		}
	}
	poolMu.Unlock()
}

// Dup increments f's reference count, used when a descriptor is shared via
// fork or sys_dup (spec.md §4.9: "sys_dup shares the same file_info and
// increments its ref").
func (f *Fd_t) Dup() {
	f.mu.Lock()
	f.Ref++
	f.mu.Unlock()
}

// Close drops a reference; at zero, releases the inode or calls pipeclose
// (spec.md §4.9 "sys_close decrements; at zero, releases inode or calls
// pipeclose").
func (f *Fd_t) Close(fsys *fs.Fs_t, pid int) defs.Err_t {
	f.mu.Lock()
	f.Ref--
	dead := f.Ref == 0
	f.mu.Unlock()
	if !dead {
		return 0
	}
	defer freeFile(f)
	if f.Ip != nil {
		fsys.Iput(f.Ip)
		return 0
	}
	return f.Pipe.close(f.Perms)
}

// fdInsert finds the lowest free descriptor number in table (spec.md §4.9
// "returns the lowest free fd").
func fdInsert(table *[defs.NOFILE]*Fd_t, f *Fd_t) (int, defs.Err_t) {
	for i := range table {
		if table[i] == nil {
			table[i] = f
			return i, 0
		}
	}
	return 0, -defs.EMFILE
}

// OpenInode opens path through the file system (creating it first if mode
// carries O_CREATE) and installs the resulting fd in table at the lowest
// free slot (spec.md §4.9 sys_open).
//
// A bare O_CREATE (no O_WRONLY/O_RDWR access bits) is rejected outright:
// spec.md §9 flags the original `mode == O_CREATE` strict-equality test as
// a bug, since it silently treats any mode numerically equal to O_CREATE
// (i.e. O_CREATE|O_RDONLY, as O_RDONLY is 0) as non-creating. The fix
// tests the O_CREATE bit directly and only accepts it combined with a
// real write-capable access mode.
func OpenInode(fsys *fs.Fs_t, pid int, table *[defs.NOFILE]*Fd_t, path string, mode defs.Omode_t) (int, defs.Err_t) {
	var ip *fs.Imemnode_t
	var err defs.Err_t

	if mode&defs.O_CREATE != 0 {
		if mode == defs.O_CREATE {
			return 0, -defs.EINVAL
		}
		if _, ferr := fsys.Addfile(pid, path); ferr != 0 && ferr != -defs.EEXIST {
			return 0, ferr
		}
		ip, err = fsys.Namei(pid, path)
	} else {
		ip, err = fsys.Namei(pid, path)
	}
	if err != 0 {
		return 0, err
	}

	f, ferr := allocFile()
	if ferr != 0 {
		fsys.Iput(ip)
		return 0, ferr
	}
	f.Ip = ip
	f.Perms = permsFor(mode)

	fdn, ierr := fdInsert(table, f)
	if ierr != 0 {
		fsys.Iput(ip)
		freeFile(f)
		return 0, ierr
	}
	return fdn, 0
}

func permsFor(mode defs.Omode_t) int {
	switch mode &^ defs.O_CREATE {
	case defs.O_WRONLY:
		return FD_WRITE
	case defs.O_RDWR:
		return FD_READ | FD_WRITE
	default:
		return FD_READ
	}
}

// OpenPipe allocates a pipe and installs its two ends at the lowest two
// free descriptors (spec.md §4.9, §6 sys_pipe).
func OpenPipe(table *[defs.NOFILE]*Fd_t) (int, int, defs.Err_t) {
	p, err := newPipe()
	if err != 0 {
		return 0, 0, err
	}
	rf, err := allocFile()
	if err != 0 {
		return 0, 0, err
	}
	rf.Pipe = p
	rf.Perms = FD_READ

	wf, err := allocFile()
	if err != 0 {
		freeFile(rf)
		return 0, 0, err
	}
	wf.Pipe = p
	wf.Perms = FD_WRITE

	rfd, err := fdInsert(table, rf)
	if err != 0 {
		freeFile(rf)
		freeFile(wf)
		return 0, 0, err
	}
	wfd, err := fdInsert(table, wf)
	if err != 0 {
		table[rfd] = nil
		freeFile(rf)
		freeFile(wf)
		return 0, 0, err
	}
	return rfd, wfd, 0
}

// Dup2 duplicates table[ofdn] into the lowest free slot, bumping its ref
// (spec.md §4.9 sys_dup).
func Dup2(table *[defs.NOFILE]*Fd_t, ofdn int) (int, defs.Err_t) {
	if ofdn < 0 || ofdn >= len(table) || table[ofdn] == nil {
		return 0, -defs.EBADF
	}
	f := table[ofdn]
	nfdn, err := fdInsert(table, f)
	if err != 0 {
		return 0, err
	}
	f.Dup()
	return nfdn, 0
}

// Read validates fd permissions then delegates to the inode or pipe layer,
// advancing the per-descriptor offset for non-pipe files (spec.md §4.9).
func Read(fsys *fs.Fs_t, pid int, f *Fd_t, dst []byte) (int, defs.Err_t) {
	if f.Perms&FD_READ == 0 {
		return 0, -defs.EBADF
	}
	if f.Pipe != nil {
		return f.Pipe.read(dst)
	}
	f.mu.Lock()
	off := f.Off
	f.mu.Unlock()

	f.Ip.Locki(fsys, pid)
	n, err := f.Ip.Readi(fsys, pid, dst, off)
	f.Ip.Unlocki()
	if err != 0 {
		return 0, err
	}
	f.mu.Lock()
	f.Off += n
	f.mu.Unlock()
	return n, 0
}

func Write(fsys *fs.Fs_t, pid int, f *Fd_t, src []byte) (int, defs.Err_t) {
	if f.Perms&FD_WRITE == 0 {
		return 0, -defs.EBADF
	}
	if f.Pipe != nil {
		return f.Pipe.write(src)
	}
	f.mu.Lock()
	off := f.Off
	f.mu.Unlock()

	f.Ip.Locki(fsys, pid)
	n, err := fsys.Write(f.Ip, pid, src, off)
	f.Ip.Unlocki()
	if err != 0 {
		return 0, err
	}
	f.mu.Lock()
	f.Off += n
	f.mu.Unlock()
	return n, 0
}

func Fstat(f *Fd_t) (fs.Stat_t, defs.Err_t) {
	if f.Ip == nil {
		return fs.Stat_t{}, -defs.EINVAL
	}
	return f.Ip.Stat(), 0
}
