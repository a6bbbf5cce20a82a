package vm

import (
	"debug/elf"

	"teachos/defs"
	"teachos/fs"
)

// inodeReaderAt adapts an open inode to io.ReaderAt so the standard
// library's ELF parser can random-access it; no example in the retrieved
// corpus carries an ELF loader of its own, so this is grounded on Go's
// standard debug/elf package rather than a corpus library.
type inodeReaderAt struct {
	fs  *fs.Fs_t
	ip  *fs.Imemnode_t
	pid int
}

func (r *inodeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.ip.Readi(r.fs, r.pid, p, int(off))
	if err != 0 {
		return n, &elfReadErr{err}
	}
	if n < len(p) {
		return n, errShortRead
	}
	return n, nil
}

type elfReadErr struct{ err defs.Err_t }

func (e *elfReadErr) Error() string { return "vm: inode read failed" }

var errShortRead = &elfReadErr{-defs.EIO}

// Vspaceloadcode reads an ELF binary through the file system into the code
// region, mapping one writable page group per PT_LOAD segment and copying
// its file bytes in, and reports the entry point (spec.md §4.6). Segment
// sizes are not checked against any limit; no -EFBIG is returned here.
func Vspaceloadcode(f *fs.Fs_t, pid int, path string) (*Vspace_t, uintptr, defs.Err_t) {
	ip, err := f.Namei(pid, path)
	if err != 0 {
		return nil, 0, err
	}
	defer f.Iput(ip)
	ip.Locki(f, pid)
	defer ip.Unlocki()

	ra := &inodeReaderAt{fs: f, ip: ip, pid: pid}
	ef, elferr := elf.NewFile(ra)
	if elferr != nil {
		return nil, 0, -defs.EINVAL
	}
	defer ef.Close()

	vs := Vspaceinit()
	var codeBase, codeTop uintptr
	first := true
	writableAny := false

	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		base := uintptr(prog.Vaddr)
		size := uintptr(prog.Memsz)
		if prog.Flags&elf.PF_W != 0 {
			writableAny = true
		}
		if first {
			codeBase = base
			first = false
		}
		if base+size > codeTop {
			codeTop = base + size
		}
		if err := vs.Vregionaddmap(nil, base, size, true, true); err != 0 {
			return nil, 0, err
		}

		buf := make([]byte, prog.Filesz)
		if _, rerr := ip.Readi(f, pid, buf, int(prog.Off)); rerr != 0 {
			return nil, 0, rerr
		}
		if werr := vs.writeBytes(base, buf); werr != 0 {
			return nil, 0, werr
		}
	}
	if first {
		return nil, 0, -defs.EINVAL
	}
	vs.Code = &Region_t{Kind: RegionCode, Base: codeBase, Size: codeTop - codeBase, Writable: writableAny}

	return vs, uintptr(ef.Entry), 0
}
