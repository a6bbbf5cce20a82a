package fs

import (
	"teachos/defs"
)

// skipelem peels the next path element off path, collapsing leading
// slashes, and returns the remainder. Grounded on the teacher's dir.go path
// tokenizer, generalized from a byte-slice Ustr to a plain Go string since
// this kernel has no user/kernel address-space split at the fs layer to
// justify the teacher's custom string type.
func skipelem(path string) (elem string, rest string, ok bool) {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if len(path) == 0 {
		return "", "", false
	}
	i := 0
	for i < len(path) && path[i] != '/' {
		i++
	}
	elem = path[:i]
	for i < len(path) && path[i] == '/' {
		i++
	}
	return elem, path[i:], true
}

const RootInum defs.Inum_t = 1

// Dirlookup iterates dp's directory entries as 16-byte records; entries with
// Inum==0 are free slots and are skipped; name match is bounded by DIRSIZ
// (spec.md §4.4).
func (fs *Fs_t) Dirlookup(dp *Imemnode_t, pid int, name string) (defs.Inum_t, int, bool) {
	if dp.Type != I_DIR {
		return 0, 0, false
	}
	buf := make([]byte, DirentSize)
	for off := 0; off+DirentSize <= int(dp.Size); off += DirentSize {
		n, err := dp.Readi(fs, pid, buf, off)
		if err != 0 || n != DirentSize {
			break
		}
		var de Dirent_t
		de.decode(buf)
		if de.Inum == 0 {
			continue
		}
		if direntName(&de) == name {
			return de.Inum, off, true
		}
	}
	return 0, 0, false
}

// appendDirent writes name->inum into dp's first free slot, or appends a new
// one at the end if none is free.
func (fs *Fs_t) appendDirent(dp *Imemnode_t, pid int, name string, inum defs.Inum_t) defs.Err_t {
	if len(name) > defs.DIRSIZ {
		return -defs.ENAMETOOLONG
	}
	buf := make([]byte, DirentSize)
	off := 0
	for ; off+DirentSize <= int(dp.Size); off += DirentSize {
		n, err := dp.Readi(fs, pid, buf, off)
		if err != 0 || n != DirentSize {
			return -defs.EIO
		}
		var de Dirent_t
		de.decode(buf)
		if de.Inum == 0 {
			break
		}
	}
	de := Dirent_t{Inum: inum, Name: nameToBytes(name)}
	de.encode(buf)
	_, err := dp.Writei(fs, pid, buf, off)
	return err
}

// Namei walks path from the root inode (inum 1); this kernel has no
// per-process working directory (chdir is out of scope per spec.md §6), so
// every lookup is absolute regardless of a leading slash.
func (fs *Fs_t) Namei(pid int, path string) (*Imemnode_t, defs.Err_t) {
	ip := fs.Iget(RootInum)
	elem, rest := "", path
	var ok bool
	for {
		elem, rest, ok = skipelem(rest)
		if !ok {
			return ip, 0
		}
		ip.Locki(fs, pid)
		if ip.Type != I_DIR {
			ip.Unlocki()
			fs.Iput(ip)
			return nil, -defs.ENOTDIR
		}
		inum, _, found := fs.Dirlookup(ip, pid, elem)
		ip.Unlocki()
		if !found {
			fs.Iput(ip)
			return nil, -defs.ENOENT
		}
		fs.Iput(ip)
		ip = fs.Iget(inum)
	}
}

// Nameiparent walks all but the last element of path and returns the parent
// directory handle plus the final element's name.
func (fs *Fs_t) Nameiparent(pid int, path string) (*Imemnode_t, string, defs.Err_t) {
	ip := fs.Iget(RootInum)
	rest := path
	for {
		elem, next, ok := skipelem(rest)
		if !ok {
			fs.Iput(ip)
			return nil, "", -defs.EINVAL
		}
		_, more, hasMore := skipelem(next)
		_ = more
		if !hasMore {
			return ip, elem, 0
		}
		ip.Locki(fs, pid)
		if ip.Type != I_DIR {
			ip.Unlocki()
			fs.Iput(ip)
			return nil, "", -defs.ENOTDIR
		}
		inum, _, found := fs.Dirlookup(ip, pid, elem)
		ip.Unlocki()
		if !found {
			fs.Iput(ip)
			return nil, "", -defs.ENOENT
		}
		fs.Iput(ip)
		ip = fs.Iget(inum)
		rest = next
	}
}

// Addfile creates a file at the root directory: appends a new dinode (one
// pre-allocated extent) to the inode file, then appends a directory entry to
// the root, both inside one transaction (spec.md §4.4).
func (fs *Fs_t) Addfile(pid int, name string) (defs.Inum_t, defs.Err_t) {
	if len(name) > defs.DIRSIZ {
		return 0, -defs.ENAMETOOLONG
	}
	dp := fs.Iget(RootInum)
	defer fs.Iput(dp)
	dp.Locki(fs, pid)
	defer dp.Unlocki()

	if _, _, found := fs.Dirlookup(dp, pid, name); found {
		return 0, -defs.EEXIST
	}

	fs.log.Begin_tx(pid)
	inum, err := fs.allocInodeLocked(pid, I_FILE, 0)
	if err != 0 {
		fs.log.Commit_tx(pid)
		return 0, err
	}
	extStart, err := fs.Balloc(pid)
	if err != 0 {
		fs.log.Commit_tx(pid)
		return 0, err
	}
	di, err := fs.readDinodeRaw(inum, pid)
	if err != 0 {
		fs.log.Commit_tx(pid)
		return 0, err
	}
	di.Exts[0] = Extent_t{Startblkno: uint32(extStart), Nblocks: uint32(defs.EXTSIZE)}
	if err := fs.writeDinodeRaw(inum, di, pid); err != 0 {
		fs.log.Commit_tx(pid)
		return 0, err
	}
	if err := fs.appendDirent(dp, pid, name, inum); err != 0 {
		fs.log.Commit_tx(pid)
		return 0, err
	}
	if err := fs.log.Commit_tx(pid); err != 0 {
		return 0, err
	}
	return inum, 0
}

// Mknod creates a device inode in the root directory routed through devid's
// devsw entry (spec.md §6 "a device inode routes readi/writei through a
// function table indexed by devid"), mirroring Addfile's allocate-inode,
// link-dirent sequence for I_DEV instead of I_FILE. No data extent is
// allocated for a device inode.
func (fs *Fs_t) Mknod(pid int, name string, devid int16) (defs.Inum_t, defs.Err_t) {
	if len(name) > defs.DIRSIZ {
		return 0, -defs.ENAMETOOLONG
	}
	dp := fs.Iget(RootInum)
	defer fs.Iput(dp)
	dp.Locki(fs, pid)
	defer dp.Unlocki()

	if _, _, found := fs.Dirlookup(dp, pid, name); found {
		return 0, -defs.EEXIST
	}

	fs.log.Begin_tx(pid)
	inum, err := fs.allocInodeLocked(pid, I_DEV, devid)
	if err != 0 {
		fs.log.Commit_tx(pid)
		return 0, err
	}
	if err := fs.appendDirent(dp, pid, name, inum); err != 0 {
		fs.log.Commit_tx(pid)
		return 0, err
	}
	if err := fs.log.Commit_tx(pid); err != 0 {
		return 0, err
	}
	return inum, 0
}

// setRootExtent and writeDirentRaw are format-time-only helpers: the root
// directory's own "." and ".." entries are written before the inode cache
// or ordinary path-walking machinery has anything to look up, so they poke
// the inode file and data blocks directly rather than going through
// Iget/Locki/appendDirent.
func (fs *Fs_t) setRootExtent(extStart int) defs.Err_t {
	di, err := fs.readDinodeRaw(RootInum, 0)
	if err != 0 {
		return err
	}
	di.Exts[0] = Extent_t{Startblkno: uint32(extStart), Nblocks: uint32(defs.EXTSIZE)}
	return fs.writeDinodeRaw(RootInum, di, 0)
}

func (fs *Fs_t) writeDirentRaw(dirInum defs.Inum_t, extStart int, name string, targetInum defs.Inum_t) defs.Err_t {
	di, err := fs.readDinodeRaw(dirInum, 0)
	if err != 0 {
		return err
	}
	b, err := fs.cache.Get(extStart)
	if err != 0 {
		return err
	}
	b.Lock(0)
	off := int(di.Size) % defs.BSIZE
	de := Dirent_t{Inum: targetInum, Name: nameToBytes(name)}
	de.encode(b.Data()[off : off+DirentSize])
	b.MarkDirty()
	fs.log.Log_write(b)
	b.Unlock()
	fs.cache.Relse(b)

	di.Size += uint32(DirentSize)
	return fs.writeDinodeRaw(dirInum, di, 0)
}
