package fs

import (
	"github.com/apex/log"

	"teachos/block"
	"teachos/bufcache"
	"teachos/defs"
	"teachos/fslog"
)

// Fs_t ties together the buffer cache, the journal, the superblock, and the
// inode cache into the one global file-system singleton spec.md §9's "global
// mutable state" note describes; there is exactly one instance, created at
// boot and never torn down.
type Fs_t struct {
	disk  block.Disk_i
	cache *bufcache.Cache_t
	log   *fslog.Log_t
	sb    *Superblock_t
	icache *icache_t
}

const bufcacheSize = 64

// Boot opens an existing formatted disk: reads the superblock, then runs log
// recovery. Must run before any other fs call.
func Boot(disk block.Disk_i) (*Fs_t, defs.Err_t) {
	cache := bufcache.NewCache(disk, bufcacheSize)

	// the superblock itself is written once at format time and is never
	// touched by the log, so it's safe to read before recovery; everything
	// else on disk is untrusted until Recover has run.
	sb, err := ReadSuper(cache)
	if err != 0 {
		return nil, err
	}

	l := fslog.New(cache, sb.Logstart)
	if err := l.Recover(); err != 0 {
		return nil, err
	}

	fs := &Fs_t{disk: disk, cache: cache, log: l, sb: sb}
	fs.icache = mkIcache(fs)
	log.Infof("fs: booted, %d data blocks, inode file at %d", sb.Nblocks, sb.Inodestart)
	return fs, 0
}

// Format lays down a fresh, empty file system on disk: superblock, zeroed
// bitmap, inode file with inode 0 (itself) and inode 1 (root directory)
// pre-allocated. Stands in for the out-of-scope user-level mkfs (spec.md §1).
func Format(disk block.Disk_i) (*Fs_t, defs.Err_t) {
	sb := Layout(disk.Nblocks())
	cache := bufcache.NewCache(disk, bufcacheSize)

	if err := WriteSuper(cache, sb); err != 0 {
		return nil, err
	}

	bmapBlocks := sb.Inodestart - sb.Bmapstart
	for bn := 0; bn < bmapBlocks; bn++ {
		b, err := cache.Get(sb.Bmapstart + bn)
		if err != 0 {
			return nil, err
		}
		b.Lock(0)
		for i := range b.Data() {
			b.Data()[i] = 0
		}
		b.MarkDirty()
		err = cache.FlushOne(b)
		b.Unlock()
		cache.Relse(b)
		if err != 0 {
			return nil, err
		}
	}

	l := fslog.New(cache, sb.Logstart)
	fs := &Fs_t{disk: disk, cache: cache, log: l, sb: sb}
	fs.icache = mkIcache(fs)

	fs.log.Begin_tx(0)
	if _, err := fs.allocInodeLocked(0, I_FILE, 0); err != 0 { // inum 0: inode file
		return nil, err
	}
	rootExtent, err := fs.Balloc(0)
	if err != 0 {
		return nil, err
	}
	if _, err := fs.allocInodeLocked(0, I_DIR, 0); err != 0 { // inum 1: root dir
		return nil, err
	}
	if err := fs.setRootExtent(rootExtent); err != 0 {
		return nil, err
	}
	if err := fs.writeDirentRaw(1, rootExtent, ".", 1); err != 0 {
		return nil, err
	}
	if err := fs.writeDirentRaw(1, rootExtent, "..", 1); err != 0 {
		return nil, err
	}
	if err := fs.log.Commit_tx(0); err != 0 {
		return nil, err
	}

	log.Infof("fs: formatted, %d data blocks", sb.Nblocks)
	return fs, 0
}

func (fs *Fs_t) Superblock() *Superblock_t {
	return fs.sb
}

// CrashN arms a crash after n more logged writes, the sys_crashn test hook
// (spec.md §6).
func (fs *Fs_t) CrashN(n int) {
	fs.log.SetCrashN(n)
}

// Write brackets ip.Writei in a transaction, mirroring Addfile's
// Begin_tx/Commit_tx pattern so every home-block write this kernel performs
// outside of Addfile is equally crash-safe (spec.md §4.5's "all writes go
// through the log"). ip.Writei itself only stages blocks via Log_write; it
// does not open or close the transaction, since a caller updating several
// inodes in one logical operation may want to batch them into one commit.
func (fs *Fs_t) Write(ip *Imemnode_t, pid int, src []byte, off int) (int, defs.Err_t) {
	fs.log.Begin_tx(pid)
	n, err := ip.Writei(fs, pid, src, off)
	if cerr := fs.log.Commit_tx(pid); err == 0 {
		err = cerr
	}
	return n, err
}

// SetCrashAfterCommit arms a crash right after the committed bit lands on
// disk but before the logged blocks are installed to their home locations,
// exercising spec.md §8 S6's second crash point.
func (fs *Fs_t) SetCrashAfterCommit(enabled bool) {
	fs.log.SetCrashAfterCommit(enabled)
}
