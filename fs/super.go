// Package fs is the extent-based, journaled file system: the inode file,
// directory lookup, and path walking built atop fslog and bufcache. Grounded
// throughout on the teacher's fs/ package (super.go's field-accessor style,
// dir.go's packed dirent helpers, inode.go's icache/readi/writei walk,
// bitmap.go's word-at-a-time scan) with the teacher's refcounted-object
// generality and channel-driven log collapsed down to the fixed six-extent,
// single-transaction-per-syscall design spec.md §4.4 describes.
package fs

import (
	"teachos/bufcache"
	"teachos/defs"
	"teachos/util"
)

// Superblock_t is the six little-endian 32-bit fields at block 1, read once
// at boot and treated as immutable afterward (spec.md §3, §6).
type Superblock_t struct {
	Size       int
	Nblocks    int
	Bmapstart  int
	Inodestart int
	Swapstart  int
	Logstart   int
}

const superFields = 6

func (sb *Superblock_t) decode(b *[defs.BSIZE]byte) {
	sb.Size = util.Readn(b[:], 4, 0)
	sb.Nblocks = util.Readn(b[:], 4, 4)
	sb.Bmapstart = util.Readn(b[:], 4, 8)
	sb.Inodestart = util.Readn(b[:], 4, 12)
	sb.Swapstart = util.Readn(b[:], 4, 16)
	sb.Logstart = util.Readn(b[:], 4, 20)
}

func (sb *Superblock_t) encode(b *[defs.BSIZE]byte) {
	util.Writen(b[:], 4, 0, sb.Size)
	util.Writen(b[:], 4, 4, sb.Nblocks)
	util.Writen(b[:], 4, 8, sb.Bmapstart)
	util.Writen(b[:], 4, 12, sb.Inodestart)
	util.Writen(b[:], 4, 16, sb.Swapstart)
	util.Writen(b[:], 4, 20, sb.Logstart)
}

const SuperBlockno = 1

// ReadSuper reads the superblock directly through the cache, bypassing the
// log: the superblock is written once, at format time, never logged.
func ReadSuper(c *bufcache.Cache_t) (*Superblock_t, defs.Err_t) {
	b, err := c.Get(SuperBlockno)
	if err != 0 {
		return nil, err
	}
	b.Lock(0)
	sb := &Superblock_t{}
	sb.decode(b.Data())
	b.Unlock()
	c.Relse(b)
	return sb, 0
}

// WriteSuper is used only by Format to lay down a fresh superblock.
func WriteSuper(c *bufcache.Cache_t, sb *Superblock_t) defs.Err_t {
	b, err := c.Get(SuperBlockno)
	if err != 0 {
		return err
	}
	b.Lock(0)
	sb.encode(b.Data())
	b.MarkDirty()
	err = c.FlushOne(b)
	b.Unlock()
	c.Relse(b)
	return err
}

// Layout computes a superblock for a disk of nblocks total blocks, following
// spec.md §3's fixed order: boot | superblock | bitmap | inode file | data |
// swap | log.
func Layout(nblocks int) *Superblock_t {
	const bootBlocks = 1
	const superBlocks = 1

	dataBlocks := nblocks - bootBlocks - superBlocks
	// bitmap: one bit per data-region block, sized to cover everything after
	// it (inode file + data + swap + log); solved by fixed-point since the
	// bitmap's own size depends on how many blocks remain.
	bmapBlocks := 0
	for {
		remaining := dataBlocks - bmapBlocks
		need := util.Roundup(remaining, defs.BSIZE*8) / (defs.BSIZE * 8)
		if need == bmapBlocks {
			break
		}
		bmapBlocks = need
	}

	bmapstart := bootBlocks + superBlocks
	inodestart := bmapstart + bmapBlocks

	swapBlocks := defs.NSWAP * defs.SWAPBLKS
	logBlocks := 1 + defs.NLOGSLOT

	swapstart := nblocks - swapBlocks - logBlocks
	logstart := nblocks - logBlocks

	return &Superblock_t{
		Size:       nblocks,
		Nblocks:    dataBlocks,
		Bmapstart:  bmapstart,
		Inodestart: inodestart,
		Swapstart:  swapstart,
		Logstart:   logstart,
	}
}
