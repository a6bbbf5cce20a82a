package fs

import (
	"teachos/defs"
	"teachos/util"
)

type Itype_t int16

const (
	I_FREE Itype_t = iota
	I_FILE
	I_DIR
	I_DEV
)

// Extent_t is a contiguous run of EXTSIZE blocks once allocated; Nblocks==0
// marks an unallocated extent slot (spec.md §3, §6).
type Extent_t struct {
	Startblkno uint32
	Nblocks    uint32
}

// Dinode_t is the 64-byte packed on-disk inode record: type, device id, size,
// six extents, padded (spec.md §6 "Dinode (packed, 64 bytes)").
type Dinode_t struct {
	Type  Itype_t
	Devid int16
	Size  uint32
	Exts  [defs.NEXTENT]Extent_t
}

const DinodeSize = 64 // 2 + 2 + 4 + 6*8 = 56, padded to 64

// dinodesPerBlock is how many packed 64-byte records fit in a BSIZE block.
const dinodesPerBlock = defs.BSIZE / DinodeSize

func (di *Dinode_t) decode(b []byte) {
	di.Type = Itype_t(util.Readn(b, 2, 0))
	di.Devid = int16(util.Readn(b, 2, 2))
	di.Size = uint32(util.Readn(b, 4, 4))
	for i := 0; i < defs.NEXTENT; i++ {
		off := 8 + i*8
		di.Exts[i].Startblkno = uint32(util.Readn(b, 4, off))
		di.Exts[i].Nblocks = uint32(util.Readn(b, 4, off+4))
	}
}

func (di *Dinode_t) encode(b []byte) {
	util.Writen(b, 2, 0, int(di.Type))
	util.Writen(b, 2, 2, int(di.Devid))
	util.Writen(b, 4, 4, int(di.Size))
	for i := 0; i < defs.NEXTENT; i++ {
		off := 8 + i*8
		util.Writen(b, 4, off, int(di.Exts[i].Startblkno))
		util.Writen(b, 4, off+4, int(di.Exts[i].Nblocks))
	}
}

// inodeBlockSlot returns which block of the inode file holds inum, and the
// byte offset of its Dinode_t record within that block.
func inodeBlockSlot(inum defs.Inum_t) (blockIdx int, byteOff int) {
	i := int(inum)
	return i / dinodesPerBlock, (i % dinodesPerBlock) * DinodeSize
}
