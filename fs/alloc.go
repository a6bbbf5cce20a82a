package fs

import (
	"teachos/defs"
)

// Balloc scans the free bitmap between bmapstart and inodestart one 32-bit
// word at a time; a zero word means its 32 blocks are all free. It claims
// the first such word by setting it to all-ones and returns the data-region
// block number the extent starts at. Grounded on the teacher's bitmap.go
// word/bit decomposition (blkno/byteno/byteoffset), but scanning whole
// 32-bit words instead of individual bits, per spec.md §4.4's "finds the
// first 32-bit word equal to 0 ... claims 32 consecutive blocks".
func (fs *Fs_t) Balloc(pid int) (int, defs.Err_t) {
	wordsPerBlock := defs.BSIZE / 4
	bmapBlocks := fs.sb.Inodestart - fs.sb.Bmapstart

	for bn := 0; bn < bmapBlocks; bn++ {
		b, err := fs.cache.Get(fs.sb.Bmapstart + bn)
		if err != 0 {
			return 0, err
		}
		b.Lock(pid)
		for w := 0; w < wordsPerBlock; w++ {
			off := w * 4
			word := getWord(b.Data(), off)
			if word == 0 {
				setWord(b.Data(), off, 0xFFFFFFFF)
				b.MarkDirty()
				fs.log.Log_write(b)
				b.Unlock()
				fs.cache.Relse(b)

				bit := bn*wordsPerBlock + w
				start := fs.sb.Inodestart + bit*defs.EXTSIZE
				if start+defs.EXTSIZE > fs.sb.Swapstart {
					panic("balloc: extent runs past data region")
				}
				return start, 0
			}
		}
		b.Unlock()
		fs.cache.Relse(b)
	}
	return 0, -defs.ENOSPC
}

// Bfree clears the bitmap word covering the extent starting at startblkno,
// the inverse of Balloc. Unused in this spec (files are never deleted) but
// kept symmetric with the allocator; nothing in the repository calls it.
func (fs *Fs_t) Bfree(pid int, startblkno int) defs.Err_t {
	wordsPerBlock := defs.BSIZE / 4
	bit := (startblkno - fs.sb.Inodestart) / defs.EXTSIZE
	bn := bit / wordsPerBlock
	w := bit % wordsPerBlock

	b, err := fs.cache.Get(fs.sb.Bmapstart + bn)
	if err != 0 {
		return err
	}
	b.Lock(pid)
	setWord(b.Data(), w*4, 0)
	b.MarkDirty()
	fs.log.Log_write(b)
	b.Unlock()
	fs.cache.Relse(b)
	return 0
}

func getWord(b *[defs.BSIZE]byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func setWord(b *[defs.BSIZE]byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}
