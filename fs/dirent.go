package fs

import (
	"teachos/defs"
	"teachos/util"
)

// Dirent_t is the fixed 16-byte directory record: inum (2 bytes) + name (14
// bytes, NUL-padded) (spec.md §3, §6). inum==0 marks a free slot, mirroring
// the teacher's dir.go convention where an empty dirent is recognizable
// without a separate free-list bitmap.
type Dirent_t struct {
	Inum defs.Inum_t
	Name [defs.DIRSIZ]byte
}

const DirentSize = 2 + defs.DIRSIZ // 16
const direntsPerBlock = defs.BSIZE / DirentSize

func (de *Dirent_t) decode(b []byte) {
	de.Inum = defs.Inum_t(util.Readn(b, 2, 0))
	copy(de.Name[:], b[2:2+defs.DIRSIZ])
}

func (de *Dirent_t) encode(b []byte) {
	util.Writen(b, 2, 0, int(de.Inum))
	copy(b[2:2+defs.DIRSIZ], de.Name[:])
	for i := len(de.Name); i < defs.DIRSIZ; i++ {
		b[2+i] = 0
	}
}

func nameToBytes(name string) [defs.DIRSIZ]byte {
	var out [defs.DIRSIZ]byte
	n := len(name)
	if n > defs.DIRSIZ {
		n = defs.DIRSIZ
	}
	copy(out[:], name[:n])
	return out
}

func direntName(de *Dirent_t) string {
	n := 0
	for n < defs.DIRSIZ && de.Name[n] != 0 {
		n++
	}
	return string(de.Name[:n])
}
