// Package block defines the disk abstraction the filesystem is built on:
// fixed BSIZE-byte sectors, read and written synchronously through a Disk_i.
// The real IDE/ATA controller and its interrupt-driven completion queue are
// the out-of-scope collaborator spec.md §1 names; cmd/teachos wires a
// file-backed Disk_i over a flat disk-image file as the in-scope stand-in.
package block

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"teachos/defs"
)

// Block_t is one BSIZE-byte sector, identified by its block number. It
// carries no lock of its own; bufcache.Buf_t wraps a Block_t with the
// sleeplock callers actually acquire before touching Data.
type Block_t struct {
	Blockno int
	Data    [defs.BSIZE]byte
}

// Disk_i is the synchronous block device contract: read a sector, write a
// sector, flush whatever write cache sits beneath it. A real driver would
// queue the request and return on interrupt; every Disk_i implementation in
// this kernel blocks the caller until the operation lands, which is the
// simplification spec.md §1 grants by excluding the driver itself.
type Disk_i interface {
	Bread(blockno int) (*Block_t, defs.Err_t)
	Bwrite(b *Block_t) defs.Err_t
	Flush() defs.Err_t
	Nblocks() int
}

// FileDisk_t backs a Disk_i with a flat file on the host filesystem, one
// BSIZE-byte region per block number. Grounded on ufs/driver.go's
// ahci_disk_t: a mutex serializes seek-then-read/write so concurrent callers
// can't interleave a seek from one request with the I/O of another.
type FileDisk_t struct {
	mu sync.Mutex
	f  *os.File
	nb int
}

// OpenFileDisk opens (creating if necessary) path as a disk image of nblocks
// BSIZE-byte blocks, zero-extending a short or new file.
func OpenFileDisk(path string, nblocks int) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "block: open %s", path)
	}
	want := int64(nblocks) * defs.BSIZE
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "block: stat")
	}
	if fi.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "block: truncate")
		}
	}
	return &FileDisk_t{f: f, nb: nblocks}, nil
}

func (d *FileDisk_t) Nblocks() int {
	return d.nb
}

func (d *FileDisk_t) seek(blockno int) error {
	_, err := d.f.Seek(int64(blockno)*defs.BSIZE, 0)
	return err
}

func (d *FileDisk_t) Bread(blockno int) (*Block_t, defs.Err_t) {
	if blockno < 0 || blockno >= d.nb {
		return nil, -defs.EIO
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.seek(blockno); err != nil {
		return nil, -defs.EIO
	}
	b := &Block_t{Blockno: blockno}
	n, err := d.f.Read(b.Data[:])
	if n != defs.BSIZE || err != nil {
		return nil, -defs.EIO
	}
	return b, 0
}

func (d *FileDisk_t) Bwrite(b *Block_t) defs.Err_t {
	if b.Blockno < 0 || b.Blockno >= d.nb {
		return -defs.EIO
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.seek(b.Blockno); err != nil {
		return -defs.EIO
	}
	n, err := d.f.Write(b.Data[:])
	if n != defs.BSIZE || err != nil {
		return -defs.EIO
	}
	return 0
}

func (d *FileDisk_t) Flush() defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.f.Sync(); err != nil {
		return -defs.EIO
	}
	return 0
}

func (d *FileDisk_t) Close() error {
	return d.f.Close()
}

// MemDisk_t is a RAM-backed Disk_i for tests: no file, no fsync, a plain
// slice of blocks.
type MemDisk_t struct {
	mu     sync.Mutex
	blocks [][defs.BSIZE]byte
}

func NewMemDisk(nblocks int) *MemDisk_t {
	return &MemDisk_t{blocks: make([][defs.BSIZE]byte, nblocks)}
}

func (d *MemDisk_t) Nblocks() int {
	return len(d.blocks)
}

func (d *MemDisk_t) Bread(blockno int) (*Block_t, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if blockno < 0 || blockno >= len(d.blocks) {
		return nil, -defs.EIO
	}
	b := &Block_t{Blockno: blockno}
	b.Data = d.blocks[blockno]
	return b, 0
}

func (d *MemDisk_t) Bwrite(b *Block_t) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.Blockno < 0 || b.Blockno >= len(d.blocks) {
		return -defs.EIO
	}
	d.blocks[b.Blockno] = b.Data
	return 0
}

func (d *MemDisk_t) Flush() defs.Err_t {
	return 0
}
