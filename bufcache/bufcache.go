// Package bufcache is a fixed-size buffer cache keyed by (dev, blockno): at
// most one in-memory copy of any block exists at a time, so that readers and
// the journal's writer see each other's updates. Grounded on fs/refcache.go's
// refcounted object cache, generalized from refcache's arbitrary int-keyed
// objects down to disk blocks keyed by block number (this kernel has exactly
// one device, so dev is carried for interface symmetry and always 0).
package bufcache

import (
	"container/list"
	"sync"

	"teachos/block"
	"teachos/defs"
	"teachos/lock"
)

// Buf_t is one cached block: a sleeplock guarding the data, plus bookkeeping
// the cache needs to decide what to evict. Valid means Data reflects the disk;
// Dirty means Data has been changed since the last Bwrite and the journal (not
// the cache) owns flushing it back.
type Buf_t struct {
	sl      *lock.Sleeplock_t
	Dev     int
	Blockno int
	Valid   bool
	Dirty   bool

	refcnt int
	elem   *list.Element
	data   block.Block_t
}

func (b *Buf_t) Data() *[defs.BSIZE]byte {
	return &b.data.Data
}

func (b *Buf_t) Lock(pid int)   { b.sl.Acquire(pid) }
func (b *Buf_t) Unlock()        { b.sl.Release() }

// Cache_t is the fixed NBUF-entry pool. Lookup misses evict the least
// recently used zero-refcount entry before filling the slot from disk, same
// as refcache_t.Lookup's mkobj-on-miss path but with an explicit LRU list in
// place of refcache's reflru_t, since blocks have no refcache_debug-style
// eviction policy knobs to carry over.
type Cache_t struct {
	mu    sync.Mutex
	disk  block.Disk_i
	cap   int
	bufs  map[int]*Buf_t // blockno -> buf, single device
	order *list.List     // front = most recently used
}

func NewCache(disk block.Disk_i, nbuf int) *Cache_t {
	return &Cache_t{
		disk:  disk,
		cap:   nbuf,
		bufs:  make(map[int]*Buf_t, nbuf),
		order: list.New(),
	}
}

// Get returns the cached buffer for blockno, reading it from disk on a miss,
// and bumps its refcount. Callers must Lock it before touching Data and
// Relse it when done; Relse drops the refcount and, if it falls to zero,
// makes the entry eligible for eviction on a future miss.
func (c *Cache_t) Get(blockno int) (*Buf_t, defs.Err_t) {
	c.mu.Lock()
	if b, ok := c.bufs[blockno]; ok {
		b.refcnt++
		c.order.MoveToFront(b.elem)
		c.mu.Unlock()
		return b, 0
	}
	if len(c.bufs) >= c.cap {
		if err := c.evict(); err != 0 {
			c.mu.Unlock()
			return nil, err
		}
	}
	b := &Buf_t{sl: lock.NewSleeplock("buf"), Blockno: blockno, refcnt: 1}
	c.bufs[blockno] = b
	b.elem = c.order.PushFront(b)
	c.mu.Unlock()

	blk, err := c.disk.Bread(blockno)
	if err != 0 {
		c.mu.Lock()
		delete(c.bufs, blockno)
		c.order.Remove(b.elem)
		c.mu.Unlock()
		return nil, err
	}
	b.data = *blk
	b.Valid = true
	return b, 0
}

// evict drops the least-recently-used zero-refcount entry. Called with mu
// held. Panics if every cached entry is pinned: a full cache of referenced
// blocks means a caller leaked a reference, which refcache_t.Refdown's
// "ref ressurection" panic treats the same way.
func (c *Cache_t) evict() defs.Err_t {
	for e := c.order.Back(); e != nil; e = e.Prev() {
		b := e.Value.(*Buf_t)
		if b.refcnt == 0 {
			if b.Dirty {
				panic("bufcache: evicting dirty block")
			}
			delete(c.bufs, b.Blockno)
			c.order.Remove(e)
			return 0
		}
	}
	panic("bufcache: no evictable buffer, cache exhausted")
}

// MarkDirty marks b dirty and schedules nothing further: the journal owns the
// actual Bwrite during commit. Used by callers writing through the log.
func (b *Buf_t) MarkDirty() {
	b.Dirty = true
}

// Relse drops a reference taken by Get. The buffer stays cached (for LRU
// reuse) until Cache_t.evict needs the slot.
func (c *Cache_t) Relse(b *Buf_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.refcnt <= 0 {
		panic("bufcache: relse with zero refcount")
	}
	b.refcnt--
}

// FlushOne writes b straight to disk, bypassing the journal, and clears its
// dirty bit. Used by the journal during commit and recovery, and by the fs
// package's Format and WriteSuper.
func (c *Cache_t) FlushOne(b *Buf_t) defs.Err_t {
	b.data.Blockno = b.Blockno
	if err := c.disk.Bwrite(&b.data); err != 0 {
		return err
	}
	b.Dirty = false
	return 0
}

func (c *Cache_t) Disk() block.Disk_i {
	return c.disk
}
