package mem

import (
	"teachos/block"
	"teachos/defs"
)

// Swapentry_t mirrors a core-map entry for a swap slot (spec.md §3): used,
// ref count, and the virtual address last mapped there.
type Swapentry_t struct {
	Used bool
	Ref  int
	Va   uintptr
}

// Swapmem_t is the fixed NSWAP-slot swap map, each slot SWAPBLKS blocks on
// disk starting at swapStart (spec.md §3, §6). Backed by the same disk the
// file system uses; the swap region is a fixed byte range the superblock
// carves out, not a separate device.
type Swapmem_t struct {
	slots     [defs.NSWAP]Swapentry_t
	disk      block.Disk_i
	swapStart int
}

func NewSwapmem(disk block.Disk_i, swapStart int) *Swapmem_t {
	return &Swapmem_t{disk: disk, swapStart: swapStart}
}

func (s *Swapmem_t) allocSlot() (int, bool) {
	for i := range s.slots {
		if !s.slots[i].Used {
			s.slots[i].Used = true
			return i, true
		}
	}
	return 0, false
}

func (s *Swapmem_t) freeSlot(slot int) {
	s.slots[slot] = Swapentry_t{}
}

// RefupSwap bumps a swap slot's ref count, the swap-map equivalent of
// Refup, used when fork shares a still-swapped-out page with a child
// (spec.md §4.6 vspacecopy_cow "incrementing per-frame refs (including swap
// entries)").
func (p *Phys_t) RefupSwap(slot int) {
	p.swap.slots[slot].Ref++
}

func (s *Swapmem_t) Entry(slot int) *Swapentry_t {
	return &s.slots[slot]
}

// Stats reports total and used swap slots, for Phys_t.Stats.
func (s *Swapmem_t) Stats() (total, used int) {
	total = len(s.slots)
	for i := range s.slots {
		if s.slots[i].Used {
			used++
		}
	}
	return total, used
}

// writeSlot performs the 8 sequential block writes starting at
// swapstart+8*slot spec.md §4.5 names ("swapwrite").
func (s *Swapmem_t) writeSlot(slot int, pg *Page_t) defs.Err_t {
	base := s.swapStart + defs.SWAPBLKS*slot
	for i := 0; i < defs.SWAPBLKS; i++ {
		b := &block.Block_t{Blockno: base + i}
		copy(b.Data[:], pg[i*defs.BSIZE:(i+1)*defs.BSIZE])
		if err := s.disk.Bwrite(b); err != 0 {
			return err
		}
	}
	return 0
}

func (s *Swapmem_t) readSlot(slot int, pg *Page_t) defs.Err_t {
	base := s.swapStart + defs.SWAPBLKS*slot
	for i := 0; i < defs.SWAPBLKS; i++ {
		b, err := s.disk.Bread(base + i)
		if err != 0 {
			return err
		}
		copy(pg[i*defs.BSIZE:(i+1)*defs.BSIZE], b.Data[:])
	}
	return 0
}

// Evictpage picks a victim by uniform random sampling of the core map,
// rejecting kernel/free frames (va==0), the pinned copy-in-flight source
// frame, page 0, and already-free entries; retries up to 100 samples and
// panics otherwise (spec.md §4.5). The victim frame is always returned to
// the free pool; iskalloc is accepted for symmetry with the teacher's call
// convention and is not read (Kalloc retries tryAlloc right after).
func (p *Phys_t) Evictpage(iskalloc bool) bool {
	if p.swap == nil {
		return false
	}
	const maxSamples = 100
	for attempt := 0; attempt < maxSamples; attempt++ {
		idx := p.rng.Next(NFRAME)
		if idx == 0 {
			continue // page 0 is never evicted
		}
		e := &p.frames[idx]
		if e.Available || !e.User || e.Va == 0 || e.Pinned {
			continue
		}

		slot, ok := p.swap.allocSlot()
		if !ok {
			panic("evictpage: out of swap")
		}
		if err := p.swap.writeSlot(slot, p.pages[idx]); err != 0 {
			panic("evictpage: swap write failed")
		}
		se := p.swap.Entry(slot)
		se.Ref = e.Ref
		se.Va = e.Va

		pa := Pa_t(idx)
		*e = Coreentry_t{Available: true}

		if p.markSwapped != nil {
			p.markSwapped(pa, slot)
		}
		if p.reinstall != nil {
			p.reinstall()
		}
		return true
	}
	panic("evictpage: no evictable frame after 100 samples")
}

// Ppage_copy breaks copy-on-write sharing: if the frame has ref>1, pin it
// (spec.md §9's replacement for the global cow_ppn hazard word), allocate a
// fresh frame, copy the page, drop the original's ref, and report the new
// frame number. No-op if the frame is not actually shared.
func (p *Phys_t) Ppage_copy(ppn *Pa_t) bool {
	old := *ppn
	e := &p.frames[old]
	if e.Ref <= 1 {
		return false
	}
	e.Pinned = true
	newPa, newPg, ok := p.Kalloc()
	if !ok {
		e.Pinned = false
		return false
	}
	*newPg = *p.pages[old]
	e.Pinned = false
	p.Refdown(old)
	*ppn = newPa
	return true
}

// Swappage_copy brings a swapped-out page back in: allocate a new frame,
// copy the swap entry's metadata (ref, va), free the swap slot, read the 8
// blocks back, and report the new frame number for the caller to patch into
// the faulting vpi (spec.md §4.5).
func (p *Phys_t) Swappage_copy(slot int) (Pa_t, bool) {
	se := p.swap.Entry(slot)
	pa, pg, ok := p.Kalloc()
	if !ok {
		return 0, false
	}
	e := p.Entry(pa)
	e.Ref = se.Ref
	e.Va = se.Va
	e.User = true
	if err := p.swap.readSlot(slot, pg); err != 0 {
		panic("swappage_copy: swap read failed")
	}
	p.swap.freeSlot(slot)
	return pa, true
}
