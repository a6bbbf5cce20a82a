// Package mem is the physical page allocator: a fixed core map of frames
// backed by plain Go-managed storage rather than the teacher's real
// direct-mapped physical memory. The bootloader, E820 map, and CR3/TLB are
// the out-of-scope collaborators spec.md §1 names, so frames here are
// ordinary heap-allocated [PGSIZE]byte pages indexed by frame number rather
// than unsafe.Pointer arithmetic over a recursive page-table mapping —
// grounded on the teacher's mem.go Physmem_t core map (Refcnt, Refup,
// Refdown, Pgs array) with the dmap.go hardware direct-map machinery
// dropped per spec.md §1.
package mem

import (
	"teachos/defs"
)

// Pa_t is a frame number, not a byte address: frame i's bytes live at
// Phys.pages[i]. Kept as a distinct type, as in the teacher's code, so
// call sites can't accidentally treat it as a byte offset.
type Pa_t int

type Page_t [defs.PGSIZE]byte

// Coreentry_t is one core-map entry (spec.md §3): available ⇒ ref=0;
// allocated ⇒ ref≥1; user=1 implies va≠0 and eligible for eviction.
// Pinned replaces the spec's "cow_ppn hazard word" with the cleaner
// per-frame pin spec.md §9 recommends: set for the duration of a
// ppage_copy so the source frame cannot be evicted mid-copy.
type Coreentry_t struct {
	Available bool
	Ref       int
	User      bool
	Va        uintptr
	Pinned    bool
}

const NFRAME = defs.PHYSCAP / defs.PGSIZE

// MarkSwappedFunc is called on every process's vspace when a frame is
// evicted to swap, so that every vpi which mapped the old frame number is
// updated to point at the new swap slot instead (spec.md §4.5 "invokes
// markswapped on every process's vspace"). Wired by the kernel package at
// boot; nil until then, which every caller that can reach eviction during
// init must tolerate by doing nothing.
type MarkSwappedFunc func(old Pa_t, slot int)

type Phys_t struct {
	frames  [NFRAME]Coreentry_t
	pages   [NFRAME]*Page_t
	nextHint int

	swap        *Swapmem_t
	markSwapped MarkSwappedFunc
	reinstall   func()
	rng         Rng_i
}

// NewPhys builds an empty core map with every frame born free, per spec.md
// §3's lifecycle summary ("a frame is born free"), except frame 0: reserved
// as the permanent zero page, grounded on the teacher's Zerobpg/P_zeropg
// convention, and matching spec.md §4.5's exclusion of "page-0" from
// eviction victim sampling — a reservation, not just a sampling rule.
func NewPhys() *Phys_t {
	p := &Phys_t{rng: NewLcg(1)}
	for i := 1; i < NFRAME; i++ {
		p.frames[i].Available = true
	}
	return p
}

// Phys is the process-wide singleton, matching spec.md §9's "global mutable
// state" note for the core map: zero-initialized at boot, never torn down.
var Phys = NewPhys()

func (p *Phys_t) SetMarkSwapped(f MarkSwappedFunc) {
	p.markSwapped = f
}

func (p *Phys_t) AttachSwap(s *Swapmem_t) {
	p.swap = s
}

// SetReinstall registers the callback that reloads the currently-installed
// vspace's page tables after eviction patches them (spec.md §4.5 "finally
// reinstalls the current vspace's page tables"). Wired by the kernel
// package; vm.Vspaceinstall is the real implementation.
func (p *Phys_t) SetReinstall(f func()) {
	p.reinstall = f
}

// SetRng overrides the default LCG, the injection point spec.md §9 requires
// for deterministic test scenarios.
func (p *Phys_t) SetRng(r Rng_i) {
	p.rng = r
}

// Kalloc scans the core map for a free frame, marks it allocated with
// ref=1, and returns its frame number zeroed. On full memory, evicts a
// victim first (spec.md §4.5).
func (p *Phys_t) Kalloc() (Pa_t, *Page_t, bool) {
	if pa, pg, ok := p.tryAlloc(); ok {
		return pa, pg, ok
	}
	if !p.Evictpage(true) {
		return 0, nil, false
	}
	return p.tryAlloc()
}

func (p *Phys_t) tryAlloc() (Pa_t, *Page_t, bool) {
	n := NFRAME
	for i := 0; i < n; i++ {
		idx := (p.nextHint + i) % n
		e := &p.frames[idx]
		if e.Available {
			e.Available = false
			e.Ref = 1
			e.User = false
			e.Va = 0
			e.Pinned = false
			if p.pages[idx] == nil {
				p.pages[idx] = &Page_t{}
			} else {
				*p.pages[idx] = Page_t{}
			}
			p.nextHint = (idx + 1) % n
			return Pa_t(idx), p.pages[idx], true
		}
	}
	return 0, nil, false
}

func (p *Phys_t) Page(pa Pa_t) *Page_t {
	return p.pages[pa]
}

func (p *Phys_t) Entry(pa Pa_t) *Coreentry_t {
	return &p.frames[pa]
}

func (p *Phys_t) Refup(pa Pa_t) {
	e := &p.frames[pa]
	if e.Available {
		panic("refup: frame not allocated")
	}
	e.Ref++
}

// Refdown drops a reference, freeing the frame at zero. Returns true if the
// frame was freed.
func (p *Phys_t) Refdown(pa Pa_t) bool {
	e := &p.frames[pa]
	if e.Ref <= 0 {
		panic("refdown: frame already free")
	}
	e.Ref--
	if e.Ref == 0 {
		p.Kfree(pa)
		return true
	}
	return false
}

// Stats_t summarizes core map and swap occupancy for the teachos stats
// command; there is no per-call locking since the caller is expected to
// query it from a quiescent kernel, same as the teacher's stats package did.
type Stats_t struct {
	FramesTotal int
	FramesFree  int
	FramesUsed  int
	SwapTotal   int
	SwapUsed    int
}

func (p *Phys_t) Stats() Stats_t {
	st := Stats_t{FramesTotal: NFRAME - 1}
	for i := 1; i < NFRAME; i++ {
		if p.frames[i].Available {
			st.FramesFree++
		} else {
			st.FramesUsed++
		}
	}
	if p.swap != nil {
		st.SwapTotal, st.SwapUsed = p.swap.Stats()
	}
	return st
}

// Kfree scrubs and frees a frame unconditionally (used when the caller
// already knows ref has reached zero). Fills with 0x02 so dangling readers
// observe garbage rather than silently-correct stale data (spec.md §4.5).
func (p *Phys_t) Kfree(pa Pa_t) {
	e := &p.frames[pa]
	pg := p.pages[pa]
	for i := range pg {
		pg[i] = 0x02
	}
	e.Available = true
	e.Ref = 0
	e.User = false
	e.Va = 0
	e.Pinned = false
}
