// Package vm is the per-process virtual address space: regions, per-page
// metadata (vpi), and the COW/swap-aware fault handler. The 4-level page
// table, CR3, and TLB invalidation instruction are the out-of-scope
// collaborators spec.md §1 names (real hardware is the teacher's vm.go/as.go
// unsafe.Pointer-backed Pmap_t); here a vspace is a plain Go map from
// page-aligned virtual address to Vpi_t, grounded on the teacher's Vminfo_t/region
// split in as.go and vm.go but without any real page-table walk.
package vm

import (
	"sync"

	"teachos/defs"
	"teachos/mem"
)

type RegionKind int

const (
	RegionCode RegionKind = iota
	RegionHeap
	RegionStack
)

// Region_t is (base, size, kind, permissions) (spec.md §3). Its vpis are not
// stored in the region; they live in the owning Vspace_t's page map.
type Region_t struct {
	Kind     RegionKind
	Base     uintptr
	Size     uintptr
	Writable bool
}

// Vpi_t is per-virtual-page metadata (spec.md §3): present, writable, cow,
// swapped, and either a physical frame or a swap slot index.
type Vpi_t struct {
	Present  bool
	Writable bool
	Cow      bool
	Swapped  bool
	Frame    mem.Pa_t
	SwapSlot int
	Va       uintptr
}

// Vspace_t is a process's address space: its regions plus the va->vpi table
// standing in for the page-table root (spec.md §3). StackLimit is the
// stack's base as Vspaceinitstack set it up; stack-growth faults extend the
// stack at most MAXSTACKPGS pages below it.
type Vspace_t struct {
	mu         sync.Mutex
	Code       *Region_t
	Heap       *Region_t
	Stack      *Region_t
	StackLimit uintptr
	pages      map[uintptr]*Vpi_t
}

func pageBase(va uintptr) uintptr {
	return va &^ uintptr(defs.PGSIZE-1)
}

// UserStackTop is the fixed top-of-stack address every vspace in this
// kernel gets, standing in for the teacher's per-arch USERTOP constant.
// There is no real canonical-address split to respect, so one arbitrary
// high value serves every process.
const UserStackTop uintptr = 1 << 39

// HeapBase is where a freshly execed or bootstrapped vspace's heap starts
// growing from; sbrk maps fresh pages upward from here (spec.md §6 sbrk).
const HeapBase uintptr = 1 << 30

// Vspaceinit creates a fresh, empty address space (spec.md §4.6).
func Vspaceinit() *Vspace_t {
	return &Vspace_t{pages: make(map[uintptr]*Vpi_t)}
}

func (vs *Vspace_t) Lock()   { vs.mu.Lock() }
func (vs *Vspace_t) Unlock() { vs.mu.Unlock() }

func (vs *Vspace_t) Lookup(va uintptr) (*Vpi_t, bool) {
	v, ok := vs.pages[pageBase(va)]
	return v, ok
}

// Vregionaddmap maps size bytes of fresh zeroed pages starting at va,
// kalloc'ing a frame per page (spec.md §4.6). reg is not read or updated;
// callers adjust the region's bounds themselves. Returns -ENOMEM if the
// allocator is exhausted.
func (vs *Vspace_t) Vregionaddmap(reg *Region_t, va uintptr, size uintptr, writable bool, user bool) defs.Err_t {
	start := pageBase(va)
	end := pageBase(va+size+defs.PGSIZE-1)
	for a := start; a < end; a += defs.PGSIZE {
		pa, _, ok := mem.Phys.Kalloc()
		if !ok {
			return -defs.ENOMEM
		}
		e := mem.Phys.Entry(pa)
		e.User = user
		e.Va = a
		vs.pages[a] = &Vpi_t{Present: true, Writable: writable, Frame: pa, Va: a}
	}
	return 0
}

// Vspaceinitstack reserves the top of user-space for the stack: a single
// guard-free page at the very top, growing down on fault up to
// MAXSTACKPGS (spec.md §4.6).
func Vspaceinitstack(vs *Vspace_t, top uintptr) defs.Err_t {
	base := top - defs.PGSIZE
	vs.Stack = &Region_t{Kind: RegionStack, Base: base, Size: defs.PGSIZE, Writable: true}
	vs.StackLimit = base
	return vs.Vregionaddmap(vs.Stack, base, defs.PGSIZE, true, true)
}

// Vspaceinitcode installs a small in-memory program (the out-of-scope
// assembly-generated "initcode", per the teacher's vspaceinitcode) directly
// at the code region's base, bypassing the file system entirely — used only
// to bootstrap the very first process.
func Vspaceinitcode(vs *Vspace_t, base uintptr, code []byte) defs.Err_t {
	size := uintptr(len(code))
	if size == 0 {
		size = defs.PGSIZE
	}
	vs.Code = &Region_t{Kind: RegionCode, Base: base, Size: size, Writable: false}
	if err := vs.Vregionaddmap(vs.Code, base, size, true, true); err != 0 {
		return err
	}
	return vs.writeBytes(base, code)
}

// writeBytes copies directly into already-mapped pages; used by the two
// bootstrap loaders (initcode, ELF) which map their own pages up front and
// never need to fault one in along the way.
func (vs *Vspace_t) writeBytes(va uintptr, data []byte) defs.Err_t {
	off := 0
	for off < len(data) {
		a := va + uintptr(off)
		base := pageBase(a)
		vpi, ok := vs.pages[base]
		if !ok {
			return -defs.EFAULT
		}
		pg := mem.Phys.Page(vpi.Frame)
		boff := int(a - base)
		n := defs.PGSIZE - boff
		if n > len(data)-off {
			n = len(data) - off
		}
		copy(pg[boff:boff+n], data[off:off+n])
		off += n
	}
	return 0
}

// Vspacewritetova performs kernel-side writes into a (possibly not
// currently installed) vspace, faulting pages in as needed (spec.md §4.6).
// Nothing in this kernel calls it: exec does not copy argv onto the new
// stack, and the log/fs layer never writes into a vspace.
func (vs *Vspace_t) Vspacewritetova(va uintptr, src []byte) defs.Err_t {
	off := 0
	for off < len(src) {
		a := va + uintptr(off)
		base := pageBase(a)
		vpi, ok := vs.pages[base]
		if !ok || !vpi.Present {
			if vs.Stack != nil && base >= vs.StackLimit-uintptr(defs.MAXSTACKPGS)*defs.PGSIZE && base < vs.Stack.Base+vs.Stack.Size {
				if err := vs.growStack(base); err != 0 {
					return err
				}
				vpi = vs.pages[base]
			} else {
				return -defs.EFAULT
			}
		}
		if vpi.Swapped {
			if err := vs.faultInSwap(vpi); err != 0 {
				return err
			}
		}
		pg := mem.Phys.Page(vpi.Frame)
		boff := int(a - base)
		n := defs.PGSIZE - boff
		if n > len(src)-off {
			n = len(src) - off
		}
		copy(pg[boff:boff+n], src[off:off+n])
		off += n
	}
	return 0
}

// Vspacesbrk grows the heap region by n bytes and returns the prior break,
// or just returns the current break without mapping anything for n<=0
// (spec.md §6 "sbrk(n) returns old heap break", §8 "sbrk by 0 returns the
// current break without mapping"), grounded on sys_sbrk in
// original_source/kernel/sysproc.c.
func (vs *Vspace_t) Vspacesbrk(n int) (uintptr, defs.Err_t) {
	if vs.Heap == nil {
		vs.Heap = &Region_t{Kind: RegionHeap, Base: HeapBase, Size: 0, Writable: true}
	}
	old := vs.Heap.Base + vs.Heap.Size
	if n <= 0 {
		return old, 0
	}
	if err := vs.Vregionaddmap(vs.Heap, old, uintptr(n), true, true); err != 0 {
		return 0, err
	}
	vs.Heap.Size += uintptr(n)
	return old, 0
}
