package vm

import (
	"sync"

	"teachos/defs"
	"teachos/mem"
)

var registryMu sync.Mutex
var registry = map[*Vspace_t]bool{}
var current *Vspace_t

// Register/Unregister track every live vspace so MarkSwapped (called from
// mem.Evictpage) can patch every process's vpis, per spec.md §4.5 "invokes
// markswapped on every process's vspace". Register is called by
// proc.Userinit, proc.Fork and exec; Unregister by proc.Freeproc and exec.
func Register(vs *Vspace_t) {
	registryMu.Lock()
	registry[vs] = true
	registryMu.Unlock()
}

func Unregister(vs *Vspace_t) {
	registryMu.Lock()
	delete(registry, vs)
	registryMu.Unlock()
}

// Vspaceinstall loads vs as the simulated CR3 and Vspaceinvalidate flushes
// the (equally simulated) TLB. There is exactly one "currently installed"
// vspace because this kernel's SMP story, per spec.md §1, is a single
// big-kernel-lock-style discipline rather than real per-core state.
func Vspaceinstall(vs *Vspace_t) {
	registryMu.Lock()
	current = vs
	registryMu.Unlock()
}

func Vspaceinvalidate() {
	// no real TLB to flush; present for call-site symmetry with the
	// teacher's tlbshoot/invalidate pairing.
}

// MarkSwapped is mem.MarkSwappedFunc's implementation: every vpi across
// every registered vspace that referenced the evicted frame is flipped to
// point at the swap slot instead (spec.md §4.5).
func MarkSwapped(old mem.Pa_t, slot int) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for vs := range registry {
		vs.mu.Lock()
		for _, vpi := range vs.pages {
			if !vpi.Swapped && vpi.Frame == old {
				vpi.Swapped = true
				vpi.Present = false
				vpi.SwapSlot = slot
			}
		}
		vs.mu.Unlock()
	}
}

// Reinstall is mem.Phys_t's post-eviction hook: reload whichever vspace is
// currently installed, matching spec.md §4.5's "finally reinstalls the
// current vspace's page tables".
func Reinstall() {
	registryMu.Lock()
	cur := current
	registryMu.Unlock()
	if cur != nil {
		Vspaceinstall(cur)
	}
}

// Vspacecopy_cow duplicates src into dst by sharing every present user
// frame: both parents' and the child's vpis are cleared writable and marked
// cow, and the frame's ref is bumped (spec.md §4.6, §4.7 fork).
func Vspacecopy_cow(dst, src *Vspace_t) defs.Err_t {
	src.mu.Lock()
	defer src.mu.Unlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()

	if src.Code != nil {
		r := *src.Code
		dst.Code = &r
	}
	if src.Heap != nil {
		r := *src.Heap
		dst.Heap = &r
	}
	if src.Stack != nil {
		r := *src.Stack
		dst.Stack = &r
	}
	dst.StackLimit = src.StackLimit

	for va, vpi := range src.pages {
		if vpi.Swapped {
			mem.Phys.RefupSwap(vpi.SwapSlot)
			childVpi := &Vpi_t{Swapped: true, SwapSlot: vpi.SwapSlot, Va: vpi.Va}
			dst.pages[va] = childVpi
			continue
		}
		vpi.Writable = false
		vpi.Cow = true
		mem.Phys.Refup(vpi.Frame)
		childVpi := &Vpi_t{Present: true, Writable: false, Cow: true, Frame: vpi.Frame, Va: vpi.Va}
		dst.pages[va] = childVpi
	}
	return 0
}

// Ppage_copy_fault handles a write fault on a cow vpi: break the sharing via
// mem.Ppage_copy, clear cow, set writable, and invalidate (spec.md §4.8
// "write to present, read-only").
func (vs *Vspace_t) Ppage_copy_fault(vpi *Vpi_t) defs.Err_t {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if !vpi.Cow {
		return -defs.EFAULT
	}
	mem.Phys.Ppage_copy(&vpi.Frame)
	vpi.Cow = false
	vpi.Writable = true
	Vspaceinvalidate()
	return 0
}

func (vs *Vspace_t) faultInSwap(vpi *Vpi_t) defs.Err_t {
	pa, ok := mem.Phys.Swappage_copy(vpi.SwapSlot)
	if !ok {
		return -defs.ENOMEM
	}
	vpi.Swapped = false
	vpi.Present = true
	vpi.Frame = pa
	Vspaceinvalidate()
	return 0
}

// growStack extends the stack region down to cover base, refusing beyond
// MAXSTACKPGS total growth (spec.md §4.6, §4.8).
func (vs *Vspace_t) growStack(base uintptr) defs.Err_t {
	if vs.Stack == nil {
		return -defs.EFAULT
	}
	if base < vs.StackLimit-uintptr(defs.MAXSTACKPGS)*defs.PGSIZE {
		return -defs.EFAULT
	}
	grow := vs.Stack.Base - base
	newBase := base
	if err := vs.Vregionaddmap(vs.Stack, newBase, grow, true, true); err != 0 {
		return err
	}
	vs.Stack.Base = newBase
	vs.Stack.Size += grow
	return 0
}

// Sys_pgfault dispatches a page fault by the error-code bits spec.md §4.8
// defines:
//   - not-present, from user mode: swap-in if swapped, else grow the stack
//     if within MAXSTACKPGS below the stack base, else a user bug.
//   - present and write, read-only: cow break, else a user bug.
//   - from kernel mode (ring 0): always a caller bug, reported as such —
//     the trap package turns that into a panic, since spec.md §4.8 requires
//     a kernel-mode fault to panic, not merely fail.
func (vs *Vspace_t) Sys_pgfault(faultaddr uintptr, ecode defs.Err_t) defs.Err_t {
	if ecode&defs.PF_USER == 0 {
		return -defs.EFAULT // caller must panic; see trap.DispatchPagefault
	}

	vs.mu.Lock()
	vpi, ok := vs.Lookup(faultaddr)
	vs.mu.Unlock()

	notPresent := ecode&defs.PF_PRESENT == 0
	isWrite := ecode&defs.PF_WRITE != 0

	if notPresent {
		if ok && vpi.Swapped {
			vs.mu.Lock()
			err := vs.faultInSwap(vpi)
			vs.mu.Unlock()
			return err
		}
		base := pageBase(faultaddr)
		if vs.Stack != nil && base < vs.Stack.Base &&
			base >= vs.Stack.Base-uintptr(defs.MAXSTACKPGS)*defs.PGSIZE {
			vs.mu.Lock()
			err := vs.growStack(base)
			vs.mu.Unlock()
			return err
		}
		return -defs.EFAULT
	}

	if isWrite && ok && vpi.Cow {
		return vs.Ppage_copy_fault(vpi)
	}
	return -defs.EFAULT
}
