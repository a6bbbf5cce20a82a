package mem

import (
	"testing"

	"teachos/block"
)

func freshPhys(nframes int, swapBlocks int) *Phys_t {
	p := NewPhys()
	disk := block.NewMemDisk(swapBlocks + 64)
	p.AttachSwap(NewSwapmem(disk, 64))
	return p
}

// fixedRng always picks the same frame, so an eviction test names its victim
// instead of relying on 100 uniform samples over NFRAME to hit it.
type fixedRng int

func (r fixedRng) Next(bound int) int { return int(r) % bound }

func TestKallocMarksAllocated(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	pa, pg, ok := p.Kalloc()
	if !ok {
		t.Fatal("kalloc failed on fresh pool")
	}
	if p.Entry(pa).Available {
		t.Fatal("allocated frame still marked available")
	}
	if p.Entry(pa).Ref != 1 {
		t.Fatalf("expected ref=1, got %d", p.Entry(pa).Ref)
	}
	pg[0] = 7
	if p.Page(pa)[0] != 7 {
		t.Fatal("page contents not visible through Page()")
	}
}

func TestKfreeScrubsAndFrees(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	pa, pg, _ := p.Kalloc()
	pg[0] = 0xAB
	p.Kfree(pa)
	if !p.Entry(pa).Available {
		t.Fatal("frame not returned to free pool")
	}
	if pg[0] != 0x02 {
		t.Fatalf("expected scrub byte 0x02, got %#x", pg[0])
	}
}

func TestRefupRefdown(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	pa, _, _ := p.Kalloc()
	p.Refup(pa)
	if p.Entry(pa).Ref != 2 {
		t.Fatalf("expected ref=2, got %d", p.Entry(pa).Ref)
	}
	if p.Refdown(pa) {
		t.Fatal("refdown to 1 should not free")
	}
	if !p.Refdown(pa) {
		t.Fatal("refdown to 0 should free")
	}
	if !p.Entry(pa).Available {
		t.Fatal("frame should be free after last refdown")
	}
}

func TestEvictpageWritesToSwapAndNotifies(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	pa, pg, _ := p.Kalloc()
	p.Entry(pa).User = true
	p.Entry(pa).Va = 0x1000
	pg[0] = 0x55

	var notified []int
	p.SetRng(fixedRng(pa))
	p.SetMarkSwapped(func(old Pa_t, slot int) {
		notified = append(notified, slot)
	})

	if !p.Evictpage(false) {
		t.Fatal("evictpage reported no victim")
	}
	if len(notified) != 1 {
		t.Fatalf("expected exactly one markSwapped call, got %d", len(notified))
	}
}

func TestPpageCopyNoopWhenNotShared(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	pa, _, _ := p.Kalloc()
	orig := pa
	if p.Ppage_copy(&pa) {
		t.Fatal("ppage_copy should no-op on an unshared frame")
	}
	if pa != orig {
		t.Fatal("ppn must be unchanged on no-op")
	}
}

func TestPpageCopyBreaksSharing(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	pa, pg, _ := p.Kalloc()
	pg[0] = 0x42
	p.Refup(pa) // simulate a second vpi sharing this frame

	childPa := pa
	if !p.Ppage_copy(&childPa) {
		t.Fatal("ppage_copy should copy when ref>1")
	}
	if childPa == pa {
		t.Fatal("ppage_copy should allocate a distinct frame")
	}
	if p.Page(childPa)[0] != 0x42 {
		t.Fatal("copied page should have the same contents")
	}
	if p.Entry(pa).Ref != 1 {
		t.Fatalf("original ref should drop to 1, got %d", p.Entry(pa).Ref)
	}
}

func TestSwapRoundtrip(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	pa, pg, _ := p.Kalloc()
	p.Entry(pa).User = true
	p.Entry(pa).Va = 0x2000
	for i := range pg {
		pg[i] = byte(i)
	}

	var slot int
	p.SetRng(fixedRng(pa))
	p.SetMarkSwapped(func(old Pa_t, s int) { slot = s })
	if !p.Evictpage(false) {
		t.Fatal("evictpage failed")
	}

	newPa, ok := p.Swappage_copy(slot)
	if !ok {
		t.Fatal("swappage_copy failed")
	}
	for i := range pg {
		if p.Page(newPa)[i] != byte(i) {
			t.Fatalf("swap roundtrip mismatch at %d", i)
		}
	}
	if p.Entry(newPa).Va != 0x2000 {
		t.Fatal("swappage_copy did not restore va")
	}
}

func TestStatsCountsAllocatedFramesAndSwapSlots(t *testing.T) {
	p := freshPhys(NFRAME, defs_swapBlocksForTest())
	before := p.Stats()
	if before.FramesUsed != 0 {
		t.Fatalf("fresh pool should have 0 used frames, got %d", before.FramesUsed)
	}

	pa, _, ok := p.Kalloc()
	if !ok {
		t.Fatal("kalloc failed")
	}
	p.Entry(pa).User = true
	p.Entry(pa).Va = 0x3000

	after := p.Stats()
	if after.FramesUsed != 1 {
		t.Fatalf("expected 1 used frame after kalloc, got %d", after.FramesUsed)
	}
	if after.FramesFree != before.FramesFree-1 {
		t.Fatalf("free count should drop by 1, got %d -> %d", before.FramesFree, after.FramesFree)
	}

	p.SetRng(fixedRng(pa))
	p.SetMarkSwapped(func(Pa_t, int) {})
	if !p.Evictpage(false) {
		t.Fatal("evictpage failed")
	}
	swapped := p.Stats()
	if swapped.SwapUsed != 1 {
		t.Fatalf("expected 1 used swap slot after eviction, got %d", swapped.SwapUsed)
	}
}

func defs_swapBlocksForTest() int {
	return 64
}
