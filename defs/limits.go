package defs

// Fixed-size arena limits (spec.md §6 "Limits"). Every global table in this
// kernel is a fixed-size Go array indexed by integer slot, per spec.md §9's
// "pointer graphs become arena + index" design note — there is no dynamic
// growth anywhere below these ceilings.
const (
	NOFILE = 16   // open files per process
	NFILE  = 100  // open files, system-wide
	NPROC  = 64   // processes
	NINODE = 50   // cached inodes

	NEXTENT   = 6  // extents per file
	EXTSIZE   = 32 // blocks per allocated extent
	MAXFILE   = NEXTENT * EXTSIZE * BSIZE

	NSWAP     = 2048 // swap slots
	SWAPBLKS  = 8    // blocks per swap slot (one 4KiB page)

	MAXSTACKPGS = 10 // pages the user stack may grow on fault

	NLOGSLOT = 19 // block writes per transaction

	PHYSCAP = 256 << 20 // physical memory cap, bytes
)

const (
	BSIZE  = 512
	PGSIZE = 4096
)

const DIRSIZ = 14
