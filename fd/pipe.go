package fd

import (
	"sync"

	"teachos/defs"
	"teachos/mem"
)

// Pipe_t hosts a circular buffer sized PGSIZE-sizeof(pipe) inside a single
// kalloc'd page (spec.md §4.9). head/tail are monotonic counters indexed
// modulo the buffer size, so tail-head is the live byte count. Grounded on
// the teacher's pipe allocation discipline (one page, no separate backing
// store) without the teacher's lockless ring, since spec.md requires a
// spinlock serializing every head/tail mutation.
type Pipe_t struct {
	mu            sync.Mutex
	cond          *sync.Cond
	frame         mem.Pa_t
	buf           []byte
	head, tail    uint64
	hasopenread   bool
	hasopenwrite  bool
}

// pipeHeaderBytes stands in for "sizeof(pipe struct)" carved out of the
// kalloc'd page before the circular buffer begins (spec.md §4.9: "a single
// kalloc'd 4 KiB page hosts both the pipe struct and its circular buffer").
const pipeHeaderBytes = 64

func newPipe() (*Pipe_t, defs.Err_t) {
	pa, pg, ok := mem.Phys.Kalloc()
	if !ok {
		return nil, -defs.ENOMEM
	}
	p := &Pipe_t{
		frame:        pa,
		buf:          pg[pipeHeaderBytes:],
		hasopenread:  true,
		hasopenwrite: true,
	}
	p.cond = sync.NewCond(&p.mu)
	return p, 0
}

func (p *Pipe_t) size() uint64 { return uint64(len(p.buf)) }

// read blocks while empty and a writer remains open; returns 0 (EOF) once
// empty with every writer closed (spec.md §4.9).
func (p *Pipe_t) read(dst []byte) (int, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.head == p.tail && p.hasopenwrite {
		p.cond.Wait()
	}
	n := 0
	for n < len(dst) && p.head != p.tail {
		dst[n] = p.buf[p.head%p.size()]
		p.head++
		n++
	}
	p.cond.Broadcast()
	return n, 0
}

// write blocks while full; returns -EPIPE if no reader remains (spec.md
// §4.9 "writer returns -1 if no readers; blocks while full").
func (p *Pipe_t) write(src []byte) (int, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasopenread {
		return 0, -defs.EPIPE
	}
	n := 0
	for n < len(src) {
		for p.tail-p.head == p.size() {
			if !p.hasopenread {
				p.cond.Broadcast()
				return n, -defs.EPIPE
			}
			p.cond.Wait()
		}
		p.buf[p.tail%p.size()] = src[n]
		p.tail++
		n++
	}
	p.cond.Broadcast()
	return n, 0
}

// close clears the side's open flag and wakes the opposite side, freeing
// the backing page once both sides are closed (spec.md §4.9). Waking on
// the flag's address via cond.Broadcast in every branch — rather than
// passing the flag's value to wakeup in only one branch — is the fix
// spec.md §9 calls out: the original implementation woke the wrong (or no)
// waiter on one of the two close paths.
func (p *Pipe_t) close(perms int) defs.Err_t {
	p.mu.Lock()
	if perms&FD_READ != 0 {
		p.hasopenread = false
	}
	if perms&FD_WRITE != 0 {
		p.hasopenwrite = false
	}
	both := !p.hasopenread && !p.hasopenwrite
	p.cond.Broadcast()
	p.mu.Unlock()
	if both {
		mem.Phys.Refdown(p.frame)
	}
	return 0
}
