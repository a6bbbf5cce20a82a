package fs

import (
	"sync"

	"teachos/defs"
)

// devsw is the function table device inodes route Readi/Writei through,
// indexed by devid (spec.md §6 "A device inode routes readi/writei through a
// function table indexed by devid"). The real character-read/write on a
// device id is the out-of-scope console/UART driver spec.md §1 names; this
// kernel registers one in-scope stand-in, an in-memory console buffer, so
// console I/O is exercisable without real hardware.
type devsw_t struct {
	read  func(dst []byte) (int, defs.Err_t)
	write func(src []byte) (int, defs.Err_t)
}

var devswMu sync.Mutex
var devswTable = map[int16]*devsw_t{}

func RegisterDevice(devid int16, d *devsw_t) {
	devswMu.Lock()
	defer devswMu.Unlock()
	devswTable[devid] = d
}

func devRead(devid int16, dst []byte) (int, defs.Err_t) {
	devswMu.Lock()
	d, ok := devswTable[devid]
	devswMu.Unlock()
	if !ok {
		return 0, -defs.ENODEV
	}
	return d.read(dst)
}

func devWrite(devid int16, src []byte) (int, defs.Err_t) {
	devswMu.Lock()
	d, ok := devswTable[devid]
	devswMu.Unlock()
	if !ok {
		return 0, -defs.ENODEV
	}
	return d.write(src)
}

// consoleBuf_t is the in-scope console stand-in: writes append to an
// in-memory byte log (observable by tests and cmd/teachos), reads drain a
// byte queue fed by Feed, returning whatever is queued without waiting for a
// newline.
type consoleBuf_t struct {
	mu  sync.Mutex
	out []byte
	in  []byte
}

var console = &consoleBuf_t{}

func init() {
	RegisterDevice(defs.CONSOLE, &devsw_t{read: console.read, write: console.write})
}

func (c *consoleBuf_t) write(src []byte) (int, defs.Err_t) {
	c.mu.Lock()
	c.out = append(c.out, src...)
	c.mu.Unlock()
	return len(src), 0
}

func (c *consoleBuf_t) read(dst []byte) (int, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := copy(dst, c.in)
	c.in = c.in[n:]
	return n, 0
}

// Feed injects bytes as if typed at the console, for tests and cmd/teachos.
func Feed(b []byte) {
	console.mu.Lock()
	console.in = append(console.in, b...)
	console.mu.Unlock()
}

// Output drains what has been written to the console, for tests and
// cmd/teachos to observe program output.
func Output() []byte {
	console.mu.Lock()
	defer console.mu.Unlock()
	out := console.out
	console.out = nil
	return out
}
