package fd

import (
	"sync"
	"testing"

	"teachos/block"
	"teachos/defs"
	"teachos/fs"
	"teachos/mem"
)

func mkfs(t *testing.T) *fs.Fs_t {
	t.Helper()
	disk := block.NewMemDisk(32768)
	fsys, err := fs.Format(disk)
	if err != 0 {
		t.Fatalf("format: %d", err)
	}
	return fsys
}

func TestOpenCreateRejectsBareOCreate(t *testing.T) {
	fsys := mkfs(t)
	var table [defs.NOFILE]*Fd_t
	if _, err := OpenInode(fsys, 0, &table, "x", defs.O_CREATE); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL for bare O_CREATE, got %d", err)
	}
}

func TestOpenCreateThenReadWrite(t *testing.T) {
	fsys := mkfs(t)
	var table [defs.NOFILE]*Fd_t
	fdn, err := OpenInode(fsys, 0, &table, "hello", defs.O_CREATE|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("open create: %d", err)
	}
	f := table[fdn]
	n, err := Write(fsys, 0, f, []byte("hi there"))
	if err != 0 || n != 8 {
		t.Fatalf("write: n=%d err=%d", n, err)
	}

	fdn2, err := OpenInode(fsys, 0, &table, "hello", defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("reopen: %d", err)
	}
	f2 := table[fdn2]
	buf := make([]byte, 8)
	n, err = Read(fsys, 0, f2, buf)
	if err != 0 || n != 8 || string(buf) != "hi there" {
		t.Fatalf("read back = %q n=%d err=%d", buf[:n], n, err)
	}
}

func TestOpenWriteOnlyRejectsRead(t *testing.T) {
	fsys := mkfs(t)
	var table [defs.NOFILE]*Fd_t
	fdn, err := OpenInode(fsys, 0, &table, "w", defs.O_CREATE|defs.O_WRONLY)
	if err != 0 {
		t.Fatalf("open: %d", err)
	}
	buf := make([]byte, 4)
	if _, err := Read(fsys, 0, table[fdn], buf); err != -defs.EBADF {
		t.Fatalf("expected EBADF on read of write-only fd, got %d", err)
	}
}

func TestDup2SharesRefAndOffset(t *testing.T) {
	fsys := mkfs(t)
	var table [defs.NOFILE]*Fd_t
	fdn, _ := OpenInode(fsys, 0, &table, "dupme", defs.O_CREATE|defs.O_RDWR)
	Write(fsys, 0, table[fdn], []byte("abcd"))

	nfdn, err := Dup2(&table, fdn)
	if err != 0 {
		t.Fatalf("dup2: %d", err)
	}
	if table[nfdn] != table[fdn] {
		t.Fatal("dup2 must share the same Fd_t")
	}
	if table[fdn].Ref != 2 {
		t.Fatalf("expected ref=2 after dup2, got %d", table[fdn].Ref)
	}
}

func TestPipeRoundtrip(t *testing.T) {
	mem.Phys = mem.NewPhys()
	var table [defs.NOFILE]*Fd_t
	rfd, wfd, err := OpenPipe(&table)
	if err != 0 {
		t.Fatalf("pipe: %d", err)
	}
	msg := []byte("ping")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if n, err := Write(nil, 0, table[wfd], msg); err != 0 || n != len(msg) {
			t.Errorf("write: n=%d err=%d", n, err)
		}
	}()
	buf := make([]byte, len(msg))
	n, err := Read(nil, 0, table[rfd], buf)
	wg.Wait()
	if err != 0 || n != len(msg) || string(buf) != "ping" {
		t.Fatalf("read = %q n=%d err=%d", buf[:n], n, err)
	}
}

func TestPipeReadReturnsEOFAfterWriterCloses(t *testing.T) {
	mem.Phys = mem.NewPhys()
	var table [defs.NOFILE]*Fd_t
	rfd, wfd, _ := OpenPipe(&table)
	if err := table[wfd].Close(nil, 0); err != 0 {
		t.Fatalf("close writer: %d", err)
	}
	buf := make([]byte, 4)
	n, err := Read(nil, 0, table[rfd], buf)
	if err != 0 || n != 0 {
		t.Fatalf("expected EOF (n=0,err=0) after writer closed, got n=%d err=%d", n, err)
	}
}

func TestPipeWriteToClosedReaderFails(t *testing.T) {
	mem.Phys = mem.NewPhys()
	var table [defs.NOFILE]*Fd_t
	rfd, wfd, _ := OpenPipe(&table)
	if err := table[rfd].Close(nil, 0); err != 0 {
		t.Fatalf("close reader: %d", err)
	}
	if _, err := Write(nil, 0, table[wfd], []byte("x")); err != -defs.EPIPE {
		t.Fatalf("expected EPIPE, got %d", err)
	}
}
