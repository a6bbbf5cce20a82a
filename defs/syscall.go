package defs

// Syscall numbers, exactly the table in spec.md's External Interfaces
// section. Numbering is our own — this is not xv6's or Linux's ABI, just a
// flat dispatch table indexed by number in trap.HandleSyscall.
const (
	SYS_FORK = iota
	SYS_EXIT
	SYS_WAIT
	SYS_PIPE
	SYS_READ
	SYS_KILL
	SYS_EXEC
	SYS_FSTAT
	SYS_CHDIR
	SYS_DUP
	SYS_GETPID
	SYS_SBRK
	SYS_SLEEP
	SYS_UPTIME
	SYS_OPEN
	SYS_WRITE
	SYS_CLOSE
	SYS_CRASHN
)

// Open-mode flags (spec.md §6). O_CREATE is additive: sys_open rejects a
// bare O_CREATE and otherwise subtracts it once the file is known to exist.
type Omode_t int

const (
	O_RDONLY Omode_t = 0
	O_WRONLY Omode_t = 1
	O_RDWR   Omode_t = 2
	O_CREATE Omode_t = 0x200
)

const WAIT_ANY = -1
