package defs

// Err_t is the sentinel error type returned by every syscall-tier function.
// Zero means success. A negative Err_t collapses to -1 at the syscall ABI;
// the specific value remains for kernel-internal diagnostics.
type Err_t int

const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EINTR        Err_t = 4
	EIO          Err_t = 5
	EBADF        Err_t = 9
	ECHILD       Err_t = 10
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EACCES       Err_t = 13
	EFAULT       Err_t = 14
	EEXIST       Err_t = 17
	ENODEV       Err_t = 19
	ENOTDIR      Err_t = 20
	EISDIR       Err_t = 21
	EINVAL       Err_t = 22
	EFBIG        Err_t = 27
	EMFILE       Err_t = 24
	ENOSPC       Err_t = 28
	ESPIPE       Err_t = 29
	EPIPE        Err_t = 32
	ENAMETOOLONG Err_t = 36
	ENOSYS       Err_t = 38
)
