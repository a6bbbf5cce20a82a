package defs

// Device ids. A device inode routes Readi/Writei through a function table
// indexed by devid (spec.md §6). Only the console exists in this kernel;
// the console driver itself (character read/write on a device id) is an
// out-of-scope collaborator per spec.md §1.
const (
	CONSOLE = 1
)
