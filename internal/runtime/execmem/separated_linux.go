package execmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapSeparated maps one memfd twice: read-execute and read-write.
func mapSeparated(size int) (*mapping, error) {
	fd, err := unix.MemfdCreate("jsruntime-jit", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("ftruncate memfd: %w", err)
	}
	exec, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_EXEC, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap executable view: %w", err)
	}
	write, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(exec)
		return nil, fmt.Errorf("mmap writable view: %w", err)
	}
	return &mapping{exec: exec, write: write}, nil
}
