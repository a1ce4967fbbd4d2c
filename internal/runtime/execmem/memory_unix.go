//go:build unix

package execmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func reserve(size int, separated bool) (*mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("reserve %d bytes: %w", size, ErrInvalidCode)
	}
	size = roundToPage(size)
	if separated {
		return mapSeparated(size)
	}
	exec, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap executable region: %w", err)
	}
	return &mapping{exec: exec}, nil
}

func release(m *mapping) error {
	if m.write != nil {
		if err := unix.Munmap(m.write); err != nil {
			return fmt.Errorf("munmap writable view: %w", err)
		}
	}
	if err := unix.Munmap(m.exec); err != nil {
		return fmt.Errorf("munmap executable region: %w", err)
	}
	return nil
}

// writeToggled makes the pages under [off, off+len(code)) writable, copies,
// and flips them back to read-execute.
func writeToggled(exec []byte, off int, code []byte) error {
	ps := unix.Getpagesize()
	lo := off &^ (ps - 1)
	hi := roundToPage(off + len(code))
	pages := exec[lo:hi]

	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("mprotect rw: %w", err)
	}
	copy(exec[off:], code)
	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect rx: %w", err)
	}
	return nil
}

func roundToPage(n int) int {
	ps := unix.Getpagesize()
	return (n + ps - 1) &^ (ps - 1)
}
