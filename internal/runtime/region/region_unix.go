//go:build unix

package region

import "golang.org/x/sys/unix"

const hardwareEnforced = true

func pageSize() int {
	return unix.Getpagesize()
}

func mapPages(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func unmapPages(mem []byte) error {
	return unix.Munmap(mem)
}

func protect(mem []byte, readOnly bool) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if readOnly {
		prot = unix.PROT_READ
	}
	return unix.Mprotect(mem, prot)
}
