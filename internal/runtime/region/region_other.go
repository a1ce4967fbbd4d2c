//go:build !unix && !windows

package region

import "unsafe"

// No page protection here; Region.CheckWritable enforces the freeze.
const hardwareEnforced = false

const fallbackPageSize = 4096

func pageSize() int {
	return fallbackPageSize
}

func mapPages(size int) ([]byte, error) {
	buf := make([]byte, size+fallbackPageSize)
	off := roundUp(int(uintptr(unsafe.Pointer(&buf[0]))), fallbackPageSize) - int(uintptr(unsafe.Pointer(&buf[0])))
	return buf[off : off+size : off+size], nil
}

func unmapPages([]byte) error {
	return nil
}

func protect([]byte, bool) error {
	return nil
}
