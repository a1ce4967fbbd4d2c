//go:build !unix

package execmem

import "unsafe"

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func reserve(int, bool) (*mapping, error) {
	return nil, ErrUnsupported
}

func release(*mapping) error {
	return nil
}

func writeToggled([]byte, int, []byte) error {
	return ErrUnsupported
}
