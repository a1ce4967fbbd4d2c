//go:build unix && !linux

package execmem

func mapSeparated(int) (*mapping, error) {
	return nil, ErrUnsupported
}
