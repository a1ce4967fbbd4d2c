//go:build !release

package assert

// Enabled reports whether debug assertions are compiled in.
const Enabled = true
