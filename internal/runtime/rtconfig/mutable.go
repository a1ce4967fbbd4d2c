package rtconfig

import "sync/atomic"

// mutableSection lives in the region's permitted-mutation page, which is
// never frozen. It holds the only state that may change after startup:
//   - vmEntryDisallowed: a late-bound one-way latch set on shutdown
//   - simulateJITUnavailable: a testing toggle, gated on restricted options
//   - testingMutations: how many testing mutations happened
type mutableSection struct {
	vmEntryDisallowed      atomic.Bool
	simulateJITUnavailable atomic.Bool
	testingMutations       atomic.Uint64
}
