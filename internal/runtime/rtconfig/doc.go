// Package rtconfig is the runtime's process-wide configuration block.
//
// Config holds the security-relevant global state of the runtime: JIT
// permission flags, executable memory and structure heap bounds, dispatch
// tables, entry gates, platform security metadata and the tuning options.
// It is embedded at a fixed offset inside the region package's protected
// reservation and has a strict lifecycle:
//
//	Uninitialized -> Initializing -> Populated -> Frozen
//	                                     |
//	                                     +-> Finalized  (freezing disabled for testing)
//
//	Frozen -> Unprotected -> Populated -> Frozen         (MutateForTesting only)
//
// During InitializeOnce every startup subsystem gets a *Builder through its
// Registration and writes its fields. Finalize then makes the pages
// read-only, so a later write through a Builder, or through a pointer
// obtained from Config, is a hardware fault that kills the process. That is
// intentional: a tampered JIT flag or dispatch table must crash, not run.
//
// Every field's zero value is its conservative default. The block may be
// read before initialisation, and all-zero memory never grants a
// capability.
//
// Config must stay free of Go pointers; the collector does not scan the
// protected region. Code addresses are coderef.Ref handles.
package rtconfig
