// Package region owns the page-aligned memory that holds the runtime's
// process-wide configuration and its operating-system protection.
//
// Layout of a reservation:
//
//	+--------------------------------------------+ base
//	| Header (ConfigSizeToProtect bytes)         |
//	|   header fields                            |
//	|   spaceForExtensions  <- OffsetOfConfig... |
//	+--------------------------------------------+ base + protected size
//	| permitted-mutation page                    |
//	+--------------------------------------------+
//
// The protected part is made read-only by Finalize. The permitted-mutation
// page never is. Higher layers embed their configuration structs at fixed
// offsets; those structs must not contain Go pointers, since the garbage
// collector does not scan this memory.
//
// On unix and windows the freeze is enforced by the MMU and a stray write is
// a fatal fault. Elsewhere the region falls back to heap memory and only a
// software flag records the freeze; HardwareEnforced reports which one is in
// effect.
package region
