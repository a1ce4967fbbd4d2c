// Package main is the jsc shell.
//
// jsc initializes the process runtime configuration, freezes it, and then
// runs JavaScript in VMs governed by it.
//
// Configuration:
//   - Environment variables (LOG_LEVEL, JSC_OPTIONS_FILE, INSPECT_ADDR, ...)
//   - JSC_<option> variables for individual runtime options
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Run scripts
//	jsc a.js b.js
//
//	# Evaluate an expression and print the result
//	jsc -e '1 + 2'
//
//	# Set options and serve the introspection endpoints
//	jsc -options 'maxCallStackDepth=256 dumpOptions=true' -inspect 127.0.0.1:9090 app.js
//
//	# Testing mode: no freeze, restricted options such as useDollarVM
//	jsc -testing -options useDollarVM=true -e '$vm.state()'
//
//	# Print the frozen configuration
//	jsc -dump-config
//
// Without scripts or -e, jsc reads one statement per line from stdin.
//
// Signals:
//   - SIGINT, SIGTERM: interrupt the running script and exit
package main
