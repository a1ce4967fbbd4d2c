// Package options holds the runtime's named tuning options.
//
// The definitions (names, types, defaults) are static Go data. The values
// live in Storage, a fixed-size pointer-free table embedded in the protected
// runtime configuration, so options are frozen together with everything
// else. Options are set during startup from "name=value" strings, JSC_*
// environment variables or a YAML/TOML file.
//
// Some options are restricted: they can only be set once restricted options
// have been enabled, which only test configurations do.
package options
