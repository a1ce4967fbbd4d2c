// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Runtime packages take a *zap.Logger; Component hands each one a named
// child so lines read "rtconfig", "execmem", "vm" and so on.
//
//	logger := logging.NewDefault()
//	block.SetLogger(logger.Component("rtconfig"))
//	logger.Info("configuration frozen", zap.String("state", "frozen"))
package logging
