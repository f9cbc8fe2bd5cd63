// Package logger provides structured logging for the resilience toolkit
// using zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("offline-queue")
//	log.Info("drain finished", logger.Fields("replayed", 4))
package logger
