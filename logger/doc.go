// Package logger provides structured logging for dirtytables using zerolog.
//
// Loggers are component scoped and take structured fields as maps, so the
// tracker, the registry and the fixture manager all log the connection and
// table they are working on in the same shape.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("dirtytables").WithComponent("sniffer")
//	log.Info("collector created", logger.Fields(logger.FieldConnection, "test"))
package logger
