// Package logging provides structured logging for the irrigation controller.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for the bench
//   - Default fields (service, version) on every record
//   - Level-based filtering (debug, info, warn, error)
//   - Optional size-rotated log file alongside the console
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  file:
//	    path: "/var/log/irrigationd/irrigationd.log"
//	    max_size: 10     # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("zone started", "zone", 3, "minutes", 10)
package logging
