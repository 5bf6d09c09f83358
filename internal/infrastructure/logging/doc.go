// Package logging builds the bridge's log/slog loggers.
//
// Every entry carries service and version attributes; components add their
// own with Component. The config selects the format and level:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Decoded frames are logged at debug level.
package logging
