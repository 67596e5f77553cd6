// Leveled logging with granular verbose filtering for bolt.
package logging

import (
	"log"
	"os"
	"strings"
)

var (
	verboseAll     bool
	verboseFilters map[string]bool
)

// SetVerbose configures debug logging from a filter string, usually taken
// from the VERBOSE environment variable:
//   - "" or "false": debug logging disabled
//   - "true", "1" or "all": debug logging for everything
//   - "store,relay": debug logging for the listed modules
//   - "relay.handleReq,store": a specific method plus a whole module
func SetVerbose(spec string) {
	verboseAll = false
	verboseFilters = make(map[string]bool)

	switch spec {
	case "", "false", "0":
		return
	case "true", "1", "all":
		verboseAll = true
		return
	}

	for _, f := range strings.Split(spec, ",") {
		if f = strings.TrimSpace(f); f != "" {
			verboseFilters[f] = true
		}
	}
}

// IsVerbose reports whether debug logging is enabled for module.method.
// An empty method matches the module-level filter only.
func IsVerbose(module, method string) bool {
	if verboseAll {
		return true
	}
	if method != "" && verboseFilters[module+"."+method] {
		return true
	}
	return verboseFilters[module]
}

// DebugMethod logs a debug message attributed to module.method, subject to
// the verbose filters.
func DebugMethod(module, method, format string, v ...interface{}) {
	if IsVerbose(module, method) {
		log.Printf("[DEBUG] "+module+"."+method+": "+format, v...)
	}
}

// Debug logs a debug message when all verbose logging is enabled.
func Debug(format string, v ...interface{}) {
	if verboseAll {
		log.Printf("[DEBUG] "+format, v...)
	}
}

// Info logs an informational message.
func Info(format string, v ...interface{}) {
	log.Printf("[INFO] "+format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	log.Printf("[WARN] "+format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	log.Printf("[ERROR] "+format, v...)
}

// Fatal logs an error message and exits the process.
func Fatal(format string, v ...interface{}) {
	log.Printf("[FATAL] "+format, v...)
	os.Exit(1)
}
