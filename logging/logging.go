// Package logging is a process-wide debug log. Until SetupLogger or
// SetupWriter is called only info messages are printed, through the standard
// logger; everything else is dropped.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var (
	mu          sync.Mutex
	debugLogger *log.Logger
	logFile     *os.File
)

// SetupLogger appends debug output to the file at logFilePath. Calling it
// again while a log is open is a no-op.
func SetupLogger(logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	if debugLogger != nil {
		return nil
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f
	debugLogger = log.New(f, "", log.LstdFlags)
	debugLogger.Printf("--- dupfinder debug log started at %s ---", time.Now().Format(time.RFC3339))
	return nil
}

// SetupWriter sends debug output to w
func SetupWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	debugLogger = log.New(w, "", log.LstdFlags)
}

// CloseLogger flushes and closes the log file, if any, and turns debug output off
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		debugLogger.Printf("--- dupfinder debug log closed at %s ---", time.Now().Format(time.RFC3339))
		logFile.Close()
		logFile = nil
	}
	debugLogger = nil
}

// Enabled reports whether debug output goes anywhere
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugLogger != nil
}

func output(prefix, format string, args []interface{}) bool {
	mu.Lock()
	defer mu.Unlock()
	if debugLogger == nil {
		return false
	}
	debugLogger.Printf(prefix+format, args...)
	return true
}

// LogInfo logs an information message, falling back to the standard logger
func LogInfo(format string, args ...interface{}) {
	if !output("INFO: ", format, args) {
		log.Printf("INFO: "+format, args...)
	}
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) { output("", format, args) }

// LogError logs an error message
func LogError(format string, args ...interface{}) { output("ERROR: ", format, args) }

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) { output("WARNING: ", format, args) }

// LogImageProcessed records the hashing outcome of one image
func LogImageProcessed(path string, success bool, errMsg string) {
	if success {
		output("HASHED: ", "%s", []interface{}{path})
		return
	}
	output("FAILED: ", "%s - Error: %s", []interface{}{path, errMsg})
}

// LogTrashed records a file moving between its original location and the trash.
// restored is true when the move goes back out of the trash.
func LogTrashed(from, to string, restored bool) {
	if restored {
		output("RESTORED: ", "%s <- %s", []interface{}{to, from})
		return
	}
	output("TRASHED: ", "%s -> %s", []interface{}{from, to})
}
