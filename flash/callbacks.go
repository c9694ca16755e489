package flash

import "time"

// Progress contains information about a running sector copy.
// Passed to ProgressCallback as the copy advances.
type Progress struct {
	// Phase describes the current step:
	//   "erasing"  - Erasing the destination sector
	//   "copying"  - Programming chunks into the destination
	//   "complete" - Copy finished
	Phase string

	// BytesCopied is the number of bytes programmed so far
	BytesCopied int

	// TotalBytes is the destination sector size
	TotalBytes int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the copy started
	ElapsedTime time.Duration
}

// ProgressCallback is called during CopySector to report progress.
// Implementations should return quickly to avoid stretching the
// operation.
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the
// driver. This allows integration with any logging framework. The
// decoded identity of hardware error flags is only visible here; the
// returned errors aggregate them.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	drv, err := flash.New(hw, layout, flash.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
