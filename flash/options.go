package flash

import (
	"time"

	"github.com/moffa90/go-stm32flash/regs"
)

// Width selects the element size of a programming operation. It maps
// directly onto the hardware PSIZE field, which must be programmed
// before the program-enable bit.
type Width int

// Programming element widths.
const (
	Byte Width = iota
	HalfWord
	Word
	DoubleWord
)

// Bytes returns the element size in bytes.
func (w Width) Bytes() int {
	switch w {
	case Byte:
		return 1
	case HalfWord:
		return 2
	case Word:
		return 4
	case DoubleWord:
		return 8
	default:
		return 0
	}
}

// psize returns the PSIZE field value for the width.
func (w Width) psize() uint32 {
	switch w {
	case Byte:
		return regs.PSizeByte
	case HalfWord:
		return regs.PSizeHalfWord
	case Word:
		return regs.PSizeWord
	default:
		return regs.PSizeDoubleWord
	}
}

// String returns the width name.
func (w Width) String() string {
	switch w {
	case Byte:
		return "byte"
	case HalfWord:
		return "half-word"
	case Word:
		return "word"
	case DoubleWord:
		return "double-word"
	default:
		return "width(?)"
	}
}

// Config holds the driver configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger Logger

	// ProgressCallback is called during CopySector to report progress
	// (optional)
	ProgressCallback ProgressCallback

	// BusyTimeout bounds every busy poll. A mass erase of a full 2MB
	// array is the slowest operation the part performs, so the default
	// is generous.
	BusyTimeout time.Duration

	// PollInterval is the delay between busy-flag reads. Zero polls as
	// fast as the handle allows.
	PollInterval time.Duration

	// CopyWidth is the element width CopySector programs with
	CopyWidth Width
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		BusyTimeout: 30 * time.Second,
		CopyWidth:   Word,
	}
}

// Option is a functional option for configuring the Driver.
type Option func(*Config)

// WithLogger sets a logger for driver operations.
//
// Example:
//
//	drv, err := flash.New(hw, layout, flash.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithProgressCallback sets a callback function to track CopySector
// progress.
//
// Example:
//
//	drv, err := flash.New(hw, layout,
//	    flash.WithProgressCallback(func(p flash.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithBusyTimeout bounds the busy poll of every operation. When the
// deadline passes with the busy flag still set, the operation fails with
// a BusyTimeoutError instead of waiting forever.
//
// Example:
//
//	drv, err := flash.New(hw, layout, flash.WithBusyTimeout(5*time.Second))
func WithBusyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.BusyTimeout = timeout
		}
	}
}

// WithPollInterval sets the delay between busy-flag reads.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval >= 0 {
			c.PollInterval = interval
		}
	}
}

// WithCopyWidth sets the element width CopySector programs with.
// Default is Word.
//
// Example:
//
//	drv, err := flash.New(hw, layout, flash.WithCopyWidth(flash.DoubleWord))
func WithCopyWidth(w Width) Option {
	return func(c *Config) {
		if w.Bytes() > 0 {
			c.CopyWidth = w
		}
	}
}
