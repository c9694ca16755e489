package flash

import (
	"fmt"
	"time"

	"github.com/moffa90/go-stm32flash/geometry"
	"github.com/moffa90/go-stm32flash/regs"
)

// NotInFlashError indicates a target address or range outside the
// configured flash array. The operation aborts before touching hardware.
type NotInFlashError struct {
	Addr uint32
	Size uint32
}

func (e *NotInFlashError) Error() string {
	if e.Size > 1 {
		return fmt.Sprintf("range %#x+%#x is not in the flash array", e.Addr, e.Size)
	}
	return fmt.Sprintf("address %#x is not in the flash array", e.Addr)
}

// InvalidSectorError indicates a sector index outside the configured
// geometry.
type InvalidSectorError struct {
	Index int
}

func (e *InvalidSectorError) Error() string {
	return fmt.Sprintf("sector %d is not part of the configured geometry", e.Index)
}

// OperationError indicates that the hardware reported error flags after
// an erase or program operation. Flags carries the decoded status bits;
// each was individually cleared before the error was returned.
type OperationError struct {
	Op    string
	Flags regs.Status
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Flags)
}

// BusyTimeoutError indicates that the busy flag did not clear within the
// configured deadline. The reference hardware behavior is an unbounded
// wait; the bounded poll turns a hung part into a diagnosable failure.
type BusyTimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *BusyTimeoutError) Error() string {
	return fmt.Sprintf("%s: hardware still busy after %s", e.Op, e.Timeout)
}

// UnsupportedError indicates a dual-bank-only operation requested on a
// layout without dual-bank support.
type UnsupportedError struct {
	Op     string
	Layout geometry.Layout
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported on the %s layout", e.Op, e.Layout)
}
