package regs

import "strings"

// Status is the value of the SR register, read after an operation to
// decode the hardware outcome. Error bits are write-1-to-clear: writing
// a set bit back to SR clears it.
type Status uint32

// SR bit definitions.
const (
	// EOP is set when an operation completed with ERRIE enabled
	EOP Status = 1 << 0

	// OpErr flags an operation error
	OpErr Status = 1 << 1

	// WrpErr flags a write attempt on a write-protected sector
	WrpErr Status = 1 << 4

	// PgaErr flags a programming alignment error
	PgaErr Status = 1 << 5

	// PgpErr flags a programming parallelism error (PSIZE mismatch)
	PgpErr Status = 1 << 6

	// PgsErr flags a programming sequence error (store without PG set).
	// A spurious PgsErr can be latent after the first unlock following
	// reset; this is a known hardware erratum, not an application error.
	PgsErr Status = 1 << 7

	// RdErr flags a proprietary readout protection read error
	// (dual-bank parts only)
	RdErr Status = 1 << 8

	// Bsy is set while an erase or program operation is in progress
	Bsy Status = 1 << 16
)

// Busy reports whether the hardware is still executing an operation.
func (s Status) Busy() bool {
	return s&Bsy != 0
}

// Errors extracts the error bits valid for the configured part. RdErr
// only exists on dual-bank-capable parts and reads as reserved elsewhere.
func (s Status) Errors(dualBank bool) Status {
	return s & ErrorMask(dualBank)
}

// ErrorMask returns the set of SR bits that indicate a failed operation
// on the given part capability.
func ErrorMask(dualBank bool) Status {
	m := OpErr | WrpErr | PgaErr | PgpErr | PgsErr
	if dualBank {
		m |= RdErr
	}
	return m
}

// statusNames maps individual SR bits to their datasheet names, in bit
// order.
var statusNames = []struct {
	bit  Status
	name string
}{
	{EOP, "EOP"},
	{OpErr, "OPERR"},
	{WrpErr, "WRPERR"},
	{PgaErr, "PGAERR"},
	{PgpErr, "PGPERR"},
	{PgsErr, "PGSERR"},
	{RdErr, "RDERR"},
	{Bsy, "BSY"},
}

// Flags returns each individual bit set in s, in ascending bit order.
// Used by the error decoder to clear and log flags one at a time.
func (s Status) Flags() []Status {
	var flags []Status
	for _, n := range statusNames {
		if s&n.bit != 0 {
			flags = append(flags, n.bit)
		}
	}
	return flags
}

// String returns the datasheet names of the set bits joined by "|", or
// "none" for an empty status.
func (s Status) String() string {
	var names []string
	for _, n := range statusNames {
		if s&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// EncodeSNB maps a hardware sector index into the CR SNB field. On
// dual-bank parts, bank 2 sectors (index 12 and up) are encoded relative
// to the bank base with bit 4 set; lower indices pass through unchanged.
// The second return value is false for an index the field cannot encode.
//
// The bit layout is a hardware contract (RM0090 table 7): sector 12 on a
// dual-bank part encodes as 0b10000, not 0b01100.
func EncodeSNB(index int, dualBank bool) (uint32, bool) {
	if index < 0 {
		return 0, false
	}
	if dualBank && index >= bankSectorBase {
		field := index - bankSectorBase
		if field >= snbBank2 {
			return 0, false
		}
		return uint32(field | snbBank2), true
	}
	if index >= snbBank2 {
		return 0, false
	}
	return uint32(index), true
}
