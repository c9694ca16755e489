// Package devmap describes the capability-based memory-mapping service
// the flash driver registers with.
//
// Before any address in a physical region may be dereferenced, the
// region must be mapped by name through a Mapper, which returns an
// opaque descriptor. The service itself (a kernel, a hypervisor, or the
// in-process simulator) lives outside this module; this package only
// fixes the contract and the canonical region names.
package devmap

import "fmt"

// Canonical region names used by the flash driver.
const (
	// RegionControl is the flash interface register block
	RegionControl = "ctrl"

	// RegionFlashBank1 is the bank 1 flash array
	RegionFlashBank1 = "flash-bank1"

	// RegionFlashBank2 is the bank 2 flash array (dual-bank parts only)
	RegionFlashBank2 = "flash-bank2"

	// RegionSystemMemory is the system memory bootloader region
	RegionSystemMemory = "system-memory"

	// RegionOTP is the one-time-programmable area
	RegionOTP = "otp"

	// RegionOptionBytesBank1 is the bank 1 option byte block
	RegionOptionBytesBank1 = "option-bytes-bank1"

	// RegionOptionBytesBank2 is the bank 2 option byte block (dual-bank
	// parts only)
	RegionOptionBytesBank2 = "option-bytes-bank2"
)

// Region is a named physical region to be mapped.
type Region struct {
	// Name identifies the region to the mapping service
	Name string

	// Base is the physical base address of the region
	Base uint32

	// Length is the region length in bytes
	Length uint32
}

// String formats the region for logs.
func (r Region) String() string {
	return fmt.Sprintf("%s@%#x+%#x", r.Name, r.Base, r.Length)
}

// Handle is the opaque descriptor returned by a successful mapping
// request.
type Handle struct {
	region Region
}

// NewHandle builds a descriptor for a mapped region. Intended for Mapper
// implementations, not for driver code.
func NewHandle(region Region) Handle {
	return Handle{region: region}
}

// Region returns the region the handle describes.
func (h Handle) Region() Region {
	return h.region
}

// Mapper is the external mapping service interface.
type Mapper interface {
	// MapRegion asks the service to expose the region to this process.
	// A region must not be accessed before MapRegion succeeds for it.
	MapRegion(region Region) (Handle, error)

	// Mapped reports whether the named region was previously mapped.
	Mapped(name string) bool
}
