// Package mmio defines the hardware handle the flash driver drives.
//
// The driver never dereferences physical addresses itself: every register
// access and every flash array access goes through these interfaces, so a
// test harness can substitute a simulated register block (see the
// simflash package) and embedded targets can back them with real
// memory-mapped I/O.
package mmio

// RegisterBlock is 32-bit access to the flash interface control
// registers, addressed by byte offset from the peripheral base.
type RegisterBlock interface {
	// Read32 reads the register at the given byte offset.
	Read32(offset uint32) uint32

	// Write32 writes the register at the given byte offset.
	Write32(offset uint32, value uint32)
}

// Memory is byte-addressed access to the flash-mapped physical address
// space (flash array, system memory, OTP, option bytes).
type Memory interface {
	// ReadAt copies len(p) bytes starting at the physical address addr
	// into p.
	ReadAt(p []byte, addr uint32) (int, error)

	// Store performs the raw programming store of an element at addr.
	// size is the element width in bytes (1, 2, 4 or 8); value holds
	// the element in its low size bytes, little-endian.
	//
	// Flash cells can only transition bits from 1 to 0 without an
	// erase. Store does not hide this: storing over non-erased cells
	// narrows the stored value bitwise.
	Store(addr uint32, value uint64, size int) error
}

// Hardware is the complete handle a Driver owns exclusively: the control
// register block plus the flash-mapped memory behind it.
type Hardware interface {
	RegisterBlock
	Memory
}
