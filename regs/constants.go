package regs

// Base is the physical base address of the flash interface register block.
const Base = 0x40023C00

// Register byte offsets from Base, per RM0090 section 3.9.
const (
	// ACR is the access control register (wait states, caches).
	// Not touched by the driver core.
	ACR = 0x00

	// KEYR is the key register accepting the two-word CR unlock sequence
	KEYR = 0x04

	// OPTKEYR is the option key register accepting the two-word OPTCR
	// unlock sequence
	OPTKEYR = 0x08

	// SR is the status register
	SR = 0x0C

	// CR is the control register
	CR = 0x10

	// OPTCR is the option control register
	OPTCR = 0x14

	// OPTCR1 is the second option control register (dual-bank parts only)
	OPTCR1 = 0x18
)

// CR unlock key sequence. The two words must be written to KEYR in this
// exact order; anything else keeps the lock set.
const (
	Key1 = 0x45670123
	Key2 = 0xCDEF89AB
)

// OPTCR unlock key sequence, independent of the CR lock.
const (
	OptKey1 = 0x08192A3B
	OptKey2 = 0x4C5D6E7F
)

// CR bit definitions.
const (
	// CRPG enables flash programming
	CRPG = 1 << 0

	// CRSER enables sector erase
	CRSER = 1 << 1

	// CRMER starts a bank 1 mass erase when STRT is set
	CRMER = 1 << 2

	// CRSNBShift is the bit position of the sector number field
	CRSNBShift = 3

	// CRSNBMask covers the 5-bit sector number field. Single-bank parts
	// only implement the low 4 bits; bit 4 selects bank 2 on dual-bank
	// parts.
	CRSNBMask = 0x1F << CRSNBShift

	// CRPSizeShift is the bit position of the PSIZE field
	CRPSizeShift = 8

	// CRPSizeMask covers the 2-bit PSIZE field
	CRPSizeMask = 0x3 << CRPSizeShift

	// CRMER1 starts a bank 2 mass erase when STRT is set (dual-bank
	// parts only)
	CRMER1 = 1 << 15

	// CRSTRT triggers the erase operation selected by SER/MER/MER1
	CRSTRT = 1 << 16

	// CRLock locks the control register. Writing a 1 sets it; it is
	// cleared only by the Key1/Key2 sequence on KEYR.
	CRLock = 1 << 31
)

// PSIZE field values selecting the parallelism of the next program
// operation.
const (
	PSizeByte       = 0x0
	PSizeHalfWord   = 0x1
	PSizeWord       = 0x2
	PSizeDoubleWord = 0x3
)

// OPTCR bit definitions.
const (
	// OptLock locks the option control register
	OptLock = 1 << 0

	// OptStart triggers the option byte programming sequence
	OptStart = 1 << 1

	// OptDB1M selects dual-bank organization of a 1MB array when set
	// (dual-bank parts only)
	OptDB1M = 1 << 30
)

// bankSectorBase is the first hardware sector index of bank 2. Bank 2
// sector numbers are encoded relative to this base with SNB bit 4 set.
const bankSectorBase = 12

// snbBank2 is the SNB bit selecting bank 2 on dual-bank parts.
const snbBank2 = 0x10
