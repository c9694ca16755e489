package geometry

import "fmt"

// Layout selects one of the fixed flash organizations supported by the
// STM32F4 family. The value is chosen once at startup; there is no
// runtime reconfiguration of an existing Geometry.
type Layout int

// Supported layouts.
const (
	// OneMegSingleBank is a 1MB array organized as a single bank of 12
	// sectors (4x16K, 64K, 7x128K)
	OneMegSingleBank Layout = iota

	// OneMegDualBank is a 1MB array split into two independent 512K
	// banks of 8 sectors each (4x16K, 64K, 3x128K). Bank 2 sectors are
	// numbered 12-19.
	OneMegDualBank

	// TwoMegDualBank is a 2MB array with two full 1MB banks of 12
	// sectors each. Bank 2 sectors are numbered 12-23 starting at
	// 0x08100000. Dual banking is mandatory on these parts.
	TwoMegDualBank
)

// String returns the layout name used by configuration and logs.
func (l Layout) String() string {
	switch l {
	case OneMegSingleBank:
		return "1m-single"
	case OneMegDualBank:
		return "1m-dual"
	case TwoMegDualBank:
		return "2m-dual"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout converts a layout name (as produced by String) back into a
// Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "1m-single":
		return OneMegSingleBank, nil
	case "1m-dual":
		return OneMegDualBank, nil
	case "2m-dual":
		return TwoMegDualBank, nil
	default:
		return 0, fmt.Errorf("unknown flash layout %q", s)
	}
}

// FlashBase is the first address of the flash array on every layout.
const FlashBase = 0x08000000

// Fixed regions shared by every layout (RM0090 table 7). These are not
// part of the erasable array and never appear in the sector table.
const (
	// SystemMemoryStart is the first address of the system memory
	// bootloader region (30K)
	SystemMemoryStart = 0x1FFF0000

	// SystemMemoryEnd is the last address of the system memory region
	SystemMemoryEnd = 0x1FFF77FF

	// OTPStart is the first address of the one-time-programmable area
	// (528 bytes)
	OTPStart = 0x1FFF7800

	// OTPEnd is the last address of the OTP area
	OTPEnd = 0x1FFF7A0F

	// OptionBytesBank1Start is the first address of the bank 1 option
	// bytes (16 bytes)
	OptionBytesBank1Start = 0x1FFFC000

	// OptionBytesBank1End is the last address of the bank 1 option bytes
	OptionBytesBank1End = 0x1FFFC00F

	// OptionBytesBank2Start is the first address of the bank 2 option
	// bytes (16 bytes, dual-bank parts only)
	OptionBytesBank2Start = 0x1FFEC000

	// OptionBytesBank2End is the last address of the bank 2 option bytes
	OptionBytesBank2End = 0x1FFEC00F
)

const (
	sizeK16  = 16 * 1024
	sizeK64  = 64 * 1024
	sizeK128 = 128 * 1024
)

// bank2IndexBase is the hardware sector number of the first bank 2
// sector on dual-bank parts.
const bank2IndexBase = 12

// fullBankSizes is the 12-sector organization of a full 1MB bank.
var fullBankSizes = []uint32{
	sizeK16, sizeK16, sizeK16, sizeK16,
	sizeK64,
	sizeK128, sizeK128, sizeK128, sizeK128, sizeK128, sizeK128, sizeK128,
}

// halfBankSizes is the 8-sector organization of a 512K half bank.
var halfBankSizes = []uint32{
	sizeK16, sizeK16, sizeK16, sizeK16,
	sizeK64,
	sizeK128, sizeK128, sizeK128,
}

// New builds the immutable sector table for the given layout. The table
// is validated against the geometry invariant: sectors contiguous and
// strictly increasing within a bank, non-overlapping across banks.
func New(layout Layout) (*Geometry, error) {
	var sectors []Sector

	switch layout {
	case OneMegSingleBank:
		sectors = bankSectors(0, FlashBase, Bank1, fullBankSizes)
	case OneMegDualBank:
		sectors = append(
			bankSectors(0, FlashBase, Bank1, halfBankSizes),
			bankSectors(bank2IndexBase, FlashBase+0x80000, Bank2, halfBankSizes)...,
		)
	case TwoMegDualBank:
		sectors = append(
			bankSectors(0, FlashBase, Bank1, fullBankSizes),
			bankSectors(bank2IndexBase, FlashBase+0x100000, Bank2, fullBankSizes)...,
		)
	default:
		return nil, fmt.Errorf("unknown flash layout %d", int(layout))
	}

	if err := validate(sectors); err != nil {
		return nil, err
	}

	byIndex := make(map[int]int, len(sectors))
	for i, s := range sectors {
		byIndex[s.Index] = i
	}

	return &Geometry{
		layout:  layout,
		sectors: sectors,
		byIndex: byIndex,
	}, nil
}

// bankSectors lays out one bank's sectors back to back starting at base,
// numbering them from firstIndex.
func bankSectors(firstIndex int, base uint32, bank Bank, sizes []uint32) []Sector {
	sectors := make([]Sector, 0, len(sizes))
	addr := base
	for i, size := range sizes {
		sectors = append(sectors, Sector{
			Index: firstIndex + i,
			Start: addr,
			End:   addr + size - 1,
			Bank:  bank,
		})
		addr += size
	}
	return sectors
}

// validate checks the table invariant: ascending, non-overlapping,
// contiguous within each bank.
func validate(sectors []Sector) error {
	if len(sectors) == 0 {
		return fmt.Errorf("empty sector table")
	}
	for i := 1; i < len(sectors); i++ {
		prev, cur := sectors[i-1], sectors[i]
		if cur.Start <= prev.End {
			return fmt.Errorf("sector %d overlaps sector %d", cur.Index, prev.Index)
		}
		if cur.Bank == prev.Bank && cur.Start != prev.End+1 {
			return fmt.Errorf("gap between sector %d and sector %d in %s",
				prev.Index, cur.Index, cur.Bank)
		}
	}
	return nil
}
