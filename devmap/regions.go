package devmap

import (
	"github.com/moffa90/go-stm32flash/geometry"
	"github.com/moffa90/go-stm32flash/regs"
)

// Selection picks which named regions an initialization call should map.
// The control block is always required and therefore has no field.
type Selection struct {
	// Flash maps the flash array (both banks on dual-bank layouts)
	Flash bool

	// SystemMemory maps the system memory bootloader region
	SystemMemory bool

	// OTP maps the one-time-programmable area
	OTP bool

	// OptionBytes maps the option byte blocks (bank 2 block only on
	// dual-bank layouts)
	OptionBytes bool
}

// AllRegions selects every region the layout exposes.
func AllRegions() Selection {
	return Selection{
		Flash:        true,
		SystemMemory: true,
		OTP:          true,
		OptionBytes:  true,
	}
}

// controlBlockLength covers ACR through OPTCR1.
const controlBlockLength = 0x1C

// Regions builds the mapping request list for a geometry and selection.
// The control register block is always first.
func Regions(g *geometry.Geometry, sel Selection) []Region {
	regions := []Region{
		{Name: RegionControl, Base: regs.Base, Length: controlBlockLength},
	}

	if sel.Flash {
		for _, bank := range bankRegions(g) {
			regions = append(regions, bank)
		}
	}
	if sel.SystemMemory {
		regions = append(regions, Region{
			Name:   RegionSystemMemory,
			Base:   geometry.SystemMemoryStart,
			Length: geometry.SystemMemoryEnd - geometry.SystemMemoryStart + 1,
		})
	}
	if sel.OTP {
		regions = append(regions, Region{
			Name:   RegionOTP,
			Base:   geometry.OTPStart,
			Length: geometry.OTPEnd - geometry.OTPStart + 1,
		})
	}
	if sel.OptionBytes {
		regions = append(regions, Region{
			Name:   RegionOptionBytesBank1,
			Base:   geometry.OptionBytesBank1Start,
			Length: geometry.OptionBytesBank1End - geometry.OptionBytesBank1Start + 1,
		})
		if g.DualBank() {
			regions = append(regions, Region{
				Name:   RegionOptionBytesBank2,
				Base:   geometry.OptionBytesBank2Start,
				Length: geometry.OptionBytesBank2End - geometry.OptionBytesBank2Start + 1,
			})
		}
	}

	return regions
}

// bankRegions derives one region per bank from the sector table.
func bankRegions(g *geometry.Geometry) []Region {
	names := map[geometry.Bank]string{
		geometry.Bank1: RegionFlashBank1,
		geometry.Bank2: RegionFlashBank2,
	}

	var regions []Region
	for _, bank := range []geometry.Bank{geometry.Bank1, geometry.Bank2} {
		var base, end uint32
		found := false
		for _, s := range g.Sectors() {
			if s.Bank != bank {
				continue
			}
			if !found {
				base = s.Start
				found = true
			}
			end = s.End
		}
		if found {
			regions = append(regions, Region{
				Name:   names[bank],
				Base:   base,
				Length: end - base + 1,
			})
		}
	}
	return regions
}
