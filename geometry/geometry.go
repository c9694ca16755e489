package geometry

import (
	"fmt"

	"github.com/moffa90/go-stm32flash/regs"
)

// Bank identifies one half of a dual-bank flash array. Single-bank parts
// only have Bank1.
type Bank int

// Flash banks.
const (
	Bank1 Bank = 1
	Bank2 Bank = 2
)

// String returns "bank1" or "bank2".
func (b Bank) String() string {
	switch b {
	case Bank1:
		return "bank1"
	case Bank2:
		return "bank2"
	default:
		return fmt.Sprintf("bank(%d)", int(b))
	}
}

// Sector is one contiguous, independently erasable region of the flash
// array.
type Sector struct {
	// Index is the hardware sector number used in the SNB field
	Index int

	// Start is the first byte address of the sector
	Start uint32

	// End is the last byte address of the sector (inclusive)
	End uint32

	// Bank is the bank the sector belongs to
	Bank Bank
}

// Size returns the sector size in bytes.
func (s Sector) Size() uint32 {
	return s.End - s.Start + 1
}

// Geometry is the immutable sector table for one flash layout.
type Geometry struct {
	layout  Layout
	sectors []Sector
	byIndex map[int]int
}

// Layout reports which layout the geometry was built from.
func (g *Geometry) Layout() Layout {
	return g.layout
}

// DualBank reports whether the layout exposes two banks.
func (g *Geometry) DualBank() bool {
	return g.layout != OneMegSingleBank
}

// Sectors returns the configured sectors in ascending address order. The
// returned slice is shared and must not be modified.
func (g *Geometry) Sectors() []Sector {
	return g.sectors
}

// Base returns the first byte address of the flash array.
func (g *Geometry) Base() uint32 {
	return g.sectors[0].Start
}

// End returns the last byte address of the flash array (inclusive).
func (g *Geometry) End() uint32 {
	return g.sectors[len(g.sectors)-1].End
}

// Contains reports whether addr falls inside the flash array.
func (g *Geometry) Contains(addr uint32) bool {
	return addr >= g.Base() && addr <= g.End()
}

// ContainsRange reports whether the size bytes starting at addr are all
// inside the flash array. A zero size is contained iff addr is.
func (g *Geometry) ContainsRange(addr uint32, size uint32) bool {
	if !g.Contains(addr) {
		return false
	}
	if size == 0 {
		return true
	}
	last := addr + size - 1
	// Wrap past the top of the address space is never in flash.
	if last < addr {
		return false
	}
	return g.Contains(last)
}

// Resolve returns the sector containing addr. The second return value is
// false if addr is outside the flash array.
//
// Sectors are scanned in ascending start-address order; the first sector
// whose end reaches addr contains it, since sectors are contiguous
// within a bank and banks are laid out back to back.
func (g *Geometry) Resolve(addr uint32) (Sector, bool) {
	if !g.Contains(addr) {
		return Sector{}, false
	}
	for _, s := range g.sectors {
		if addr <= s.End {
			return s, true
		}
	}
	return Sector{}, false
}

// IsSectorStart reports whether addr is exactly the first address of a
// configured sector. The driver uses this to decide whether a program
// operation performs an implicit erase first.
func (g *Geometry) IsSectorStart(addr uint32) bool {
	s, ok := g.Resolve(addr)
	return ok && s.Start == addr
}

// SectorByIndex returns the sector with the given hardware index. The
// second return value is false for indices outside the configured
// geometry, including the 8-11 gap of the 1MB dual-bank layout.
func (g *Geometry) SectorByIndex(index int) (Sector, bool) {
	i, ok := g.byIndex[index]
	if !ok {
		return Sector{}, false
	}
	return g.sectors[i], true
}

// SectorSize returns the size in bytes of the sector with the given
// hardware index, or 0 if the index is not part of the configured
// geometry.
func (g *Geometry) SectorSize(index int) uint32 {
	s, ok := g.SectorByIndex(index)
	if !ok {
		return 0
	}
	return s.Size()
}

// EncodeSNB encodes a configured sector index into the CR SNB field.
// The second return value is false if the index is not part of the
// geometry.
func (g *Geometry) EncodeSNB(index int) (uint32, bool) {
	if _, ok := g.byIndex[index]; !ok {
		return 0, false
	}
	return regs.EncodeSNB(index, g.DualBank())
}
