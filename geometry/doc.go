// Package geometry models the sector organization of STM32F4 flash
// arrays.
//
// A Geometry is built once at driver initialization from one of three
// fixed layouts (1MB single-bank, 1MB dual-bank, 2MB dual-bank) and is
// immutable afterwards. It answers the questions the driver needs while
// sequencing operations: which sector contains an address, whether an
// address is a sector start, how big a sector is, and how a sector index
// encodes into the hardware SNB field.
//
// Sector indices follow the hardware numbering from RM0090: a 1MB
// dual-bank array exposes sectors 0-7 in bank 1 and 12-19 in bank 2, with
// indices 8-11 unused. The gap is a property of the part, not of this
// package.
package geometry
