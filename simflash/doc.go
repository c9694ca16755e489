// Package simflash implements a register-accurate simulation of the
// STM32F4 flash interface.
//
// A Device backs the driver's mmio.Hardware handle and plays the mapping
// service role (devmap.Mapper), so the full driver stack runs unmodified
// against it: the control register lock and its two-key unlock sequence,
// write-1-to-clear status flags, busy signalling, sector and bank
// erases, and the narrowing behavior of flash programming (a store can
// only clear bits; new = old AND value).
//
// The simulation reproduces the hardware erratum where a spurious PGSERR
// is latched after the first unlock following reset, so driver-side
// erratum handling is observable in tests.
//
// Busy time is modeled in status register reads rather than wall time: a
// started operation reports BSY for a configurable number of SR reads
// before completing. Error injection queues status flags that surface on
// the next operation in place of its normal effect.
package simflash
