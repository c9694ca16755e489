// Package flash drives the STM32F4 flash interface in polled mode.
//
// # Overview
//
// The Driver translates physical addresses into sectors, sequences the
// unlock/erase/program/lock protocol on the memory-mapped control
// registers, and decodes the hardware error flags after every
// operation:
//   - Sector, bank and mass erase
//   - Element programming in byte, half-word, word and double-word widths
//   - Range-checked reads and full sector-to-sector copies
//   - Bank configuration on dual-bank-capable parts
//
// # Basic Usage
//
// The simplest path programs a word and reads it back:
//
//	dev, err := simflash.New(geometry.OneMegSingleBank)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	drv, err := flash.Open(dev, geometry.OneMegSingleBank, devmap.AllRegions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if _, err := drv.SectorErase(ctx, 0x08000000); err != nil {
//	    log.Fatal(err)
//	}
//	if err := drv.ProgramWord(ctx, 0x08000000, 0xDEADBEEF); err != nil {
//	    log.Fatal(err)
//	}
//
//	buf := make([]byte, 4)
//	if err := drv.Read(buf, 0x08000000); err != nil {
//	    log.Fatal(err)
//	}
//
// # The Narrowing Rule
//
// NOR flash cells only transition bits from 1 to 0 when programmed; an
// erase resets a whole sector to all-ones. Program performs an implicit
// erase when (and only when) the target address is exactly a sector
// start. Everywhere else the store narrows: the cell ends up holding
// old AND new. The driver surfaces this hardware property instead of
// hiding it.
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	drv, err := flash.Open(dev, layout, devmap.AllRegions(),
//	    flash.WithLogger(myLogger),
//	    flash.WithBusyTimeout(10*time.Second),
//	    flash.WithPollInterval(time.Millisecond),
//	    flash.WithCopyWidth(flash.DoubleWord),
//	    flash.WithProgressCallback(progressFunc),
//	)
//
// # Error Handling
//
// The package provides structured error types:
//   - NotInFlashError: target address or range outside the flash array
//   - InvalidSectorError: sector index outside the configured geometry
//   - OperationError: hardware error flags latched after an operation
//   - BusyTimeoutError: busy flag did not clear within the deadline
//   - UnsupportedError: dual-bank operation on a single-bank layout
//
// The identity of individual hardware flags is logged through the
// configured Logger; OperationError additionally carries the decoded
// flag set for callers that want structured detail.
//
// # Hardware Independence
//
// The driver does NOT dereference physical addresses. All register and
// memory traffic goes through an mmio.Hardware handle, so the simulated
// device in the simflash package — or any other implementation — can
// stand in for the real part. flash.Open additionally registers the
// named physical regions with a devmap.Mapper before first access.
//
// # Concurrency
//
// The model is single-threaded, synchronous and blocking: operations
// poll the busy flag (bounded by the configured timeout) and return
// only when the hardware is idle again. The driver performs no internal
// locking; a caller using multiple goroutines must serialize access.
package flash
