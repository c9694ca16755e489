package flash

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/moffa90/go-stm32flash/devmap"
	"github.com/moffa90/go-stm32flash/geometry"
	"github.com/moffa90/go-stm32flash/mmio"
	"github.com/moffa90/go-stm32flash/regs"
)

// Device is the full collaborator surface flash.Open drives: the mapping
// service plus the hardware handle it exposes once regions are mapped.
// simflash.Device implements it; an embedded target would back it with
// the kernel's device service and real memory-mapped I/O.
type Device interface {
	devmap.Mapper
	mmio.Hardware
}

// BankMode is the banking organization persisted in the option bytes.
type BankMode int

// Banking modes.
const (
	// SingleBank organizes the array as one bank of 12 sectors
	SingleBank BankMode = iota

	// DualBank splits the array into two independently erasable banks
	DualBank
)

// String returns "single" or "dual".
func (m BankMode) String() string {
	if m == DualBank {
		return "dual"
	}
	return "single"
}

// Driver sequences erase, program and read operations on one flash part.
//
// The driver owns its hardware handle exclusively: no other component
// may write the control registers while a Driver exists. It assumes a
// single logical caller and performs no internal locking; callers
// invoking operations from multiple goroutines must serialize access
// themselves.
type Driver struct {
	hw      mmio.Hardware
	geo     *geometry.Geometry
	cfg     Config
	handles map[string]devmap.Handle
}

// New creates a Driver over an already-accessible hardware handle, as a
// test harness or a platform with pre-mapped regions would provide.
//
// Example:
//
//	dev, _ := simflash.NewMapped(geometry.OneMegSingleBank)
//	drv, err := flash.New(dev, geometry.OneMegSingleBank,
//	    flash.WithBusyTimeout(5*time.Second),
//	)
func New(hw mmio.Hardware, layout geometry.Layout, opts ...Option) (*Driver, error) {
	if hw == nil {
		panic("hardware handle cannot be nil")
	}

	geo, err := geometry.New(layout)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Driver{
		hw:      hw,
		geo:     geo,
		cfg:     cfg,
		handles: map[string]devmap.Handle{},
	}, nil
}

// Open registers the driver with the mapping service: it requests every
// region in the selection (the control block is always included), then
// builds the driver over the now-accessible hardware. The per-region
// descriptors are retained and can be queried with Handle and Mapped.
//
// Example:
//
//	dev, _ := simflash.New(geometry.TwoMegDualBank)
//	drv, err := flash.Open(dev, geometry.TwoMegDualBank, devmap.AllRegions())
func Open(dev Device, layout geometry.Layout, sel devmap.Selection, opts ...Option) (*Driver, error) {
	d, err := New(dev, layout, opts...)
	if err != nil {
		return nil, err
	}

	for _, region := range devmap.Regions(d.geo, sel) {
		h, err := dev.MapRegion(region)
		if err != nil {
			return nil, fmt.Errorf("map region %s: %w", region, err)
		}
		d.handles[region.Name] = h
		d.logDebug("mapped region", "region", region.String())
	}

	return d, nil
}

// Geometry returns the active geometry.
func (d *Driver) Geometry() *geometry.Geometry {
	return d.geo
}

// Mapped reports whether the named region was mapped by Open.
func (d *Driver) Mapped(name string) bool {
	_, ok := d.handles[name]
	return ok
}

// Handle returns the mapping descriptor recorded by Open for the named
// region.
func (d *Driver) Handle(name string) (devmap.Handle, bool) {
	h, ok := d.handles[name]
	return h, ok
}

// Unlock clears the control register lock with the two-key sequence.
// The mutating operations unlock on demand, so calling this is only
// needed when driving the sequencer-level surface directly.
func (d *Driver) Unlock() {
	d.unlock()
}

// Lock sets the control register lock bit.
func (d *Driver) Lock() {
	d.lock()
}

// UnlockOptions clears the option control register lock.
func (d *Driver) UnlockOptions() {
	d.unlockOptions()
}

// LockOptions sets the option control register lock bit.
func (d *Driver) LockOptions() {
	d.lockOptions()
}

// ResolveSector returns the sector containing addr.
func (d *Driver) ResolveSector(addr uint32) (geometry.Sector, error) {
	s, ok := d.geo.Resolve(addr)
	if !ok {
		return geometry.Sector{}, &NotInFlashError{Addr: addr}
	}
	return s, nil
}

// SectorSize returns the size in bytes of the sector with the given
// hardware index. An index outside the configured geometry returns 0
// and an InvalidSectorError.
func (d *Driver) SectorSize(index int) (uint32, error) {
	size := d.geo.SectorSize(index)
	if size == 0 {
		return 0, &InvalidSectorError{Index: index}
	}
	return size, nil
}

// SectorErase erases the sector containing addr and returns its index.
//
// If the hardware is busy when the operation starts, the driver blocks
// until it is free (bounded by the busy timeout); there is no queueing,
// the part executes a single operation at a time.
func (d *Driver) SectorErase(ctx context.Context, addr uint32) (int, error) {
	s, err := d.ResolveSector(addr)
	if err != nil {
		return -1, err
	}

	if err := d.waitNotBusy(ctx, "sector erase"); err != nil {
		return -1, err
	}

	d.logInfo("erasing flash sector", "sector", s.Index, "start", fmt.Sprintf("%#x", s.Start))

	snb, ok := d.geo.EncodeSNB(s.Index)
	if !ok {
		return -1, &InvalidSectorError{Index: s.Index}
	}

	d.ensureUnlocked()
	d.setElementWidth(Word)
	d.beginSectorErase(snb)

	if err := d.waitNotBusy(ctx, "sector erase"); err != nil {
		return -1, err
	}
	d.clearControl()

	if err := d.checkAndClearErrors("sector erase"); err != nil {
		return -1, err
	}
	return s.Index, nil
}

// MassErase erases the whole array: bank 1, plus bank 2 on dual-bank
// layouts.
func (d *Driver) MassErase(ctx context.Context) error {
	if err := d.waitNotBusy(ctx, "mass erase"); err != nil {
		return err
	}

	d.logInfo("mass erasing flash", "dual_bank", d.geo.DualBank())

	d.ensureUnlocked()
	d.beginMassErase(true, d.geo.DualBank())

	if err := d.waitNotBusy(ctx, "mass erase"); err != nil {
		return err
	}
	d.clearControl()

	return d.checkAndClearErrors("mass erase")
}

// BankErase erases one bank. Requesting bank 2 on a layout without
// dual-bank support fails immediately with an UnsupportedError; the
// operation must not proceed there.
func (d *Driver) BankErase(ctx context.Context, bank geometry.Bank) error {
	if bank != geometry.Bank1 && bank != geometry.Bank2 {
		return fmt.Errorf("unknown bank %d", int(bank))
	}
	if bank == geometry.Bank2 && !d.geo.DualBank() {
		return &UnsupportedError{Op: "bank 2 erase", Layout: d.geo.Layout()}
	}

	if err := d.waitNotBusy(ctx, "bank erase"); err != nil {
		return err
	}

	d.logInfo("erasing flash bank", "bank", bank.String())

	d.ensureUnlocked()
	d.beginMassErase(bank == geometry.Bank1, bank == geometry.Bank2)

	if err := d.waitNotBusy(ctx, "bank erase"); err != nil {
		return err
	}
	d.clearControl()

	return d.checkAndClearErrors("bank erase")
}

// Program writes one element of the given width at addr.
//
// If addr is exactly a sector start, the sector is implicitly erased
// first and the whole operation aborts if that erase fails. Anywhere
// else no erase happens: flash cells only transition bits from 1 to 0,
// so programming over already-written cells narrows the stored value
// (bitwise AND). The driver does not hide this hardware property;
// callers needing a clean slate must erase first.
func (d *Driver) Program(ctx context.Context, addr uint32, value uint64, width Width) error {
	size := width.Bytes()
	if size == 0 {
		return fmt.Errorf("invalid programming width %d", int(width))
	}
	if !d.geo.ContainsRange(addr, uint32(size)) {
		return &NotInFlashError{Addr: addr, Size: uint32(size)}
	}

	if d.geo.IsSectorStart(addr) {
		if _, err := d.SectorErase(ctx, addr); err != nil {
			return fmt.Errorf("implicit erase before program: %w", err)
		}
	}

	return d.programElement(ctx, addr, value, width)
}

// programElement runs the raw programming sequence without the implicit
// sector-start erase. CopySector uses it directly: the destination was
// erased as a whole immediately before.
func (d *Driver) programElement(ctx context.Context, addr uint32, value uint64, width Width) error {
	if err := d.waitNotBusy(ctx, "program"); err != nil {
		return err
	}

	d.ensureUnlocked()
	d.setElementWidth(width)
	d.beginProgram()

	if err := d.hw.Store(addr, value, width.Bytes()); err != nil {
		d.clearControl()
		return fmt.Errorf("program store at %#x: %w", addr, err)
	}

	if err := d.waitNotBusy(ctx, "program"); err != nil {
		return err
	}
	d.clearControl()

	return d.checkAndClearErrors("program")
}

// ProgramByte writes one byte at addr.
func (d *Driver) ProgramByte(ctx context.Context, addr uint32, value uint8) error {
	return d.Program(ctx, addr, uint64(value), Byte)
}

// ProgramHalfWord writes a 16-bit value at addr.
func (d *Driver) ProgramHalfWord(ctx context.Context, addr uint32, value uint16) error {
	return d.Program(ctx, addr, uint64(value), HalfWord)
}

// ProgramWord writes a 32-bit value at addr.
func (d *Driver) ProgramWord(ctx context.Context, addr uint32, value uint32) error {
	return d.Program(ctx, addr, uint64(value), Word)
}

// ProgramDoubleWord writes a 64-bit value at addr.
func (d *Driver) ProgramDoubleWord(ctx context.Context, addr uint32, value uint64) error {
	return d.Program(ctx, addr, value, DoubleWord)
}

// Read copies len(buffer) bytes starting at addr into buffer. The whole
// range must lie inside the flash array; otherwise the read fails with
// a NotInFlashError and the buffer is left unmodified.
func (d *Driver) Read(buffer []byte, addr uint32) error {
	if !d.geo.ContainsRange(addr, uint32(len(buffer))) {
		return &NotInFlashError{Addr: addr, Size: uint32(len(buffer))}
	}
	if _, err := d.hw.ReadAt(buffer, addr); err != nil {
		return fmt.Errorf("flash read at %#x: %w", addr, err)
	}
	return nil
}

// CopySector erases the sector containing dst, then reproduces the
// source content byte-for-byte over the full size of the destination
// sector, reading and programming one element of the configured copy
// width at a time. The copy aborts on the first failed step.
func (d *Driver) CopySector(ctx context.Context, dst, src uint32) error {
	if !d.geo.Contains(dst) {
		return &NotInFlashError{Addr: dst}
	}
	if !d.geo.Contains(src) {
		return &NotInFlashError{Addr: src}
	}

	start := time.Now()
	d.reportProgress(Progress{Phase: "erasing"})

	index, err := d.SectorErase(ctx, dst)
	if err != nil {
		return fmt.Errorf("erase destination sector: %w", err)
	}
	size := d.geo.SectorSize(index)

	width := d.cfg.CopyWidth
	chunk := uint32(width.Bytes())
	buf := make([]byte, chunk)

	for off := uint32(0); off < size; off += chunk {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		if err := d.Read(buf, src+off); err != nil {
			return fmt.Errorf("read source chunk at %#x: %w", src+off, err)
		}
		if err := d.programElement(ctx, dst+off, chunkValue(buf), width); err != nil {
			return fmt.Errorf("program chunk at %#x: %w", dst+off, err)
		}

		copied := int(off + chunk)
		if copied%progressStep == 0 {
			d.reportProgress(Progress{
				Phase:       "copying",
				BytesCopied: copied,
				TotalBytes:  int(size),
				Percentage:  float64(copied) / float64(size) * 100,
				ElapsedTime: time.Since(start),
			})
		}
	}

	d.reportProgress(Progress{
		Phase:       "complete",
		BytesCopied: int(size),
		TotalBytes:  int(size),
		Percentage:  100,
		ElapsedTime: time.Since(start),
	})

	d.logInfo("sector copy complete",
		"sector", index,
		"bytes", size,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// progressStep is how many copied bytes separate progress reports.
const progressStep = 4096

// chunkValue packs a little-endian chunk into the raw store value.
func chunkValue(buf []byte) uint64 {
	var v uint64
	switch len(buf) {
	case 1:
		v = uint64(buf[0])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		v = binary.LittleEndian.Uint64(buf)
	}
	return v
}

// BankConfig reads the banking organization from the option register.
// Only dual-bank-capable layouts support it; the forced-dual 2MB layout
// always reports DualBank.
func (d *Driver) BankConfig() (BankMode, error) {
	if !d.geo.DualBank() {
		return SingleBank, &UnsupportedError{Op: "bank configuration", Layout: d.geo.Layout()}
	}
	if d.geo.Layout() == geometry.TwoMegDualBank {
		return DualBank, nil
	}
	if d.hw.Read32(regs.OPTCR)&regs.OptDB1M != 0 {
		return DualBank, nil
	}
	return SingleBank, nil
}

// SetBankConfig writes the banking organization to the option register.
// On the forced-dual 2MB layout the request is ignored: dual banking is
// mandatory there. The setting persists across power cycles.
func (d *Driver) SetBankConfig(mode BankMode) error {
	if !d.geo.DualBank() {
		return &UnsupportedError{Op: "bank configuration", Layout: d.geo.Layout()}
	}
	if d.geo.Layout() == geometry.TwoMegDualBank {
		d.logDebug("ignoring bank configuration request", "layout", d.geo.Layout().String())
		return nil
	}

	if d.optionsLocked() {
		d.unlockOptions()
	}

	optcr := d.hw.Read32(regs.OPTCR)
	if mode == DualBank {
		optcr |= regs.OptDB1M
	} else {
		optcr &^= regs.OptDB1M
	}
	d.hw.Write32(regs.OPTCR, optcr)

	d.logInfo("bank configuration updated", "mode", mode.String())
	return nil
}

// logDebug logs a debug message if a logger is configured.
func (d *Driver) logDebug(msg string, keysAndValues ...interface{}) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (d *Driver) logInfo(msg string, keysAndValues ...interface{}) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (d *Driver) logError(msg string, keysAndValues ...interface{}) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Error(msg, keysAndValues...)
	}
}

// reportProgress calls the progress callback if configured.
func (d *Driver) reportProgress(progress Progress) {
	if d.cfg.ProgressCallback != nil {
		d.cfg.ProgressCallback(progress)
	}
}
