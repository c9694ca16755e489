package simflash

import (
	"fmt"

	"github.com/moffa90/go-stm32flash/devmap"
	"github.com/moffa90/go-stm32flash/geometry"
	"github.com/moffa90/go-stm32flash/regs"
)

// Erased is the value every flash cell holds after an erase.
const Erased = 0xFF

// w1cBits are the SR bits cleared by writing a 1 back.
const w1cBits = regs.EOP | regs.OpErr | regs.WrpErr | regs.PgaErr |
	regs.PgpErr | regs.PgsErr | regs.RdErr

// Device is a simulated STM32F4 flash part. It implements mmio.Hardware
// and devmap.Mapper.
//
// Like the real peripheral, the device assumes a single logical caller;
// it performs no internal locking.
type Device struct {
	geo *geometry.Geometry
	cfg config

	// registers
	acr    uint32
	sr     regs.Status
	cr     uint32
	optcr  uint32
	optcr1 uint32

	// unlock sequence progress
	keyStage     int
	optKeyStage  int
	everUnlocked bool

	// backing stores
	flash    []byte
	sysmem   []byte
	otp      []byte
	optBank1 []byte
	optBank2 []byte

	// mapping state
	known  map[string]devmap.Region
	mapped map[string]devmap.Region

	// busyReads is the number of SR reads still reporting BSY
	busyReads int

	// injected is ORed into SR in place of the next operation's effect
	injected regs.Status
}

// New creates a simulated device for the given layout. Nothing is mapped
// yet; accesses fail until the regions are mapped, normally by
// flash.Open.
func New(layout geometry.Layout, opts ...Option) (*Device, error) {
	geo, err := geometry.New(layout)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Device{
		geo:      geo,
		cfg:      cfg,
		cr:       regs.CRLock,
		optcr:    regs.OptLock,
		flash:    make([]byte, geo.End()-geo.Base()+1),
		sysmem:   make([]byte, geometry.SystemMemoryEnd-geometry.SystemMemoryStart+1),
		otp:      make([]byte, geometry.OTPEnd-geometry.OTPStart+1),
		optBank1: make([]byte, geometry.OptionBytesBank1End-geometry.OptionBytesBank1Start+1),
		optBank2: make([]byte, geometry.OptionBytesBank2End-geometry.OptionBytesBank2Start+1),
		known:    map[string]devmap.Region{},
		mapped:   map[string]devmap.Region{},
	}

	for i := range d.flash {
		d.flash[i] = Erased
	}
	if geo.DualBank() {
		d.optcr |= regs.OptDB1M
	}

	for _, r := range devmap.Regions(geo, devmap.AllRegions()) {
		d.known[r.Name] = r
	}

	return d, nil
}

// NewMapped creates a device with every region already mapped, for
// harnesses that construct a driver directly instead of going through
// flash.Open.
func NewMapped(layout geometry.Layout, opts ...Option) (*Device, error) {
	d, err := New(layout, opts...)
	if err != nil {
		return nil, err
	}
	for _, r := range d.known {
		if _, err := d.MapRegion(r); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Geometry returns the geometry the device was built from.
func (d *Device) Geometry() *geometry.Geometry {
	return d.geo
}

// MapRegion implements devmap.Mapper. The request must name a region the
// part exposes and match its base and length exactly.
func (d *Device) MapRegion(region devmap.Region) (devmap.Handle, error) {
	want, ok := d.known[region.Name]
	if !ok {
		return devmap.Handle{}, fmt.Errorf("unknown region %q", region.Name)
	}
	if region.Base != want.Base || region.Length != want.Length {
		return devmap.Handle{}, fmt.Errorf("region %s does not match device region %s", region, want)
	}
	d.mapped[region.Name] = region
	return devmap.NewHandle(region), nil
}

// Mapped implements devmap.Mapper.
func (d *Device) Mapped(name string) bool {
	_, ok := d.mapped[name]
	return ok
}

// ctrlMapped reports whether the control block region is mapped.
func (d *Device) ctrlMapped() bool {
	return d.Mapped(devmap.RegionControl)
}

// Read32 implements mmio.RegisterBlock. Reads of an unmapped control
// block return 0.
func (d *Device) Read32(offset uint32) uint32 {
	if !d.ctrlMapped() {
		return 0
	}
	switch offset {
	case regs.ACR:
		return d.acr
	case regs.SR:
		s := d.sr
		if d.busyReads > 0 {
			d.busyReads--
			s |= regs.Bsy
		}
		return uint32(s)
	case regs.CR:
		return d.cr
	case regs.OPTCR:
		return d.optcr
	case regs.OPTCR1:
		return d.optcr1
	default:
		// KEYR and OPTKEYR are write-only.
		return 0
	}
}

// Write32 implements mmio.RegisterBlock. Writes to an unmapped control
// block are dropped.
func (d *Device) Write32(offset uint32, value uint32) {
	if !d.ctrlMapped() {
		return
	}
	switch offset {
	case regs.ACR:
		d.acr = value
	case regs.KEYR:
		d.writeKey(value)
	case regs.OPTKEYR:
		d.writeOptKey(value)
	case regs.SR:
		d.sr &^= regs.Status(value) & w1cBits
	case regs.CR:
		d.writeControl(value)
	case regs.OPTCR:
		d.writeOptControl(value)
	case regs.OPTCR1:
		d.optcr1 = value
	}
}

// writeKey advances the CR unlock sequence. Any out-of-sequence word
// resets it.
func (d *Device) writeKey(value uint32) {
	if d.cr&regs.CRLock == 0 {
		return
	}
	switch {
	case d.keyStage == 0 && value == regs.Key1:
		d.keyStage = 1
	case d.keyStage == 1 && value == regs.Key2:
		d.keyStage = 0
		d.cr &^= regs.CRLock
		if !d.everUnlocked {
			// Latent PGSERR after the first unlock since reset.
			d.sr |= regs.PgsErr
			d.everUnlocked = true
		}
	default:
		d.keyStage = 0
	}
}

// writeOptKey advances the OPTCR unlock sequence.
func (d *Device) writeOptKey(value uint32) {
	if d.optcr&regs.OptLock == 0 {
		return
	}
	switch {
	case d.optKeyStage == 0 && value == regs.OptKey1:
		d.optKeyStage = 1
	case d.optKeyStage == 1 && value == regs.OptKey2:
		d.optKeyStage = 0
		d.optcr &^= regs.OptLock
	default:
		d.optKeyStage = 0
	}
}

// crWritable are the CR bits software can set.
const crWritable = regs.CRPG | regs.CRSER | regs.CRMER | regs.CRSNBMask |
	regs.CRPSizeMask | regs.CRMER1 | regs.CRSTRT | regs.CRLock

// writeControl applies a CR write. While locked, the only effective
// write is setting the lock bit again.
func (d *Device) writeControl(value uint32) {
	if d.cr&regs.CRLock != 0 {
		d.cr |= value & regs.CRLock
		return
	}

	d.cr = value & crWritable

	if d.cr&regs.CRSTRT != 0 {
		d.startErase()
		d.cr &^= regs.CRSTRT
	}
}

// writeOptControl applies an OPTCR write under the option lock.
func (d *Device) writeOptControl(value uint32) {
	if d.optcr&regs.OptLock != 0 {
		d.optcr |= value & regs.OptLock
		return
	}
	d.optcr = value &^ regs.OptStart // OPTSTRT self-clears
	if !d.geo.DualBank() {
		d.optcr &^= regs.OptDB1M
	}
}

// startErase executes the erase selected by SER/SNB or MER/MER1.
func (d *Device) startErase() {
	d.busyReads = d.cfg.eraseLatency

	if d.injected != 0 {
		d.sr |= d.injected
		d.injected = 0
		return
	}

	if d.cr&regs.CRSER != 0 {
		snb := (d.cr & regs.CRSNBMask) >> regs.CRSNBShift
		index := decodeSNB(snb, d.geo.DualBank())
		s, ok := d.geo.SectorByIndex(index)
		if !ok {
			d.sr |= regs.OpErr
			return
		}
		d.fillErased(s.Start, s.End)
	}
	if d.cr&regs.CRMER != 0 {
		d.eraseBank(geometry.Bank1)
	}
	if d.cr&regs.CRMER1 != 0 && d.geo.DualBank() {
		d.eraseBank(geometry.Bank2)
	}
}

// decodeSNB inverts the SNB encoding: bit 4 selects bank 2 on dual-bank
// parts.
func decodeSNB(snb uint32, dualBank bool) int {
	if dualBank && snb&0x10 != 0 {
		return 12 + int(snb&0x0F)
	}
	return int(snb & 0x0F)
}

func (d *Device) eraseBank(bank geometry.Bank) {
	for _, s := range d.geo.Sectors() {
		if s.Bank == bank {
			d.fillErased(s.Start, s.End)
		}
	}
}

func (d *Device) fillErased(start, end uint32) {
	base := d.geo.Base()
	for addr := start; addr <= end; addr++ {
		d.flash[addr-base] = Erased
	}
}

// psizeBytes maps the PSIZE field value to the element width it allows.
var psizeBytes = map[uint32]int{
	regs.PSizeByte:       1,
	regs.PSizeHalfWord:   2,
	regs.PSizeWord:       4,
	regs.PSizeDoubleWord: 8,
}

// Store implements mmio.Memory. Programming requires an unlocked CR with
// PG set and a PSIZE matching the element width; violations latch status
// flags instead of failing the call, as on hardware. Only the flash
// array is programmable. Stored bits narrow: new = old AND value.
func (d *Device) Store(addr uint32, value uint64, size int) error {
	if size != 1 && size != 2 && size != 4 && size != 8 {
		return fmt.Errorf("invalid element size %d", size)
	}
	if _, err := d.backing(addr, uint32(size)); err != nil {
		return err
	}
	if !d.geo.ContainsRange(addr, uint32(size)) {
		return fmt.Errorf("store at %#x: not in the flash array", addr)
	}

	if d.cr&regs.CRLock != 0 || d.cr&regs.CRPG == 0 {
		d.sr |= regs.PgsErr
		return nil
	}

	psize := (d.cr & regs.CRPSizeMask) >> regs.CRPSizeShift
	if psizeBytes[psize] != size {
		d.sr |= regs.PgpErr
		return nil
	}

	d.busyReads = d.cfg.programLatency

	if d.injected != 0 {
		d.sr |= d.injected
		d.injected = 0
		return nil
	}

	base := d.geo.Base()
	for i := 0; i < size; i++ {
		d.flash[addr-base+uint32(i)] &= byte(value >> (8 * i))
	}
	return nil
}

// ReadAt implements mmio.Memory. The addressed range must lie entirely
// inside one mapped region.
func (d *Device) ReadAt(p []byte, addr uint32) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	backing, err := d.backing(addr, uint32(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, backing), nil
}

// backing locates the mapped region containing [addr, addr+length) and
// returns the backing bytes starting at addr.
func (d *Device) backing(addr, length uint32) ([]byte, error) {
	for name, region := range d.mapped {
		if addr < region.Base || addr-region.Base+length > region.Length {
			continue
		}
		switch name {
		case devmap.RegionFlashBank1, devmap.RegionFlashBank2:
			// Both banks share the contiguous array backing.
			return d.flash[addr-d.geo.Base():], nil
		case devmap.RegionSystemMemory:
			return d.sysmem[addr-region.Base:], nil
		case devmap.RegionOTP:
			return d.otp[addr-region.Base:], nil
		case devmap.RegionOptionBytesBank1:
			return d.optBank1[addr-region.Base:], nil
		case devmap.RegionOptionBytesBank2:
			return d.optBank2[addr-region.Base:], nil
		}
	}
	return nil, fmt.Errorf("access at %#x+%#x: no mapped region", addr, length)
}

// Status returns the current SR value without consuming busy reads.
func (d *Device) Status() regs.Status {
	return d.sr
}

// SetStatus ORs flags into SR directly, for decoder tests.
func (d *Device) SetStatus(flags regs.Status) {
	d.sr |= flags
}

// InjectError queues status flags that replace the effect of the next
// erase or program operation.
func (d *Device) InjectError(flags regs.Status) {
	d.injected = flags
}

// Locked reports whether the control register is locked.
func (d *Device) Locked() bool {
	return d.cr&regs.CRLock != 0
}

// OptionsLocked reports whether the option control register is locked.
func (d *Device) OptionsLocked() bool {
	return d.optcr&regs.OptLock != 0
}

// LoadImage copies an image into the flash array starting at its base.
// The image may be shorter than the array; the remainder keeps its
// current content.
func (d *Device) LoadImage(img []byte) error {
	if len(img) > len(d.flash) {
		return fmt.Errorf("image size %d exceeds flash size %d", len(img), len(d.flash))
	}
	copy(d.flash, img)
	return nil
}

// Image returns a copy of the full flash array content.
func (d *Device) Image() []byte {
	img := make([]byte, len(d.flash))
	copy(img, d.flash)
	return img
}
