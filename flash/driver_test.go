package flash

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-stm32flash/devmap"
	"github.com/moffa90/go-stm32flash/geometry"
	"github.com/moffa90/go-stm32flash/regs"
	"github.com/moffa90/go-stm32flash/simflash"
)

// testLogger records messages so flag-level log output can be asserted.
type testLogger struct {
	debug []string
	info  []string
	errs  []string
}

func (l *testLogger) Debug(msg string, kv ...interface{}) { l.debug = append(l.debug, msg) }
func (l *testLogger) Info(msg string, kv ...interface{})  { l.info = append(l.info, msg) }
func (l *testLogger) Error(msg string, kv ...interface{}) { l.errs = append(l.errs, msg) }

func newDriver(t *testing.T, layout geometry.Layout, devOpts []simflash.Option, opts ...Option) (*Driver, *simflash.Device) {
	t.Helper()
	dev, err := simflash.New(layout, devOpts...)
	require.NoError(t, err)
	drv, err := Open(dev, layout, devmap.AllRegions(), opts...)
	require.NoError(t, err)
	return drv, dev
}

func readWord(t *testing.T, drv *Driver, addr uint32) uint32 {
	t.Helper()
	buf := make([]byte, 4)
	require.NoError(t, drv.Read(buf, addr))
	return binary.LittleEndian.Uint32(buf)
}

func TestOpenMapsSelectedRegions(t *testing.T) {
	dev, err := simflash.New(geometry.TwoMegDualBank)
	require.NoError(t, err)

	drv, err := Open(dev, geometry.TwoMegDualBank, devmap.Selection{Flash: true})
	require.NoError(t, err)

	for _, name := range []string{devmap.RegionControl, devmap.RegionFlashBank1, devmap.RegionFlashBank2} {
		assert.True(t, drv.Mapped(name), "region %s", name)
		assert.True(t, dev.Mapped(name), "region %s on the device side", name)
	}
	assert.False(t, drv.Mapped(devmap.RegionOTP))

	h, ok := drv.Handle(devmap.RegionFlashBank2)
	require.True(t, ok)
	assert.Equal(t, uint32(0x08100000), h.Region().Base)
}

func TestNewNilHardwarePanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = New(nil, geometry.OneMegSingleBank)
	})
}

func TestUnlockClearsLatentErratumFlag(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil)

	drv.Unlock()

	assert.Zero(t, dev.Status()&regs.PgsErr, "latent PGSERR must be cleared by unlock")
	assert.False(t, dev.Locked())

	drv.Lock()
	assert.True(t, dev.Locked())
}

func TestOptionLockRoundTrip(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegDualBank, nil)

	drv.UnlockOptions()
	assert.False(t, dev.OptionsLocked())
	drv.LockOptions()
	assert.True(t, dev.OptionsLocked())
}

func TestSectorEraseNotInFlash(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)

	index, err := drv.SectorErase(context.Background(), 0x20000000)
	assert.Equal(t, -1, index)

	var nif *NotInFlashError
	require.ErrorAs(t, err, &nif)
	assert.Equal(t, uint32(0x20000000), nif.Addr)
}

func TestSectorEraseProgramReadBack(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)
	ctx := context.Background()

	index, err := drv.SectorErase(ctx, 0x08000000)
	require.NoError(t, err)
	assert.Equal(t, 0, index)

	require.NoError(t, drv.ProgramWord(ctx, 0x08000000, 0xDEADBEEF))

	assert.Equal(t, uint32(0xDEADBEEF), readWord(t, drv, 0x08000000))
}

func TestSectorEraseClearsControlFields(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil)

	_, err := drv.SectorErase(context.Background(), 0x08020000)
	require.NoError(t, err)

	cr := dev.Read32(regs.CR)
	const opFields = regs.CRPG | regs.CRSER | regs.CRMER | regs.CRMER1 | regs.CRSNBMask
	assert.Zero(t, cr&opFields, "operation fields must be reset to idle")
}

func TestImplicitEraseAtSectorStart(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil)
	ctx := context.Background()

	// Sectors 0 through 2 zeroed so only an erase can make programming
	// succeed.
	require.NoError(t, dev.LoadImage(make([]byte, 0xC000)))

	require.NoError(t, drv.ProgramWord(ctx, 0x08004000, 0xCAFEBABE))
	assert.Equal(t, uint32(0xCAFEBABE), readWord(t, drv, 0x08004000))

	// A non-start address gets no implicit erase: over the still-zeroed
	// cells of sector 2 the store narrows to zero.
	require.NoError(t, drv.ProgramWord(ctx, 0x08008010, 0xCAFEBABE))
	assert.Equal(t, uint32(0x00000000), readWord(t, drv, 0x08008010))
}

func TestProgramNarrowingLaw(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)
	ctx := context.Background()

	_, err := drv.SectorErase(ctx, 0x08000000)
	require.NoError(t, err)

	// Non-start address inside the erased sector.
	const addr = 0x08000004
	require.NoError(t, drv.ProgramWord(ctx, addr, 0xFFFFFFFF))
	require.NoError(t, drv.ProgramWord(ctx, addr, 0x0000FFFF))
	assert.Equal(t, uint32(0x0000FFFF), readWord(t, drv, addr))

	// Setting a cleared bit without an erase must not succeed: the
	// stored value is the AND of old and new.
	require.NoError(t, drv.ProgramWord(ctx, addr, 0xFFFF0000))
	assert.Equal(t, uint32(0x00000000), readWord(t, drv, addr))
}

func TestProgramWidths(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)
	ctx := context.Background()

	_, err := drv.SectorErase(ctx, 0x08000000)
	require.NoError(t, err)

	require.NoError(t, drv.ProgramByte(ctx, 0x08000010, 0xA5))
	require.NoError(t, drv.ProgramHalfWord(ctx, 0x08000012, 0xBEEF))
	require.NoError(t, drv.ProgramDoubleWord(ctx, 0x08000018, 0x0123456789ABCDEF))

	buf := make([]byte, 1)
	require.NoError(t, drv.Read(buf, 0x08000010))
	assert.Equal(t, byte(0xA5), buf[0])

	buf = make([]byte, 2)
	require.NoError(t, drv.Read(buf, 0x08000012))
	assert.Equal(t, uint16(0xBEEF), binary.LittleEndian.Uint16(buf))

	buf = make([]byte, 8)
	require.NoError(t, drv.Read(buf, 0x08000018))
	assert.Equal(t, uint64(0x0123456789ABCDEF), binary.LittleEndian.Uint64(buf))
}

func TestProgramInvalidWidth(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)
	err := drv.Program(context.Background(), 0x08000000, 0, Width(9))
	assert.Error(t, err)
}

func TestProgramOutsideFlash(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)

	var nif *NotInFlashError
	err := drv.ProgramWord(context.Background(), 0x080FFFFE, 0)
	require.ErrorAs(t, err, &nif, "word spanning past the array end")
}

func TestMassErase(t *testing.T) {
	drv, dev := newDriver(t, geometry.TwoMegDualBank, nil)
	require.NoError(t, dev.LoadImage(make([]byte, 0x200000)))

	require.NoError(t, drv.MassErase(context.Background()))

	assert.Equal(t, uint32(0xFFFFFFFF), readWord(t, drv, 0x08000000))
	assert.Equal(t, uint32(0xFFFFFFFF), readWord(t, drv, 0x081FFFFC))
}

func TestBankErase(t *testing.T) {
	drv, dev := newDriver(t, geometry.TwoMegDualBank, nil)
	require.NoError(t, dev.LoadImage(make([]byte, 0x200000)))

	require.NoError(t, drv.BankErase(context.Background(), geometry.Bank2))

	assert.Equal(t, uint32(0xFFFFFFFF), readWord(t, drv, 0x08100000), "bank 2 erased")
	assert.Equal(t, uint32(0x00000000), readWord(t, drv, 0x08000000), "bank 1 untouched")
}

func TestBankEraseUnsupported(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)

	err := drv.BankErase(context.Background(), geometry.Bank2)

	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, geometry.OneMegSingleBank, unsupported.Layout)

	assert.Error(t, drv.BankErase(context.Background(), geometry.Bank(7)))
}

func TestBusyTimeout(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank,
		[]simflash.Option{simflash.WithEraseLatency(1 << 30)},
		WithBusyTimeout(50*time.Millisecond),
	)

	_, err := drv.SectorErase(context.Background(), 0x08000000)

	var timeout *BusyTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 50*time.Millisecond, timeout.Timeout)
}

func TestBusyPollHonorsContext(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank,
		[]simflash.Option{simflash.WithEraseLatency(1 << 30)},
		WithPollInterval(time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := drv.SectorErase(ctx, 0x08000000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorDecoding(t *testing.T) {
	logger := &testLogger{}
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil, WithLogger(logger))

	// Latch a synthetic write-protection error alongside an unrelated
	// non-error flag.
	dev.InjectError(regs.WrpErr)
	dev.SetStatus(regs.EOP)

	_, err := drv.SectorErase(context.Background(), 0x08000000)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, regs.WrpErr, opErr.Flags)

	// The flag was individually cleared; the unrelated flag survives.
	assert.Zero(t, dev.Status()&regs.WrpErr)
	assert.NotZero(t, dev.Status()&regs.EOP)

	// Flag identity went to the log.
	assert.NotEmpty(t, logger.errs)
}

func TestErrorDecodingSingleFlag(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil)

	dev.InjectError(regs.PgaErr)
	err := drv.ProgramWord(context.Background(), 0x08000004, 0x12345678)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, regs.PgaErr, opErr.Flags)
	assert.Zero(t, dev.Status()&regs.PgaErr, "PGAERR cleared after decode")
}

func TestReadRangeCheckLeavesBufferAlone(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)

	buf := make([]byte, 12)
	for i := range buf {
		buf[i] = 0xAA
	}

	// [end-2, end+10) straddles the top of the array.
	err := drv.Read(buf, 0x080FFFFE)

	var nif *NotInFlashError
	require.ErrorAs(t, err, &nif)
	for i, b := range buf {
		assert.Equal(t, byte(0xAA), b, "byte %d modified by failed read", i)
	}
}

func TestCopySector(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil)
	ctx := context.Background()

	// Pattern in sector 1 (0x08004000, 16K), zeros in sector 0.
	img := make([]byte, 0x8000)
	for i := 0x4000; i < 0x8000; i++ {
		img[i] = byte(i * 7)
	}
	require.NoError(t, dev.LoadImage(img))

	require.NoError(t, drv.CopySector(ctx, 0x08000000, 0x08004000))

	want := make([]byte, 0x4000)
	got := make([]byte, 0x4000)
	require.NoError(t, drv.Read(want, 0x08004000))
	require.NoError(t, drv.Read(got, 0x08000000))
	assert.Equal(t, want, got, "full sector content reproduced byte-for-byte")
}

func TestCopySectorProgress(t *testing.T) {
	var phases []string
	var last Progress
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil,
		WithProgressCallback(func(p Progress) {
			if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
				phases = append(phases, p.Phase)
			}
			last = p
		}),
		WithCopyWidth(DoubleWord),
	)

	require.NoError(t, drv.CopySector(context.Background(), 0x08000000, 0x08004000))

	assert.Equal(t, []string{"erasing", "copying", "complete"}, phases)
	assert.Equal(t, float64(100), last.Percentage)
	assert.Equal(t, 0x4000, last.TotalBytes)
}

func TestCopySectorAbortsOnEraseFailure(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil)

	img := make([]byte, 0x4000) // zeroed destination sector
	require.NoError(t, dev.LoadImage(img))
	dev.InjectError(regs.WrpErr)

	err := drv.CopySector(context.Background(), 0x08000000, 0x08004000)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)

	// Nothing was programmed into the destination.
	assert.Equal(t, uint32(0x00000000), readWord(t, drv, 0x08000000))
}

func TestCopySectorAddressChecks(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)
	ctx := context.Background()

	var nif *NotInFlashError
	require.ErrorAs(t, drv.CopySector(ctx, 0x20000000, 0x08004000), &nif)
	require.ErrorAs(t, drv.CopySector(ctx, 0x08000000, 0x20000000), &nif)
}

func TestBankConfigUnsupportedOnSingleBank(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)

	var unsupported *UnsupportedError
	_, err := drv.BankConfig()
	require.ErrorAs(t, err, &unsupported)

	err = drv.SetBankConfig(DualBank)
	require.ErrorAs(t, err, &unsupported)
}

func TestBankConfigRoundTrip(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegDualBank, nil)

	mode, err := drv.BankConfig()
	require.NoError(t, err)
	assert.Equal(t, DualBank, mode, "1MB dual layout powers up with DB1M set")

	require.NoError(t, drv.SetBankConfig(SingleBank))
	mode, err = drv.BankConfig()
	require.NoError(t, err)
	assert.Equal(t, SingleBank, mode)

	require.NoError(t, drv.SetBankConfig(DualBank))
	mode, err = drv.BankConfig()
	require.NoError(t, err)
	assert.Equal(t, DualBank, mode)

	// The option lock was opened on demand.
	assert.False(t, dev.OptionsLocked())
}

func TestBankConfigForcedDual(t *testing.T) {
	drv, _ := newDriver(t, geometry.TwoMegDualBank, nil)

	mode, err := drv.BankConfig()
	require.NoError(t, err)
	assert.Equal(t, DualBank, mode)

	// Requests are silently ignored; dual banking is mandatory.
	require.NoError(t, drv.SetBankConfig(SingleBank))
	mode, err = drv.BankConfig()
	require.NoError(t, err)
	assert.Equal(t, DualBank, mode)
}

func TestSectorSizeLookup(t *testing.T) {
	drv, _ := newDriver(t, geometry.OneMegSingleBank, nil)

	size, err := drv.SectorSize(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10000), size)

	size, err = drv.SectorSize(42)
	assert.Zero(t, size)

	var invalid *InvalidSectorError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 42, invalid.Index)
}

func TestResolveSector(t *testing.T) {
	drv, _ := newDriver(t, geometry.TwoMegDualBank, nil)

	s, err := drv.ResolveSector(0x08100000)
	require.NoError(t, err)
	assert.Equal(t, 12, s.Index)
	assert.Equal(t, geometry.Bank2, s.Bank)

	_, err = drv.ResolveSector(0x00000000)
	assert.True(t, errors.As(err, new(*NotInFlashError)))
}

func TestFailedOperationKeepsUnlockState(t *testing.T) {
	drv, dev := newDriver(t, geometry.OneMegSingleBank, nil)

	dev.InjectError(regs.WrpErr)
	_, err := drv.SectorErase(context.Background(), 0x08000000)
	require.Error(t, err)

	// A failed operation leaves the part unlocked; the caller decides
	// whether to retry or relock.
	assert.False(t, dev.Locked())

	_, err = drv.SectorErase(context.Background(), 0x08000000)
	assert.NoError(t, err, "reissuing the operation succeeds without extra unlocking")
}
