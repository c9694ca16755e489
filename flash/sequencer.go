package flash

import (
	"context"
	"time"

	"github.com/moffa90/go-stm32flash/regs"
)

// This file is the only place that mutates the control and status
// registers. The orchestration methods in driver.go compose these steps
// and never touch the handle directly.

// locked reports the CR lock bit.
func (d *Driver) locked() bool {
	return d.hw.Read32(regs.CR)&regs.CRLock != 0
}

// unlock writes the two-word key sequence to clear the CR lock bit, then
// clears the PGSERR flag that can be latent after the first unlock since
// reset (hardware erratum, not an application error).
func (d *Driver) unlock() {
	d.logDebug("unlocking flash control register")
	d.hw.Write32(regs.KEYR, regs.Key1)
	d.hw.Write32(regs.KEYR, regs.Key2)
	d.hw.Write32(regs.SR, uint32(regs.PgsErr))
}

// lock sets the CR lock bit. The lock is write-once-to-set; only the key
// sequence clears it again.
func (d *Driver) lock() {
	d.logDebug("locking flash control register")
	d.hw.Write32(regs.CR, d.hw.Read32(regs.CR)|regs.CRLock)
}

// ensureUnlocked unlocks the control register if it is locked. Erase and
// program sequences call this on entry; they leave the lock state for
// the caller to manage afterwards, so a failed operation never relocks.
func (d *Driver) ensureUnlocked() {
	if d.locked() {
		d.unlock()
	}
}

// optionsLocked reports the OPTCR lock bit.
func (d *Driver) optionsLocked() bool {
	return d.hw.Read32(regs.OPTCR)&regs.OptLock != 0
}

// unlockOptions clears the OPTCR lock with its own key pair, independent
// of the main lock.
func (d *Driver) unlockOptions() {
	d.logDebug("unlocking flash option control register")
	d.hw.Write32(regs.OPTKEYR, regs.OptKey1)
	d.hw.Write32(regs.OPTKEYR, regs.OptKey2)
}

// lockOptions sets the OPTCR lock bit.
func (d *Driver) lockOptions() {
	d.logDebug("locking flash option control register")
	d.hw.Write32(regs.OPTCR, d.hw.Read32(regs.OPTCR)|regs.OptLock)
}

// setElementWidth programs the PSIZE field. PSIZE must be in place
// before PG or SER is set.
func (d *Driver) setElementWidth(w Width) {
	cr := d.hw.Read32(regs.CR)
	cr = (cr &^ regs.CRPSizeMask) | w.psize()<<regs.CRPSizeShift
	d.hw.Write32(regs.CR, cr)
}

// beginSectorErase sets SER with the encoded sector number and triggers
// the erase.
func (d *Driver) beginSectorErase(snb uint32) {
	cr := d.hw.Read32(regs.CR)
	cr = (cr &^ regs.CRSNBMask) | regs.CRSER | snb<<regs.CRSNBShift
	d.hw.Write32(regs.CR, cr)
	d.hw.Write32(regs.CR, cr|regs.CRSTRT)
}

// beginMassErase sets the mass-erase bits for the requested banks and
// triggers the erase.
func (d *Driver) beginMassErase(bank1, bank2 bool) {
	cr := d.hw.Read32(regs.CR)
	if bank1 {
		cr |= regs.CRMER
	}
	if bank2 {
		cr |= regs.CRMER1
	}
	d.hw.Write32(regs.CR, cr)
	d.hw.Write32(regs.CR, cr|regs.CRSTRT)
}

// beginProgram sets the program-enable bit. The caller performs the raw
// store afterwards.
func (d *Driver) beginProgram() {
	d.hw.Write32(regs.CR, d.hw.Read32(regs.CR)|regs.CRPG)
}

// clearControl resets the operation selection fields to idle so a later
// unrelated operation cannot inherit stale values.
func (d *Driver) clearControl() {
	cr := d.hw.Read32(regs.CR)
	cr &^= regs.CRPG | regs.CRSER | regs.CRMER | regs.CRMER1 | regs.CRSNBMask
	d.hw.Write32(regs.CR, cr)
}

// waitNotBusy polls the busy flag until it clears, the configured
// deadline passes, or the context is cancelled.
func (d *Driver) waitNotBusy(ctx context.Context, op string) error {
	deadline := time.Now().Add(d.cfg.BusyTimeout)
	for {
		if regs.Status(d.hw.Read32(regs.SR)).Busy() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if time.Now().After(deadline) {
				d.logError("busy flag stuck", "op", op, "timeout", d.cfg.BusyTimeout.String())
				return &BusyTimeoutError{Op: op, Timeout: d.cfg.BusyTimeout}
			}
			if d.cfg.PollInterval > 0 {
				time.Sleep(d.cfg.PollInterval)
			}
			continue
		}
		return nil
	}
}

// checkAndClearErrors decodes the status register after an operation.
// Every error flag valid for the part is logged and individually cleared
// by writing it back (write-1-to-clear); if any was set, the aggregate
// is returned as an OperationError.
func (d *Driver) checkAndClearErrors(op string) error {
	status := regs.Status(d.hw.Read32(regs.SR))
	errs := status.Errors(d.geo.DualBank())
	if errs == 0 {
		return nil
	}

	for _, flag := range errs.Flags() {
		d.logError("flash error flag set", "op", op, "flag", flag.String())
		d.hw.Write32(regs.SR, uint32(flag))
	}

	return &OperationError{Op: op, Flags: errs}
}
