package thunk

// Coprocessor p15 access-function fields used by the MMU/SCTLR stubs.
const (
	cp15 = 15

	crSCTLR = 1 // c1: system control register
	crACTLR = 1 // c1, opc2=1: auxiliary control register
	crTLB   = 8 // c8: TLB maintenance
	crCache = 7 // c7: cache maintenance
	crRMR   = 12 // c12: reset management register
)

// CoprocRead returns the 3-instruction (12-byte) stub that reads
// coprocessor register (coproc, opc1, CRn, CRm, opc2) into R0 and
// stores it 12 bytes past the start of the stub.
func CoprocRead(coproc, opc1, crn, crm, opc2 uint32) []uint32 {
	a := newAsm()
	a.emit(mrc(coproc, opc1, r0, crn, crm, opc2))
	a.pcRel(strPCBase(r0), "result")
	a.emit(bxReg(lr))
	a.label("result")
	return a.finish()
}

// CoprocReadResultOffset is the byte offset, from the stub's base
// address, at which CoprocRead's result word is stored.
const CoprocReadResultOffset = 12

// CoprocWrite returns the stub that writes value into coprocessor
// register (coproc, opc1, CRn, CRm, opc2), with the required DSB/ISB
// after an MCR to a control register.
func CoprocWrite(coproc, opc1, crn, crm, opc2, value uint32) []uint32 {
	a := newAsm()
	a.pcRel(ldrPCBase(r0), "value")
	a.emit(mcr(coproc, opc1, r0, crn, crm, opc2))
	a.emit(dsbSY())
	a.emit(isbSY())
	a.emit(bxReg(lr))
	a.label("value")
	a.emit(value)
	return a.finish()
}

// MaxBulkWords is the largest word count a single readl_n/writel_n
// round trip may move: the 256-word scratch buffer minus the 12 words
// (48 bytes) of fixed stub code ahead of the data area.
const MaxBulkWords = 256 - 12

// ReadlN returns the fixed 12-word (48-byte) stub that copies count
// words from [addr, addr+4*count) into the data area immediately after
// the 48-byte stub. count must be <= MaxBulkWords.
func ReadlN(addr, count uint32) []uint32 {
	a := newAsm()
	a.pcRel(ldrPCBase(r0), "addr")    // R0 = addr
	a.pcRel(ldrPCBase(r1), "count")   // R1 = count
	a.pcRel8(addImmPC(r2), "data")    // R2 = stub base + 48 (data area)
	a.label("loop")
	a.emit(cmpImm(r1, 0))
	a.branch(0x0 /* EQ */, "done")
	a.emit(ldrPostInc(r3, r0))
	a.emit(strPostInc(r3, r2))
	a.emit(subImm(r1, r1, 1))
	a.branch(condAL, "loop")
	a.label("done")
	a.emit(bxReg(lr))
	a.label("addr")
	a.emit(addr)
	a.label("count")
	a.emit(count)
	a.label("data")
	return a.finish()
}

// ReadlNDataOffset is the byte offset, from the stub's base address,
// of the copied-out data area.
const ReadlNDataOffset = 48

// WritelN returns the fixed 12-word (48-byte) stub that copies count
// words from the data area immediately after the 48-byte stub into
// [addr, addr+4*count). The caller uploads code+data in one transfer:
// stub words followed by count data words at ReadlNDataOffset.
func WritelN(addr, count uint32) []uint32 {
	a := newAsm()
	a.pcRel(ldrPCBase(r0), "addr")  // R0 = target addr
	a.pcRel(ldrPCBase(r1), "count") // R1 = count
	a.pcRel8(addImmPC(r2), "data")  // R2 = stub base + 48 (data area)
	a.label("loop")
	a.emit(cmpImm(r1, 0))
	a.branch(0x0 /* EQ */, "done")
	a.emit(ldrPostInc(r3, r2))
	a.emit(strPostInc(r3, r0))
	a.emit(subImm(r1, r1, 1))
	a.branch(condAL, "loop")
	a.label("done")
	a.emit(bxReg(lr))
	a.label("addr")
	a.emit(addr)
	a.label("count")
	a.emit(count)
	a.label("data")
	return a.finish()
}

// EnableL2 returns the stub that sets bit 1 of the Auxiliary Control
// Register, enabling the L2 cache on SoCs whose boot ROM leaves it
// off (socdata.Info.NeedsL2Enable).
func EnableL2() []uint32 {
	a := newAsm()
	a.emit(mrc(cp15, 0, r0, crACTLR, 0, 1))
	a.emit(orrImm(r0, r0, 1<<1))
	a.emit(mcr(cp15, 0, r0, crACTLR, 0, 1))
	a.emit(bxReg(lr))
	return a.finish()
}

// ProbeStack returns the stub that captures the current SP and SP_irq
// before the loader disturbs either, and dataOffset, the
// byte offset (from the stub base) of the two result words (SP, then
// SP_irq).
func ProbeStack() (code []uint32, dataOffset int) {
	a := newAsm()
	a.emit(movReg(r0, 13)) // R0 = current SP
	a.emit(cpsMode(modeIRQ))
	a.emit(movReg(r1, 13)) // R1 = SP_irq
	a.emit(cpsMode(modeSVC))
	a.pcRel(strPCBase(r0), "sp")
	a.pcRel(strPCBase(r1), "spIRQ")
	a.emit(bxReg(lr))
	dataOffset = len(a.words) * 4
	a.label("sp")
	a.emit(0) // reserved word: SP lands here, 4 bytes ahead of SP_irq
	a.label("spIRQ")
	code = a.finish()
	return code, dataOffset
}

// sctlrBits: the three bits the MMU disable/restore stubs toggle.
const (
	sctlrM = 1 << 0  // MMU enable
	sctlrZ = 1 << 11 // branch prediction enable
	sctlrI = 1 << 12 // instruction cache enable
)

// DisableMMU returns the stub that clears SCTLR.M, SCTLR.I and
// SCTLR.Z and returns, used once the BROM's translation table has been
// backed up.
func DisableMMU() []uint32 {
	a := newAsm()
	a.emit(mrc(cp15, 0, r0, crSCTLR, 0, 0))
	a.emit(bicImm(r0, r0, sctlrM))
	a.emit(bicImm(r0, r0, sctlrI))
	a.emit(bicImm(r0, r0, sctlrZ))
	a.emit(mcr(cp15, 0, r0, crSCTLR, 0, 0))
	a.emit(bxReg(lr))
	return a.finish()
}

// EnableMMU returns the stub that invalidates the I-cache, TLB and
// branch predictor (followed by one DSB/ISB pair) and then
// sets SCTLR.M, SCTLR.I and SCTLR.Z, used after the restored
// translation table has been uploaded to TTBR0.
func EnableMMU() []uint32 {
	a := newAsm()
	a.emit(mcr(cp15, 0, r0, crCache, 5, 0)) // ICIALLU, Rt ignored (SBZ)
	a.emit(mcr(cp15, 0, r0, crTLB, 7, 0))   // TLBIALL
	a.emit(mcr(cp15, 0, r0, crCache, 5, 6)) // BPIALL
	a.emit(dsbSY())
	a.emit(isbSY())
	a.emit(mrc(cp15, 0, r0, crSCTLR, 0, 0))
	a.emit(orrImm(r0, r0, sctlrM))
	a.emit(orrImm(r0, r0, sctlrI))
	a.emit(orrImm(r0, r0, sctlrZ))
	a.emit(mcr(cp15, 0, r0, crSCTLR, 0, 0))
	a.emit(bxReg(lr))
	return a.finish()
}

// Reset64 returns the stub that writes entry into the memory-mapped
// RVBAR register at rvbarAddr, requests an AArch64 warm reset via the
// RR+AA64 bits of the Reset Management Register, and spins in wfi
// (the reset takes effect asynchronously, so this stub never returns).
func Reset64(entry, rvbarAddr uint32) []uint32 {
	a := newAsm()
	a.pcRel(ldrPCBase(r0), "entry")
	a.pcRel(ldrPCBase(r1), "rvbarAddr")
	a.emit(strWordImm(r0, r1, 0))
	a.emit(mrc(cp15, 0, r0, crRMR, 0, 2))
	a.emit(orrImm(r0, r0, 0x3)) // RR (bit1) + AA64 (bit0)
	a.emit(mcr(cp15, 0, r0, crRMR, 0, 2))
	a.label("loop")
	a.emit(wfi())
	a.branch(condAL, "loop")
	a.label("entry")
	a.emit(entry)
	a.label("rvbarAddr")
	a.emit(rvbarAddr)
	return a.finish()
}
