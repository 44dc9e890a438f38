// Package thunk synthesizes small ARM machine-code stubs at runtime:
// coprocessor read/write, bulk readl_n/writel_n, L2 enable, the
// stack/SP probe, and the MMU disable/restore sequences. Every stub is
// position-independent; all except Reset64 (which spins in wfi) and
// FELtoSPL (which branches into the SPL) return to the boot ROM via
// "bx lr".
//
// The coprocessor isn't memory-mapped, so the only way to read or
// write it from the host is to synthesize and execute a tiny program
// that does the MRC/MCR for us.
package thunk

// registers used by the hand-assembled stubs below.
const (
	r0 = 0
	r1 = 1
	r2 = 2
	r3 = 3
	r4 = 4
	lr = 14
	pc = 15
)

// asm is a minimal two-pass assembler: instructions are appended in
// order, branches/PC-relative loads reference named labels, and
// encoding happens once every label's word offset is known.
type asm struct {
	words  []uint32
	labels map[string]int
	fixups []fixup
}

type fixupKind int

const (
	fixupBranch fixupKind = iota // B/BEQ: signed imm24 word offset
	fixupPCRel                   // LDR/STR Rd,[PC,#imm12]: byte offset, must be >= 0
	fixupPCRel8                  // ADD Rd,PC,#imm8: byte offset, must be in [0,255]
)

type fixup struct {
	index  int // word index of the instruction to patch
	label  string
	kind   fixupKind
	cond   uint32 // condition field for fixupBranch
	ldrstr uint32 // base opcode word (without imm12) for fixupPCRel
}

func newAsm() *asm {
	return &asm{labels: map[string]int{}}
}

func (a *asm) label(name string) {
	a.labels[name] = len(a.words)
}

func (a *asm) emit(word uint32) int {
	a.words = append(a.words, word)
	return len(a.words) - 1
}

// branch appends a conditional branch to label, resolved in finish().
func (a *asm) branch(cond uint32, label string) {
	idx := a.emit(0)
	a.fixups = append(a.fixups, fixup{index: idx, label: label, kind: fixupBranch, cond: cond})
}

// pcRel appends an instruction whose imm12 is a PC-relative byte
// offset to label, resolved in finish(). base must already encode
// Rd/Rn=PC/everything except the low 12 bits.
func (a *asm) pcRel(base uint32, label string) {
	idx := a.emit(base)
	a.fixups = append(a.fixups, fixup{index: idx, label: label, kind: fixupPCRel, ldrstr: base})
}

// pcRel8 appends an "ADD Rd, PC, #imm8"-shaped instruction whose imm8
// is a PC-relative byte offset to label, resolved in finish().
func (a *asm) pcRel8(base uint32, label string) {
	idx := a.emit(base)
	a.fixups = append(a.fixups, fixup{index: idx, label: label, kind: fixupPCRel8, ldrstr: base})
}

// finish resolves every fixup against the final label table and
// returns the assembled code.
func (a *asm) finish() []uint32 {
	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			panic("thunk: undefined label " + f.label)
		}
		switch f.kind {
		case fixupBranch:
			// PC during execution of instruction at word i is (i+2) words in.
			pcWord := f.index + 2
			imm24 := int32(target-pcWord) & 0x00FFFFFF
			a.words[f.index] = (f.cond << 28) | (0xA << 24) | uint32(imm24)
		case fixupPCRel:
			pcByte := (f.index + 2) * 4
			targetByte := target * 4
			if targetByte < pcByte {
				panic("thunk: backward PC-relative reference unsupported")
			}
			imm12 := uint32(targetByte - pcByte)
			if imm12 > 0xFFF {
				panic("thunk: PC-relative offset out of range")
			}
			a.words[f.index] = f.ldrstr | imm12
		case fixupPCRel8:
			pcByte := (f.index + 2) * 4
			targetByte := target * 4
			if targetByte < pcByte {
				panic("thunk: backward PC-relative reference unsupported")
			}
			imm8 := uint32(targetByte - pcByte)
			if imm8 > 0xFF {
				panic("thunk: PC-relative(8) offset out of range")
			}
			a.words[f.index] = f.ldrstr | imm8
		}
	}
	return a.words
}

// -- instruction encoders, one function per ARM instruction form used.
// Each returns the fixed 32-bit word for condition AL (0xE) unless the
// instruction is architecturally unconditional (cps/dsb/isb).

const condAL = 0xE

// movReg encodes "MOV Rd, Rm".
func movReg(rd, rm uint32) uint32 {
	return (condAL << 28) | 0x01A00000 | (rd << 12) | rm
}

// addImmPC returns the base word for "ADD Rd, PC, #imm" (a pseudo-ADR);
// the caller resolves imm via a.pcRel8.
func addImmPC(rd uint32) uint32 {
	return (condAL << 28) | 0x028F0000 | (rd << 12)
}

// cmpImm encodes "CMP Rn, #val" for any ARM-rotated-immediate-
// representable val.
func cmpImm(rn, val uint32) uint32 {
	return (condAL << 28) | 0x03500000 | (rn << 16) | encodeImm12(val)
}

// subImm encodes "SUB Rd, Rn, #val".
func subImm(rd, rn, val uint32) uint32 {
	return (condAL << 28) | 0x02400000 | (rn << 16) | (rd << 12) | encodeImm12(val)
}

// orrImm encodes "ORR Rd, Rn, #val" (sets the bits in val).
func orrImm(rd, rn, val uint32) uint32 {
	return (condAL << 28) | 0x03800000 | (rn << 16) | (rd << 12) | encodeImm12(val)
}

// bicImm encodes "BIC Rd, Rn, #val" (clears the bits in val).
func bicImm(rd, rn, val uint32) uint32 {
	return (condAL << 28) | 0x03C00000 | (rn << 16) | (rd << 12) | encodeImm12(val)
}

// strWordImm encodes "STR Rt, [Rn, #imm12]" (pre-indexed, no writeback).
func strWordImm(rt, rn, imm12 uint32) uint32 {
	return (condAL << 28) | 0x05800000 | (rn << 16) | (rt << 12) | (imm12 & 0xFFF)
}

// ldrPostInc encodes "LDR Rt, [Rn], #4" (post-indexed, add, word).
func ldrPostInc(rt, rn uint32) uint32 {
	return (condAL << 28) | 0x04900000 | (rn << 16) | (rt << 12) | 4
}

// strPostInc encodes "STR Rt, [Rn], #4" (post-indexed, add, word).
func strPostInc(rt, rn uint32) uint32 {
	return (condAL << 28) | 0x04800000 | (rn << 16) | (rt << 12) | 4
}

// strPCBase returns the base word for "STR Rt, [PC, #imm12]"; the
// caller resolves imm12 via a.pcRel.
func strPCBase(rt uint32) uint32 {
	return (condAL << 28) | 0x058F0000 | (rt << 12)
}

// ldrPCBase returns the base word for "LDR Rt, [PC, #imm12]"; the
// caller resolves imm12 via a.pcRel.
func ldrPCBase(rt uint32) uint32 {
	return (condAL << 28) | 0x059F0000 | (rt << 12)
}

// bxReg encodes "BX Rm".
func bxReg(rm uint32) uint32 {
	return (condAL << 28) | 0x012FFF10 | rm
}

// mrc encodes "MRC coproc, opc1, Rt, CRn, CRm, opc2".
func mrc(coproc, opc1, rt, crn, crm, opc2 uint32) uint32 {
	return (condAL << 28) | 0x0E100010 | (opc1 << 21) | (crn << 16) | (rt << 12) | (coproc << 8) | (opc2 << 5) | crm
}

// mcr encodes "MCR coproc, opc1, Rt, CRn, CRm, opc2".
func mcr(coproc, opc1, rt, crn, crm, opc2 uint32) uint32 {
	return (condAL << 28) | 0x0E000010 | (opc1 << 21) | (crn << 16) | (rt << 12) | (coproc << 8) | (opc2 << 5) | crm
}

// dsbSY encodes the unconditional "DSB SY" memory barrier.
func dsbSY() uint32 { return 0xF57FF04F }

// isbSY encodes the unconditional "ISB SY" memory barrier.
func isbSY() uint32 { return 0xF57FF06F }

// cpsMode encodes the unconditional "CPS #mode" (mode change only, AIF
// unchanged).
func cpsMode(mode uint32) uint32 {
	return 0xF1020000 | (mode & 0x1F)
}

const (
	modeIRQ = 0x12
	modeSVC = 0x13
)

// wfi encodes the unconditional "WFI" (wait for interrupt).
func wfi() uint32 { return 0xE320F003 }
