// Package mmu inspects, validates, backs up, reconfigures and
// restores the ARMv7 first-level translation table the boot ROM may
// leave active, and synthesizes a fresh flat-mapped table when the
// boot ROM left the MMU off.
package mmu

import (
	"fmt"

	"sunxi-fel/internal/fel/socdata"
	"sunxi-fel/internal/fel/thunk"
)

// Coprocessor register selectors (p15, opc1, CRn, CRm, opc2).
const (
	regSCTLR = 0 // c1, c0, 0
	regTTBR0 = 0 // c2, c0, 0
	regTTBCR = 2 // c2, c0, 2
	regDACR  = 0 // c3, c0, 0
)

// Known boot-ROM defaults; a mismatch means an unfamiliar SoC
// configuration and must abort rather than proceed.
const (
	sctlrKnownMask  = 0x00C50038 // bits this driver checks (ignores M/Z/I/V/UNK)
	sctlrIgnoreMask = 0x00003841 // M(0), UNK(6), Z(11), I(12), V(13) bits ignored in the check
	dacrDefault     = 0x55555555
	ttbr0AlignMask  = 0x3FFF // low 14 bits of TTBR0 must be zero

	sctlrM = 1 << 0
)

// Table is a 4096-entry ARMv7 first-level translation table: 16 KiB,
// 16-KiB-aligned, one 4-byte section descriptor per 1 MiB of address
// space.
type Table [4096]uint32

// Backup holds the BROM's original translation table and the TTBR0 it
// was installed at, captured by BackupAndDisable so RestoreAndEnable
// can put the target back exactly as it found it.
type Backup struct {
	Table Table
	TTBR0 uint32
}

// Validate checks that every entry in t is a direct-mapped 1 MiB
// section: bit1 set (section), bit18 clear (not supersection-ish nG),
// and bits[31:20] equal to the entry's own index.
func Validate(t *Table) error {
	for i, entry := range t {
		if (entry>>1)&1 != 1 {
			return fmt.Errorf("translation table entry %d is not a section descriptor", i)
		}
		if (entry>>18)&1 != 0 {
			return fmt.Errorf("translation table entry %d has bit 18 set", i)
		}
		if entry>>20 != uint32(i) {
			return fmt.Errorf("translation table entry %d is not direct-mapped (base 0x%x)", i, entry>>20)
		}
	}
	return nil
}

// BackupAndDisable reads SCTLR/DACR/TTBCR/TTBR0 via the thunk
// generator, validates them against the boot ROM's known defaults,
// and — if the MMU was enabled — reads back and validates the active
// translation table before disabling the MMU. It returns (nil, nil)
// when the boot ROM left the MMU off (nothing to restore later).
func BackupAndDisable(gen *thunk.Generator) (*Backup, error) {
	sctlr, err := gen.CoprocRead(15, 0, 1, 0, regSCTLR)
	if err != nil {
		return nil, fmt.Errorf("read SCTLR: %w", err)
	}
	dacr, err := gen.CoprocRead(15, 0, 3, 0, regDACR)
	if err != nil {
		return nil, fmt.Errorf("read DACR: %w", err)
	}
	ttbcr, err := gen.CoprocRead(15, 0, 2, 0, regTTBCR)
	if err != nil {
		return nil, fmt.Errorf("read TTBCR: %w", err)
	}
	ttbr0, err := gen.CoprocRead(15, 0, 2, 0, regTTBR0)
	if err != nil {
		return nil, fmt.Errorf("read TTBR0: %w", err)
	}

	if sctlr&^sctlrIgnoreMask != sctlrKnownMask {
		return nil, fmt.Errorf("unexpected SCTLR 0x%08x: unknown SoC configuration, refusing to proceed", sctlr)
	}
	if dacr != dacrDefault {
		return nil, fmt.Errorf("unexpected DACR 0x%08x, refusing to proceed", dacr)
	}
	if ttbcr != 0 {
		return nil, fmt.Errorf("unexpected TTBCR 0x%08x, refusing to proceed", ttbcr)
	}
	if ttbr0&ttbr0AlignMask != 0 {
		return nil, fmt.Errorf("unaligned TTBR0 0x%08x, refusing to proceed", ttbr0)
	}

	if sctlr&sctlrM == 0 {
		// MMU was never enabled; nothing to back up or disable.
		return nil, nil
	}

	words, err := gen.ReadWords(ttbr0, len(Table{}))
	if err != nil {
		return nil, fmt.Errorf("read translation table: %w", err)
	}
	var table Table
	copy(table[:], words)
	if err := Validate(&table); err != nil {
		return nil, fmt.Errorf("translation table shape mismatch: %w", err)
	}

	if err := gen.DisableMMU(); err != nil {
		return nil, fmt.Errorf("disable MMU: %w", err)
	}

	return &Backup{Table: table, TTBR0: ttbr0}, nil
}

// Memory attribute codes (TEX:C:B, 5 bits) for section descriptors.
const (
	attrsDRAMWriteCombine = 0b00100 // Normal, non-cacheable, write-combine
	attrsBROMWriteBack    = 0b00111 // Normal, write-back cacheable

	dramFirstIndex = 0x400 // 0x40000000 >> 20
	dramLastIndex  = 0xC00 // 0xC0000000 >> 20 (exclusive)
	bromIndex      = 0xFFF
)

func setMemAttrs(entry, texcb uint32) uint32 {
	tex := (texcb >> 2) & 0x7
	c := (texcb >> 1) & 1
	b := texcb & 1
	entry &^= (0x7 << 12) | (1 << 3) | (1 << 2)
	entry |= (tex << 12) | (c << 3) | (b << 2)
	return entry
}

// RestoreAndEnable rewrites b's DRAM range and BROM section with their
// operating memory attributes, uploads the table back to its original
// TTBR0, and re-enables the MMU. A nil backup is a no-op (the BROM
// never had the MMU on).
func RestoreAndEnable(gen *thunk.Generator, b *Backup) error {
	if b == nil {
		return nil
	}

	table := b.Table
	for i := dramFirstIndex; i < dramLastIndex; i++ {
		table[i] = setMemAttrs(table[i], attrsDRAMWriteCombine)
	}
	table[bromIndex] = setMemAttrs(table[bromIndex], attrsBROMWriteBack)

	if err := gen.WriteWords(b.TTBR0, table[:]); err != nil {
		return fmt.Errorf("upload restored translation table: %w", err)
	}
	if err := gen.EnableMMU(); err != nil {
		return fmt.Errorf("enable MMU: %w", err)
	}
	return nil
}

// SynthesizeFlat builds and uploads a flat-mapped table (section i ->
// physical i<<20, strongly-ordered) when the boot ROM left the MMU
// off and soc provides an MMU translation-table scratch address. The
// first and last sections are marked normal memory so the SPL's own
// code and stack are usable immediately.
func SynthesizeFlat(gen *thunk.Generator, soc socdata.Info) error {
	if soc.MMUTTAddr == nil {
		return fmt.Errorf("SoC %s has no MMU translation-table address", soc.Name)
	}

	var table Table
	for i := range table {
		table[i] = uint32(i)<<20 | (1 << 1)
	}
	table[0] = setMemAttrs(table[0], attrsDRAMWriteCombine)
	table[len(table)-1] = setMemAttrs(table[len(table)-1], attrsDRAMWriteCombine)

	ttAddr := *soc.MMUTTAddr
	if err := gen.CoprocWrite(15, 0, 3, 0, regDACR, dacrDefault); err != nil {
		return fmt.Errorf("set DACR: %w", err)
	}
	if err := gen.CoprocWrite(15, 0, 2, 0, regTTBCR, 0); err != nil {
		return fmt.Errorf("set TTBCR: %w", err)
	}
	if err := gen.CoprocWrite(15, 0, 2, 0, regTTBR0, ttAddr); err != nil {
		return fmt.Errorf("set TTBR0: %w", err)
	}
	if err := gen.WriteWords(ttAddr, table[:]); err != nil {
		return fmt.Errorf("upload synthesized translation table: %w", err)
	}
	return nil
}
