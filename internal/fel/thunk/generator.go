// Generator drives the thunk stubs in builders.go: it uploads a stub (plus any
// inline data) to the SoC's scratch area, executes it, and reads back
// whatever result the stub left behind.
package thunk

import (
	"encoding/binary"
	"fmt"

	"sunxi-fel/internal/fel/felproto"
	"sunxi-fel/internal/fel/socdata"
)

// Generator ties the stub builders to a live FEL connection and a
// resolved SoC record.
type Generator struct {
	fel *felproto.Client
	soc socdata.Info
}

// NewGenerator returns a Generator that uploads stubs to soc's
// scratch area over fel.
func NewGenerator(fel *felproto.Client, soc socdata.Info) *Generator {
	return &Generator{fel: fel, soc: soc}
}

// WordsToBytes packs words into a little-endian byte slice, the wire
// layout every thunk upload and FEL write uses.
func WordsToBytes(words []uint32) []byte {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// uploadAndExec writes buf to the scratch address and executes it.
func (g *Generator) uploadAndExec(buf []byte) error {
	if err := g.fel.Write(g.soc.ScratchAddr, buf, nil); err != nil {
		return fmt.Errorf("thunk upload: %w", err)
	}
	if err := g.fel.Execute(g.soc.ScratchAddr); err != nil {
		return fmt.Errorf("thunk execute: %w", err)
	}
	return nil
}

func (g *Generator) run(code []uint32) error {
	return g.uploadAndExec(WordsToBytes(code))
}

// CoprocRead reads coprocessor register (coproc, opc1, CRn, CRm, opc2).
func (g *Generator) CoprocRead(coproc, opc1, crn, crm, opc2 uint32) (uint32, error) {
	if err := g.run(CoprocRead(coproc, opc1, crn, crm, opc2)); err != nil {
		return 0, err
	}
	buf, err := g.fel.Read(g.soc.ScratchAddr+CoprocReadResultOffset, 4)
	if err != nil {
		return 0, fmt.Errorf("coproc read result: %w", err)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// CoprocWrite writes value into coprocessor register
// (coproc, opc1, CRn, CRm, opc2).
func (g *Generator) CoprocWrite(coproc, opc1, crn, crm, opc2, value uint32) error {
	return g.run(CoprocWrite(coproc, opc1, crn, crm, opc2, value))
}

// readlNOnce performs one round trip. Callers must cap count to
// MaxBulkWords.
func (g *Generator) readlNOnce(addr uint32, count int) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	if err := g.run(ReadlN(addr, uint32(count))); err != nil {
		return nil, err
	}
	buf, err := g.fel.Read(g.soc.ScratchAddr+ReadlNDataOffset, count*4)
	if err != nil {
		return nil, fmt.Errorf("readl_n data: %w", err)
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out, nil
}

// ReadWords reads count words starting at addr, splitting into
// MaxBulkWords-sized rounds and advancing addr by 4*n each round.
func (g *Generator) ReadWords(addr uint32, count int) ([]uint32, error) {
	out := make([]uint32, 0, count)
	for count > 0 {
		n := count
		if n > MaxBulkWords {
			n = MaxBulkWords
		}
		words, err := g.readlNOnce(addr, n)
		if err != nil {
			return nil, err
		}
		out = append(out, words...)
		addr += uint32(4 * n)
		count -= n
	}
	return out, nil
}

// writelNOnce performs one round trip. Callers must cap len(values) to
// MaxBulkWords.
func (g *Generator) writelNOnce(addr uint32, values []uint32) error {
	if len(values) == 0 {
		return nil
	}
	code := WritelN(addr, uint32(len(values)))
	buf := make([]byte, len(code)*4+len(values)*4)
	copy(buf, WordsToBytes(code))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[len(code)*4+i*4:], v)
	}
	return g.uploadAndExec(buf)
}

// WriteWords writes values starting at addr, splitting into
// MaxBulkWords-sized rounds and advancing addr by 4*n each round.
func (g *Generator) WriteWords(addr uint32, values []uint32) error {
	for len(values) > 0 {
		n := len(values)
		if n > MaxBulkWords {
			n = MaxBulkWords
		}
		if err := g.writelNOnce(addr, values[:n]); err != nil {
			return err
		}
		addr += uint32(4 * n)
		values = values[n:]
	}
	return nil
}

// EnableL2 enables the L2 cache, for SoCs whose record sets
// NeedsL2Enable.
func (g *Generator) EnableL2() error {
	return g.run(EnableL2())
}

// ProbeStack captures SP and SP_irq before the loader disturbs either.
func (g *Generator) ProbeStack() (sp, spIRQ uint32, err error) {
	code, dataOffset := ProbeStack()
	if err := g.run(code); err != nil {
		return 0, 0, err
	}
	buf, err := g.fel.Read(g.soc.ScratchAddr+uint32(dataOffset), 8)
	if err != nil {
		return 0, 0, fmt.Errorf("probe stack result: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8]), nil
}

// DisableMMU clears SCTLR.M/I/Z on the target.
func (g *Generator) DisableMMU() error {
	return g.run(DisableMMU())
}

// EnableMMU invalidates I-cache/TLB/BTB and sets SCTLR.M/I/Z.
func (g *Generator) EnableMMU() error {
	return g.run(EnableMMU())
}

// Reset64 requests an AArch64 warm reset at entry via RVBAR/RMR. It
// never returns on success: the device resets.
func (g *Generator) Reset64(entry, rvbarAddr uint32) error {
	return g.run(Reset64(entry, rvbarAddr))
}
