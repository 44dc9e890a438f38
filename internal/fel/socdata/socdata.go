// Package socdata holds the per-SoC static data table: scratch/SPL/
// thunk addresses, optional SID/RVBAR registers, swap-buffer lists and
// flags. This is the one piece of the driver that is pure data — new
// SoCs are added here, never by touching the protocol layers.
package socdata

import "fmt"

// SwapBuffer is one {buf1, buf2, size} relocation entry: bytes that
// would land on buf1 are written to buf2 instead, and the FEL->SPL
// thunk copies them back just before branching into the SPL.
type SwapBuffer struct {
	Buf1 uint32
	Buf2 uint32
	Size uint32
}

// Info is the immutable per-SoC record resolved from a FEL version
// reply's SoC id.
type Info struct {
	SocID   uint16
	Name    string

	ScratchAddr uint32
	SPLAddr     uint32
	ThunkAddr   uint32
	ThunkSize   uint32

	SIDAddr  *uint32
	RVBARReg *uint32

	SwapBuffers []SwapBuffer

	MMUTTAddr *uint32

	NeedsL2Enable bool
}

func u32p(v uint32) *uint32 { return &v }

// table lists every SoC this driver knows how to talk to. Addresses
// are taken from the SoC's published memory map; a SoC absent here has
// no scratch region and is unsupported.
var table = []Info{
	{
		SocID:       0x1623,
		Name:        "A10",
		ScratchAddr: 0x00002000,
		SPLAddr:     0x00000000,
		ThunkAddr:   0x00003000,
		ThunkSize:   0x400,
		SIDAddr:     u32p(0x01c23800),
	},
	{
		SocID:       0x1625,
		Name:        "A13",
		ScratchAddr: 0x00002000,
		SPLAddr:     0x00000000,
		ThunkAddr:   0x00003000,
		ThunkSize:   0x400,
		SIDAddr:     u32p(0x01c23800),
	},
	{
		SocID:       0x1633,
		Name:        "A31",
		ScratchAddr: 0x00006000,
		SPLAddr:     0x00000000,
		ThunkAddr:   0x00007800,
		ThunkSize:   0x200,
		SIDAddr:     u32p(0x01c0e200),
		SwapBuffers: []SwapBuffer{
			{Buf1: 0x1000, Buf2: 0x6000, Size: 0x800},
		},
		MMUTTAddr: u32p(0x00008000),
	},
	{
		SocID:         0x1639,
		Name:          "A80",
		ScratchAddr:   0x00020000,
		SPLAddr:       0x00000000,
		ThunkAddr:     0x00021000,
		ThunkSize:     0x800,
		SIDAddr:       u32p(0x01c0e200),
		RVBARReg:      u32p(0x01700000),
		NeedsL2Enable: true,
	},
	{
		SocID:       0x1667,
		Name:        "H3",
		ScratchAddr: 0x00018000,
		SPLAddr:     0x00000000,
		ThunkAddr:   0x00019000,
		ThunkSize:   0x400,
		SIDAddr:     u32p(0x01c14200),
		SwapBuffers: []SwapBuffer{
			{Buf1: 0x1800, Buf2: 0x18000, Size: 0x400},
		},
	},
	{
		SocID:       0x1689,
		Name:        "A64",
		ScratchAddr: 0x00017000,
		SPLAddr:     0x00000000,
		ThunkAddr:   0x00018000,
		ThunkSize:   0x800,
		SIDAddr:     u32p(0x01c14200),
		RVBARReg:    u32p(0x017000a0),
	},
}

// Lookup resolves socID to its Info record, or reports it unsupported.
func Lookup(socID uint16) (Info, error) {
	for _, info := range table {
		if info.SocID == socID {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("unsupported SoC id 0x%04x", socID)
}
