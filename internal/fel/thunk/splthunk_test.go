package thunk

import "sunxi-fel/internal/fel/socdata"

import "testing"

func TestFELtoSPL_EmbedsSplAddrAndTerminator(t *testing.T) {
	code := FELtoSPL(0x41000000, nil)
	if code[len(code)-1] != 0 {
		t.Errorf("last word = 0x%08x, want the zero-size swap-list terminator", code[len(code)-1])
	}
	if code[len(code)-2] != 0x41000000 {
		t.Errorf("second-to-last word = 0x%08x, want spl_addr 0x41000000", code[len(code)-2])
	}
	if code[len(code)-3] != bxReg(r4) {
		t.Errorf("expected bx r4 before the inline data, got 0x%08x", code[len(code)-3])
	}
}

func TestFELtoSPL_WithSwapBuffer(t *testing.T) {
	code := FELtoSPL(0, []socdata.SwapBuffer{{Buf1: 0x2000, Buf2: 0xA000, Size: 0x400}})

	found := map[uint32]bool{}
	for _, w := range code {
		found[w] = true
	}
	if !found[0xA000] {
		t.Error("expected the swap buffer's buf2 address to be embedded")
	}
	if !found[0x2000] {
		t.Error("expected the swap buffer's buf1 address to be embedded")
	}
	if !found[0x400/4] {
		t.Error("expected the swap buffer's word count to be embedded")
	}
}
