package thunk

import "testing"

func TestCoprocRead_ShapeAndResultOffset(t *testing.T) {
	code := CoprocRead(15, 0, 1, 0, 0)
	if len(code) != 3 {
		t.Fatalf("CoprocRead produced %d words, want 3", len(code))
	}
	if code[2] != bxReg(lr) {
		t.Errorf("last word = 0x%08x, want bx lr", code[2])
	}
	if CoprocReadResultOffset != 12 {
		t.Errorf("CoprocReadResultOffset = %d, want 12", CoprocReadResultOffset)
	}
}

func TestCoprocWrite_EmbedsValue(t *testing.T) {
	code := CoprocWrite(15, 0, 1, 0, 0, 0xCAFEBABE)
	if code[len(code)-1] != 0xCAFEBABE {
		t.Errorf("last word = 0x%08x, want embedded value 0xCAFEBABE", code[len(code)-1])
	}
}

func TestReadlN_EmbedsAddrAndCount(t *testing.T) {
	code := ReadlN(0x40000000, 16)
	if len(code) != 12 {
		t.Fatalf("ReadlN produced %d words (expected a fixed 12-word/48-byte stub), got %d", len(code), len(code))
	}
	if ReadlNDataOffset != 48 {
		t.Errorf("ReadlNDataOffset = %d, want 48", ReadlNDataOffset)
	}
	if code[len(code)-2] != 0x40000000 {
		t.Errorf("embedded addr = 0x%08x, want 0x40000000", code[len(code)-2])
	}
	if code[len(code)-1] != 16 {
		t.Errorf("embedded count = %d, want 16", code[len(code)-1])
	}
}

func TestWritelN_FitsMaxBulkWords(t *testing.T) {
	code := WritelN(0x40000000, MaxBulkWords)
	if len(code) > 12 {
		t.Errorf("WritelN code prefix is %d words, want <= 12", len(code))
	}
}

func TestEnableL2_EndsWithBX(t *testing.T) {
	code := EnableL2()
	if code[len(code)-1] != bxReg(lr) {
		t.Errorf("EnableL2 does not end with bx lr")
	}
}

// TestProbeStack_DataOffsetMatchesCodeLength checks that dataOffset
// names the SP word, one reserved word before SP_irq's slot at the
// very end of the stub.
func TestProbeStack_DataOffsetMatchesCodeLength(t *testing.T) {
	code, off := ProbeStack()
	if want := len(code)*4 - 4; off != want {
		t.Errorf("dataOffset = %d, want %d (len(code)*4 - 4)", off, want)
	}
}

func TestReset64_EmbedsEntryAndRvbar(t *testing.T) {
	code := Reset64(0x40080000, 0x01700000)
	found := map[uint32]bool{}
	for _, w := range code {
		found[w] = true
	}
	if !found[0x40080000] {
		t.Error("Reset64 code does not embed the entry address")
	}
	if !found[0x01700000] {
		t.Error("Reset64 code does not embed the RVBAR address")
	}
	if !found[wfi()] {
		t.Error("Reset64 code does not contain a wfi instruction")
	}
}
