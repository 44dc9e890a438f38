package socdata

import "testing"

func TestLookup_KnownSoC(t *testing.T) {
	info, err := Lookup(0x1623)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.Name != "A10" {
		t.Errorf("Name = %q, want A10", info.Name)
	}
	if info.SIDAddr == nil || *info.SIDAddr != 0x01c23800 {
		t.Errorf("SIDAddr = %v, want 0x01c23800", info.SIDAddr)
	}
}

func TestLookup_Unsupported(t *testing.T) {
	if _, err := Lookup(0xffff); err == nil {
		t.Fatal("expected error for unsupported SoC id, got nil")
	}
}

func TestA31_HasSwapBufferAndMMU(t *testing.T) {
	info, err := Lookup(0x1633)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(info.SwapBuffers) != 1 {
		t.Fatalf("expected 1 swap buffer, got %d", len(info.SwapBuffers))
	}
	sw := info.SwapBuffers[0]
	if sw.Buf1 != 0x1000 || sw.Buf2 != 0x6000 || sw.Size != 0x800 {
		t.Errorf("unexpected swap buffer: %+v", sw)
	}
	if info.MMUTTAddr == nil {
		t.Error("expected MMUTTAddr to be set for A31")
	}
}

func TestA80_NeedsL2EnableAndRVBAR(t *testing.T) {
	info, err := Lookup(0x1639)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !info.NeedsL2Enable {
		t.Error("expected NeedsL2Enable for A80")
	}
	if info.RVBARReg == nil {
		t.Error("expected RVBARReg to be set for A80")
	}
}
