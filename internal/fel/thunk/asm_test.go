package thunk

import "testing"

func TestEncodeImm12_SmallValue(t *testing.T) {
	if got := encodeImm12(0x12); got != 0x12 {
		t.Errorf("encodeImm12(0x12) = 0x%x, want 0x12 (rotate 0)", got)
	}
}

func TestEncodeImm12_RotatedValue(t *testing.T) {
	// sctlrI = 1<<12 needs a non-zero rotate to fit an 8-bit immediate.
	got := encodeImm12(1 << 12)
	rotate := got >> 8
	imm8 := got & 0xff
	// ARM decodes as ROR(imm8, rotate*2).
	decoded := (imm8 >> (rotate * 2)) | (imm8 << (32 - rotate*2))
	if decoded != 1<<12 {
		t.Errorf("encodeImm12(1<<12) decodes to 0x%x, want 0x%x", decoded, 1<<12)
	}
}

func TestBxReg_Encoding(t *testing.T) {
	// "bx lr" is architecturally 0xE12FFF1E.
	if got := bxReg(lr); got != 0xE12FFF1E {
		t.Errorf("bxReg(lr) = 0x%08x, want 0xE12FFF1E", got)
	}
}

func TestMovReg_Encoding(t *testing.T) {
	// "mov r1, r0" is 0xE1A01000.
	if got := movReg(r1, r0); got != 0xE1A01000 {
		t.Errorf("movReg(r1,r0) = 0x%08x, want 0xE1A01000", got)
	}
}

func TestAsm_BranchResolvesForwardReference(t *testing.T) {
	a := newAsm()
	a.emit(movReg(r0, r1)) // word 0
	a.branch(condAL, "target")
	a.emit(movReg(r2, r3)) // word 2
	a.label("target")
	a.emit(bxReg(lr)) // word 3
	words := a.finish()

	// branch is at word 1; pc-during-execution is word 3; target word
	// is 3, so imm24 should be 0.
	imm24 := words[1] & 0x00FFFFFF
	if imm24 != 0 {
		t.Errorf("branch imm24 = 0x%x, want 0", imm24)
	}
}

func TestAsm_PCRelResolvesForwardDataWord(t *testing.T) {
	a := newAsm()
	a.pcRel(ldrPCBase(r0), "value") // word 0
	a.emit(bxReg(lr))               // word 1
	a.label("value")
	a.emit(0xCAFEBABE) // word 2

	words := a.finish()
	// pc during execution of word 0 is word 2; target word is 2, so
	// byte offset is 0.
	imm12 := words[0] & 0xFFF
	if imm12 != 0 {
		t.Errorf("pcRel imm12 = %d, want 0", imm12)
	}
}

func TestAsm_PCRelPanicsOnBackwardReference(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on backward PC-relative reference")
		}
	}()
	a := newAsm()
	a.label("value")
	a.emit(0)
	a.pcRel(ldrPCBase(r0), "value")
	a.finish()
}
