package main

import "testing"

func TestParseDev_Empty(t *testing.T) {
	bus, addr, err := parseDev("")
	if err != nil {
		t.Fatalf("parseDev(\"\"): %v", err)
	}
	if bus != 0 || addr != 0 {
		t.Errorf("parseDev(\"\") = (%d,%d), want (0,0)", bus, addr)
	}
}

func TestParseDev_BusDevnum(t *testing.T) {
	bus, addr, err := parseDev("1:23")
	if err != nil {
		t.Fatalf("parseDev: %v", err)
	}
	if bus != 1 || addr != 23 {
		t.Errorf("parseDev(\"1:23\") = (%d,%d), want (1,23)", bus, addr)
	}
}

func TestParseDev_Malformed(t *testing.T) {
	for _, s := range []string{"1", "1:2:3", "x:1", "1:x"} {
		if _, _, err := parseDev(s); err == nil {
			t.Errorf("parseDev(%q): expected error, got nil", s)
		}
	}
}

func TestHexOrDec(t *testing.T) {
	if hexOrDec("0x1000") != 16 {
		t.Error("expected base 16 for 0x-prefixed literal")
	}
	if hexOrDec("1000") != 10 {
		t.Error("expected base 10 for plain literal")
	}
}
