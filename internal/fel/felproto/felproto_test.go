package felproto

import (
	"encoding/binary"
	"testing"

	"sunxi-fel/internal/fel/awusb"
)

func awusStatus() []byte {
	buf := make([]byte, 13)
	copy(buf, "AWUS")
	return buf
}

// TestVersion_DecodesSocID covers end-to-end scenario 1: a version
// reply whose raw id field is 0x00_16_23_00 decodes to SoC id 0x1623.
func TestVersion_DecodesSocID(t *testing.T) {
	reply := make([]byte, versionSize)
	copy(reply[0:8], "AWUSBFEX")
	binary.LittleEndian.PutUint32(reply[8:12], 0x00162300)
	binary.LittleEndian.PutUint16(reply[16:18], 1)

	mt := &mockTransport{replies: [][]byte{
		awusStatus(), // AW-USB WRITE status (version request)
		reply,        // AW-USB READ payload (version reply)
		awusStatus(), // AW-USB READ status
		make([]byte, 8), // FEL status payload
		awusStatus(),    // AW-USB READ status (FEL status)
	}}
	c := New(awusb.New(mt))

	v, err := c.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v.SocID != 0x1623 {
		t.Errorf("SocID = 0x%04x, want 0x1623", v.SocID)
	}
	if v.Protocol != 1 {
		t.Errorf("Protocol = %d, want 1", v.Protocol)
	}
}

func TestRead_RequestOpcodeAndLength(t *testing.T) {
	mt := &mockTransport{replies: [][]byte{
		awusStatus(),
		[]byte{0x11, 0x22, 0x33, 0x44},
		awusStatus(),
		make([]byte, 8),
		awusStatus(),
	}}
	c := New(awusb.New(mt))

	buf, err := c.Read(0x40000000, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "\x11\x22\x33\x44" {
		t.Errorf("payload = %x", buf)
	}

	req := mt.writes[1] // writes[0] is the AW-USB request frame, not the FEL request
	if binary.LittleEndian.Uint32(req[0:4]) != OpRead {
		t.Errorf("opcode = 0x%x, want OpRead", binary.LittleEndian.Uint32(req[0:4]))
	}
	if binary.LittleEndian.Uint32(req[4:8]) != 0x40000000 {
		t.Errorf("address field = 0x%x", binary.LittleEndian.Uint32(req[4:8]))
	}
	if binary.LittleEndian.Uint32(req[8:12]) != 4 {
		t.Errorf("length field = %d, want 4", binary.LittleEndian.Uint32(req[8:12]))
	}
}

func TestExecute_RequestOpcode(t *testing.T) {
	mt := &mockTransport{replies: [][]byte{
		awusStatus(),
		make([]byte, 8),
		awusStatus(),
	}}
	c := New(awusb.New(mt))

	if err := c.Execute(0x2000); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	req := mt.writes[1] // writes[0] is the AW-USB request frame, not the FEL request
	if binary.LittleEndian.Uint32(req[0:4]) != OpExec {
		t.Errorf("opcode = 0x%x, want OpExec", binary.LittleEndian.Uint32(req[0:4]))
	}
	if binary.LittleEndian.Uint32(req[4:8]) != 0x2000 {
		t.Errorf("address field = 0x%x, want 0x2000", binary.LittleEndian.Uint32(req[4:8]))
	}
}
