package awusb

import (
	"encoding/binary"
	"testing"
)

func goodStatus() []byte {
	buf := make([]byte, statusSize)
	copy(buf, "AWUS")
	return buf
}

func TestWrite_RequestFraming(t *testing.T) {
	mt := &mockTransport{replies: [][]byte{goodStatus()}}
	f := New(mt)

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := f.Write(payload, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(mt.writes) != 2 {
		t.Fatalf("expected 2 USB sends (request, payload), got %d", len(mt.writes))
	}

	req := mt.writes[0]
	if len(req) != requestSize {
		t.Fatalf("request length = %d, want %d", len(req), requestSize)
	}
	if string(req[0:4]) != "AWUC" {
		t.Errorf("request signature = %q, want AWUC", req[0:4])
	}
	if got := binary.LittleEndian.Uint32(req[8:12]); got != uint32(len(payload)) {
		t.Errorf("request length field = %d, want %d", got, len(payload))
	}
	if got := binary.LittleEndian.Uint16(req[16:18]); got != subWrite {
		t.Errorf("sub-request = 0x%x, want 0x%x", got, subWrite)
	}

	if string(mt.writes[1]) != string(payload) {
		t.Errorf("payload sent = %x, want %x", mt.writes[1], payload)
	}
}

func TestRead_BadStatusSignature(t *testing.T) {
	bad := make([]byte, statusSize)
	copy(bad, "XXXX")
	mt := &mockTransport{replies: [][]byte{bad}}
	f := New(mt)

	buf := make([]byte, 4)
	err := f.Read(buf)
	if err == nil {
		t.Fatal("expected framing error on bad status signature, got nil")
	}
}

func TestRead_ZeroLengthSkipsPayloadRecv(t *testing.T) {
	mt := &mockTransport{replies: [][]byte{goodStatus()}}
	f := New(mt)

	if err := f.Read(nil); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(mt.replies) != 0 {
		t.Fatalf("expected the single scripted status to be consumed")
	}
}
