package mmu

import (
	"encoding/binary"
	"testing"

	"sunxi-fel/internal/fel/awusb"
	"sunxi-fel/internal/fel/felproto"
	"sunxi-fel/internal/fel/socdata"
	"sunxi-fel/internal/fel/thunk"
)

// mockTransport auto-answers every 13-byte AW-USB status recv with
// "AWUS" and otherwise serves scripted payload replies in order.
type mockTransport struct {
	payload [][]byte
}

func (m *mockTransport) Send(data []byte, progress func(sent int)) error {
	if progress != nil {
		progress(len(data))
	}
	return nil
}

func (m *mockTransport) Recv(buf []byte) (int, error) {
	if len(buf) == 13 {
		return copy(buf, []byte("AWUS")), nil
	}
	reply := m.payload[0]
	m.payload = m.payload[1:]
	return copy(buf, reply), nil
}

func (m *mockTransport) Close() error { return nil }

func u32bytes(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// coprocReadReplies returns the 4 scripted payload items one CoprocRead
// round trip consumes: the write-status filler, the execute-status
// filler, the 4-byte result, and the final read-status filler.
func coprocReadReplies(result uint32) [][]byte {
	return [][]byte{make([]byte, 8), make([]byte, 8), u32bytes(result), make([]byte, 8)}
}

// TestBackupAndDisable_MMUOff covers end-to-end scenario 6's
// precondition: when SCTLR.M==0, BackupAndDisable returns a nil
// backup without attempting to read the (possibly garbage) TTBR0
// translation table.
func TestBackupAndDisable_MMUOff(t *testing.T) {
	var payload [][]byte
	payload = append(payload, coprocReadReplies(sctlrKnownMask)...) // SCTLR, M=0
	payload = append(payload, coprocReadReplies(dacrDefault)...)    // DACR
	payload = append(payload, coprocReadReplies(0)...)              // TTBCR
	payload = append(payload, coprocReadReplies(0)...)              // TTBR0

	mt := &mockTransport{payload: payload}
	fel := felproto.New(awusb.New(mt))
	soc := socdata.Info{ScratchAddr: 0x2000, Name: "A10"}
	gen := thunk.NewGenerator(fel, soc)

	backup, err := BackupAndDisable(gen)
	if err != nil {
		t.Fatalf("BackupAndDisable: %v", err)
	}
	if backup != nil {
		t.Error("expected nil backup when SCTLR.M==0")
	}
}

func TestBackupAndDisable_RejectsUnknownSCTLR(t *testing.T) {
	var payload [][]byte
	payload = append(payload, coprocReadReplies(0xdeadbeef)...) // garbage SCTLR
	payload = append(payload, coprocReadReplies(dacrDefault)...)
	payload = append(payload, coprocReadReplies(0)...)
	payload = append(payload, coprocReadReplies(0)...)

	mt := &mockTransport{payload: payload}
	fel := felproto.New(awusb.New(mt))
	soc := socdata.Info{ScratchAddr: 0x2000, Name: "A10"}
	gen := thunk.NewGenerator(fel, soc)

	if _, err := BackupAndDisable(gen); err == nil {
		t.Fatal("expected fatal error for unrecognized SCTLR value")
	}
}
