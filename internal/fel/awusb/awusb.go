// Package awusb implements Allwinner's AW-USB request/status framing
// that wraps every FEL transfer.
package awusb

import (
	"encoding/binary"
	"fmt"

	"sunxi-fel/internal/fel/usbtransport"
)

const (
	signature = "AWUC"
	// constFlag is a fixed constant carried in every AW-USB request;
	// its meaning upstream is undocumented, but the value is load-bearing.
	constFlag = 0x0c000000

	subRead  = 0x11
	subWrite = 0x12

	requestSize = 32
	statusSize  = 13
)

// Framer issues AW-USB framed writes and reads over a Transport.
type Framer struct {
	t usbtransport.Transport
}

// New wraps t in AW-USB framing.
func New(t usbtransport.Transport) *Framer {
	return &Framer{t: t}
}

// buildRequest packs the 32-byte AW-USB request record: an 8-byte
// signature field ("AWUC" plus trailing zero padding), 32-bit total
// length, the fixed constant, 16-bit sub-request, a repeated 32-bit
// length, then zero padding out to 32 bytes.
func buildRequest(sub uint16, length uint32) []byte {
	buf := make([]byte, requestSize)
	copy(buf[0:8], signature)
	binary.LittleEndian.PutUint32(buf[8:12], length)
	binary.LittleEndian.PutUint32(buf[12:16], constFlag)
	binary.LittleEndian.PutUint16(buf[16:18], sub)
	binary.LittleEndian.PutUint32(buf[18:22], length)
	// buf[22:32] is zero padding.
	return buf
}

// readStatus reads the 13-byte AW-USB status reply and verifies its
// "AWUS" prefix. A mismatch is a fatal framing error.
func (f *Framer) readStatus() error {
	buf := make([]byte, statusSize)
	if _, err := f.t.Recv(buf); err != nil {
		return fmt.Errorf("aw-usb status read: %w", err)
	}
	if string(buf[0:4]) != "AWUS" {
		return fmt.Errorf("aw-usb framing error: bad status signature %q", buf[0:4])
	}
	return nil
}

// Write emits an AW-USB WRITE request, sends data on EP_OUT (optionally
// chunked for progress), then verifies the trailing status.
func (f *Framer) Write(data []byte, progress func(sent int)) error {
	req := buildRequest(subWrite, uint32(len(data)))
	if err := f.t.Send(req, nil); err != nil {
		return fmt.Errorf("aw-usb write request: %w", err)
	}
	if len(data) > 0 {
		if err := f.t.Send(data, progress); err != nil {
			return fmt.Errorf("aw-usb write payload: %w", err)
		}
	}
	return f.readStatus()
}

// Read emits an AW-USB READ request, receives len(buf) bytes on EP_IN,
// then verifies the trailing status.
func (f *Framer) Read(buf []byte) error {
	req := buildRequest(subRead, uint32(len(buf)))
	if err := f.t.Send(req, nil); err != nil {
		return fmt.Errorf("aw-usb read request: %w", err)
	}
	if len(buf) > 0 {
		if _, err := f.t.Recv(buf); err != nil {
			return fmt.Errorf("aw-usb read payload: %w", err)
		}
	}
	return f.readStatus()
}
