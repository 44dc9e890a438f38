// Package session gathers the process-wide mutable state a FEL run
// needs — the USB connection, the cached SoC record, and the
// uboot_entry/uboot_size write guard — into one value threaded
// through the call graph, instead of package-level globals.
package session

import (
	"fmt"

	"sunxi-fel/internal/fel/awusb"
	"sunxi-fel/internal/fel/felproto"
	"sunxi-fel/internal/fel/socdata"
	"sunxi-fel/internal/fel/thunk"
	"sunxi-fel/internal/fel/usbtransport"
)

// Session is the single in-flight FEL conversation: the claimed USB
// interface, the resolved SoC record (cached after the first
// version probe), and the uboot image range guard. It is not safe for
// concurrent use — the protocol itself is strictly sequential.
type Session struct {
	Verbose bool

	transport *usbtransport.USBTransport
	Fel       *felproto.Client

	soc      socdata.Info
	haveSoc  bool

	ubootEntry uint32
	ubootSize  uint32
	hasUboot   bool
}

// Open claims the FEL USB device (optionally at a specific bus:device
// address) and wraps it in the AW-USB/FEL protocol layers.
func Open(bus, addr int) (*Session, error) {
	t, err := usbtransport.Open(bus, addr)
	if err != nil {
		return nil, err
	}
	framer := awusb.New(t)
	return &Session{transport: t, Fel: felproto.New(framer)}, nil
}

// Close releases the USB interface, reattaching a detached kernel
// driver on hosts that support it.
func (s *Session) Close() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}

// Soc resolves (and caches) the SoC record for the attached device by
// issuing a VERSION request. Subsequent calls return the cached value.
func (s *Session) Soc() (socdata.Info, error) {
	if s.haveSoc {
		return s.soc, nil
	}
	v, err := s.Fel.Version()
	if err != nil {
		return socdata.Info{}, fmt.Errorf("fel version: %w", err)
	}
	return s.SocFromVersion(v)
}

// SocFromVersion resolves (and caches) the SoC record from a VERSION
// reply the caller already fetched, sparing callers that need the raw
// reply themselves (e.g. to print the protocol number) a second
// round trip through Soc.
func (s *Session) SocFromVersion(v *felproto.VersionReply) (socdata.Info, error) {
	if s.haveSoc {
		return s.soc, nil
	}
	info, err := socdata.Lookup(v.SocID)
	if err != nil {
		return socdata.Info{}, err
	}
	s.soc = info
	s.haveSoc = true
	return info, nil
}

// Generator resolves the SoC record and returns a thunk generator
// bound to it.
func (s *Session) Generator() (*thunk.Generator, error) {
	soc, err := s.Soc()
	if err != nil {
		return nil, err
	}
	return thunk.NewGenerator(s.Fel, soc), nil
}

// SetUbootRange records the uploaded U-Boot image's address range so
// later writes can be guarded against clobbering it.
func (s *Session) SetUbootRange(entry, size uint32) {
	s.ubootEntry = entry
	s.ubootSize = size
	s.hasUboot = true
}

// GuardWrite rejects a write whose [addr, addr+length) range
// intersects the recorded U-Boot image range. It is a no-op until
// SetUbootRange has been called.
func (s *Session) GuardWrite(addr uint32, length int) error {
	if !s.hasUboot || length == 0 {
		return nil
	}
	end := addr + uint32(length)
	if addr < s.ubootEntry+s.ubootSize && end > s.ubootEntry {
		return fmt.Errorf("write [0x%x, 0x%x) overlaps uploaded U-Boot image [0x%x, 0x%x)",
			addr, end, s.ubootEntry, s.ubootEntry+s.ubootSize)
	}
	return nil
}
