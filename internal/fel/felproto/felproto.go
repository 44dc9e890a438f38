// Package felproto implements the FEL command layer: version, read,
// write and execute, each riding on exactly two or three AW-USB
// transactions.
package felproto

import (
	"encoding/binary"
	"fmt"

	"sunxi-fel/internal/fel/awusb"
)

// Opcodes for the 16-byte FEL wire request.
const (
	OpVersion uint32 = 0x001
	OpWrite   uint32 = 0x101
	OpExec    uint32 = 0x102
	OpRead    uint32 = 0x103

	requestSize    = 16
	statusSize     = 8
	versionSize    = 32
)

// Client drives FEL operations over an AW-USB framer.
type Client struct {
	f *awusb.Framer
}

// New returns a FEL client riding on f.
func New(f *awusb.Framer) *Client {
	return &Client{f: f}
}

func buildRequest(opcode, address, length uint32) []byte {
	buf := make([]byte, requestSize)
	binary.LittleEndian.PutUint32(buf[0:4], opcode)
	binary.LittleEndian.PutUint32(buf[4:8], address)
	binary.LittleEndian.PutUint32(buf[8:12], length)
	return buf
}

// readStatus drains the trailing 8-byte FEL status. The bytes are not
// inspected; AW-USB framing already validated the transfer.
func (c *Client) readStatus() error {
	buf := make([]byte, statusSize)
	return c.f.Read(buf)
}

// VersionReply is the decoded 32-byte FEL version reply.
type VersionReply struct {
	Signature  [8]byte
	RawID      uint32
	SocID      uint16
	Unknown0A  uint32
	Protocol   uint16
	Unknown12  byte
	Unknown13  byte
	Scratchpad uint16
	Pad        [2]uint32
}

// Version issues the VERSION request and decodes the reply.
func (c *Client) Version() (*VersionReply, error) {
	req := buildRequest(OpVersion, 0, 0)
	if err := c.f.Write(req, nil); err != nil {
		return nil, fmt.Errorf("fel version request: %w", err)
	}

	buf := make([]byte, versionSize)
	if err := c.f.Read(buf); err != nil {
		return nil, fmt.Errorf("fel version reply: %w", err)
	}
	if err := c.readStatus(); err != nil {
		return nil, fmt.Errorf("fel version status: %w", err)
	}

	v := &VersionReply{}
	copy(v.Signature[:], buf[0:8])
	v.RawID = binary.LittleEndian.Uint32(buf[8:12])
	v.SocID = uint16((v.RawID >> 8) & 0xFFFF)
	v.Unknown0A = binary.LittleEndian.Uint32(buf[12:16])
	v.Protocol = binary.LittleEndian.Uint16(buf[16:18])
	v.Unknown12 = buf[18]
	v.Unknown13 = buf[19]
	v.Scratchpad = binary.LittleEndian.Uint16(buf[20:22])
	v.Pad[0] = binary.LittleEndian.Uint32(buf[24:28])
	v.Pad[1] = binary.LittleEndian.Uint32(buf[28:32])
	return v, nil
}

// Read copies length bytes starting at address from the target.
func (c *Client) Read(address uint32, length int) ([]byte, error) {
	req := buildRequest(OpRead, address, uint32(length))
	if err := c.f.Write(req, nil); err != nil {
		return nil, fmt.Errorf("fel read request: %w", err)
	}

	buf := make([]byte, length)
	if err := c.f.Read(buf); err != nil {
		return nil, fmt.Errorf("fel read payload: %w", err)
	}
	if err := c.readStatus(); err != nil {
		return nil, fmt.Errorf("fel read status: %w", err)
	}
	return buf, nil
}

// Write streams data to address on the target. progress, if non-nil,
// is invoked with cumulative bytes sent as the payload is chunked.
func (c *Client) Write(address uint32, data []byte, progress func(sent int)) error {
	req := buildRequest(OpWrite, address, uint32(len(data)))
	if err := c.f.Write(req, nil); err != nil {
		return fmt.Errorf("fel write request: %w", err)
	}
	if err := c.f.Write(data, progress); err != nil {
		return fmt.Errorf("fel write payload: %w", err)
	}
	if err := c.readStatus(); err != nil {
		return fmt.Errorf("fel write status: %w", err)
	}
	return nil
}

// Execute transfers control to address. The boot ROM resumes the FEL
// command loop once the entry point returns via bx lr.
func (c *Client) Execute(address uint32) error {
	req := buildRequest(OpExec, address, 0)
	if err := c.f.Write(req, nil); err != nil {
		return fmt.Errorf("fel execute request: %w", err)
	}
	if err := c.readStatus(); err != nil {
		return fmt.Errorf("fel execute status: %w", err)
	}
	return nil
}
