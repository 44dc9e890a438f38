// Package usbtransport provides bulk send/recv chunking and endpoint
// discovery over the USB connection to a device sitting in Allwinner's
// FEL boot-ROM mode.
package usbtransport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// VendorID and ProductID identify the Allwinner FEL USB device.
	VendorID  = 0x1F3A
	ProductID = 0xEFE8

	// Timeout bounds every bulk transfer; a timeout is fatal.
	Timeout = 10 * time.Second

	// chunkSize is the default send chunk; it shrinks when a progress
	// callback is attached so status updates fire more often.
	chunkSize         = 512 * 1024
	chunkSizeProgress = 128 * 1024
)

// Transport is the minimal bulk interface the AW-USB framing layer
// needs. It is satisfied by *USBTransport and by test doubles.
type Transport interface {
	Send(data []byte, progress func(sent int)) error
	Recv(buf []byte) (int, error)
	Close() error
}

// USBTransport drives a claimed USB interface via gousb.
type USBTransport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface

	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint

	detached bool
}

// Open finds the first device matching VendorID/ProductID (optionally
// narrowed to a specific bus:device address), claims interface 0, and
// resolves its first bulk IN and bulk OUT endpoints.
func Open(bus, addr int) (*USBTransport, error) {
	ctx := gousb.NewContext()

	var device *gousb.Device
	var err error
	if bus > 0 {
		devices, openErr := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
			return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID) &&
				desc.Bus == bus && desc.Address == addr
		})
		if openErr != nil {
			ctx.Close()
			return nil, fmt.Errorf("open device %d:%d: %w", bus, addr, openErr)
		}
		if len(devices) == 0 {
			ctx.Close()
			return nil, fmt.Errorf("no FEL device found at bus %d device %d", bus, addr)
		}
		device = devices[0]
	} else {
		device, err = ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
		if err != nil {
			ctx.Close()
			return nil, fmt.Errorf("open FEL device: %w", err)
		}
		if device == nil {
			ctx.Close()
			return nil, fmt.Errorf("FEL device not found (VID:0x%04x PID:0x%04x)", VendorID, ProductID)
		}
	}

	detached := false
	if err := device.SetAutoDetach(true); err == nil {
		detached = true
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("set USB config: %w", err)
	}

	epIn, epOut, intf, err := discoverEndpoints(config)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return nil, err
	}

	return &USBTransport{
		ctx:      ctx,
		device:   device,
		config:   config,
		intf:     intf,
		epIn:     epIn,
		epOut:    epOut,
		detached: detached,
	}, nil
}

// discoverEndpoints walks interface 0's alt-settings for the first
// bulk IN and first bulk OUT endpoint, whichever alt-setting offers one.
func discoverEndpoints(config *gousb.Config) (*gousb.InEndpoint, *gousb.OutEndpoint, *gousb.Interface, error) {
	descIntf, ok := config.Desc.Interfaces[0]
	if !ok || len(descIntf.AltSettings) == 0 {
		return nil, nil, nil, fmt.Errorf("no interface 0 on device")
	}

	var lastErr error
	for _, alt := range descIntf.AltSettings {
		intf, err := config.Interface(0, alt.Number)
		if err != nil {
			lastErr = err
			continue
		}

		var inAddr, outAddr gousb.EndpointAddress
		var haveIn, haveOut bool
		for _, ep := range alt.Endpoints {
			if ep.TransferType != gousb.TransferTypeBulk {
				continue
			}
			if ep.Direction == gousb.EndpointDirectionIn && !haveIn {
				inAddr, haveIn = ep.Number, true
			}
			if ep.Direction == gousb.EndpointDirectionOut && !haveOut {
				outAddr, haveOut = ep.Number, true
			}
		}
		if !haveIn || !haveOut {
			intf.Close()
			continue
		}

		epIn, err := intf.InEndpoint(int(inAddr))
		if err != nil {
			intf.Close()
			lastErr = err
			continue
		}
		epOut, err := intf.OutEndpoint(int(outAddr))
		if err != nil {
			intf.Close()
			lastErr = err
			continue
		}
		return epIn, epOut, intf, nil
	}

	if lastErr != nil {
		return nil, nil, nil, fmt.Errorf("no bulk IN/OUT endpoint pair found: %w", lastErr)
	}
	return nil, nil, nil, fmt.Errorf("no bulk IN/OUT endpoint pair found")
}

// Close releases the claimed interface and, on hosts where the kernel
// driver was auto-detached, lets gousb reattach it on clean exit.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.device != nil {
		t.device.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	return nil
}

// Send writes all of data to EP_OUT, chunked so a non-nil progress
// callback fires more often, looping until every byte is sent.
func (t *USBTransport) Send(data []byte, progress func(sent int)) error {
	size := chunkSize
	if progress != nil {
		size = chunkSizeProgress
	}

	sent := 0
	for sent < len(data) {
		end := sent + size
		if end > len(data) {
			end = len(data)
		}
		n, err := t.writeChunk(data[sent:end])
		if err != nil {
			return fmt.Errorf("USB send at offset %d: %w", sent, err)
		}
		sent += n
		if progress != nil {
			progress(sent)
		}
	}
	return nil
}

func (t *USBTransport) writeChunk(chunk []byte) (int, error) {
	written := 0
	for written < len(chunk) {
		ctx, cancel := context.WithTimeout(context.Background(), Timeout)
		n, err := t.epOut.WriteContext(ctx, chunk[written:])
		cancel()
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, fmt.Errorf("zero-length USB write")
		}
		written += n
	}
	return written, nil
}

// Recv reads exactly len(buf) bytes from EP_IN, looping until
// satisfied; a timeout on any single transfer is fatal.
func (t *USBTransport) Recv(buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		ctx, cancel := context.WithTimeout(context.Background(), Timeout)
		n, err := t.epIn.ReadContext(ctx, buf[read:])
		cancel()
		if err != nil {
			return read, fmt.Errorf("USB recv at offset %d: %w", read, err)
		}
		if n == 0 {
			return read, fmt.Errorf("zero-length USB read")
		}
		read += n
	}
	return read, nil
}
