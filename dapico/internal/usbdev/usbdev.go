// Copyright 2025 The Dapico Tools Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usbdev finds Raspberry Pi RP2040/RP2350 devices on the USB
// bus and claims their PICOBOOT or stdio reset interfaces.
package usbdev

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	usb "github.com/google/gousb"

	"github.com/nanoscopic/dapico-tools/dapico/internal/picoboot"
)

// USB identifiers fixed by the RP bootrom and the stdio-USB firmware.
const (
	VendorRaspberryPi usb.ID = 0x2e8a

	ProductRP2040Boot  usb.ID = 0x0003
	ProductRP2350Boot  usb.ID = 0x000f
	ProductRP2040Stdio usb.ID = 0x000a
	ProductRP2350Stdio usb.ID = 0x0009
)

// The stdio reset interface is vendor class with these identifiers.
const (
	resetInterfaceSubClass = 0x00
	resetInterfaceProtocol = 0x01
)

// Vendor requests understood by the stdio reset interface.
const (
	ResetRequestBootsel uint8 = 0x01
	ResetRequestFlash   uint8 = 0x02
)

var ErrNoDevice = errors.New("usbdev: no matching device found")

// A BootIntf locates the PICOBOOT interface of a device: vendor class,
// exactly one bulk IN and one bulk OUT endpoint.
type BootIntf struct {
	Config int
	Number int
	Alt    int
	EpIn   int
	EpOut  int
}

// A ResetIntf locates the stdio reset interface of a device.
type ResetIntf struct {
	Config int
	Number int
	Alt    int
}

// A Match is an opened USB device together with the interfaces found
// on it. The match owns the device handle and whatever interface gets
// claimed; Close releases them in LIFO order.
type Match struct {
	Dev     *usb.Device
	Product usb.ID
	Boot    *BootIntf
	Reset   *ResetIntf

	cfg  *usb.Config
	intf *usb.Interface
}

func parseBusAddr(busAddr string) (int, int) {
	s := strings.Split(busAddr, ":")
	if len(s) != 2 {
		return -1, -1
	}
	bus, err := strconv.ParseUint(s[0], 10, 8)
	if err != nil {
		return -1, -1
	}
	dev, err := strconv.ParseUint(s[1], 10, 8)
	if err != nil {
		return -1, -1
	}
	return int(bus), int(dev)
}

// scan inspects the alt-setting 0 interfaces of a device descriptor
// for the PICOBOOT and stdio reset interfaces.
func scan(desc *usb.DeviceDesc) (boot *BootIntf, reset *ResetIntf) {
	for _, cfg := range desc.Configs {
		for _, id := range cfg.Interfaces {
			for _, alt := range id.AltSettings {
				if alt.Alternate != 0 || alt.Class != usb.ClassVendorSpec {
					continue
				}
				if reset == nil &&
					alt.SubClass == resetInterfaceSubClass &&
					alt.Protocol == resetInterfaceProtocol {
					reset = &ResetIntf{cfg.Number, alt.Number, alt.Alternate}
				}
				if boot == nil && len(alt.Endpoints) == 2 {
					epIn, epOut := 0, 0
					for _, ed := range alt.Endpoints {
						if ed.TransferType != usb.TransferTypeBulk {
							continue
						}
						if ed.Direction == usb.EndpointDirectionIn {
							epIn = ed.Number
						} else {
							epOut = ed.Number
						}
					}
					if epIn != 0 && epOut != 0 {
						boot = &BootIntf{cfg.Number, alt.Number, alt.Alternate, epIn, epOut}
					}
				}
			}
		}
	}
	return
}

// Find scans the bus for a Raspberry Pi device exposing the PICOBOOT
// interface, or with stdio set also a stdio-USB device exposing the
// reset interface. busAddr optionally pins the device by "BUS:DEV".
// Exactly one device must match.
func Find(ctx *usb.Context, busAddr string, stdio bool) (m *Match, err error) {
	bus, addr := parseBusAddr(busAddr)
	if busAddr != "" && bus < 0 {
		return nil, errors.New("usbdev: bad USB device address: " + busAddr)
	}
	devs, err := ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if bus >= 0 && (desc.Bus != bus || desc.Address != addr) {
			return false
		}
		if desc.Vendor != VendorRaspberryPi {
			return false
		}
		switch desc.Product {
		case ProductRP2040Boot, ProductRP2350Boot:
		case ProductRP2040Stdio, ProductRP2350Stdio:
			if !stdio {
				return false
			}
		default:
			return false
		}
		boot, reset := scan(desc)
		if stdio {
			return boot != nil || reset != nil
		}
		return boot != nil
	})
	defer func() {
		if err != nil {
			for _, d := range devs {
				d.Close()
			}
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("usbdev: %w", err)
	}
	if len(devs) == 0 {
		return nil, ErrNoDevice
	}
	if len(devs) > 1 {
		return nil, errors.New("usbdev: more than one matching device found")
	}
	dev := devs[0]
	dev.SetAutoDetach(true)
	boot, reset := scan(dev.Desc)
	return &Match{Dev: dev, Product: dev.Desc.Product, Boot: boot, Reset: reset}, nil
}

// ClaimBoot claims the PICOBOOT interface and returns a transport
// driving its endpoints.
func (m *Match) ClaimBoot() (picoboot.Transport, error) {
	cfg, err := m.Dev.Config(m.Boot.Config)
	if err != nil {
		return nil, fmt.Errorf("usbdev: claim config: %w", err)
	}
	intf, err := cfg.Interface(m.Boot.Number, m.Boot.Alt)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("usbdev: claim interface: %w", err)
	}
	ie, err := intf.InEndpoint(m.Boot.EpIn)
	if err == nil {
		var oe *usb.OutEndpoint
		oe, err = intf.OutEndpoint(m.Boot.EpOut)
		if err == nil {
			m.cfg, m.intf = cfg, intf
			return &bootTransport{m.Dev, uint16(m.Boot.Number), ie, oe}, nil
		}
	}
	intf.Close()
	cfg.Close()
	return nil, fmt.Errorf("usbdev: endpoint: %w", err)
}

// ClaimReset claims the stdio reset interface and returns a sender for
// its vendor requests.
func (m *Match) ClaimReset() (*ResetConn, error) {
	cfg, err := m.Dev.Config(m.Reset.Config)
	if err != nil {
		return nil, fmt.Errorf("usbdev: claim config: %w", err)
	}
	intf, err := cfg.Interface(m.Reset.Number, m.Reset.Alt)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("usbdev: claim interface: %w", err)
	}
	m.cfg, m.intf = cfg, intf
	return &ResetConn{m.Dev, uint16(m.Reset.Number)}, nil
}

// Close releases the claimed interface and closes the device, in the
// reverse of the acquisition order. Safe to call on every exit path.
func (m *Match) Close() error {
	var first error
	if m.intf != nil {
		m.intf.Close()
		m.intf = nil
	}
	if m.cfg != nil {
		if err := m.cfg.Close(); err != nil && first == nil {
			first = err
		}
		m.cfg = nil
	}
	if m.Dev != nil {
		if err := m.Dev.Close(); err != nil && first == nil {
			first = err
		}
		m.Dev = nil
	}
	return first
}

// A ResetConn sends vendor requests to a claimed stdio reset
// interface.
type ResetConn struct {
	dev   *usb.Device
	ifnum uint16
}

// SendReset issues one of the ResetRequest* vendor requests.
func (rc *ResetConn) SendReset(request uint8) error {
	rc.dev.ControlTimeout = 3 * time.Second
	_, err := rc.dev.Control(
		usb.ControlOut|usb.ControlVendor|usb.ControlInterface,
		request, 0, rc.ifnum, nil,
	)
	return usbErr(err)
}

// bootTransport adapts a claimed PICOBOOT interface to
// picoboot.Transport.
type bootTransport struct {
	dev   *usb.Device
	ifnum uint16
	in    *usb.InEndpoint
	out   *usb.OutEndpoint
}

func (t *bootTransport) BulkOut(p []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := t.out.WriteContext(ctx, p)
	return n, usbErr(err)
}

func (t *bootTransport) BulkIn(p []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := t.in.ReadContext(ctx, p)
	return n, usbErr(err)
}

func (t *bootTransport) Vendor(in bool, request uint8, p []byte, timeout time.Duration) (int, error) {
	var rType uint8 = usb.ControlVendor | usb.ControlInterface
	if in {
		rType |= usb.ControlIn
	} else {
		rType |= usb.ControlOut
	}
	t.dev.ControlTimeout = timeout
	n, err := t.dev.Control(rType, request, 0, t.ifnum, p)
	return n, usbErr(err)
}

// usbErr rebrands the backend errors the transport state machine
// branches on.
func usbErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, usb.ErrorNoDevice),
		errors.Is(err, usb.ErrorNotFound),
		errors.Is(err, usb.TransferNoDevice):
		return fmt.Errorf("%w: %v", picoboot.ErrDeviceGone, err)
	case errors.Is(err, usb.ErrorTimeout),
		errors.Is(err, usb.TransferTimedOut),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", picoboot.ErrTimeout, err)
	}
	return err
}
