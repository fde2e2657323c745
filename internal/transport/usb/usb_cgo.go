// Package usb implements the USB bulk-OUT printer transport, backed by
// github.com/google/gousb (a cgo binding to libusb).
//
// gousb's DeviceDesc already exposes the configuration descriptor as a
// decoded Go struct tree (Configs -> Interfaces -> AltSettings ->
// Endpoints) built from libusb's raw descriptor bytes inside its cgo
// layer, so discovery walks that tree instead of re-parsing the raw
// configuration-descriptor bytes itself.
//
// This file only builds with cgo (gousb links libusb via cgo); the
// companion usb_nocgo.go build-tagged file covers CGO_ENABLED=0 builds,
// where every operation fails with libusb_unavailable instead of trying
// to detect a missing libusb at runtime.
//
//go:build cgo

package usb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/gousb"

	"github.com/printbridge/agent/internal/model"
)

// BulkTimeout bounds a single bulk transfer.
const BulkTimeout = 5 * time.Second

// printerClass is the USB interface class code for printers.
const printerClass = gousb.ClassPrinter

func newContext() (*gousb.Context, error) {
	return gousb.NewContext(), nil
}

// Discover enumerates USB devices and returns one record per device that
// has at least one printer-class interface with a bulk-OUT endpoint.
// Devices with no qualifying interface are omitted.
func Discover(ctx context.Context) ([]model.USBDevice, error) {
	usbCtx, err := newContext()
	if err != nil {
		return nil, err
	}
	defer usbCtx.Close()

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool { return true })
	if err != nil {
		return nil, model.NewTransportError(model.KindIOError, err)
	}
	defer closeAll(devs)

	var result []model.USBDevice
	for _, dev := range devs {
		ifaces := printerInterfaces(dev.Desc)
		if len(ifaces) == 0 {
			continue
		}

		rec := model.USBDevice{
			VendorID:   uint16(dev.Desc.Vendor),
			ProductID:  uint16(dev.Desc.Product),
			BusNumber:  dev.Desc.Bus,
			DeviceAddr: dev.Desc.Address,
			Interfaces: ifaces,
		}
		if s, err := dev.Manufacturer(); err == nil {
			rec.VendorName = s
		}
		if s, err := dev.Product(); err == nil {
			rec.ProductName = s
		}
		if s, err := dev.SerialNumber(); err == nil {
			rec.SerialNumber = s
		}
		result = append(result, rec)
	}
	return result, nil
}

// printerInterfaces walks desc's decoded configuration tree for the first
// (lowest-addressed) bulk-OUT endpoint of every printer-class (0x07)
// interface, emitting one entry per interface.
func printerInterfaces(desc *gousb.DeviceDesc) []model.USBInterfaceEndpoint {
	var out []model.USBInterfaceEndpoint
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class != printerClass {
					continue
				}
				found := false
				var first gousb.EndpointAddress
				for addr, ep := range alt.Endpoints {
					if ep.Direction != gousb.EndpointDirectionOut {
						continue
					}
					if ep.TransferType != gousb.TransferTypeBulk {
						continue
					}
					if !found || addr < first {
						first, found = addr, true
					}
				}
				if found {
					out = append(out, model.USBInterfaceEndpoint{
						InterfaceNumber: iface.Number,
						OutEndpoint:     int(first),
					})
					break // one entry per interface
				}
			}
		}
	}
	return out
}

func closeAll(devs []*gousb.Device) {
	for _, d := range devs {
		d.Close()
	}
}

// Print writes payload to the selected device's bulk-OUT endpoint: open,
// auto-detach kernel driver, set configuration 1, claim the interface,
// bulk-write the full payload within BulkTimeout, then release the
// interface and close the device on every exit path.
func Print(ctx context.Context, target model.USBPrintTarget, payload []byte) error {
	usbCtx, err := newContext()
	if err != nil {
		return err
	}
	defer usbCtx.Close()

	dev, err := selectDevice(usbCtx, target)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.SetAutoDetach(true); err != nil {
		// best-effort: some platforms (notably Windows) don't support
		// kernel-driver detach at all; proceed and let Config/Interface
		// surface a real claim failure if this mattered.
		_ = err
	}

	cfg, err := setConfig(dev)
	if err != nil {
		return model.NewTransportError(model.KindClaimFailed, err)
	}
	defer cfg.Close()

	intf, err := cfg.Interface(target.InterfaceNumber, 0)
	if err != nil {
		return model.NewTransportError(model.KindClaimFailed, fmt.Errorf("claim interface %d: %w", target.InterfaceNumber, err))
	}
	defer intf.Close()

	ep, err := intf.OutEndpoint(target.OutEndpoint)
	if err != nil {
		return model.NewTransportError(model.KindClaimFailed, fmt.Errorf("open out endpoint %d: %w", target.OutEndpoint, err))
	}

	return bulkWrite(ctx, ep, payload)
}

// setConfig claims configuration 1 on dev. A device that's already sitting
// in configuration 1 commonly rejects a redundant SetConfiguration call
// from the kernel driver's point of view even though nothing is actually
// wrong; one retry clears that case since gousb re-reads the device's
// active configuration on every call. Any other failure is returned as-is.
func setConfig(dev *gousb.Device) (*gousb.Config, error) {
	cfg, err := dev.Config(1)
	if err == nil {
		return cfg, nil
	}
	if !looksAlreadySet(err) {
		return nil, fmt.Errorf("set configuration 1: %w", err)
	}
	cfg, err = dev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("set configuration 1 (retry after already-set): %w", err)
	}
	return cfg, nil
}

func looksAlreadySet(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already") || strings.Contains(msg, "busy")
}

func selectDevice(usbCtx *gousb.Context, target model.USBPrintTarget) (*gousb.Device, error) {
	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if gousb.ID(target.VendorID) != desc.Vendor || gousb.ID(target.ProductID) != desc.Product {
			return false
		}
		if target.BusNumber != 0 && target.BusNumber != desc.Bus {
			return false
		}
		if target.DeviceAddr != 0 && target.DeviceAddr != desc.Address {
			return false
		}
		return true
	})
	if err != nil {
		return nil, model.NewTransportError(model.KindIOError, err)
	}
	if len(devs) == 0 {
		return nil, model.NewTransportError(model.KindDeviceNotFound, nil)
	}
	// Close any extras beyond the first match; precise bus+address
	// selection should yield exactly one, VID/PID-only selection may
	// match several (we take the first, deterministically).
	for _, extra := range devs[1:] {
		extra.Close()
	}
	return devs[0], nil
}

// bulkWrite performs the transfer on a background goroutine so BulkTimeout
// bounds the call even though gousb's Write is not itself context-aware.
func bulkWrite(ctx context.Context, ep *gousb.OutEndpoint, payload []byte) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, BulkTimeout)
	defer cancel()

	type outcome struct {
		n   int
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		n, err := ep.Write(payload)
		done <- outcome{n: n, err: err}
	}()

	select {
	case <-timeoutCtx.Done():
		return model.NewTransportError(model.KindBulkTransferError, timeoutCtx.Err())
	case res := <-done:
		if res.err != nil {
			return model.NewTransportError(model.KindBulkTransferError, res.err)
		}
		if res.n != len(payload) {
			return model.NewPartialTransferError(res.n, len(payload))
		}
		return nil
	}
}
