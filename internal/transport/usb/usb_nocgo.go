//go:build !cgo

// Package usb, built without cgo, has no libusb binding available: every
// operation fails with KindLibusbUnavailable.
package usb

import (
	"context"

	"github.com/printbridge/agent/internal/model"
)

func Discover(ctx context.Context) ([]model.USBDevice, error) {
	return nil, model.NewTransportError(model.KindLibusbUnavailable, nil)
}

func Print(ctx context.Context, target model.USBPrintTarget, payload []byte) error {
	return model.NewTransportError(model.KindLibusbUnavailable, nil)
}
