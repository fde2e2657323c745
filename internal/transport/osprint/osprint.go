// Package osprint implements the OS spooler transport: submit a raw byte
// blob to a named OS printer via a platform subprocess, and enumerate
// installed printers for discovery. Platform adapters live in
// osprint_unix.go (CUPS, via lpstat/lp) and osprint_windows.go (PowerShell
// Get-Printer or wmic for discovery, a temp-file copy to the printer's
// local share for printing), isolated behind the two functions below so the core
// never needs a runtime.GOOS switch of its own.
package osprint

import (
	"context"
	"fmt"
	"runtime"

	"github.com/printbridge/agent/internal/model"
	"github.com/printbridge/agent/internal/platform"
)

// Print submits payload to the named OS printer via the platform adapter.
// Unsupported platforms fail with KindUnsupported.
func Print(ctx context.Context, printerName string, payload []byte) error {
	if !platform.Supported() {
		return model.NewTransportError(model.KindUnsupported, fmt.Errorf("no OS printer adapter for %s", runtime.GOOS))
	}
	return printOS(ctx, printerName, payload)
}

// Discover enumerates installed OS printers. Errors, and unsupported
// platforms, are swallowed into an empty list: discovery is advisory.
func Discover(ctx context.Context) []model.OSPrinter {
	if !platform.Supported() {
		return nil
	}
	printers, err := discoverOS(ctx)
	if err != nil {
		return nil
	}
	return printers
}
