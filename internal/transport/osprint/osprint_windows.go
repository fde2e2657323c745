//go:build windows

package osprint

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/printbridge/agent/internal/model"
	"github.com/printbridge/agent/internal/platform"
)

// discoverOS enumerates printers via PowerShell's Get-Printer cmdlet,
// parsing the "name|isDefault" lines its ForEach-Object script emits; if
// PowerShell isn't available, or that primary parse fails, it falls back
// to wmic's alternate enumeration mechanism.
func discoverOS(ctx context.Context) ([]model.OSPrinter, error) {
	if platform.HasPowerShell() {
		if printers, err := discoverViaGetPrinter(ctx); err == nil {
			return printers, nil
		}
	}
	return discoverViaWMIC(ctx)
}

func discoverViaGetPrinter(ctx context.Context) ([]model.OSPrinter, error) {
	script := `Get-Printer | ForEach-Object { "$($_.Name)|$($_.Default)" }`
	out, err := exec.CommandContext(ctx, "powershell.exe", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return nil, err
	}

	var printers []model.OSPrinter
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unexpected Get-Printer output: %q", line)
		}
		printers = append(printers, model.OSPrinter{
			Name:      parts[0],
			IsDefault: strings.EqualFold(strings.TrimSpace(parts[1]), "true"),
		})
	}
	return printers, nil
}

func discoverViaWMIC(ctx context.Context) ([]model.OSPrinter, error) {
	out, err := exec.CommandContext(ctx, "wmic", "printer", "get", "name,default").Output()
	if err != nil {
		return nil, err
	}

	var printers []model.OSPrinter
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for _, line := range lines[1:] { // skip header row
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		printers = append(printers, model.OSPrinter{
			Name:      strings.Join(fields[:len(fields)-1], " "),
			IsDefault: strings.EqualFold(fields[len(fields)-1], "true"),
		})
	}
	return printers, nil
}

// printOS writes payload to a temp file and submits it for raw printing by
// copying the file onto the printer's local UNC share, the standard
// subprocess-only technique for raw byte submission on Windows. The temp
// file is removed on every exit path.
func printOS(ctx context.Context, printerName string, payload []byte) error {
	tmp, err := os.CreateTemp("", "printbridge-*.bin")
	if err != nil {
		return model.NewTransportError(model.KindOSPrintError, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return model.NewTransportError(model.KindOSPrintError, err)
	}
	if err := tmp.Close(); err != nil {
		return model.NewTransportError(model.KindOSPrintError, err)
	}

	dest := fmt.Sprintf(`\\localhost\%s`, printerName)
	cmd := exec.CommandContext(ctx, "cmd", "/c", "copy", "/b", tmpPath, dest)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return model.NewTransportError(model.KindOSPrintError,
			fmt.Errorf("copy /b exited: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	return nil
}
