//go:build !windows

package osprint

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/printbridge/agent/internal/model"
	"github.com/printbridge/agent/internal/platform"
)

// discoverOS parses `lpstat -p -d` output: a "system default destination:"
// line and one "printer <name> is <state>." line per configured printer.
// States are translated {idle->Ready, printing->Printing, else->Unknown}.
func discoverOS(ctx context.Context) ([]model.OSPrinter, error) {
	if !platform.HasCUPS() {
		return nil, fmt.Errorf("lpstat/lp not found on PATH")
	}
	out, err := exec.CommandContext(ctx, "lpstat", "-p", "-d").Output()
	if err != nil {
		return nil, err
	}

	var defaultName string
	printers := map[string]model.OSPrinter{}
	var order []string

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "system default destination:"):
			defaultName = strings.TrimSpace(strings.TrimPrefix(line, "system default destination:"))
		case strings.HasPrefix(line, "printer "):
			fields := strings.Fields(line)
			// "printer <name> is <state>."
			if len(fields) < 4 {
				continue
			}
			name := fields[1]
			state := strings.TrimSuffix(fields[3], ".")
			printers[name] = model.OSPrinter{
				Name:        name,
				Description: translateState(state),
			}
			order = append(order, name)
		}
	}

	result := make([]model.OSPrinter, 0, len(order))
	for _, name := range order {
		p := printers[name]
		p.IsDefault = name == defaultName
		result = append(result, p)
	}
	return result, nil
}

func translateState(state string) string {
	switch state {
	case "idle":
		return "Ready"
	case "printing":
		return "Printing"
	default:
		return "Unknown"
	}
}

// printOS streams payload to `lp -d <name> -o raw` on standard input,
// closes input, and awaits exit. A non-zero exit fails with
// KindOSPrintError carrying the captured diagnostic output.
func printOS(ctx context.Context, printerName string, payload []byte) error {
	if !platform.HasCUPS() {
		return model.NewTransportError(model.KindOSPrintError, fmt.Errorf("lpstat/lp not found on PATH"))
	}
	cmd := exec.CommandContext(ctx, "lp", "-d", printerName, "-o", "raw")
	cmd.Stdin = bytes.NewReader(payload)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return model.NewTransportError(model.KindOSPrintError,
			fmt.Errorf("lp exited: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	return nil
}
