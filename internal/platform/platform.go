// Package platform provides best-effort detection of the external tools
// the OS spooler transport shells out to: look for one of several known
// binary names on PATH, the same way a spooler adapter probes for the
// tooling it depends on before trying to use it.
package platform

import (
	"os/exec"
	"runtime"
)

// CUPSBinaries are the binary names probed on macOS/Linux for spooler
// discovery and submission.
var CUPSBinaries = []string{"lpstat", "lp"}

// HasCUPS reports whether both CUPS client binaries are on PATH.
func HasCUPS() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	for _, bin := range CUPSBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	return true
}

// HasPowerShell reports whether PowerShell is available for the Windows
// spooler adapter's primary enumeration path.
func HasPowerShell() bool {
	_, err := exec.LookPath("powershell.exe")
	return err == nil
}

// Supported reports whether the current GOOS has any OS spooler adapter at
// all. Other platforms report unsupported rather than attempting to shell
// out to tooling that doesn't exist there.
func Supported() bool {
	switch runtime.GOOS {
	case "windows", "darwin", "linux":
		return true
	default:
		return false
	}
}
