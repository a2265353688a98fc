//go:build windows
// +build windows

package driver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"fleetprint/storage"
)

type windowsDriver struct {
	logger Logger
}

func newPlatformDriver(logger Logger) Driver {
	return &windowsDriver{logger: logger}
}

// Submit prints via PowerShell's Out-Printer, once per requested copy.
// Out-Printer has no copies flag; duplex and color follow the queue's
// driver defaults.
func (d *windowsDriver) Submit(ctx context.Context, localPath string, settings storage.PrintSettings, printerName string) error {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	copies := settings.Copies
	if copies < 1 {
		copies = 1
	}

	script := fmt.Sprintf("Get-Content -Raw %s | Out-Printer -Name %s",
		quotePS(localPath), quotePS(printerName))

	for i := 0; i < copies; i++ {
		d.logger.Debug("Submitting to Windows spooler",
			"printer", printerName, "copy", i+1)
		out, err := exec.CommandContext(ctx,
			"powershell", "-NoProfile", "-NonInteractive", "-Command", script).CombinedOutput()
		if err != nil {
			msg := strings.TrimSpace(string(out))
			if msg == "" {
				msg = err.Error()
			}
			return fmt.Errorf("print submission to %s failed: %s", printerName, msg)
		}
	}
	return nil
}

// quotePS single-quotes a value for a PowerShell command line.
func quotePS(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
