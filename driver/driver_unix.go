//go:build linux || darwin
// +build linux darwin

package driver

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"fleetprint/storage"
)

type cupsDriver struct {
	logger Logger
}

func newPlatformDriver(logger Logger) Driver {
	return &cupsDriver{logger: logger}
}

// Submit hands the file to CUPS with lp. The combined output of a failed
// command is folded into the error so messages like "The printer or class
// does not exist" reach the classifier intact.
func (d *cupsDriver) Submit(ctx context.Context, localPath string, settings storage.PrintSettings, printerName string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	args := []string{"-d", printerName}
	if settings.Copies > 1 {
		args = append(args, "-n", strconv.Itoa(settings.Copies))
	}
	if settings.Duplex {
		args = append(args, "-o", "sides=two-sided-long-edge")
	}
	if !settings.Color {
		args = append(args, "-o", "print-color-mode=monochrome")
	}
	args = append(args, localPath)

	d.logger.Debug("Submitting to CUPS", "printer", printerName, "args", strings.Join(args, " "))
	out, err := exec.CommandContext(ctx, "lp", args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("lp submission to %s failed: %s", printerName, msg)
	}
	return nil
}
