//go:build windows
// +build windows

package spooler

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// IsSupported returns whether spooler probing is supported on this platform.
func IsSupported() bool {
	_, err := exec.LookPath("powershell")
	return err == nil
}

// platformJobCount asks the Windows print spooler for the job count of a
// queue, preferring PowerShell's print cmdlets and falling back to WMI.
func platformJobCount(ctx context.Context, printerName string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if n, err := countViaPowershell(ctx, printerName); err == nil {
		return n, nil
	}
	return countViaWMI(ctx, printerName)
}

func countViaPowershell(ctx context.Context, printerName string) (int, error) {
	script := fmt.Sprintf(
		"@(Get-PrintJob -PrinterName %s -ErrorAction Stop).Count",
		quotePS(printerName))
	out, err := exec.CommandContext(ctx,
		"powershell", "-NoProfile", "-NonInteractive", "-Command", script).Output()
	if err != nil {
		return 0, fmt.Errorf("Get-PrintJob failed: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unexpected Get-PrintJob output %q: %w", out, err)
	}
	return n, nil
}

func countViaWMI(ctx context.Context, printerName string) (int, error) {
	// Win32_PrintJob names are "Printer, JobId".
	out, err := exec.CommandContext(ctx,
		"wmic", "printjob", "get", "Name").Output()
	if err != nil {
		return 0, fmt.Errorf("wmic printjob failed: %w", err)
	}

	count := 0
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "Name") {
			continue
		}
		queue, _, found := strings.Cut(line, ",")
		if found && strings.EqualFold(strings.TrimSpace(queue), printerName) {
			count++
		}
	}
	return count, nil
}

// quotePS single-quotes a value for a PowerShell command line.
func quotePS(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
