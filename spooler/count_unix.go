//go:build linux || darwin
// +build linux darwin

package spooler

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// IsSupported returns whether spooler probing is supported on this platform.
func IsSupported() bool {
	if _, err := exec.LookPath("lpstat"); err == nil {
		return true
	}
	_, err := exec.LookPath("lpq")
	return err == nil
}

// lpstat -o lines look like "PrinterName-123 username 1024 Mon Dec 19 ...".
var lpstatJobRegex = regexp.MustCompile(`^(\S+)-(\d+)\s+\S+\s+\d+`)

// lpq active/rank lines start with "active" or an ordinal like "1st", "2nd".
var lpqRankRegex = regexp.MustCompile(`^(active|\d+(st|nd|rd|th))\s`)

// platformJobCount asks CUPS how many jobs are queued for the named
// printer, preferring lpstat and falling back to lpq.
func platformJobCount(ctx context.Context, printerName string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if n, err := countViaLpstat(ctx, printerName); err == nil {
		return n, nil
	}
	return countViaLpq(ctx, printerName)
}

func countViaLpstat(ctx context.Context, printerName string) (int, error) {
	if _, err := exec.LookPath("lpstat"); err != nil {
		return 0, fmt.Errorf("lpstat not available: %w", err)
	}
	// lpstat -o <dest> exits 0 with empty output when the queue is empty.
	out, err := exec.CommandContext(ctx, "lpstat", "-o", printerName).Output()
	if err != nil {
		return 0, fmt.Errorf("lpstat -o failed: %w", err)
	}

	count := 0
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		m := lpstatJobRegex.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if m[1] == printerName {
			count++
		}
	}
	return count, nil
}

func countViaLpq(ctx context.Context, printerName string) (int, error) {
	if _, err := exec.LookPath("lpq"); err != nil {
		return 0, fmt.Errorf("lpq not available: %w", err)
	}
	out, err := exec.CommandContext(ctx, "lpq", "-P", printerName).Output()
	if err != nil {
		return 0, fmt.Errorf("lpq failed: %w", err)
	}

	count := 0
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if lpqRankRegex.MatchString(scanner.Text()) {
			count++
		}
	}
	return count, nil
}
