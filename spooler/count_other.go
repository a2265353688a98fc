//go:build !windows && !linux && !darwin
// +build !windows,!linux,!darwin

package spooler

import (
	"context"
	"fmt"
)

// IsSupported returns whether spooler probing is supported on this platform.
func IsSupported() bool {
	return false
}

func platformJobCount(ctx context.Context, printerName string) (int, error) {
	return 0, fmt.Errorf("spooler probing is not supported on this platform")
}
