//go:build !windows && !linux && !darwin
// +build !windows,!linux,!darwin

package driver

import (
	"context"
	"fmt"

	"fleetprint/storage"
)

type unsupportedDriver struct{}

func newPlatformDriver(logger Logger) Driver {
	return unsupportedDriver{}
}

func (unsupportedDriver) Submit(ctx context.Context, localPath string, settings storage.PrintSettings, printerName string) error {
	return fmt.Errorf("printing is not supported on this platform")
}
