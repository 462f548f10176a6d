//go:build !linux

package main

import (
	"fmt"
	"runtime"

	"github.com/ardnew/lospdisk/pkg"
	"github.com/ardnew/lospdisk/pkg/config"
)

func openHardware(*config.Config) (*device, error) {
	return nil, fmt.Errorf("usb access on %s: %w", runtime.GOOS, pkg.ErrNotSupported)
}
