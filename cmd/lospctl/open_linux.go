//go:build linux

package main

import (
	"github.com/ardnew/lospdisk/host/hal/linux"
	"github.com/ardnew/lospdisk/pkg"
	"github.com/ardnew/lospdisk/pkg/config"
)

// openHardware resolves the configured device through sysfs and opens its
// usbfs node.
func openHardware(cfg *config.Config) (*device, error) {
	t, err := linux.FindTarget(linux.SysfsUSBPath, cfg.Device.Path, cfg.Device.VendorID, cfg.Device.ProductID)
	if err != nil {
		return nil, err
	}
	conn, err := linux.Open(t.Device.DevfsPath)
	if err != nil {
		return nil, err
	}
	pkg.LogInfo(pkg.ComponentCLI, "device opened", "target", t.String())
	return &device{
		Name:      t.String(),
		Conn:      conn,
		Endpoints: t.Endpoints,
		Interface: t.Interface,
		Close:     conn.Close,
	}, nil
}
