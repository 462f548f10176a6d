package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/lospdisk/host/hal/linux"
	"github.com/ardnew/lospdisk/pkg/linux/usbid"
)

func (a *app) listCommand() *cobra.Command {
	var (
		sysfs string
		ids   []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bulk-only mass storage interfaces",
		Long: `List every USB interface that speaks SCSI over Bulk-Only Transport,
filtered by --vid and --pid when given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := linux.FindMassStorage(sysfs, a.cfg.Device.VendorID, a.cfg.Device.ProductID)
			if err != nil {
				return err
			}
			db := usbid.Load(ids...)
			for _, t := range targets {
				d := t.Device
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", t, db.Describe(d.VendorID, d.ProductID, d.Manufacturer, d.Product))
			}
			if len(targets) == 0 {
				cmd.PrintErrln("no mass storage devices found")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sysfs, "sysfs", linux.SysfsUSBPath, "sysfs USB device directory")
	cmd.Flags().StringSliceVar(&ids, "usb-ids", nil, "usb.ids database files (default: system locations)")
	return cmd
}
