package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ardnew/lospdisk/host/class/msc"
)

func (a *app) inquiryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inquiry",
		Short: "Print the SCSI INQUIRY identity of the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDisk(cmd.Context(), func(ctx context.Context, disk *msc.Disk) error {
				inq, err := disk.Inquiry(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "vendor:    %s\n", inq.Vendor)
				fmt.Fprintf(w, "product:   %s\n", inq.Product)
				fmt.Fprintf(w, "revision:  %s\n", inq.Revision)
				fmt.Fprintf(w, "type:      0x%02X\n", inq.DeviceType)
				fmt.Fprintf(w, "removable: %t\n", inq.Removable)
				return nil
			})
		},
	}
}

func (a *app) capacityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Print the block count and block size of the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDisk(cmd.Context(), func(ctx context.Context, disk *msc.Disk) error {
				c, err := disk.ReadCapacity(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "blocks:     %d\n", c.Blocks())
				fmt.Fprintf(w, "block size: %d\n", c.BlockSize)
				fmt.Fprintf(w, "bytes:      %d\n", c.Bytes())
				return nil
			})
		},
	}
}

func (a *app) readCommand() *cobra.Command {
	var offset, length, sectors int
	cmd := &cobra.Command{
		Use:   "read LBA",
		Short: "Hex dump bytes of a sector range",
		Long: `Read --length bytes starting --offset bytes into sector LBA and print
them as a hex dump. The length defaults to the rest of the sector. With
--sectors, whole sectors are read instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lba, err := parseLBA(args[0])
			if err != nil {
				return err
			}
			return a.withDisk(cmd.Context(), func(ctx context.Context, disk *msc.Disk) error {
				if sectors > 0 {
					data, err := disk.ReadSectors(ctx, lba, sectors)
					if err != nil {
						return err
					}
					fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
					return nil
				}
				n := length
				if n == 0 {
					bs, err := disk.BlockSize(ctx)
					if err != nil {
						return err
					}
					n = int(bs) - offset%int(bs)
				}
				data, err := disk.ReadBytes(ctx, lba, offset, n)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "byte offset into the sector")
	cmd.Flags().IntVar(&length, "length", 0, "number of bytes to read")
	cmd.Flags().IntVar(&sectors, "sectors", 0, "number of whole sectors to read")
	return cmd
}

func (a *app) writeCommand() *cobra.Command {
	var (
		offset int
		data   string
	)
	cmd := &cobra.Command{
		Use:   "write LBA",
		Short: "Overwrite bytes of a sector range",
		Long: `Replace the bytes given by --data (hex) starting --offset bytes into
sector LBA. The rest of every touched sector is preserved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lba, err := parseLBA(args[0])
			if err != nil {
				return err
			}
			buf, err := hex.DecodeString(data)
			if err != nil {
				return usageError("--data: %v", err)
			}
			if len(buf) == 0 {
				return usageError("--data is empty")
			}
			return a.withDisk(cmd.Context(), func(ctx context.Context, disk *msc.Disk) error {
				err := disk.OverwriteBytes(ctx, lba, offset, buf)
				var pw *msc.PartialWriteError
				if errors.As(err, &pw) {
					cmd.PrintErrf("%d of %d sectors written, failed at lba %d\n", pw.Index, pw.Sectors, pw.FailedLBA())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes at lba %d offset %d\n", len(buf), lba, offset)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "byte offset into the sector")
	cmd.Flags().StringVar(&data, "data", "", "bytes to write, hex encoded")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func parseLBA(s string) (uint32, error) {
	lba, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, usageError("lba %q", s)
	}
	return uint32(lba), nil
}
