package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ardnew/lospdisk/losp"
)

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Check the LOSP tunnel and print the firmware version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(ctx context.Context, c *losp.Client) error {
				if err := c.Nop(ctx); err != nil {
					return err
				}
				raw, err := c.VersionString(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				cfg := c.Config()
				fmt.Fprintf(w, "tunnel:   command lba %d, answer lba %d\n", cfg.CommandLBA, cfg.AnswerLBA)
				fmt.Fprintf(w, "firmware: %s\n", raw)
				if v, err := losp.ParseVersion(raw); err == nil {
					fmt.Fprintf(w, "version:  %s\n", v)
				}
				return nil
			})
		},
	}
}

func (a *app) dataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Access the instrument data area",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "read OFFSET LENGTH",
			Short: "Hex dump bytes of the data area",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				offset, err := parseOffset(args[0])
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return usageError("length %q", args[1])
				}
				return a.withClient(cmd.Context(), func(ctx context.Context, c *losp.Client) error {
					data, err := c.ReadData(ctx, offset, n)
					if err != nil {
						return err
					}
					fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "write OFFSET HEX",
			Short: "Write bytes to the data area",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				offset, err := parseOffset(args[0])
				if err != nil {
					return err
				}
				data, err := hex.DecodeString(args[1])
				if err != nil {
					return usageError("data: %v", err)
				}
				return a.withClient(cmd.Context(), func(ctx context.Context, c *losp.Client) error {
					if err := c.WriteData(ctx, offset, data); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes at offset %d\n", len(data), offset)
					return nil
				})
			},
		},
	)
	return cmd
}

func parseOffset(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, usageError("offset %q", s)
	}
	return uint32(v), nil
}
