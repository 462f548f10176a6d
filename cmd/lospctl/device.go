package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/lospdisk/freq"
	"github.com/ardnew/lospdisk/host/class/msc"
	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/losp"
	"github.com/ardnew/lospdisk/monitor"
	"github.com/ardnew/lospdisk/pkg/config"
)

// device is an opened USB connection and the interface to drive on it.
type device struct {
	Name      string
	Conn      hal.Conn
	Endpoints hal.BulkEndpoints
	Interface uint8
	Close     func() error
}

// opener resolves and opens the device a configuration selects.
type opener func(cfg *config.Config) (*device, error)

// withDevice opens the configured device, runs fn and closes it.
func (a *app) withDevice(fn func(*device) error) (err error) {
	dev, err := a.open(a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if dev.Close == nil {
			return
		}
		if cerr := dev.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(dev)
}

// withDisk runs fn inside a SCSI session on the configured device.
func (a *app) withDisk(ctx context.Context, fn func(context.Context, *msc.Disk) error) error {
	return a.withDevice(func(dev *device) error {
		return diskSession(ctx, a.cfg, dev, fn)
	})
}

// withClient runs fn with a tunnel client on the configured device.
func (a *app) withClient(ctx context.Context, fn func(context.Context, *losp.Client) error) error {
	return a.withDisk(ctx, func(ctx context.Context, disk *msc.Disk) error {
		return fn(ctx, losp.New(disk, lospOptions(a.cfg)...))
	})
}

func diskSession(ctx context.Context, cfg *config.Config, dev *device, fn func(context.Context, *msc.Disk) error) error {
	eps := dev.Endpoints
	if e, ok := cfg.Device.Endpoints(); ok {
		eps = e
	}
	return msc.WithDisk(ctx, dev.Conn, eps, fn, mscOptions(cfg, dev.Interface)...)
}

func mscOptions(cfg *config.Config, iface uint8) []msc.Option {
	if cfg.Device.Interface != 0 {
		iface = cfg.Device.Interface
	}
	return []msc.Option{
		msc.WithCommandTimeout(cfg.BOT.CommandTimeout),
		msc.WithDataTimeout(cfg.BOT.DataTimeout),
		msc.WithInterface(iface),
		msc.WithLUN(cfg.Device.LUN),
	}
}

func lospOptions(cfg *config.Config) []losp.Option {
	return []losp.Option{
		losp.WithSectors(cfg.LOSP.CommandLBA, cfg.LOSP.AnswerLBA),
		losp.WithMaxAttempts(cfg.LOSP.MaxAttempts),
	}
}

func freqOptions(cfg *config.Config, sink func(string)) []freq.Option {
	return []freq.Option{
		freq.WithTargetAccuracy(cfg.Stats.TargetAccuracy),
		freq.WithInterval(cfg.Stats.Interval),
		freq.WithSink(sink),
	}
}

func monitorOptions(cfg *config.Config, polls int, sink func(string)) []monitor.Option {
	return []monitor.Option{
		monitor.WithRate(cfg.Monitor.Rate),
		monitor.WithMaxConsecutiveErrors(cfg.Monitor.MaxConsecutiveErrors),
		monitor.WithMaxPolls(polls),
		monitor.WithSink(sink),
	}
}

// printer returns a sink writing lines to the command output.
func printer(cmd *cobra.Command) func(string) {
	return func(line string) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}
