package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ardnew/lospdisk/pkg"
	"github.com/ardnew/lospdisk/pkg/config"
	"github.com/ardnew/lospdisk/pkg/prof"
)

// version is set at link time.
var version = "dev"

// app holds the state shared by every subcommand of one invocation.
type app struct {
	open opener
	cfg  *config.Config

	configPath string
	logLevel   string
	logFormat  string
	devicePath string
	vendorID   uint16
	productID  uint16
	cpuProfile string
	memProfile string

	stopCPU func() error
}

func newApp(open opener) *app {
	return &app{open: open, cfg: config.Default()}
}

// command builds the command tree.
func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:          "lospctl",
		Short:        "Control LOSP instruments over USB mass storage",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text, json or auto")
	pf.StringVar(&a.devicePath, "device", "", "usbfs node, e.g. /dev/bus/usb/001/004")
	pf.Uint16Var(&a.vendorID, "vid", 0, "USB vendor ID")
	pf.Uint16Var(&a.productID, "pid", 0, "USB product ID")
	pf.StringVar(&a.cpuProfile, "cpuprofile", "", "write a CPU profile to this file")
	pf.StringVar(&a.memProfile, "memprofile", "", "write a heap profile to this file on exit")

	wrapPreRun(root, a.setup)

	root.AddCommand(
		a.versionCommand(),
		a.listCommand(),
		a.inquiryCommand(),
		a.capacityCommand(),
		a.readCommand(),
		a.writeCommand(),
		a.infoCommand(),
		a.dataCommand(),
		a.measureCommand(),
		a.simulateCommand(),
	)
	return root
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s version %s\n", cmd.Root().Name(), version)
		},
	}
}

type preRunEFunc func(cmd *cobra.Command, args []string) error

// wrapPreRun installs f ahead of any persistent pre-run root already has.
func wrapPreRun(root *cobra.Command, f preRunEFunc) {
	preRun, preRunE := root.PersistentPreRun, root.PersistentPreRunE
	root.PersistentPreRun, root.PersistentPreRunE = nil, nil

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := f(cmd, args); err != nil {
			return err
		}
		if preRun != nil {
			preRun(cmd, args)
		} else if preRunE != nil {
			return preRunE(cmd, args)
		}
		return nil
	}
}

// setup loads the configuration, applies flag overrides and starts logging
// and profiling.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		a.cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		a.cfg.Log.Format = a.logFormat
	}
	if flags.Changed("device") {
		a.cfg.Device.Path = a.devicePath
	}
	if flags.Changed("vid") {
		a.cfg.Device.VendorID = a.vendorID
	}
	if flags.Changed("pid") {
		a.cfg.Device.ProductID = a.productID
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if err := a.startLogging(cmd.ErrOrStderr()); err != nil {
		return err
	}
	if a.cpuProfile != "" {
		stop, err := prof.StartCPU(a.cpuProfile)
		if err != nil {
			return err
		}
		a.stopCPU = stop
	}
	pkg.LogDebug(pkg.ComponentCLI, "started",
		"command", cmd.CommandPath(),
		"config", a.configPath,
		"level", a.cfg.Log.Level)
	return nil
}

func (a *app) startLogging(w io.Writer) error {
	level, err := pkg.ParseLogLevel(a.cfg.Log.Level)
	if err != nil {
		return err
	}
	format, err := logFormat(a.cfg.Log.Format, w)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)
	pkg.SetLogOutput(w, format)
	return nil
}

// logFormat resolves "auto" to text on a terminal and JSON otherwise.
func logFormat(name string, w io.Writer) (pkg.LogFormat, error) {
	if name != "auto" {
		return pkg.ParseLogFormat(name)
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return pkg.LogFormatText, nil
	}
	return pkg.LogFormatJSON, nil
}

// stopProfiling ends the CPU profile and writes the heap profile, if either
// was requested.
func (a *app) stopProfiling() {
	if a.stopCPU != nil {
		if err := a.stopCPU(); err != nil {
			pkg.LogError(pkg.ComponentCLI, "cpu profile", "error", err)
		}
		a.stopCPU = nil
	}
	if a.memProfile != "" {
		if err := prof.Write(prof.ProfileHeap, a.memProfile); err != nil {
			pkg.LogError(pkg.ComponentCLI, "heap profile", "error", err)
		}
	}
}

func usageError(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, pkg.ErrInvalidParameter)...)
}
