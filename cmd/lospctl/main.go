// Command lospctl talks to LOSP instruments that present themselves as USB
// mass storage disks.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(openHardware)
	err := a.command().ExecuteContext(ctx)
	a.stopProfiling()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
