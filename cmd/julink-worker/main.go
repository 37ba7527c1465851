// Command julink-worker is a software rendition of the compute firmware: it
// speaks the chunk protocol over a serial device (or a pty created with
// socat) exactly like the microcontroller would, computing Julia-set
// convergence for whatever the host asks.
//
// SIGUSR1 plays the role of the physical abort button.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mhradec/go-julink"
	"github.com/mhradec/go-julink/internal/logging"
	"github.com/mhradec/go-julink/julia"
)

func run() int {
	var (
		baud    = flag.Int("baud", julink.DefaultBaudRate, "Initial line rate")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <serial-device>\n", os.Args[0])
		return 2
	}
	devicePath := flag.Arg(0)

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	worker, err := julink.NewWorker(julink.WorkerParams{
		DevicePath: devicePath,
		Baud:       *baud,
		Kernel:     julia.Kernel{},
	}, &julink.Options{Logger: logger})
	if err != nil {
		logger.Error("cannot open worker", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// SIGUSR1 stands in for the abort button on real hardware.
	buttonCh := make(chan os.Signal, 1)
	signal.Notify(buttonCh, syscall.SIGUSR1)
	go func() {
		for range buttonCh {
			logger.Info("abort button pressed")
			worker.PressButton()
		}
	}()

	logger.Info("worker ready", "device", devicePath, "baud", *baud)
	logger.Info("send SIGUSR1 to simulate the abort button", "pid", os.Getpid())

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped", "error", err)
		return 1
	}

	snap := worker.Metrics().Snapshot()
	logger.Info("worker exiting",
		"messages_sent", snap.MessagesSent,
		"messages_received", snap.MessagesReceived)
	return 0
}

func main() {
	os.Exit(run())
}
