package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhradec/go-julink"
	"github.com/mhradec/go-julink/fbuf"
	"github.com/mhradec/go-julink/internal/logging"
	"github.com/mhradec/go-julink/julia"
)

const basicHelp = `Basic help:
h - Print this help message.
q - Abort computation and exit the program.
g - Request firmware version from the connected worker.
a - Abort current computation.
c - Clear the frame buffer.
r - Reset chunk state; all chunks become pending again.
p - Compute locally on this machine using the current configuration.
i - Transmit current settings to the connected worker.
s - Start (or resume) the distributed computation.
e - Export the frame buffer to fractal.ppm.

Submenus:
b - Configure the communication baudrate.
d - Configure the chunk selection policy.
f - Move freely around the picture.
x - Move the constant.
`

const baudHelp = `Choose a baudrate:
1 - 110
2 - 9600
3 - 19200
4 - 115200 (default and reset state)
5 - 230400
n - view current baudrate
q - return to the basic menu
h - print this message
`

const drawingHelp = `Chunk selection policy:
s - Sequential: topmost, then leftmost pending chunk.
r - Random: any pending chunk.
q - return to the basic menu
`

const freeMoveHelp = `Free move:
q - return to the basic menu
r - restore default bounds
+ - zoom in
- - zoom out
w/a/s/d - move up/left/down/right
`

const constantMoveHelp = `Move constant:
q - return to the basic menu
r - restore default constant [-0.4, 0.6]
w/a/s/d - move up/left/down/right
`

const (
	zoomCoefficient = 0.8
	moveCoefficient = 0.2
	constantStep    = 0.001
)

type menu int

const (
	menuBasic menu = iota
	menuBaud
	menuDrawing
	menuFreeMove
	menuConstant
)

// ui owns the menu state machine and the local copies of the view it needs
// for move and zoom arithmetic. The host is told only the resulting state
// changes.
type ui struct {
	host   *julink.Host
	fb     *fbuf.Framebuffer
	logger *logging.Logger
	cancel context.CancelFunc

	menu     menu
	baud     int
	topLeft  complex128
	botRight complex128
	constant complex128

	defaultTopLeft  complex128
	defaultBotRight complex128
}

func (u *ui) handleKey(key byte) {
	switch u.menu {
	case menuBasic:
		u.basicKey(key)
	case menuBaud:
		u.baudKey(key)
	case menuDrawing:
		u.drawingKey(key)
	case menuFreeMove:
		u.freeMoveKey(key)
	case menuConstant:
		u.constantKey(key)
	}
}

func (u *ui) basicKey(key byte) {
	switch key {
	case 'h':
		fmt.Fprint(os.Stderr, basicHelp)
	case 'q':
		u.logger.Info("exit requested")
		u.cancel()
	case 'g':
		u.host.RequestVersion()
	case 'a':
		u.host.Abort()
	case 'c':
		u.fb.Clear()
		u.logger.Info("cleared frame buffer")
	case 'r':
		u.host.ResetChunks()
	case 'p':
		u.host.LocalCompute()
	case 'i':
		u.host.SendSettings()
	case 's':
		u.host.Start()
	case 'e':
		if err := u.fb.ExportPPM("fractal.ppm"); err != nil {
			u.logger.Error("ppm export failed", "error", err)
		} else {
			u.logger.Info("exported fractal.ppm")
		}
	case 'b':
		u.menu = menuBaud
		fmt.Fprint(os.Stderr, baudHelp)
	case 'd':
		u.menu = menuDrawing
		fmt.Fprint(os.Stderr, drawingHelp)
	case 'f':
		u.menu = menuFreeMove
		fmt.Fprint(os.Stderr, freeMoveHelp)
	case 'x':
		u.menu = menuConstant
		fmt.Fprint(os.Stderr, constantMoveHelp)
	default:
		u.logger.Warnf("command %q is not recognized, ignored", key)
	}
}

func (u *ui) baudKey(key byte) {
	rates := julink.AllowedBaudRates()
	switch key {
	case 'h':
		fmt.Fprint(os.Stderr, baudHelp)
	case 'n':
		u.logger.Infof("serial communication currently uses %d bps", u.baud)
	case '1', '2', '3', '4', '5':
		rate := rates[key-'1']
		u.host.SetBaud(rate)
		u.baud = rate
		u.menu = menuBasic
	case 'q':
		u.menu = menuBasic
		u.logger.Info("returning to basic menu")
	default:
		u.logger.Warn("not a valid option")
	}
}

func (u *ui) drawingKey(key byte) {
	switch key {
	case 's':
		u.host.SetPolicy(julink.PolicySequential)
		u.logger.Info("selected sequential policy")
	case 'r':
		u.host.SetPolicy(julink.PolicyRandom)
		u.logger.Info("selected random policy")
	case 'q':
		u.menu = menuBasic
		u.logger.Info("returning to basic menu")
	default:
		u.logger.Warn("not a valid option")
	}
}

func (u *ui) pushBounds() {
	u.host.SetBounds(u.topLeft, u.botRight)
	center := (u.topLeft + u.botRight) / 2
	visible := u.botRight - u.topLeft
	u.logger.Infof("centered on [%.4f, %.4f], visible rectangle [%.4f, %.4f]",
		real(center), imag(center), abs(real(visible)), abs(imag(visible)))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (u *ui) freeMoveKey(key byte) {
	switch key {
	case 'r':
		u.topLeft, u.botRight = u.defaultTopLeft, u.defaultBotRight
		u.pushBounds()
	case 'q':
		u.menu = menuBasic
		u.logger.Info("returning to basic menu")
	case '+', '-':
		scalar := zoomCoefficient
		if key == '-' {
			scalar = 1 / zoomCoefficient
		}
		center := (u.topLeft + u.botRight) / 2
		u.topLeft = center + (u.topLeft-center)*complex(scalar, 0)
		u.botRight = center + (u.botRight-center)*complex(scalar, 0)
		u.pushBounds()
	case 'w', 'a', 's', 'd':
		visible := u.botRight - u.topLeft
		dx := complex(abs(real(visible))*moveCoefficient, 0)
		dy := complex(0, abs(imag(visible))*moveCoefficient)
		var displacement complex128
		switch key {
		case 'w':
			displacement = dy
		case 's':
			displacement = -dy
		case 'a':
			displacement = -dx
		case 'd':
			displacement = dx
		}
		u.topLeft += displacement
		u.botRight += displacement
		u.pushBounds()
	default:
		u.logger.Warn("not a valid option")
	}
}

func (u *ui) constantKey(key byte) {
	switch key {
	case 'r':
		u.constant = complex(-0.4, 0.6)
		u.host.SetConstant(u.constant)
	case 'q':
		u.menu = menuBasic
		u.logger.Info("returning to basic menu")
		return
	case 'w', 'a', 's', 'd':
		var displacement complex128
		switch key {
		case 'w':
			displacement = complex(0, constantStep)
		case 's':
			displacement = complex(0, -constantStep)
		case 'a':
			displacement = complex(-constantStep, 0)
		case 'd':
			displacement = complex(constantStep, 0)
		}
		u.constant += displacement
		u.host.SetConstant(u.constant)
	default:
		u.logger.Warn("not a valid option")
		return
	}
	u.logger.Infof("constant is now [%.4f, %.4f]", real(u.constant), imag(u.constant))
}

func run() int {
	var (
		configPath = flag.String("config", "", "Path to a YAML configuration file")
		verbose    = flag.Bool("v", false, "Verbose output")
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

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("cannot load configuration", "error", err)
		return 1
	}

	fb, err := fbuf.New(cfg.Image.Width, cfg.Image.Height, cfg.Chunks.Cols, cfg.Chunks.Rows, uint8(cfg.Iterations))
	if err != nil {
		logger.Error("cannot create frame buffer", "error", err)
		return 1
	}

	params, err := cfg.hostParams(fb)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}
	params.DevicePath = devicePath
	params.Kernel = julia.Kernel{}
	// No window is attached here; a presenter would hook in through
	// params.Redraw and read fb.Snapshot() at the display cadence.

	host, err := julink.NewHost(params, &julink.Options{Logger: logger})
	if err != nil {
		logger.Error("cannot open host", "error", err)
		return 1
	}

	term, err := makeRaw()
	if err != nil {
		logger.Error("cannot switch terminal to raw mode", "error", err)
		return 1
	}
	defer term.Restore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	u := &ui{
		host:            host,
		fb:              fb,
		logger:          logger,
		cancel:          cancel,
		baud:            cfg.Baud,
		topLeft:         params.TopLeft,
		botRight:        params.BotRight,
		constant:        params.Constant,
		defaultTopLeft:  params.TopLeft,
		defaultBotRight: params.BotRight,
	}

	// Keystroke poller: raw-mode reads time out after 100 ms so the
	// goroutine notices cancellation.
	go func() {
		for ctx.Err() == nil {
			key, ok := term.ReadKey()
			if !ok {
				continue
			}
			u.handleKey(key)
		}
	}()

	logger.Info("startup successful", "device", devicePath, "baud", cfg.Baud)
	fmt.Fprint(os.Stderr, basicHelp)

	start := time.Now()
	err = host.Run(ctx)
	logger.Info("session finished", "uptime", time.Since(start).Round(time.Second))

	if err != nil {
		logger.Error("host stopped", "error", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
