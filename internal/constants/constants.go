package constants

import "time"

// Default configuration constants
const (
	// DefaultBaudRate is the serial speed both sides boot with and the rate
	// the worker falls back to when the link is declared dead.
	DefaultBaudRate = 115200

	// DefaultQueueDepth is the capacity of the host's decoded-message queue.
	DefaultQueueDepth = 64

	// WorkerRingBytes is the raw RX ring capacity on the worker side.
	WorkerRingBytes = 256

	// DefaultImageWidth and DefaultImageHeight are the raster dimensions
	// used when no configuration is supplied.
	DefaultImageWidth  = 420
	DefaultImageHeight = 280

	// DefaultChunkCols and DefaultChunkRows divide the raster into the
	// chunk grid used as the unit of protocol work.
	DefaultChunkCols = 10
	DefaultChunkRows = 10

	// DefaultIterations is the per-pixel iteration cap.
	DefaultIterations = 40
)

// Default view of the complex plane and the Julia constant.
const (
	DefaultTopLeftRe  = -1.6
	DefaultTopLeftIm  = 1.1
	DefaultBotRightRe = 1.6
	DefaultBotRightIm = -1.1

	DefaultConstantRe = -0.4
	DefaultConstantIm = 0.6
)

// Timing constants for link supervision and baud renegotiation.
//
// The COMM exchange has a strict ordering requirement: the side that switches
// its UART first stops understanding the other until both have settled. The
// worker drains its transmit path, switches, then replies OK at the new rate;
// the host reconfigures after its own settle and must be listening at the new
// rate before the reply lands.
const (
	// SilenceWarn is how long the link may be quiet before probes start.
	SilenceWarn = 5 * time.Second

	// SilenceDead is how long the link may be quiet before it is declared
	// dead. The host exits; the worker resets its baud and keeps waiting.
	SilenceDead = 8 * time.Second

	// ProbeInterval limits CONN_TEST probes to one per second.
	ProbeInterval = time.Second

	// HostBaudSettle is the host-side pause between sending COMM and
	// reconfiguring its own end of the link.
	HostBaudSettle = 20 * time.Millisecond

	// WorkerBaudSettle is the worker-side pause on each side of its UART
	// reconfiguration.
	WorkerBaudSettle = 50 * time.Millisecond

	// ReadPollTimeout bounds a single blocking read on the serial port so
	// the reader loop can observe shutdown.
	ReadPollTimeout = 100 * time.Millisecond

	// RedrawInterval is the display goroutine cadence (~100 Hz).
	RedrawInterval = 10 * time.Millisecond
)

// AllowedBaudRates is the COMM allow-list. Values outside it are rejected
// before anything reaches the wire.
var AllowedBaudRates = []int{110, 9600, 19200, 115200, 230400}

// BaudAllowed reports whether rate is on the COMM allow-list.
func BaudAllowed(rate int) bool {
	for _, r := range AllowedBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// Worker identity.
const (
	// StartupText is the worker's boot announcement, exactly StartupLen
	// bytes of ASCII with no terminator.
	StartupText = "go-julink.1"

	VersionMajor = 4
	VersionMinor = 2
	VersionPatch = 0
)
