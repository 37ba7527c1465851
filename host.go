// Package julink provides the main API for the distributed Julia-set
// computation link: a host dispatching chunk work to a serial-attached
// worker and the worker-side state machine computing it.
package julink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhradec/go-julink/internal/constants"
	"github.com/mhradec/go-julink/internal/dispatch"
	"github.com/mhradec/go-julink/internal/heartbeat"
	"github.com/mhradec/go-julink/internal/link"
	"github.com/mhradec/go-julink/internal/logging"
	"github.com/mhradec/go-julink/internal/proto"
	"github.com/mhradec/go-julink/internal/queue"
)

// Link is the byte-duplex transport contract. OpenSerial-backed links talk
// to real hardware; PipeLink connects two sides in memory.
type Link = link.Link

// OpenSerial opens and configures a serial device as a Link (8N1, raw).
func OpenSerial(path string, baud int) (Link, error) {
	return link.OpenSerial(path, baud)
}

// SelectionPolicy chooses which unfinished chunk is dispatched next.
type SelectionPolicy = dispatch.Policy

const (
	PolicySequential = dispatch.PolicySequential
	PolicyRandom     = dispatch.PolicyRandom
)

// HostParams configures a Host.
type HostParams struct {
	// DevicePath is the serial device to open; ignored when Link is set.
	DevicePath string
	Baud       int

	// Link overrides DevicePath with an already-open transport.
	Link Link

	// Raster geometry and chunk grid.
	Width, Height int
	Cols, Rows    int

	// View of the complex plane and computation parameters.
	TopLeft, BotRight complex128
	Constant          complex128
	Iterations        uint8

	Policy SelectionPolicy

	// Strict drops frames with bad checksums instead of delivering them.
	Strict bool

	// Kernel is used for local (host-side) computation only.
	Kernel Kernel

	Framebuffer Framebuffer

	// Redraw, when set, is invoked from the display goroutine at a fixed
	// cadence with a consistent view of the framebuffer already in place.
	Redraw func()
}

// DefaultHostParams returns parameters matching the classic rendering.
func DefaultHostParams(fb Framebuffer) HostParams {
	return HostParams{
		Baud:        constants.DefaultBaudRate,
		Width:       constants.DefaultImageWidth,
		Height:      constants.DefaultImageHeight,
		Cols:        constants.DefaultChunkCols,
		Rows:        constants.DefaultChunkRows,
		TopLeft:     complex(constants.DefaultTopLeftRe, constants.DefaultTopLeftIm),
		BotRight:    complex(constants.DefaultBotRightRe, constants.DefaultBotRightIm),
		Constant:    complex(constants.DefaultConstantRe, constants.DefaultConstantIm),
		Iterations:  constants.DefaultIterations,
		Policy:      PolicySequential,
		Framebuffer: fb,
	}
}

// Options contains additional options shared by Host and Worker creation.
type Options struct {
	// Logger for diagnostics (if nil, the package default logger is used)
	Logger Logger

	// Observer for metrics collection (if nil, records to built-in Metrics)
	Observer Observer
}

// Host owns the serial link, the decoded-message queue and the dispatcher,
// and runs the three cooperating activities: the reader goroutine, the main
// loop and the display goroutine.
type Host struct {
	link     Link
	ownsLink bool

	disp     *dispatch.Dispatcher
	queue    *queue.Ring[proto.Message]
	hb       *heartbeat.Supervisor
	reader   proto.FrameReader
	redraw   func()
	kernel   Kernel
	logger   Logger
	observer Observer
	metrics  *Metrics

	// commands carries UI-produced work into the main loop, which is the
	// only goroutine allowed to touch the dispatcher.
	commands chan func(*dispatch.Dispatcher) error

	quit    atomic.Bool
	readErr atomic.Pointer[error]
	wg      sync.WaitGroup
}

// NewHost builds a host over the configured transport. The returned host is
// inert until Run is called.
func NewHost(params HostParams, options *Options) (*Host, error) {
	if options == nil {
		options = &Options{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	observer := options.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	if params.Framebuffer == nil {
		return nil, NewError("NEW_HOST", ErrCodeBadGeometry, "framebuffer collaborator is required")
	}

	l := params.Link
	ownsLink := false
	if l == nil {
		if params.DevicePath == "" {
			return nil, NewError("NEW_HOST", ErrCodeIOError, "no serial device path and no link given")
		}
		sl, err := link.OpenSerial(params.DevicePath, params.Baud)
		if err != nil {
			return nil, WrapError("OPEN_SERIAL", err)
		}
		l = sl
		ownsLink = true
	}

	chunks, err := dispatch.NewChunkMap(dispatch.Geometry{
		Width: params.Width, Height: params.Height,
		Cols: params.Cols, Rows: params.Rows,
		TopLeft: params.TopLeft, BotRight: params.BotRight,
		Constant:   params.Constant,
		Iterations: params.Iterations,
	})
	if err != nil {
		if ownsLink {
			l.Close()
		}
		return nil, NewError("NEW_HOST", ErrCodeBadGeometry, err.Error())
	}
	chunks.SetPolicy(params.Policy)

	h := &Host{
		link:     l,
		ownsLink: ownsLink,
		disp:     dispatch.New(chunks, l, params.Framebuffer, logger, observer),
		queue:    queue.NewRing[proto.Message](constants.DefaultQueueDepth),
		hb:       heartbeat.New(time.Now()),
		redraw:   params.Redraw,
		kernel:   params.Kernel,
		logger:   logger,
		observer: observer,
		metrics:  metrics,
		commands: make(chan func(*dispatch.Dispatcher) error, 16),
	}
	h.reader.Strict = params.Strict
	h.reader.Logger = logger
	h.reader.Observer = observer
	return h, nil
}

// Metrics returns the built-in counters (only populated when no custom
// Observer was supplied).
func (h *Host) Metrics() *Metrics { return h.metrics }

// readLoop is the producer: it decodes framed bytes off the link into the
// bounded queue until quit.
func (h *Host) readLoop() {
	defer h.wg.Done()
	for !h.quit.Load() {
		b, ok, err := h.link.ReadByte()
		if err != nil {
			if !h.quit.Load() {
				h.readErr.Store(&err)
				h.logger.Errorf("serial read failed: %v", err)
			}
			return
		}
		if !ok {
			continue
		}
		msg, complete := h.reader.Feed(b)
		if !complete {
			continue
		}
		if size, err := proto.Size(msg.Type); err == nil {
			h.observer.ObserveReceived(byte(msg.Type), size)
		}
		h.hb.Touch(time.Now())
		if err := h.queue.Push(msg); err != nil {
			h.observer.ObserveQueueDrop()
			h.logger.Warnf("message queue full, dropping %s", msg.Type)
		}
	}
}

// displayLoop calls the presentation callback at a fixed cadence.
func (h *Host) displayLoop(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(constants.RedrawInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.quit.Load() {
				return
			}
			h.redraw()
		}
	}
}

// Run drives the host until the context is cancelled or the link dies.
// Cancellation sends RESET to the worker and returns nil; a dead link
// returns an ErrCodeLinkDead error.
func (h *Host) Run(ctx context.Context) error {
	h.wg.Add(1)
	go h.readLoop()
	if h.redraw != nil {
		h.wg.Add(1)
		go h.displayLoop(ctx)
	}
	defer func() {
		h.quit.Store(true)
		if h.ownsLink {
			h.link.Close()
		}
		h.wg.Wait()
		h.metrics.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := h.disp.SendReset(); err != nil {
				h.logger.Warnf("reset on shutdown failed: %v", err)
			}
			if h.queue.Len() > 0 {
				h.logger.Warnf("exiting with %d unparsed messages", h.queue.Len())
			}
			return nil
		case cmd := <-h.commands:
			if err := cmd(h.disp); err != nil {
				h.logger.Warnf("command rejected: %v", err)
			}
			continue
		default:
		}

		if p := h.readErr.Load(); p != nil {
			return WrapError("READ", *p)
		}

		if msg, err := h.queue.PopWait(20 * time.Millisecond); err == nil {
			if err := h.disp.HandleMessage(msg); err != nil {
				return WrapError("DISPATCH", err)
			}
		}

		switch h.hb.Check(time.Now()) {
		case heartbeat.ActionProbe:
			if err := h.disp.SendProbe(); err != nil {
				return WrapError("PROBE", err)
			}
		case heartbeat.ActionDead:
			h.observer.ObserveLinkDead()
			return NewError("HEARTBEAT", ErrCodeLinkDead,
				fmt.Sprintf("no message from worker for %v", h.hb.Silence(time.Now())))
		}
	}
}

// post hands a command to the main loop.
func (h *Host) post(cmd func(*dispatch.Dispatcher) error) {
	h.commands <- cmd
}

// Start begins or resumes the distributed computation.
func (h *Host) Start() {
	h.post(func(d *dispatch.Dispatcher) error { return d.Start() })
}

// Abort cancels the in-flight chunk.
func (h *Host) Abort() {
	h.post(func(d *dispatch.Dispatcher) error { return d.Abort() })
}

// ResetChunks clears the completion bitmap.
func (h *Host) ResetChunks() {
	h.post(func(d *dispatch.Dispatcher) error { return d.ResetChunks() })
}

// SendSettings transmits the computation parameters to the worker.
func (h *Host) SendSettings() {
	h.post(func(d *dispatch.Dispatcher) error { return d.SendSettings() })
}

// RequestVersion asks the worker for its firmware version.
func (h *Host) RequestVersion() {
	h.post(func(d *dispatch.Dispatcher) error { return d.RequestVersion() })
}

// SetBaud renegotiates the line rate with the worker.
func (h *Host) SetBaud(rate int) {
	h.post(func(d *dispatch.Dispatcher) error { return d.SetBaud(rate) })
}

// SetPolicy switches the chunk selection policy.
func (h *Host) SetPolicy(p SelectionPolicy) {
	h.post(func(d *dispatch.Dispatcher) error {
		d.Chunks().SetPolicy(p)
		return nil
	})
}

// SetBounds moves the visible section of the plane; completion resets.
func (h *Host) SetBounds(topLeft, botRight complex128) {
	h.post(func(d *dispatch.Dispatcher) error {
		if d.State() != dispatch.StateIdle {
			return NewStateError("SET_BOUNDS", d.State().String())
		}
		return d.Chunks().SetBounds(topLeft, botRight)
	})
}

// SetConstant moves the Julia constant; completion resets.
func (h *Host) SetConstant(c complex128) {
	h.post(func(d *dispatch.Dispatcher) error {
		if d.State() != dispatch.StateIdle {
			return NewStateError("SET_CONSTANT", d.State().String())
		}
		d.Chunks().SetConstant(c)
		return nil
	})
}

// LocalCompute renders all unfinished chunks on the host CPU using the
// configured kernel.
func (h *Host) LocalCompute() {
	h.post(func(d *dispatch.Dispatcher) error {
		if h.kernel == nil {
			return NewError("LOCAL_COMPUTE", ErrCodeIllegalState, "no kernel configured")
		}
		return d.LocalCompute(h.kernel)
	})
}
