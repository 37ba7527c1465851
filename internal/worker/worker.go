// Package worker implements the device-side state machine: it executes one
// chunk at a time, streaming per-pixel results back to the host.
//
// The layout mirrors the firmware it stands in for: a pump goroutine plays
// the serial RX interrupt and only moves bytes into a ring; the main loop
// reassembles frames, reacts to commands and produces one pixel per step.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mhradec/go-julink/internal/constants"
	"github.com/mhradec/go-julink/internal/heartbeat"
	"github.com/mhradec/go-julink/internal/interfaces"
	"github.com/mhradec/go-julink/internal/link"
	"github.com/mhradec/go-julink/internal/proto"
	"github.com/mhradec/go-julink/internal/queue"
)

// State enumerates the worker FSM.
type State int

const (
	StateIdle State = iota
	StateComputing
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	case StateFinished:
		return "finished"
	}
	return "invalid"
}

// Worker reacts to host commands and computes chunks through the kernel.
// All state except the button flag is owned by the goroutine calling Step.
type Worker struct {
	link   link.Link
	kernel interfaces.Kernel

	rx     *queue.Ring[byte]
	frames proto.FrameReader
	hb     *heartbeat.Supervisor

	state    State
	settings proto.SetCompute
	chunk    proto.Compute
	row, col int

	// button is the abort-button flag; set from any goroutine (the ISR
	// analog), consumed by Step.
	button atomic.Bool

	version proto.Version
	startup string

	logger   interfaces.Logger
	observer interfaces.Observer

	sleep func(time.Duration)
}

// New creates a worker over the given link and kernel.
func New(l link.Link, kernel interfaces.Kernel, logger interfaces.Logger, observer interfaces.Observer) *Worker {
	w := &Worker{
		link:   l,
		kernel: kernel,
		rx:     queue.NewRing[byte](constants.WorkerRingBytes),
		hb:     heartbeat.New(time.Now()),
		state:  StateIdle,
		version: proto.Version{
			Major: constants.VersionMajor,
			Minor: constants.VersionMinor,
			Patch: constants.VersionPatch,
		},
		startup:  constants.StartupText,
		logger:   logger,
		observer: observer,
		sleep:    time.Sleep,
	}
	w.frames.Logger = logger
	w.frames.Observer = observer
	return w
}

// State returns the current FSM state.
func (w *Worker) State() State { return w.state }

// Settings returns the installed computation parameters.
func (w *Worker) Settings() proto.SetCompute { return w.settings }

// PressButton records a physical abort request. Safe from any goroutine.
func (w *Worker) PressButton() { w.button.Store(true) }

func (w *Worker) send(msg proto.Message) error {
	proto.Finalize(&msg)
	frame, err := proto.Encode(&msg)
	if err != nil {
		return err
	}
	if err := w.link.WriteAll(frame); err != nil {
		return err
	}
	if w.observer != nil {
		w.observer.ObserveSent(byte(msg.Type), len(frame))
	}
	return nil
}

// Boot announces the worker on the link and resets the FSM.
func (w *Worker) Boot() error {
	w.state = StateIdle
	w.hb.Touch(time.Now())
	return w.send(proto.Message{Type: proto.TypeStartup, Startup: proto.NewStartup(w.startup)})
}

// feed moves raw bytes into the RX ring, dropping on overflow the way a
// full hardware buffer would.
func (w *Worker) feed(bytes []byte) {
	for _, b := range bytes {
		if err := w.rx.Push(b); err != nil {
			if w.observer != nil {
				w.observer.ObserveQueueDrop()
			}
			w.logger.Warnf("rx ring full, dropping byte")
		}
	}
}

// pumpLoop is the RX interrupt analog: it blocks on the link and only moves
// bytes, never touching the FSM.
func (w *Worker) pumpLoop(ctx context.Context) {
	for ctx.Err() == nil {
		b, ok, err := w.link.ReadByte()
		if err != nil {
			w.logger.Errorf("serial read failed: %v", err)
			return
		}
		if ok {
			w.feed([]byte{b})
		}
	}
}

// Step runs one iteration of the main loop at the given instant: drain
// queued bytes, react to any complete frames, supervise the link and
// advance the computation by one pixel. Reports whether any work was done.
func (w *Worker) Step(now time.Time) bool {
	worked := false

	if w.button.CompareAndSwap(true, false) {
		w.logger.Printf("abort button pressed")
		w.send(proto.Message{Type: proto.TypeAbort})
		w.state = StateIdle
		worked = true
	}

	for {
		b, err := w.rx.Pop()
		if err != nil {
			break
		}
		worked = true
		msg, ok := w.frames.Feed(b)
		if !ok {
			continue
		}
		if w.observer != nil {
			size, _ := proto.Size(msg.Type)
			w.observer.ObserveReceived(byte(msg.Type), size)
		}
		w.hb.Touch(now)
		w.handle(msg)
	}

	switch w.hb.Check(now) {
	case heartbeat.ActionProbe:
		if w.observer != nil {
			w.observer.ObserveProbe()
		}
		w.send(proto.Message{Type: proto.TypeConnTest})
		worked = true
	case heartbeat.ActionDead:
		if w.observer != nil {
			w.observer.ObserveLinkDead()
		}
		w.logger.Warnf("link silent for %v, resetting baud to %d",
			w.hb.Silence(now), constants.DefaultBaudRate)
		if err := w.link.SetBaud(constants.DefaultBaudRate); err != nil {
			w.logger.Errorf("baud reset failed: %v", err)
		}
		worked = true
	}

	switch w.state {
	case StateComputing:
		w.computePixel()
		worked = true
	case StateFinished:
		w.send(proto.Message{Type: proto.TypeDone})
		w.state = StateIdle
		worked = true
	}

	return worked
}

func (w *Worker) handle(msg proto.Message) {
	switch msg.Type {
	case proto.TypeGetVersion:
		w.send(proto.Message{Type: proto.TypeVersion, Version: w.version})

	case proto.TypeSetCompute:
		// Installed whole; never partially valid.
		w.settings = msg.SetCompute
		w.send(proto.Message{Type: proto.TypeOK})

	case proto.TypeCompute:
		if w.state != StateIdle {
			w.logger.Warnf("COMPUTE while %s refused", w.state)
			w.send(proto.Message{Type: proto.TypeError})
			return
		}
		w.chunk = msg.Compute
		w.row, w.col = 0, 0
		w.state = StateComputing
		w.send(proto.Message{Type: proto.TypeOK})

	case proto.TypeAbort:
		w.send(proto.Message{Type: proto.TypeOK})
		w.state = StateIdle
		w.send(proto.Message{Type: proto.TypeAbort})

	case proto.TypeComm:
		w.switchBaud(int(msg.Comm.Baudrate))

	case proto.TypeConnTest:
		w.send(proto.Message{Type: proto.TypeConnOK})

	case proto.TypeConnOK:
		// Silence refresh happened on receipt; nothing else to do.

	case proto.TypeReset:
		w.logger.Printf("reset requested by host")
		w.state = StateIdle
		w.settings = proto.SetCompute{}
		if err := w.link.SetBaud(constants.DefaultBaudRate); err != nil {
			w.logger.Errorf("baud reset failed: %v", err)
		}
		w.send(proto.Message{Type: proto.TypeStartup, Startup: proto.NewStartup(w.startup)})

	default:
		w.logger.Warnf("unexpected %s message from host", msg.Type)
	}
}

// switchBaud drains the reply path, reconfigures the UART and acknowledges
// at the new rate. The symmetric settles keep both line states apart.
func (w *Worker) switchBaud(rate int) {
	w.sleep(constants.WorkerBaudSettle)
	if err := w.link.SetBaud(rate); err != nil {
		w.logger.Errorf("baud switch to %d failed: %v", rate, err)
		w.send(proto.Message{Type: proto.TypeError})
		return
	}
	w.sleep(constants.WorkerBaudSettle)
	w.send(proto.Message{Type: proto.TypeOK})
}

// computePixel produces one COMPUTE_DATA and advances the row-major cursor.
func (w *Worker) computePixel() {
	point := complex(
		float64(w.chunk.Re)+float64(w.col)*float64(w.settings.DRe),
		float64(w.chunk.Im)-float64(w.row)*float64(w.settings.DIm),
	)
	c := complex(float64(w.settings.CRe), float64(w.settings.CIm))
	iter := w.kernel.Iterations(point, c, w.settings.N)

	w.send(proto.Message{
		Type: proto.TypeComputeData,
		ComputeData: proto.ComputeData{
			CID:  w.chunk.CID,
			IRe:  uint8(w.col),
			IIm:  uint8(w.row),
			Iter: iter,
		},
	})

	w.col++
	if w.col == int(w.chunk.NRe) {
		w.col = 0
		w.row++
		if w.row == int(w.chunk.NIm) {
			w.row = 0
			w.state = StateFinished
		}
	}
}

// Run boots the worker and drives it until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Boot(); err != nil {
		return err
	}
	go w.pumpLoop(ctx)

	for ctx.Err() == nil {
		if !w.Step(time.Now()) {
			w.sleep(time.Millisecond)
		}
	}
	return ctx.Err()
}
