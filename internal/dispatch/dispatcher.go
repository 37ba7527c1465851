// Package dispatch implements the host-side coordinator of the compute
// protocol: it selects chunks, issues commands and advances the
// Idle/Starting/Computing/Aborting state machine on worker replies.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/mhradec/go-julink/internal/constants"
	"github.com/mhradec/go-julink/internal/interfaces"
	"github.com/mhradec/go-julink/internal/link"
	"github.com/mhradec/go-julink/internal/proto"
)

// State enumerates the dispatcher FSM.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateComputing
	StateAborting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateComputing:
		return "computing"
	case StateAborting:
		return "aborting"
	}
	return "invalid"
}

// ErrIllegalState is returned when a command is not valid in the current
// dispatcher state. The state is left untouched.
var ErrIllegalState = errors.New("dispatch: command not valid in this state")

// ErrInvalidBaud is returned for rates outside the COMM allow-list.
var ErrInvalidBaud = errors.New("dispatch: baud rate not on the allow-list")

// Dispatcher owns the chunk map and drives the worker over the link. All
// methods must be called from one goroutine (the main loop); incoming
// messages reach it through HandleMessage in the same loop.
type Dispatcher struct {
	state  State
	chunks *ChunkMap
	link   link.Link
	fb     interfaces.Framebuffer

	baud int

	logger   interfaces.Logger
	observer interfaces.Observer

	// sleep is swapped out by tests to avoid real settling delays.
	sleep func(time.Duration)
}

// New creates a dispatcher in Idle over the given link.
func New(chunks *ChunkMap, l link.Link, fb interfaces.Framebuffer, logger interfaces.Logger, observer interfaces.Observer) *Dispatcher {
	return &Dispatcher{
		state:    StateIdle,
		chunks:   chunks,
		link:     l,
		fb:       fb,
		baud:     constants.DefaultBaudRate,
		logger:   logger,
		observer: observer,
		sleep:    time.Sleep,
	}
}

// State returns the current FSM state.
func (d *Dispatcher) State() State { return d.state }

// Chunks exposes the chunk map for UI-driven geometry changes; callers must
// respect the Idle-only rule for mutations.
func (d *Dispatcher) Chunks() *ChunkMap { return d.chunks }

// Baud reports the currently negotiated rate.
func (d *Dispatcher) Baud() int { return d.baud }

// Finished reports whether all chunks are done.
func (d *Dispatcher) Finished() bool { return d.chunks.Finished() }

func (d *Dispatcher) send(msg proto.Message) error {
	proto.Finalize(&msg)
	frame, err := proto.Encode(&msg)
	if err != nil {
		return err
	}
	if err := d.link.WriteAll(frame); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	if d.observer != nil {
		d.observer.ObserveSent(byte(msg.Type), len(frame))
	}
	return nil
}

// Start begins (or resumes) the distributed computation: installs the
// current settings on the worker and dispatches the first chunk. A no-op
// when everything is already finished.
func (d *Dispatcher) Start() error {
	if d.state != StateIdle {
		return fmt.Errorf("%w: start while %s", ErrIllegalState, d.state)
	}
	if d.chunks.Finished() {
		d.logger.Printf("nothing to do, all chunks finished; reset chunks first")
		return nil
	}
	if err := d.send(proto.Message{Type: proto.TypeSetCompute, SetCompute: d.chunks.Settings()}); err != nil {
		return err
	}
	if err := d.sendNextChunk(); err != nil {
		return err
	}
	d.state = StateStarting
	return nil
}

func (d *Dispatcher) sendNextChunk() error {
	c, ok := d.chunks.NextChunk()
	if !ok {
		return fmt.Errorf("no unfinished chunk to dispatch")
	}
	return d.send(proto.Message{Type: proto.TypeCompute, Compute: c})
}

// Abort cancels the in-flight chunk on the worker.
func (d *Dispatcher) Abort() error {
	if d.state != StateStarting && d.state != StateComputing {
		return fmt.Errorf("%w: abort while %s", ErrIllegalState, d.state)
	}
	if err := d.send(proto.Message{Type: proto.TypeAbort}); err != nil {
		return err
	}
	d.state = StateAborting
	return nil
}

// ResetChunks clears the completion bitmap. Idle only.
func (d *Dispatcher) ResetChunks() error {
	if d.state != StateIdle {
		return fmt.Errorf("%w: reset chunks while %s", ErrIllegalState, d.state)
	}
	d.chunks.Reset()
	return nil
}

// SendSettings transmits the current computation parameters. Idle only.
func (d *Dispatcher) SendSettings() error {
	if d.state != StateIdle {
		return fmt.Errorf("%w: send settings while %s", ErrIllegalState, d.state)
	}
	return d.send(proto.Message{Type: proto.TypeSetCompute, SetCompute: d.chunks.Settings()})
}

// RequestVersion asks the worker for its firmware version. Valid anywhere.
func (d *Dispatcher) RequestVersion() error {
	return d.send(proto.Message{Type: proto.TypeGetVersion})
}

// SendProbe transmits one CONN_TEST liveness probe.
func (d *Dispatcher) SendProbe() error {
	if d.observer != nil {
		d.observer.ObserveProbe()
	}
	return d.send(proto.Message{Type: proto.TypeConnTest})
}

// SendReset tells the worker to re-initialize; sent on host shutdown.
func (d *Dispatcher) SendReset() error {
	return d.send(proto.Message{Type: proto.TypeReset})
}

// SetBaud renegotiates the line rate: COMM goes out at the old rate, then
// after the settling interval the local end is reconfigured. Idle only.
func (d *Dispatcher) SetBaud(rate int) error {
	if d.state != StateIdle {
		return fmt.Errorf("%w: baud switch while %s", ErrIllegalState, d.state)
	}
	if !constants.BaudAllowed(rate) {
		return fmt.Errorf("%w: %d", ErrInvalidBaud, rate)
	}
	msg := proto.Message{Type: proto.TypeComm, Comm: proto.Comm{Baudrate: uint32(rate)}}
	if err := d.send(msg); err != nil {
		return err
	}
	d.sleep(constants.HostBaudSettle)
	if err := d.link.SetBaud(rate); err != nil {
		return err
	}
	d.baud = rate
	d.sleep(constants.HostBaudSettle)
	d.logger.Printf("selected %d baud as the communication speed", rate)
	return nil
}

// LocalCompute renders all unfinished chunks on the host CPU. Idle only.
func (d *Dispatcher) LocalCompute(kernel interfaces.Kernel) error {
	if d.state != StateIdle {
		return fmt.Errorf("%w: local compute while %s", ErrIllegalState, d.state)
	}
	if d.chunks.Finished() {
		d.logger.Printf("nothing to do, all chunks finished; reset chunks first")
		return nil
	}
	d.chunks.LocalCompute(kernel, d.fb)
	return nil
}

// HandleMessage advances the FSM on one inbound message. CONN_TEST and
// CONN_OK are answered or absorbed from any state and never change it.
func (d *Dispatcher) HandleMessage(msg proto.Message) error {
	switch msg.Type {
	case proto.TypeConnTest:
		return d.send(proto.Message{Type: proto.TypeConnOK})
	case proto.TypeConnOK:
		return nil
	case proto.TypeVersion:
		v := msg.Version
		d.logger.Printf("worker firmware version %d.%d.%d", v.Major, v.Minor, v.Patch)
		return nil
	case proto.TypeStartup:
		d.logger.Printf("worker reporting for duty: %q", msg.Startup.StartupText())
		d.chunks.AbandonCurrent()
		d.state = StateIdle
		return nil
	case proto.TypeOK:
		return d.handleOK()
	case proto.TypeComputeData:
		return d.handleComputeData(msg.ComputeData)
	case proto.TypeDone:
		return d.handleDone()
	case proto.TypeAbort:
		if d.state == StateIdle {
			d.logger.Warnf("worker signaled abort while idle")
			return nil
		}
		d.logger.Warnf("worker signaled abort")
		d.chunks.AbandonCurrent()
		d.state = StateIdle
		return nil
	case proto.TypeError:
		if d.state == StateIdle {
			d.logger.Warnf("worker reported an error while idle")
			return nil
		}
		d.logger.Warnf("worker reported an error, abandoning chunk")
		d.chunks.AbandonCurrent()
		d.state = StateIdle
		return nil
	}
	d.logger.Warnf("unexpected %s message from worker", msg.Type)
	return nil
}

func (d *Dispatcher) handleOK() error {
	switch d.state {
	case StateStarting:
		d.logger.Printf("computation started")
		d.state = StateComputing
	case StateAborting:
		d.logger.Printf("computation aborted")
		d.chunks.AbandonCurrent()
		d.state = StateIdle
	default:
		d.logger.Debugf("worker acknowledges")
	}
	return nil
}

func (d *Dispatcher) handleComputeData(data proto.ComputeData) error {
	if d.state == StateIdle {
		// Stale pixels from a superseded chunk; nothing owns them.
		return nil
	}
	d.fb.SetChunkPixel(int(data.CID), int(data.IRe), int(data.IIm), data.Iter)
	if d.observer != nil {
		d.observer.ObservePixel()
	}
	return nil
}

func (d *Dispatcher) handleDone() error {
	switch d.state {
	case StateComputing:
		cid := d.chunks.InFlight()
		d.chunks.FinishCurrent()
		if cid >= 0 {
			d.fb.MarkChunkDone(cid)
			if d.observer != nil {
				d.observer.ObserveChunkDone()
			}
		}
		if d.chunks.Finished() {
			d.logger.Printf("work done, whole fractal calculated")
			d.state = StateIdle
			return nil
		}
		return d.sendNextChunk()
	case StateAborting:
		d.chunks.AbandonCurrent()
		d.state = StateIdle
		return nil
	default:
		d.logger.Debugf("ignoring DONE while %s", d.state)
		return nil
	}
}
