package julink

import (
	"context"

	"github.com/mhradec/go-julink/internal/link"
	"github.com/mhradec/go-julink/internal/logging"
	"github.com/mhradec/go-julink/internal/worker"
)

// WorkerParams configures a Worker.
type WorkerParams struct {
	// DevicePath is the serial device to open; ignored when Link is set.
	DevicePath string
	Baud       int

	// Link overrides DevicePath with an already-open transport.
	Link Link

	// Kernel computes the per-pixel iteration counts.
	Kernel Kernel
}

// Worker is the device side of the protocol: it announces itself, executes
// one chunk at a time and streams pixel results back to the host. On real
// firmware this role is played by the microcontroller; here it runs as a
// process, typically against a pty or the second end of a pipe.
type Worker struct {
	inner    *worker.Worker
	link     Link
	ownsLink bool
	metrics  *Metrics
}

// NewWorker builds a worker over the configured transport.
func NewWorker(params WorkerParams, options *Options) (*Worker, error) {
	if options == nil {
		options = &Options{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if params.Kernel == nil {
		return nil, NewError("NEW_WORKER", ErrCodeIllegalState, "kernel collaborator is required")
	}

	metrics := NewMetrics()
	observer := options.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	l := params.Link
	ownsLink := false
	if l == nil {
		if params.DevicePath == "" {
			return nil, NewError("NEW_WORKER", ErrCodeIOError, "no serial device path and no link given")
		}
		sl, err := link.OpenSerial(params.DevicePath, params.Baud)
		if err != nil {
			return nil, WrapError("OPEN_SERIAL", err)
		}
		l = sl
		ownsLink = true
	}

	return &Worker{
		inner:    worker.New(l, params.Kernel, logger, observer),
		link:     l,
		ownsLink: ownsLink,
		metrics:  metrics,
	}, nil
}

// Run boots the worker (sending its STARTUP announcement) and serves host
// commands until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if w.ownsLink {
			w.link.Close()
		}
		w.metrics.Stop()
	}()
	err := w.inner.Run(ctx)
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// PressButton simulates the physical abort button. Safe from any goroutine.
func (w *Worker) PressButton() { w.inner.PressButton() }

// Metrics returns the built-in counters (only populated when no custom
// Observer was supplied).
func (w *Worker) Metrics() *Metrics { return w.metrics }
