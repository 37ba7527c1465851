// Package heartbeat tracks link silence on both sides of the protocol.
//
// Any well-formed message refreshes the supervisor. After SilenceWarn of
// quiet it asks the caller to send CONN_TEST probes (at most one per
// ProbeInterval); after SilenceDead it declares the link dead. What "dead"
// means differs per side: the host exits, the worker resets its baud rate
// and keeps waiting.
package heartbeat

import (
	"sync/atomic"
	"time"

	"github.com/mhradec/go-julink/internal/constants"
)

// Action tells the caller what the supervisor wants done this tick.
type Action int

const (
	// ActionNone: the link is healthy or a probe was sent recently.
	ActionNone Action = iota
	// ActionProbe: send one CONN_TEST now.
	ActionProbe
	// ActionDead: the silence threshold has passed.
	ActionDead
)

// Supervisor is safe for concurrent use: the reader goroutine touches it,
// the main loop checks it.
type Supervisor struct {
	warn  time.Duration
	dead  time.Duration
	probe time.Duration

	lastReceived atomic.Int64 // UnixNano
	lastProbe    atomic.Int64 // UnixNano
	deadReported atomic.Bool
}

// New creates a supervisor with the standard thresholds, treating now as the
// moment of last contact.
func New(now time.Time) *Supervisor {
	s := &Supervisor{
		warn:  constants.SilenceWarn,
		dead:  constants.SilenceDead,
		probe: constants.ProbeInterval,
	}
	s.Touch(now)
	return s
}

// NewWithThresholds is New with explicit thresholds, for tests.
func NewWithThresholds(now time.Time, warn, dead, probe time.Duration) *Supervisor {
	s := &Supervisor{warn: warn, dead: dead, probe: probe}
	s.Touch(now)
	return s
}

// Touch records that a well-formed message arrived at now.
func (s *Supervisor) Touch(now time.Time) {
	s.lastReceived.Store(now.UnixNano())
	s.deadReported.Store(false)
}

// Silence reports how long the link has been quiet.
func (s *Supervisor) Silence(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastReceived.Load()))
}

// Check evaluates the thresholds at now. ActionDead is reported once per
// silent period; it re-arms when traffic resumes.
func (s *Supervisor) Check(now time.Time) Action {
	silence := s.Silence(now)
	if silence >= s.dead {
		if s.deadReported.CompareAndSwap(false, true) {
			return ActionDead
		}
		return ActionNone
	}
	if silence < s.warn {
		return ActionNone
	}
	sinceProbe := now.Sub(time.Unix(0, s.lastProbe.Load()))
	if sinceProbe < s.probe {
		return ActionNone
	}
	s.lastProbe.Store(now.UnixNano())
	return ActionProbe
}
