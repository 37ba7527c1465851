// Package link owns the byte-duplex stream between host and worker.
//
// The link knows nothing about messages. Reads are polled with a short
// timeout so callers can observe shutdown; writes retry until the whole
// buffer is on the wire or the OS reports an error.
package link

// Link is a duplex byte stream with a settable baud rate.
//
// ReadByte and WriteAll may be called concurrently from different
// goroutines; implementations serialize as the underlying transport
// requires. SetBaud must only be called while no write is in flight.
type Link interface {
	// WriteAll transmits all of p, retrying partial writes.
	WriteAll(p []byte) error

	// ReadByte returns the next byte off the stream. ok is false when
	// nothing arrived within the poll window; err is a transport failure.
	ReadByte() (b byte, ok bool, err error)

	// SetBaud drains pending output and reconfigures the line rate.
	SetBaud(rate int) error

	Close() error
}
