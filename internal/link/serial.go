package link

import (
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/mhradec/go-julink/internal/constants"
)

// SerialLink drives a real serial port: 8 data bits, no parity, one stop
// bit, raw mode. Reads are bounded by a poll timeout so the reader loop can
// notice a quit request.
type SerialLink struct {
	port serial.Port

	// wmu serializes writers; the reader path uses only Read and never
	// contends with it.
	wmu sync.Mutex

	baud int
}

// OpenSerial opens and configures the serial device at path.
func OpenSerial(path string, baud int) (*SerialLink, error) {
	if baud <= 0 {
		baud = constants.DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(constants.ReadPollTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", path, err)
	}
	return &SerialLink{port: port, baud: baud}, nil
}

// WriteAll transmits all of p, retrying partial writes until done.
func (l *SerialLink) WriteAll(p []byte) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	for len(p) > 0 {
		n, err := l.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// ReadByte polls for one byte. A timed-out read reports ok=false.
func (l *SerialLink) ReadByte() (byte, bool, error) {
	var buf [1]byte
	n, err := l.port.Read(buf[:])
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

// SetBaud drains outgoing data, then reconfigures the line. The 8N1 raw
// parameters are reasserted alongside the new rate.
func (l *SerialLink) SetBaud(rate int) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if err := l.port.Drain(); err != nil {
		return fmt.Errorf("drain before baud switch: %w", err)
	}
	mode := &serial.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := l.port.SetMode(mode); err != nil {
		return fmt.Errorf("set baud %d: %w", rate, err)
	}
	l.baud = rate
	return nil
}

// Baud reports the currently configured rate.
func (l *SerialLink) Baud() int {
	return l.baud
}

func (l *SerialLink) Close() error {
	return l.port.Close()
}
