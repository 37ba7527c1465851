package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// rawTerminal switches stdin to raw mode so single keystrokes arrive
// without waiting for a newline. Restore must be called before exit.
type rawTerminal struct {
	fd    int
	saved *unix.Termios
}

func makeRaw() (*rawTerminal, error) {
	fd := int(os.Stdin.Fd())
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	raw := *saved
	raw.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHONL | unix.ISIG | unix.IEXTEN
	raw.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY | unix.ICRNL | unix.INLCR | unix.IGNCR | unix.ISTRIP | unix.BRKINT | unix.IGNBRK | unix.PARMRK
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 1 // poll in tenths of a second

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}
	return &rawTerminal{fd: fd, saved: saved}, nil
}

// ReadKey polls for one keystroke; ok is false when none is pending.
func (t *rawTerminal) ReadKey() (byte, bool) {
	var buf [1]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil || n == 0 {
		return 0, false
	}
	return buf[0], true
}

// Restore puts the terminal back the way it was.
func (t *rawTerminal) Restore() {
	if t.saved != nil {
		unix.IoctlSetTermios(t.fd, unix.TCSETS, t.saved)
	}
}
