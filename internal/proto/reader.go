package proto

import "github.com/mhradec/go-julink/internal/interfaces"

// FrameReader reassembles framed messages from a byte stream.
//
// Bytes are fed one at a time. A byte that is not a recognized type tag
// while the buffer is empty is discarded; this is the only point where the
// reader tolerates line noise. Once message_size(buf[0]) bytes have
// accumulated, the frame is decoded and handed back.
type FrameReader struct {
	buf   [MaxFrameSize]byte
	index int

	// Strict drops frames whose checksum does not verify instead of
	// delivering them with a warning.
	Strict bool

	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// Pending reports how many bytes of a partial frame are buffered.
func (r *FrameReader) Pending() int {
	return r.index
}

// Reset discards any partially assembled frame.
func (r *FrameReader) Reset() {
	r.index = 0
}

// Feed consumes one byte. When the byte completes a frame, the decoded
// message is returned with ok set. Checksum failures are counted and logged;
// the message is still delivered unless Strict is set.
func (r *FrameReader) Feed(b byte) (msg Message, ok bool) {
	if r.index == 0 && !ValidType(b) {
		if r.Observer != nil {
			r.Observer.ObserveResyncByte()
		}
		if r.Logger != nil {
			r.Logger.Debugf("discarding noise byte 0x%02x", b)
		}
		return Message{}, false
	}

	r.buf[r.index] = b
	r.index++

	size, err := Size(Type(r.buf[0]))
	if err != nil {
		// Unreachable: the first byte was tag-checked above.
		r.index = 0
		return Message{}, false
	}
	if r.index < size {
		return Message{}, false
	}

	msg, err = Decode(r.buf[:r.index])
	r.index = 0
	if err != nil {
		return Message{}, false
	}

	if !ChecksumOK(&msg) {
		if r.Observer != nil {
			r.Observer.ObserveChecksumError()
		}
		if r.Logger != nil {
			r.Logger.Warnf("incoming %s message has incorrect checksum", msg.Type)
		}
		if r.Strict {
			return Message{}, false
		}
	}

	return msg, true
}
