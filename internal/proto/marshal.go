package proto

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrUnknownType is returned for a byte outside the type table.
var ErrUnknownType = errors.New("proto: unknown message type")

// ErrShortBuffer is returned when a buffer cannot hold the framed message.
var ErrShortBuffer = errors.New("proto: buffer too short for message")

// MaxFrameSize is the largest framed message on the wire (SET_COMPUTE:
// type + four f32 + one u8 + cksum).
const MaxFrameSize = 2 + 4*4 + 1

func payloadSize(t Type) (int, error) {
	switch t {
	case TypeOK, TypeError, TypeAbort, TypeDone, TypeGetVersion,
		TypeConnTest, TypeConnOK, TypeReset:
		return 0, nil
	case TypeVersion:
		return 3, nil
	case TypeStartup:
		return StartupLen, nil
	case TypeCompute:
		return 3 + 2*4, nil
	case TypeComputeData:
		return 4, nil
	case TypeSetCompute:
		return 1 + 4*4, nil
	case TypeComm:
		return 4 + 1, nil
	}
	return 0, ErrUnknownType
}

// Size returns the total framed length of a message of type t:
// type byte + payload + checksum byte.
func Size(t Type) (int, error) {
	n, err := payloadSize(t)
	if err != nil {
		return 0, err
	}
	return 2 + n, nil
}

func putFloat32(buf []byte, f float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
}

func getFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}

// EncodeTo writes the framed message into buf and returns the frame length.
// The stored Cksum is written as-is; call Finalize first to stamp a valid
// checksum. buf must hold at least Size(m.Type) bytes.
func EncodeTo(m *Message, buf []byte) (int, error) {
	size, err := Size(m.Type)
	if err != nil {
		return 0, err
	}
	if len(buf) < size {
		return 0, ErrShortBuffer
	}

	buf[0] = byte(m.Type)
	buf[size-1] = m.Cksum

	switch m.Type {
	case TypeVersion:
		buf[1] = m.Version.Major
		buf[2] = m.Version.Minor
		buf[3] = m.Version.Patch
	case TypeStartup:
		copy(buf[1:1+StartupLen], m.Startup.Text[:])
	case TypeCompute:
		buf[1] = m.Compute.CID
		putFloat32(buf[2:], m.Compute.Re)
		putFloat32(buf[6:], m.Compute.Im)
		buf[10] = m.Compute.NRe
		buf[11] = m.Compute.NIm
	case TypeComputeData:
		buf[1] = m.ComputeData.CID
		buf[2] = m.ComputeData.IRe
		buf[3] = m.ComputeData.IIm
		buf[4] = m.ComputeData.Iter
	case TypeSetCompute:
		putFloat32(buf[1:], m.SetCompute.CRe)
		putFloat32(buf[5:], m.SetCompute.CIm)
		putFloat32(buf[9:], m.SetCompute.DRe)
		putFloat32(buf[13:], m.SetCompute.DIm)
		buf[17] = m.SetCompute.N
	case TypeComm:
		binary.LittleEndian.PutUint32(buf[1:], m.Comm.Baudrate)
		buf[5] = m.Comm.EnableBurst
	}

	return size, nil
}

// Encode allocates and returns the framed message bytes.
func Encode(m *Message) ([]byte, error) {
	var scratch [MaxFrameSize]byte
	n, err := EncodeTo(m, scratch[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, scratch[:n])
	return out, nil
}

// Decode parses a framed message from buf. buf must hold the complete frame
// for the type named by buf[0]. Decode does not verify the checksum; use
// ChecksumOK on the result.
func Decode(buf []byte) (Message, error) {
	var m Message
	if len(buf) == 0 {
		return m, ErrShortBuffer
	}
	if !ValidType(buf[0]) {
		return m, ErrUnknownType
	}
	size, err := Size(Type(buf[0]))
	if err != nil {
		return m, err
	}
	if len(buf) < size {
		return m, ErrShortBuffer
	}

	m.Type = Type(buf[0])
	m.Cksum = buf[size-1]

	switch m.Type {
	case TypeVersion:
		m.Version.Major = buf[1]
		m.Version.Minor = buf[2]
		m.Version.Patch = buf[3]
	case TypeStartup:
		copy(m.Startup.Text[:], buf[1:1+StartupLen])
	case TypeCompute:
		m.Compute.CID = buf[1]
		m.Compute.Re = getFloat32(buf[2:])
		m.Compute.Im = getFloat32(buf[6:])
		m.Compute.NRe = buf[10]
		m.Compute.NIm = buf[11]
	case TypeComputeData:
		m.ComputeData.CID = buf[1]
		m.ComputeData.IRe = buf[2]
		m.ComputeData.IIm = buf[3]
		m.ComputeData.Iter = buf[4]
	case TypeSetCompute:
		m.SetCompute.CRe = getFloat32(buf[1:])
		m.SetCompute.CIm = getFloat32(buf[5:])
		m.SetCompute.DRe = getFloat32(buf[9:])
		m.SetCompute.DIm = getFloat32(buf[13:])
		m.SetCompute.N = buf[17]
	case TypeComm:
		m.Comm.Baudrate = binary.LittleEndian.Uint32(buf[1:])
		m.Comm.EnableBurst = buf[5]
	}

	return m, nil
}

// Checksum computes the additive checksum of the message: the sum modulo 256
// of every framed byte except the checksum byte itself.
func Checksum(m *Message) uint8 {
	var scratch [MaxFrameSize]byte
	n, err := EncodeTo(m, scratch[:])
	if err != nil {
		return 0
	}
	var sum uint8
	for _, b := range scratch[:n-1] {
		sum += b
	}
	return sum
}

// Finalize stamps the message with its checksum.
func Finalize(m *Message) {
	m.Cksum = Checksum(m)
}

// ChecksumOK reports whether the stored checksum matches the content.
func ChecksumOK(m *Message) bool {
	return m.Cksum == Checksum(m)
}
