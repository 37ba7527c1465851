package proto

import "testing"

// Frame lengths are fixed by the wire format; a change here breaks devices
// in the field.
func TestFrameSizes(t *testing.T) {
	tests := []struct {
		typ  Type
		size int
	}{
		{TypeOK, 2},
		{TypeError, 2},
		{TypeAbort, 2},
		{TypeDone, 2},
		{TypeGetVersion, 2},
		{TypeVersion, 5},
		{TypeStartup, 13},
		{TypeCompute, 13},
		{TypeComputeData, 6},
		{TypeSetCompute, 19},
		{TypeComm, 7},
		{TypeConnTest, 2},
		{TypeConnOK, 2},
		{TypeReset, 2},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			size, err := Size(tt.typ)
			if err != nil {
				t.Fatalf("Size(%v) failed: %v", tt.typ, err)
			}
			if size != tt.size {
				t.Errorf("Size(%v) = %d, want %d", tt.typ, size, tt.size)
			}
			if size > MaxFrameSize {
				t.Errorf("Size(%v) = %d exceeds MaxFrameSize %d", tt.typ, size, MaxFrameSize)
			}
		})
	}
}

func TestSizeUnknownType(t *testing.T) {
	if _, err := Size(Type(0)); err != ErrUnknownType {
		t.Errorf("Size(0) error = %v, want ErrUnknownType", err)
	}
	if _, err := Size(typeLast + 1); err != ErrUnknownType {
		t.Errorf("Size(%d) error = %v, want ErrUnknownType", typeLast+1, err)
	}
}

func sampleMessages() []Message {
	return []Message{
		{Type: TypeOK},
		{Type: TypeAbort},
		{Type: TypeDone},
		{Type: TypeVersion, Version: Version{Major: 4, Minor: 2, Patch: 0}},
		{Type: TypeStartup, Startup: NewStartup("go-julink.1")},
		{Type: TypeCompute, Compute: Compute{CID: 3, Re: -1.6, Im: 1.1, NRe: 42, NIm: 28}},
		{Type: TypeComputeData, ComputeData: ComputeData{CID: 3, IRe: 7, IIm: 9, Iter: 40}},
		{Type: TypeSetCompute, SetCompute: SetCompute{CRe: -0.4, CIm: 0.6, DRe: 0.01, DIm: 0.01, N: 40}},
		{Type: TypeComm, Comm: Comm{Baudrate: 230400, EnableBurst: 0}},
		{Type: TypeConnTest},
		{Type: TypeConnOK},
		{Type: TypeReset},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, msg := range sampleMessages() {
		msg := msg
		t.Run(msg.Type.String(), func(t *testing.T) {
			Finalize(&msg)
			buf, err := Encode(&msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			size, _ := Size(msg.Type)
			if len(buf) != size {
				t.Fatalf("Encode wrote %d bytes, want %d", len(buf), size)
			}

			decoded, err := Decode(buf)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded != msg {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, msg)
			}
			if !ChecksumOK(&decoded) {
				t.Error("ChecksumOK = false after round trip")
			}
		})
	}
}

func TestChecksumAdditive(t *testing.T) {
	// CONN_TEST is [48][cksum]; the sum of preceding bytes is the tag.
	msg := Message{Type: TypeConnTest}
	Finalize(&msg)
	if msg.Cksum != 48 {
		t.Errorf("CONN_TEST cksum = %d, want 48", msg.Cksum)
	}

	data := Message{Type: TypeComputeData, ComputeData: ComputeData{CID: 1, IRe: 2, IIm: 3, Iter: 4}}
	Finalize(&data)
	if want := uint8(45 + 1 + 2 + 3 + 4); data.Cksum != want {
		t.Errorf("COMPUTE_DATA cksum = %d, want %d", data.Cksum, want)
	}
}

// Flipping any single bit of a framed message must either corrupt the type
// tag (caught by resynchronization upstream) or fail checksum verification.
func TestChecksumBitFlipSensitivity(t *testing.T) {
	for _, msg := range sampleMessages() {
		msg := msg
		t.Run(msg.Type.String(), func(t *testing.T) {
			Finalize(&msg)
			frame, err := Encode(&msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			for i := range frame {
				for bit := 0; bit < 8; bit++ {
					mutated := make([]byte, len(frame))
					copy(mutated, frame)
					mutated[i] ^= 1 << bit

					if !ValidType(mutated[0]) {
						continue // rejected upstream by the frame reader
					}
					size, _ := Size(Type(mutated[0]))
					if size != len(frame) {
						continue // frame boundary shifts; reassembled differently
					}
					decoded, err := Decode(mutated)
					if err != nil {
						t.Fatalf("Decode of flipped frame failed: %v", err)
					}
					if ChecksumOK(&decoded) {
						t.Errorf("bit flip at byte %d bit %d went undetected", i, bit)
					}
				}
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(nil); err != ErrShortBuffer {
		t.Errorf("Decode(nil) error = %v, want ErrShortBuffer", err)
	}
	if _, err := Decode([]byte{0x00, 0x00}); err != ErrUnknownType {
		t.Errorf("Decode(garbage) error = %v, want ErrUnknownType", err)
	}
	if _, err := Decode([]byte{byte(TypeCompute), 1, 2}); err != ErrShortBuffer {
		t.Errorf("Decode(truncated) error = %v, want ErrShortBuffer", err)
	}
}

func TestEncodeToShortBuffer(t *testing.T) {
	msg := Message{Type: TypeSetCompute}
	var small [4]byte
	if _, err := EncodeTo(&msg, small[:]); err != ErrShortBuffer {
		t.Errorf("EncodeTo(short) error = %v, want ErrShortBuffer", err)
	}
}

func TestFloatWireLayout(t *testing.T) {
	// 1.0f is 0x3f800000; little-endian on the wire.
	msg := Message{Type: TypeCompute, Compute: Compute{Re: 1.0}}
	Finalize(&msg)
	buf, err := Encode(&msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	re := buf[2:6]
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	for i := range want {
		if re[i] != want[i] {
			t.Fatalf("f32 wire bytes = %x, want %x", re, want)
		}
	}
}

func TestNewStartupPadding(t *testing.T) {
	s := NewStartup("hi")
	if got := s.StartupText(); got != "hi         " {
		t.Errorf("StartupText() = %q, want space-padded", got)
	}
	long := NewStartup("a startup string well over eleven bytes")
	if got := long.StartupText(); len(got) != StartupLen {
		t.Errorf("StartupText() length = %d, want %d", len(got), StartupLen)
	}
}
