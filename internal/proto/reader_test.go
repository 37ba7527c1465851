package proto

import "testing"

type countingObserver struct {
	resync   int
	checksum int
}

func (o *countingObserver) ObserveSent(uint8, int)     {}
func (o *countingObserver) ObserveReceived(uint8, int) {}
func (o *countingObserver) ObserveChecksumError()      { o.checksum++ }
func (o *countingObserver) ObserveResyncByte()         { o.resync++ }
func (o *countingObserver) ObserveQueueDrop()          {}
func (o *countingObserver) ObservePixel()              {}
func (o *countingObserver) ObserveChunkDone()          {}
func (o *countingObserver) ObserveProbe()              {}
func (o *countingObserver) ObserveLinkDead()           {}

func feedAll(t *testing.T, r *FrameReader, data []byte) []Message {
	t.Helper()
	var out []Message
	for _, b := range data {
		if msg, ok := r.Feed(b); ok {
			out = append(out, msg)
		}
	}
	return out
}

func TestFeedSingleFrame(t *testing.T) {
	msg := Message{Type: TypeComputeData, ComputeData: ComputeData{CID: 0, IRe: 1, IIm: 0, Iter: 9}}
	Finalize(&msg)
	frame, _ := Encode(&msg)

	var r FrameReader
	got := feedAll(t, &r, frame)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0] != msg {
		t.Errorf("message = %+v, want %+v", got[0], msg)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after complete frame, want 0", r.Pending())
	}
}

func TestResynchronization(t *testing.T) {
	msg := Message{Type: TypeStartup, Startup: NewStartup("go-julink.1")}
	Finalize(&msg)
	frame, _ := Encode(&msg)

	obs := &countingObserver{}
	r := FrameReader{Observer: obs}

	// Two garbage bytes outside the tag table, then a valid frame.
	stream := append([]byte{0x00, 0xff}, frame...)
	got := feedAll(t, &r, stream)

	if len(got) != 1 || got[0].Type != TypeStartup {
		t.Fatalf("got %d messages (%v), want the STARTUP frame", len(got), got)
	}
	if obs.resync != 2 {
		t.Errorf("resync discards = %d, want 2", obs.resync)
	}
}

func TestBackToBackFrames(t *testing.T) {
	var stream []byte
	want := []Type{TypeOK, TypeComputeData, TypeDone}
	for _, typ := range want {
		m := Message{Type: typ}
		Finalize(&m)
		frame, _ := Encode(&m)
		stream = append(stream, frame...)
	}

	var r FrameReader
	got := feedAll(t, &r, stream)
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, m := range got {
		if m.Type != want[i] {
			t.Errorf("message %d type = %v, want %v", i, m.Type, want[i])
		}
	}
}

func TestChecksumLenientDelivery(t *testing.T) {
	msg := Message{Type: TypeComputeData, ComputeData: ComputeData{CID: 1, IRe: 2, IIm: 3, Iter: 4}}
	Finalize(&msg)
	frame, _ := Encode(&msg)
	frame[2] ^= 0x10 // flip a payload bit

	obs := &countingObserver{}
	r := FrameReader{Observer: obs}
	got := feedAll(t, &r, frame)

	if len(got) != 1 {
		t.Fatalf("lenient reader should still deliver, got %d messages", len(got))
	}
	if obs.checksum != 1 {
		t.Errorf("checksum errors observed = %d, want 1", obs.checksum)
	}
}

func TestChecksumStrictDrop(t *testing.T) {
	msg := Message{Type: TypeComputeData, ComputeData: ComputeData{CID: 1, IRe: 2, IIm: 3, Iter: 4}}
	Finalize(&msg)
	frame, _ := Encode(&msg)
	frame[2] ^= 0x10

	obs := &countingObserver{}
	r := FrameReader{Strict: true, Observer: obs}
	got := feedAll(t, &r, frame)

	if len(got) != 0 {
		t.Fatalf("strict reader should drop, got %d messages", len(got))
	}
	if obs.checksum != 1 {
		t.Errorf("checksum errors observed = %d, want 1", obs.checksum)
	}
}

func TestReset(t *testing.T) {
	var r FrameReader
	r.Feed(byte(TypeCompute))
	r.Feed(0x01)
	if r.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", r.Pending())
	}
	r.Reset()
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after Reset, want 0", r.Pending())
	}

	// The reader must resynchronize cleanly after the reset.
	msg := Message{Type: TypeOK}
	Finalize(&msg)
	frame, _ := Encode(&msg)
	got := feedAll(t, &r, frame)
	if len(got) != 1 || got[0].Type != TypeOK {
		t.Errorf("got %v, want single OK", got)
	}
}
