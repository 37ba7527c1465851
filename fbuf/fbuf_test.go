package fbuf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mhradec/go-julink/julia"
)

func newTestFramebuffer(t *testing.T) *Framebuffer {
	t.Helper()
	f, err := New(4, 4, 2, 2, 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return f
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name                            string
		width, height, cols, rows, iter int
		ok                              bool
	}{
		{"valid", 4, 4, 2, 2, 10, true},
		{"zero width", 0, 4, 2, 2, 10, false},
		{"indivisible", 5, 4, 2, 2, 10, false},
		{"zero iterations", 4, 4, 2, 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.width, tt.height, tt.cols, tt.rows, uint8(tt.iter))
			if (err == nil) != tt.ok {
				t.Errorf("New error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestChunkPixelAddressing(t *testing.T) {
	f := newTestFramebuffer(t)

	// Chunk 3 is the bottom-right 2x2 block; its (1,1) is raster (3,3).
	f.SetChunkPixel(3, 1, 1, 5)
	wr, wg, wb := julia.Color(5, 10)
	r, g, b := f.At(3, 3)
	if r != wr || g != wg || b != wb {
		t.Errorf("At(3,3) = (%d,%d,%d), want palette color (%d,%d,%d)", r, g, b, wr, wg, wb)
	}

	// Nothing else is touched.
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if x == 3 && y == 3 {
				continue
			}
			if r, g, b := f.At(x, y); r != 0 || g != 0 || b != 0 {
				t.Fatalf("pixel (%d,%d) unexpectedly written", x, y)
			}
		}
	}
}

func TestOutOfRangeWritesDropped(t *testing.T) {
	f := newTestFramebuffer(t)
	f.SetPixel(-1, 0, 255, 255, 255)
	f.SetPixel(4, 4, 255, 255, 255)
	f.SetChunkPixel(99, 0, 0, 5)
	f.MarkChunkDone(99)

	snap := f.Snapshot()
	for i, v := range snap {
		if v != 0 {
			t.Fatalf("byte %d = %d after out-of-range writes, want untouched raster", i, v)
		}
	}
}

func TestDoneMarks(t *testing.T) {
	f := newTestFramebuffer(t)
	if f.ChunkDone(1) {
		t.Error("ChunkDone(1) = true before mark")
	}
	f.MarkChunkDone(1)
	if !f.ChunkDone(1) {
		t.Error("ChunkDone(1) = false after mark")
	}
	f.Clear()
	if f.ChunkDone(1) {
		t.Error("ChunkDone(1) = true after Clear")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newTestFramebuffer(t)
	snap := f.Snapshot()
	f.SetPixel(0, 0, 255, 0, 0)
	if snap[0] != 0 {
		t.Error("snapshot aliases live raster")
	}
}

func TestExportPPM(t *testing.T) {
	f := newTestFramebuffer(t)
	f.SetPixel(0, 0, 1, 2, 3)

	path := filepath.Join(t.TempDir(), "fractal.ppm")
	if err := f.ExportPPM(path); err != nil {
		t.Fatalf("ExportPPM failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export failed: %v", err)
	}
	header := []byte("P6\n4 4\n255\n")
	if !bytes.HasPrefix(data, header) {
		t.Fatalf("export header = %q, want P6 with dimensions", data[:min(len(data), 16)])
	}
	body := data[len(header):]
	if len(body) != 4*4*3 {
		t.Fatalf("pixel payload = %d bytes, want 48", len(body))
	}
	if body[0] != 1 || body[1] != 2 || body[2] != 3 {
		t.Errorf("first pixel = (%d,%d,%d), want (1,2,3)", body[0], body[1], body[2])
	}
}
