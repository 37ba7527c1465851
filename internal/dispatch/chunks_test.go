package dispatch

import (
	"math"
	"testing"
)

func TestNewChunkMapValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Geometry)
		ok     bool
	}{
		{"defaults", func(*Geometry) {}, true},
		{"zero width", func(g *Geometry) { g.Width = 0 }, false},
		{"indivisible grid", func(g *Geometry) { g.Width = 5 }, false},
		{"too many chunks", func(g *Geometry) { g.Width = 340; g.Height = 340; g.Cols = 17; g.Rows = 17 }, false},
		{"chunk too wide", func(g *Geometry) { g.Width = 512; g.Cols = 2; g.Rows = 2; g.Height = 4 }, false},
		{"zero iterations", func(g *Geometry) { g.Iterations = 0 }, false},
		{"inverted bounds", func(g *Geometry) { g.TopLeft, g.BotRight = g.BotRight, g.TopLeft }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := testGeometry()
			tt.mutate(&geo)
			_, err := NewChunkMap(geo)
			if (err == nil) != tt.ok {
				t.Errorf("NewChunkMap error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	chunks, err := NewChunkMap(testGeometry())
	if err != nil {
		t.Fatalf("NewChunkMap failed: %v", err)
	}
	s := chunks.Settings()
	if s.CRe != -0.4 || s.CIm != 0.6 {
		t.Errorf("constant = (%v, %v), want (-0.4, 0.6)", s.CRe, s.CIm)
	}
	// 3.2 real units over 4 pixels, 2.2 imaginary over 4.
	if math.Abs(float64(s.DRe)-0.8) > 1e-6 {
		t.Errorf("DRe = %v, want 0.8", s.DRe)
	}
	if math.Abs(float64(s.DIm)-0.55) > 1e-6 {
		t.Errorf("DIm = %v, want 0.55", s.DIm)
	}
	if s.DRe <= 0 || s.DIm <= 0 {
		t.Error("per-pixel steps must be positive")
	}
	if s.N != 10 {
		t.Errorf("N = %d, want 10", s.N)
	}
}

func TestSequentialSelection(t *testing.T) {
	chunks, _ := NewChunkMap(testGeometry())
	chunks.SetPolicy(PolicySequential)

	var order []int
	for !chunks.Finished() {
		c, ok := chunks.NextChunk()
		if !ok {
			t.Fatal("NextChunk refused while unfinished")
		}
		order = append(order, int(c.CID))
		chunks.FinishCurrent()
	}
	for i, cid := range order {
		if cid != i {
			t.Fatalf("sequential order = %v, want ascending indices", order)
		}
	}
	if _, ok := chunks.NextChunk(); ok {
		t.Error("NextChunk should refuse once finished")
	}
}

func TestRandomSelectionCoversAll(t *testing.T) {
	chunks, _ := NewChunkMap(testGeometry())
	chunks.SetPolicy(PolicyRandom)

	seen := map[int]bool{}
	for !chunks.Finished() {
		c, ok := chunks.NextChunk()
		if !ok {
			t.Fatal("NextChunk refused while unfinished")
		}
		if seen[int(c.CID)] {
			t.Fatalf("chunk %d selected twice", c.CID)
		}
		seen[int(c.CID)] = true
		chunks.FinishCurrent()
	}
	if len(seen) != 4 {
		t.Errorf("random policy covered %d chunks, want 4", len(seen))
	}
}

func TestChunkOrigins(t *testing.T) {
	chunks, _ := NewChunkMap(testGeometry())
	chunks.SetPolicy(PolicySequential)

	// Chunk 0 starts at the top-left corner.
	c, _ := chunks.NextChunk()
	if c.CID != 0 || c.Re != -1.6 || c.Im != 1.1 {
		t.Errorf("chunk 0 origin = (%v, %v), want (-1.6, 1.1)", c.Re, c.Im)
	}
	chunks.FinishCurrent()

	// Chunk 1 is one chunk-width (2 px * 0.8) to the right.
	c, _ = chunks.NextChunk()
	if c.CID != 1 {
		t.Fatalf("second chunk cid = %d, want 1", c.CID)
	}
	if math.Abs(float64(c.Re)-0.0) > 1e-6 || c.Im != 1.1 {
		t.Errorf("chunk 1 origin = (%v, %v), want (0, 1.1)", c.Re, c.Im)
	}
	chunks.FinishCurrent()

	// Chunk 2 opens the second row: down one chunk-height (2 px * 0.55).
	c, _ = chunks.NextChunk()
	if c.CID != 2 {
		t.Fatalf("third chunk cid = %d, want 2", c.CID)
	}
	if c.Re != -1.6 || math.Abs(float64(c.Im)-0.0) > 1e-6 {
		t.Errorf("chunk 2 origin = (%v, %v), want (-1.6, 0)", c.Re, c.Im)
	}
}

func TestMonotoneCompletion(t *testing.T) {
	chunks, _ := NewChunkMap(testGeometry())

	// FinishCurrent with nothing in flight is a no-op.
	chunks.FinishCurrent()
	if chunks.Remaining() != 4 {
		t.Fatalf("remaining = %d, want 4", chunks.Remaining())
	}

	chunks.NextChunk()
	cid := chunks.InFlight()
	chunks.FinishCurrent()
	if chunks.Remaining() != 3 {
		t.Errorf("remaining = %d after finish, want 3", chunks.Remaining())
	}
	if chunks.InFlight() != -1 {
		t.Errorf("in-flight = %d after finish, want -1", chunks.InFlight())
	}

	// Abandoning does not complete.
	chunks.NextChunk()
	abandoned := chunks.InFlight()
	if abandoned == cid {
		t.Fatalf("finished chunk %d re-selected", cid)
	}
	chunks.AbandonCurrent()
	if chunks.Remaining() != 3 {
		t.Errorf("remaining = %d after abandon, want 3", chunks.Remaining())
	}
}

func TestSetBoundsResetsCompletion(t *testing.T) {
	chunks, _ := NewChunkMap(testGeometry())
	chunks.NextChunk()
	chunks.FinishCurrent()

	if err := chunks.SetBounds(complex(-1, 1), complex(1, -1)); err != nil {
		t.Fatalf("SetBounds failed: %v", err)
	}
	if chunks.Remaining() != 4 {
		t.Errorf("remaining = %d after bounds change, want 4", chunks.Remaining())
	}

	if err := chunks.SetBounds(complex(1, 1), complex(-1, -1)); err == nil {
		t.Error("degenerate bounds should be rejected")
	}
}

func TestSetConstantResetsCompletion(t *testing.T) {
	chunks, _ := NewChunkMap(testGeometry())
	chunks.NextChunk()
	chunks.FinishCurrent()

	chunks.SetConstant(complex(0.26, 0))
	if chunks.Remaining() != 4 {
		t.Errorf("remaining = %d after constant change, want 4", chunks.Remaining())
	}
	if chunks.Constant() != complex(0.26, 0) {
		t.Errorf("Constant() = %v, want (0.26+0i)", chunks.Constant())
	}
}

func TestCenter(t *testing.T) {
	chunks, _ := NewChunkMap(testGeometry())
	if got := chunks.Center(); got != complex(0, 0) {
		t.Errorf("Center() = %v, want 0", got)
	}
}
