package dispatch

import (
	"fmt"
	"math/rand"

	"github.com/mhradec/go-julink/internal/interfaces"
	"github.com/mhradec/go-julink/internal/proto"
)

// Policy chooses which unfinished chunk is computed next.
type Policy int

const (
	// PolicySequential picks the lowest-index unfinished chunk.
	PolicySequential Policy = iota
	// PolicyRandom picks the first unfinished chunk at or after a random
	// starting index, wrapping.
	PolicyRandom
)

// Geometry describes the raster, its chunk grid and the visible section of
// the complex plane.
type Geometry struct {
	Width, Height int
	Cols, Rows    int

	TopLeft  complex128
	BotRight complex128

	Constant   complex128
	Iterations uint8
}

// ChunkMap owns chunk completion state and selection. It is exclusively
// owned by the main loop; no internal locking.
type ChunkMap struct {
	geo  Geometry
	done []bool

	// current is the chunk in flight, or -1. At most one chunk is ever
	// in flight.
	current int

	policy Policy
}

// NewChunkMap validates the geometry and builds an all-unfinished map.
func NewChunkMap(geo Geometry) (*ChunkMap, error) {
	if geo.Width <= 0 || geo.Height <= 0 {
		return nil, fmt.Errorf("invalid raster %dx%d", geo.Width, geo.Height)
	}
	if geo.Cols <= 0 || geo.Rows <= 0 {
		return nil, fmt.Errorf("invalid chunk grid %dx%d", geo.Cols, geo.Rows)
	}
	if geo.Width%geo.Cols != 0 || geo.Height%geo.Rows != 0 {
		return nil, fmt.Errorf("raster %dx%d not divisible into %dx%d chunks",
			geo.Width, geo.Height, geo.Cols, geo.Rows)
	}
	count := geo.Cols * geo.Rows
	if count > 256 {
		return nil, fmt.Errorf("%d chunks exceed the protocol limit of 256", count)
	}
	cw, ch := geo.Width/geo.Cols, geo.Height/geo.Rows
	if cw > 255 || ch > 255 {
		return nil, fmt.Errorf("chunk %dx%d exceeds 255-pixel protocol limit", cw, ch)
	}
	if geo.Iterations == 0 {
		return nil, fmt.Errorf("iteration cap must be at least 1")
	}
	if real(geo.BotRight) <= real(geo.TopLeft) || imag(geo.TopLeft) <= imag(geo.BotRight) {
		return nil, fmt.Errorf("degenerate plane bounds")
	}
	return &ChunkMap{
		geo:     geo,
		done:    make([]bool, count),
		current: -1,
	}, nil
}

// Count returns the number of chunks.
func (c *ChunkMap) Count() int { return len(c.done) }

// ChunkWidth and ChunkHeight are the chunk dimensions in pixels.
func (c *ChunkMap) ChunkWidth() int  { return c.geo.Width / c.geo.Cols }
func (c *ChunkMap) ChunkHeight() int { return c.geo.Height / c.geo.Rows }

func (c *ChunkMap) pixelWidth() float64 {
	return (real(c.geo.BotRight) - real(c.geo.TopLeft)) / float64(c.geo.Width)
}

func (c *ChunkMap) pixelHeight() float64 {
	return (imag(c.geo.TopLeft) - imag(c.geo.BotRight)) / float64(c.geo.Height)
}

// Settings builds the SET_COMPUTE payload for the current view.
func (c *ChunkMap) Settings() proto.SetCompute {
	return proto.SetCompute{
		CRe: float32(real(c.geo.Constant)),
		CIm: float32(imag(c.geo.Constant)),
		DRe: float32(c.pixelWidth()),
		DIm: float32(c.pixelHeight()),
		N:   c.geo.Iterations,
	}
}

// origin returns the complex coordinate of the chunk's upper-left pixel.
func (c *ChunkMap) origin(cid int) complex128 {
	col := cid % c.geo.Cols
	row := cid / c.geo.Cols
	re := real(c.geo.TopLeft) + float64(c.ChunkWidth()*col)*c.pixelWidth()
	im := imag(c.geo.TopLeft) - float64(c.ChunkHeight()*row)*c.pixelHeight()
	return complex(re, im)
}

func (c *ChunkMap) selectChunk() int {
	switch c.policy {
	case PolicyRandom:
		start := rand.Intn(len(c.done))
		for i := 0; i < len(c.done); i++ {
			cid := (start + i) % len(c.done)
			if !c.done[cid] {
				return cid
			}
		}
	default:
		for cid, d := range c.done {
			if !d {
				return cid
			}
		}
	}
	return -1
}

// NextChunk selects an unfinished chunk under the current policy, records it
// as in flight and returns its COMPUTE payload. ok is false when everything
// is finished.
func (c *ChunkMap) NextChunk() (proto.Compute, bool) {
	cid := c.selectChunk()
	if cid < 0 {
		return proto.Compute{}, false
	}
	c.current = cid
	o := c.origin(cid)
	return proto.Compute{
		CID: uint8(cid),
		Re:  float32(real(o)),
		Im:  float32(imag(o)),
		NRe: uint8(c.ChunkWidth()),
		NIm: uint8(c.ChunkHeight()),
	}, true
}

// InFlight returns the chunk currently in flight, or -1.
func (c *ChunkMap) InFlight() int { return c.current }

// FinishCurrent marks the in-flight chunk done. The done bit only ever goes
// 0 to 1, and only for the chunk actually in flight.
func (c *ChunkMap) FinishCurrent() {
	if c.current >= 0 {
		c.done[c.current] = true
		c.current = -1
	}
}

// AbandonCurrent clears the in-flight chunk without completing it.
func (c *ChunkMap) AbandonCurrent() { c.current = -1 }

// Finished reports whether every chunk is done.
func (c *ChunkMap) Finished() bool { return c.Remaining() == 0 }

// Remaining counts unfinished chunks.
func (c *ChunkMap) Remaining() int {
	n := 0
	for _, d := range c.done {
		if !d {
			n++
		}
	}
	return n
}

// Reset clears all completion bits and the in-flight record.
func (c *ChunkMap) Reset() {
	for i := range c.done {
		c.done[i] = false
	}
	c.current = -1
}

// SetPolicy switches the chunk selection policy.
func (c *ChunkMap) SetPolicy(p Policy) { c.policy = p }

// SetBounds moves the visible section of the plane and invalidates all
// completion state.
func (c *ChunkMap) SetBounds(topLeft, botRight complex128) error {
	if real(botRight) <= real(topLeft) || imag(topLeft) <= imag(botRight) {
		return fmt.Errorf("degenerate plane bounds")
	}
	c.geo.TopLeft = topLeft
	c.geo.BotRight = botRight
	c.Reset()
	return nil
}

// SetConstant moves the Julia constant and invalidates all completion state.
func (c *ChunkMap) SetConstant(constant complex128) {
	c.geo.Constant = constant
	c.Reset()
}

// Bounds returns the visible section of the plane.
func (c *ChunkMap) Bounds() (topLeft, botRight complex128) {
	return c.geo.TopLeft, c.geo.BotRight
}

// Constant returns the Julia constant.
func (c *ChunkMap) Constant() complex128 { return c.geo.Constant }

// Center returns the midpoint of the visible rectangle.
func (c *ChunkMap) Center() complex128 {
	return (c.geo.TopLeft + c.geo.BotRight) / 2
}

// LocalCompute renders every unfinished chunk through the kernel, writing
// pixels and done marks straight to the framebuffer.
func (c *ChunkMap) LocalCompute(kernel interfaces.Kernel, fb interfaces.Framebuffer) {
	dRe, dIm := c.pixelWidth(), c.pixelHeight()
	for cid := range c.done {
		if c.done[cid] {
			continue
		}
		o := c.origin(cid)
		for row := 0; row < c.ChunkHeight(); row++ {
			for col := 0; col < c.ChunkWidth(); col++ {
				point := o + complex(float64(col)*dRe, -float64(row)*dIm)
				iter := kernel.Iterations(point, c.geo.Constant, c.geo.Iterations)
				fb.SetChunkPixel(cid, col, row, iter)
			}
		}
		c.done[cid] = true
		fb.MarkChunkDone(cid)
	}
	c.current = -1
}
