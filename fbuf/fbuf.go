// Package fbuf provides the raster sink for computed pixels: an RGB frame
// buffer divided into the same chunk grid the dispatcher works with, plus
// PPM export.
//
// The writer (main loop) and any reader (display goroutine) are decoupled
// through an internal lock and copy-out snapshots, so no torn pixels are
// ever observed.
package fbuf

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/mhradec/go-julink/julia"
)

// Framebuffer is an RGB raster addressed both absolutely and by
// chunk-relative coordinates.
type Framebuffer struct {
	mu sync.Mutex

	width, height int
	cols, rows    int
	maxIter       uint8

	pix  []uint8 // 3 bytes per pixel, row-major
	done []bool
}

// New creates a cleared framebuffer. The raster must divide evenly into the
// chunk grid.
func New(width, height, cols, rows int, maxIter uint8) (*Framebuffer, error) {
	if width <= 0 || height <= 0 || cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("invalid framebuffer geometry %dx%d / %dx%d", width, height, cols, rows)
	}
	if width%cols != 0 || height%rows != 0 {
		return nil, fmt.Errorf("raster %dx%d not divisible into %dx%d chunks", width, height, cols, rows)
	}
	if maxIter == 0 {
		return nil, fmt.Errorf("iteration cap must be at least 1")
	}
	return &Framebuffer{
		width:   width,
		height:  height,
		cols:    cols,
		rows:    rows,
		maxIter: maxIter,
		pix:     make([]uint8, width*height*3),
		done:    make([]bool, cols*rows),
	}, nil
}

// Width and Height report the raster dimensions.
func (f *Framebuffer) Width() int  { return f.width }
func (f *Framebuffer) Height() int { return f.height }

func (f *Framebuffer) chunkWidth() int  { return f.width / f.cols }
func (f *Framebuffer) chunkHeight() int { return f.height / f.rows }

// SetPixel writes one absolute pixel. Out-of-range writes are dropped.
func (f *Framebuffer) SetPixel(x, y int, r, g, b uint8) {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return
	}
	f.mu.Lock()
	i := (y*f.width + x) * 3
	f.pix[i] = r
	f.pix[i+1] = g
	f.pix[i+2] = b
	f.mu.Unlock()
}

// SetChunkPixel colors the pixel at chunk-relative (col, row) from its
// iteration count.
func (f *Framebuffer) SetChunkPixel(chunkID int, col, row int, iter uint8) {
	if chunkID < 0 || chunkID >= len(f.done) {
		return
	}
	x := (chunkID%f.cols)*f.chunkWidth() + col
	y := (chunkID/f.cols)*f.chunkHeight() + row
	r, g, b := julia.Color(iter, f.maxIter)
	f.SetPixel(x, y, r, g, b)
}

// MarkChunkDone records that every pixel of the chunk has been filled.
func (f *Framebuffer) MarkChunkDone(chunkID int) {
	if chunkID < 0 || chunkID >= len(f.done) {
		return
	}
	f.mu.Lock()
	f.done[chunkID] = true
	f.mu.Unlock()
}

// ChunkDone reports whether the chunk has been marked complete.
func (f *Framebuffer) ChunkDone(chunkID int) bool {
	if chunkID < 0 || chunkID >= len(f.done) {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done[chunkID]
}

// Clear paints the raster black and forgets all done marks.
func (f *Framebuffer) Clear() {
	f.mu.Lock()
	for i := range f.pix {
		f.pix[i] = 0
	}
	for i := range f.done {
		f.done[i] = false
	}
	f.mu.Unlock()
}

// Snapshot returns a coherent copy of the raster for the display path.
func (f *Framebuffer) Snapshot() []uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint8, len(f.pix))
	copy(out, f.pix)
	return out
}

// At returns the RGB value of one pixel.
func (f *Framebuffer) At(x, y int) (r, g, b uint8) {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return 0, 0, 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := (y*f.width + x) * 3
	return f.pix[i], f.pix[i+1], f.pix[i+2]
}

// ExportPPM writes the raster to path as binary PPM (P6).
func (f *Framebuffer) ExportPPM(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	snap := f.Snapshot()
	w := bufio.NewWriter(file)
	if _, err := fmt.Fprintf(w, "P6\n%d %d\n255\n", f.width, f.height); err != nil {
		return err
	}
	if _, err := w.Write(snap); err != nil {
		return err
	}
	return w.Flush()
}
