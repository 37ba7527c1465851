package julink

import "github.com/mhradec/go-julink/internal/interfaces"

// Kernel is the numerical collaborator: given a starting point, the Julia
// constant and an iteration cap it returns the escape iteration count.
// The julia package provides the reference implementation.
type Kernel = interfaces.Kernel

// Framebuffer is the raster collaborator accepting per-pixel writes
// addressed by chunk. The fbuf package provides the reference
// implementation.
type Framebuffer = interfaces.Framebuffer

// Logger is the minimal logging surface components accept. The
// internal/logging package's Logger satisfies it.
type Logger = interfaces.Logger
