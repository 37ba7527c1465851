package julink

import "github.com/mhradec/go-julink/internal/constants"

// Re-export constants for public API
const (
	DefaultBaudRate    = constants.DefaultBaudRate
	DefaultQueueDepth  = constants.DefaultQueueDepth
	DefaultImageWidth  = constants.DefaultImageWidth
	DefaultImageHeight = constants.DefaultImageHeight
	DefaultChunkCols   = constants.DefaultChunkCols
	DefaultChunkRows   = constants.DefaultChunkRows
	DefaultIterations  = constants.DefaultIterations

	SilenceWarn    = constants.SilenceWarn
	SilenceDead    = constants.SilenceDead
	RedrawInterval = constants.RedrawInterval
)

// AllowedBaudRates lists the rates the COMM exchange accepts.
func AllowedBaudRates() []int {
	out := make([]int, len(constants.AllowedBaudRates))
	copy(out, constants.AllowedBaudRates)
	return out
}
