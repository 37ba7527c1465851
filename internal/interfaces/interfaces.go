// Package interfaces provides internal interface definitions for go-julink.
// These are separate from the public interfaces to avoid circular imports
// between the main package and internal packages.
package interfaces

// Kernel is the numerical collaborator: it reports after how many steps the
// series seeded at point escapes, capped at max.
type Kernel interface {
	Iterations(point, c complex128, max uint8) uint8
}

// Framebuffer is the raster collaborator. Writes are addressed by chunk and
// chunk-relative pixel coordinates.
type Framebuffer interface {
	SetChunkPixel(chunkID int, col, row int, iter uint8)
	MarkChunkDone(chunkID int)
}

// Logger interface for optional logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer interface for metrics collection.
// Implementations must be thread-safe as methods are called from the reader
// goroutine and the main loop concurrently.
type Observer interface {
	ObserveSent(msgType uint8, bytes int)
	ObserveReceived(msgType uint8, bytes int)
	ObserveChecksumError()
	ObserveResyncByte()
	ObserveQueueDrop()
	ObservePixel()
	ObserveChunkDone()
	ObserveProbe()
	ObserveLinkDead()
}
