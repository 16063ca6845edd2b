package native

// IOHandler is a byte stream endpoint driven by the native library. It
// must never panic: failures are reported as negative return values.
type IOHandler interface {
	Read(buf []byte) int
	Write(buf []byte) int
	// SeekTo follows io.Seeker whence values; whence == SeekSize asks for
	// the total size.
	SeekTo(offset int64, whence int) int64
	IsWritable() bool
	IsSeekable() bool
	Close() int
}

const SeekSize = 0x10000

// IOEOF is returned by IOHandler.Read at the end of the stream.
const IOEOF = -541478725
