// Package native declares the boundary between the pipeline core and a
// codec/container library implementation.
package native

import (
	"context"
	"errors"

	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
)

var (
	// ErrAgain means the call cannot progress until the opposite side
	// of the push/pull pair is drained or fed.
	ErrAgain = errors.New("resource temporarily unavailable")

	// ErrEOF means the object is fully drained.
	ErrEOF = errors.New("end of file")

	// ErrNotImplemented is returned for unsupported commands.
	ErrNotImplemented = errors.New("function not implemented")
)

type Backend interface {
	Name() string

	FindDecoder(ctx context.Context, codecID types.CodecID) (Codec, error)
	FindEncoder(ctx context.Context, codecID types.CodecID) (Codec, error)
	FindDecoderByName(ctx context.Context, name string) (Codec, error)
	FindEncoderByName(ctx context.Context, name string) (Codec, error)

	NewCodecContext(ctx context.Context, codec Codec, allocator BufferAllocator) (CodecContext, error)

	// OpenInput opens a demuxing context. If ioHandler is nil the url is
	// opened by the backend itself. Consumed options are removed from
	// options.
	OpenInput(
		ctx context.Context,
		url string,
		formatName string,
		ioHandler IOHandler,
		options *types.Dictionary,
	) (InputFormatContext, error)

	NewOutput(ctx context.Context, url string, formatName string) (OutputFormatContext, error)

	NewFilterGraph(ctx context.Context) (FilterGraph, error)
}

type Codec interface {
	Name() string
	ID() types.CodecID
	MediaType() types.MediaType
	IsEncoder() bool
	Capabilities() types.CodecCapabilities
}

// CodecContext is a single codec instance. Option-consuming calls remove
// the recognized keys from the dictionary passed in.
type CodecContext interface {
	Codec() Codec

	TimeBase() types.Rational
	SetTimeBase(types.Rational)
	Flags() uint32
	SetFlags(uint32)
	Flags2() uint32
	SetFlags2(uint32)
	FrameSize() int

	Parameters() types.MediaParameters
	SetParameters(types.MediaParameters) error

	ApplyOptions(ctx context.Context, options *types.Dictionary) error
	Open(ctx context.Context, options *types.Dictionary) error

	// SendPacket feeds a decoder, nil starts draining.
	SendPacket(ctx context.Context, pkt *media.Packet) error
	// ReceiveFrame fills out with a decoded unit.
	ReceiveFrame(ctx context.Context, out media.Raw) error
	// SendFrame feeds an encoder, nil starts draining.
	SendFrame(ctx context.Context, in media.Raw) error
	// ReceivePacket fills out with an encoded unit.
	ReceivePacket(ctx context.Context, out *media.Packet) error

	Close() error
}

type StreamInfo struct {
	Parameters types.MediaParameters
	TimeBase   types.Rational
}

type InputFormatContext interface {
	FormatName() string
	FindStreamInfo(ctx context.Context) error

	// NumStreams may grow while reading.
	NumStreams() int
	StreamInfo(idx int) StreamInfo

	// ReadPacket returns ErrEOF at the end of the input. The packet is
	// stamped with its stream time base.
	ReadPacket(ctx context.Context, pkt *media.Packet) error

	Close() error
}

type OutputFormatContext interface {
	FormatName() string
	URL() string

	// NeedsFile is false for formats handling the I/O themselves.
	NeedsFile() bool
	// OpenIO opens the byte sink: ioHandler if not nil, the URL otherwise.
	OpenIO(ctx context.Context, ioHandler IOHandler, bufferLength int) error

	AddStream(ctx context.Context, params types.MediaParameters) (int, error)
	NumStreams() int
	// StreamTimeBase may change once the header is written.
	StreamTimeBase(idx int) types.Rational

	WriteHeader(ctx context.Context, options *types.Dictionary) error
	WritePacket(ctx context.Context, pkt *media.Packet, interleave bool) (bool, error)
	WriteTrailer(ctx context.Context) error

	Close() error
}
