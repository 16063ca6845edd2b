package native

import (
	"context"

	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
)

// GraphInput describes a buffer source: frames are pushed into the graph
// through it.
type GraphInput struct {
	Name      string
	MediaType types.MediaType

	Width             int
	Height            int
	PixelFormat       types.PixelFormat
	SampleAspectRatio types.Rational
	FrameRate         types.Rational

	SampleRate    int
	ChannelLayout types.ChannelLayout
	SampleFormat  types.SampleFormat

	TimeBase types.Rational
}

// GraphOutput describes a buffer sink: frames are pulled from the graph
// through it. PixelFormatNone, SampleFormatNone and zero numbers leave
// the corresponding property unconstrained.
type GraphOutput struct {
	Name      string
	MediaType types.MediaType

	PixelFormat types.PixelFormat

	SampleRate    int
	ChannelLayout types.ChannelLayout
	SampleFormat  types.SampleFormat
	FrameSize     int
}

// FilterInfo identifies a filter instance of a graph.
type FilterInfo struct {
	Name       string
	FilterName string
}

type FilterGraph interface {
	AddInput(ctx context.Context, in GraphInput) error
	AddOutput(ctx context.Context, out GraphOutput) error

	// SetAutoConvert enables or disables the automatic insertion of
	// format conversion filters. It is enabled by default.
	SetAutoConvert(ctx context.Context, enabled bool) error
	// Filters lists every filter instance of the graph, including the
	// buffer sources and sinks.
	Filters(ctx context.Context) []FilterInfo

	// Configure parses the description, links it to the registered
	// inputs and outputs and validates the topology.
	Configure(ctx context.Context, description string) error

	// SendFrame pushes into the named input, nil signals the end of stream.
	SendFrame(ctx context.Context, input string, raw media.Raw) error
	// ReceiveFrame returns ErrAgain or ErrEOF when nothing is ready.
	ReceiveFrame(ctx context.Context, output string, out media.Raw) error
	// OutputTimeBase is valid after Configure.
	OutputTimeBase(output string) types.Rational

	// SendCommand returns ErrNotImplemented if no filter accepts the command.
	SendCommand(ctx context.Context, target, command, args string, flags int) (string, error)
	// QueueCommand defers the command until the graph processes a frame
	// at or after ts seconds.
	QueueCommand(ctx context.Context, target, command, args string, flags int, ts float64) error

	Dump(ctx context.Context) string
	Close() error
}
