// Package container wraps native format contexts: the read side
// (Demuxer) and the write side (Muxer) share the lazily discovered,
// append-only stream list implemented by Container.
package container

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/coder"
	"github.com/xaionaro-go/avcore/internal"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type Direction int

const (
	DirectionRead = Direction(iota)
	DirectionWrite
)

func (d Direction) String() string {
	switch d {
	case DirectionRead:
		return "read"
	case DirectionWrite:
		return "write"
	}
	return fmt.Sprintf("unexpected_direction_%d", int(d))
}

type formatContext interface {
	FormatName() string
	NumStreams() int
}

type Container struct {
	backend   native.Backend
	direction Direction
	formatCtx formatContext

	input  native.InputFormatContext
	output native.OutputFormatContext

	streams []*Stream
	closer  *astikit.Closer
}

func newReadContainer(backend native.Backend, input native.InputFormatContext) *Container {
	return &Container{
		backend:   backend,
		direction: DirectionRead,
		formatCtx: input,
		input:     input,
		closer:    astikit.NewCloser(),
	}
}

func newWriteContainer(backend native.Backend, output native.OutputFormatContext) *Container {
	return &Container{
		backend:   backend,
		direction: DirectionWrite,
		formatCtx: output,
		output:    output,
		closer:    astikit.NewCloser(),
	}
}

func (c *Container) Direction() Direction {
	return c.direction
}

func (c *Container) FormatName() string {
	return c.formatCtx.FormatName()
}

// NumStreams returns the amount of streams known so far. It never
// decreases during the life of the Container.
func (c *Container) NumStreams(ctx context.Context) int {
	c.discover(ctx)
	return len(c.streams)
}

// Stream returns the stream by its index in discovery order.
func (c *Container) Stream(ctx context.Context, idx int) (*Stream, error) {
	c.discover(ctx)
	if idx < 0 || idx >= len(c.streams) {
		return nil, types.InvalidArgumentf("stream index %d is out of range [0, %d)", idx, len(c.streams))
	}
	return c.streams[idx], nil
}

// Streams returns a snapshot of the discovered streams.
func (c *Container) Streams(ctx context.Context) []*Stream {
	c.discover(ctx)
	result := make([]*Stream, len(c.streams))
	copy(result, c.streams)
	return result
}

// discover wraps the native streams that appeared since the previous
// call. Already wrapped streams are never rescanned.
func (c *Container) discover(ctx context.Context) {
	numNative := c.formatCtx.NumStreams()
	for idx := len(c.streams); idx < numNative; idx++ {
		s := &Stream{
			container: c,
			index:     idx,
		}
		if c.direction == DirectionRead {
			s.info = c.input.StreamInfo(idx)
			s.decoder = c.findDecoder(ctx, idx, s.info)
		}
		logger.Tracef(ctx, "discovered %s stream #%d", c.direction, idx)
		c.streams = append(c.streams, s)
	}
	internal.Assert(ctx, len(c.streams) >= numNative, len(c.streams), numNative)
}

func (c *Container) findDecoder(
	ctx context.Context,
	idx int,
	info native.StreamInfo,
) *coder.Decoder {
	params := info.Parameters.Clone()
	params.TimeBase = info.TimeBase

	codec, err := coder.FindCodec(ctx, c.backend, "", params.CodecID, false)
	if err != nil {
		logger.Debugf(ctx, "stream #%d (%s) has no decoder: %v", idx, params.MediaType, err)
		return nil
	}
	dec, err := coder.NewDecoder(ctx, c.backend, codec, &params)
	if err != nil {
		logger.Warnf(ctx, "unable to initialize decoder '%s' for stream #%d: %v", codec.Name(), idx, err)
		return nil
	}
	c.closer.AddWithError(func() error {
		return dec.Close(ctx)
	})
	return dec
}
