package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type DemuxerConfig struct {
	// FormatName forces the input format; empty means probing.
	FormatName string

	// IOHandler replaces the URL as the byte source if set.
	IOHandler native.IOHandler

	Options *types.Dictionary
}

// Demuxer is a read container.
type Demuxer struct {
	*Container
	url         string
	endOfStream bool
	closed      bool
}

// OpenDemuxer opens the input and reads the stream information. Options
// not recognized by the input format are copied into unsetOptionsOut if
// it is not nil.
func OpenDemuxer(
	ctx context.Context,
	backend native.Backend,
	url string,
	cfg DemuxerConfig,
	unsetOptionsOut *types.Dictionary,
) (_ret *Demuxer, _err error) {
	logger.Debugf(ctx, "OpenDemuxer(ctx, '%s', %#+v)", url, cfg)
	defer func() { logger.Debugf(ctx, "/OpenDemuxer(ctx, '%s'): %v", url, _err) }()

	if url == "" && cfg.IOHandler == nil {
		return nil, types.InvalidArgumentf("neither the URL nor the I/O handler is provided")
	}

	options := cfg.Options.Clone()
	defer options.Reset()

	input, err := backend.OpenInput(ctx, url, cfg.FormatName, cfg.IOHandler, options)
	if err != nil {
		return nil, fmt.Errorf("unable to open input by URL '%s': %w", url, err)
	}
	d := &Demuxer{
		Container: newReadContainer(backend, input),
		url:       url,
	}
	d.closer.AddWithError(input.Close)
	defer func() {
		if _err != nil {
			_ = d.Close(ctx)
		}
	}()

	if err := input.FindStreamInfo(ctx); err != nil {
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}
	if unsetOptionsOut != nil {
		unsetOptionsOut.CopyFrom(options)
	}
	return d, nil
}

func (d *Demuxer) URL() string {
	return d.url
}

// Read fills pkt with the next packet. The packet is stamped with the
// time base of its stream.
func (d *Demuxer) Read(
	ctx context.Context,
	pkt *media.Packet,
) (_ret types.Result, _err error) {
	logger.Tracef(ctx, "Read")
	defer func() { logger.Tracef(ctx, "/Read: %v %v %v", pkt, _ret, _err) }()

	if d.closed {
		return types.ResultSuccess, types.InvalidStatef("the demuxer is closed")
	}
	if pkt == nil {
		return types.ResultSuccess, types.InvalidArgumentf("the packet is nil")
	}
	if d.endOfStream {
		return types.ResultEndOfStream, nil
	}

	pkt.Complete = false
	err := d.input.ReadPacket(ctx, pkt)
	switch {
	case err == nil:
	case errors.Is(err, native.ErrEOF):
		d.endOfStream = true
		return types.ResultEndOfStream, nil
	default:
		return types.ResultSuccess, fmt.Errorf("unable to read a packet: %w", err)
	}

	// a packet may belong to a stream that just appeared
	d.discover(ctx)
	logger.Tracef(ctx, "received a packet (stream: %d, pts:%d, dts:%d, dur:%d)", pkt.StreamIndex, pkt.PTS, pkt.DTS, pkt.Duration)
	return types.ResultSuccess, nil
}

func (d *Demuxer) IsEndOfStream() bool {
	return d.endOfStream
}

// Close releases the decoders of the streams and the input. It is safe
// to call it more than once.
func (d *Demuxer) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	logger.Debugf(ctx, "closing the demuxer of '%s'", d.url)
	return d.closer.Close()
}
