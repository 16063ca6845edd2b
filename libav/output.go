//go:build with_libav
// +build with_libav

package libav

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/internal"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/observability"
)

type outputFormatContext struct {
	url           string
	formatContext *astiav.FormatContext
	interrupter   *astiav.IOInterrupter
	streams       []*astiav.Stream
	packet        *astiav.Packet
	closer        *astikit.Closer
	closed        bool
}

var _ native.OutputFormatContext = (*outputFormatContext)(nil)

func newOutput(
	ctx context.Context,
	url string,
	formatName string,
) (_ret *outputFormatContext, _err error) {
	logger.Debugf(observability.OnInsecureDebug(ctx), "newOutput(ctx, '%s', '%s')", url, formatName)
	defer func() { logger.Debugf(ctx, "/newOutput(ctx, ..., '%s'): %v", formatName, _err) }()

	o := &outputFormatContext{
		url:    url,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = o.closer.Close()
		}
	}()

	formatContext, err := astiav.AllocOutputFormatContext(nil, formatName, url)
	if err != nil {
		return nil, wrapError("avformat_alloc_output_context2", err)
	}
	if formatContext == nil {
		return nil, types.Runtimef("unable to allocate the output format context")
	}
	o.formatContext = formatContext
	o.closer.Add(o.formatContext.Free)
	o.interrupter = astiav.NewIOInterrupter()
	o.closer.Add(o.interrupter.Free)
	o.formatContext.SetIOInterrupter(o.interrupter)

	o.packet = astiav.AllocPacket()
	o.closer.Add(o.packet.Free)
	internal.SetFinalizer(ctx, o, func(o *outputFormatContext) { _ = o.Close() })
	return o, nil
}

func (o *outputFormatContext) FormatName() string {
	return o.formatContext.OutputFormat().Name()
}

func (o *outputFormatContext) URL() string {
	return o.url
}

func (o *outputFormatContext) NeedsFile() bool {
	return !o.formatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile)
}

func (o *outputFormatContext) OpenIO(
	ctx context.Context,
	ioHandler native.IOHandler,
	bufferLength int,
) error {
	if ioHandler != nil {
		if !ioHandler.IsWritable() {
			return types.InvalidArgumentf("the I/O handler is not writable")
		}
		ioContext, err := newIOContext(ioHandler, bufferLength)
		if err != nil {
			return err
		}
		o.closer.Add(ioContext.Free)
		o.formatContext.SetPb(ioContext)
		return nil
	}

	stop := interruptible(ctx, o.interrupter)
	defer stop()
	ioContext, err := astiav.OpenIOContext(
		o.url,
		astiav.NewIOContextFlags(astiav.IOContextFlagWrite),
		o.interrupter,
		nil,
	)
	if err != nil {
		return wrapError("avio_open2", err)
	}
	o.closer.Add(func() {
		if err := ioContext.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the IO context: %v", err)
		}
	})
	o.formatContext.SetPb(ioContext)
	return nil
}

func (o *outputFormatContext) AddStream(
	ctx context.Context,
	params types.MediaParameters,
) (int, error) {
	stream := o.formatContext.NewStream(nil)
	if stream == nil {
		return -1, types.Runtimef("unable to initialize an output stream")
	}
	if err := setStreamParameters(stream, params); err != nil {
		return -1, err
	}
	o.streams = append(o.streams, stream)
	return stream.Index(), nil
}

func setStreamParameters(stream *astiav.Stream, p types.MediaParameters) error {
	cp := stream.CodecParameters()
	cp.SetMediaType(mediaTypeToAstiav(p.MediaType))
	cp.SetCodecID(astiav.CodecID(p.CodecID))
	cp.SetBitRate(p.BitRate)
	switch p.MediaType {
	case types.MediaTypeVideo:
		cp.SetWidth(p.Width)
		cp.SetHeight(p.Height)
		cp.SetPixelFormat(astiav.PixelFormat(p.PixelFormat))
		if p.SampleAspectRatio.IsValid() {
			cp.SetSampleAspectRatio(rationalToAstiav(p.SampleAspectRatio))
		}
	case types.MediaTypeAudio:
		layout, err := channelLayoutToAstiav(p.ChannelLayout)
		if err != nil {
			return err
		}
		cp.SetSampleRate(p.SampleRate)
		cp.SetChannelLayout(layout)
		cp.SetSampleFormat(astiav.SampleFormat(p.SampleFormat))
		cp.SetFrameSize(p.FrameSize)
	}
	if len(p.ExtraData) > 0 {
		if err := cp.SetExtraData(p.ExtraData); err != nil {
			return wrapError("av_mallocz", err)
		}
	}
	if p.TimeBase.IsValid() {
		stream.SetTimeBase(rationalToAstiav(p.TimeBase))
	}
	if p.FrameRate.IsValid() {
		stream.SetAvgFrameRate(rationalToAstiav(p.FrameRate))
	}
	return nil
}

func (o *outputFormatContext) NumStreams() int {
	return len(o.streams)
}

func (o *outputFormatContext) StreamTimeBase(idx int) types.Rational {
	return rationalFromAstiav(o.streams[idx].TimeBase())
}

func (o *outputFormatContext) WriteHeader(ctx context.Context, options *types.Dictionary) error {
	dict := newAstiavDictionary(options)
	defer freeDictionary(dict)
	defer interruptible(ctx, o.interrupter)()
	if err := o.formatContext.WriteHeader(dict); err != nil {
		return wrapError("avformat_write_header", err)
	}
	consumeOptions(options, dict)
	return nil
}

// WritePacket reports true when the packet reached the I/O layer
// directly; interleaved packets may stay buffered inside the muxer.
func (o *outputFormatContext) WritePacket(
	ctx context.Context,
	pkt *media.Packet,
	interleave bool,
) (bool, error) {
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(o.streams) {
		return false, types.InvalidArgumentf("invalid stream index %d", pkt.StreamIndex)
	}
	o.packet.Unref()
	if err := o.packet.FromData(pkt.Data); err != nil {
		return false, wrapError("av_packet_from_data", err)
	}
	defer o.packet.Unref()
	o.packet.SetStreamIndex(pkt.StreamIndex)
	o.packet.SetPts(pkt.PTS)
	o.packet.SetDts(pkt.DTS)
	o.packet.SetDuration(pkt.Duration)
	o.packet.SetPos(pkt.BytePos)
	if pkt.Key {
		o.packet.SetFlags(o.packet.Flags().Add(astiav.PacketFlagKey))
	}

	defer interruptible(ctx, o.interrupter)()
	if interleave {
		if err := o.formatContext.WriteInterleavedFrame(o.packet); err != nil {
			return false, wrapError("av_interleaved_write_frame", err)
		}
		return interleavedFlushed(len(o.streams)), nil
	}
	if err := o.formatContext.WriteFrame(o.packet); err != nil {
		return false, wrapError("av_write_frame", err)
	}
	return true, nil
}

// interleavedFlushed reports whether the interleaving queue of the muxer
// is empty after a write. The queue releases packets only while every
// stream has one queued, so at least one packet stays behind unless there
// is a single stream.
func interleavedFlushed(numStreams int) bool {
	return numStreams <= 1
}

// WriteTrailer ignores the cancellation of ctx.
func (o *outputFormatContext) WriteTrailer(ctx context.Context) error {
	o.interrupter.Resume()
	return wrapError("av_write_trailer", o.formatContext.WriteTrailer())
}

func (o *outputFormatContext) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return o.closer.Close()
}
