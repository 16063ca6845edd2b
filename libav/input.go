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

type inputFormatContext struct {
	formatContext *astiav.FormatContext
	interrupter   *astiav.IOInterrupter
	packet        *astiav.Packet
	closer        *astikit.Closer
	closed        bool
}

var _ native.InputFormatContext = (*inputFormatContext)(nil)

func openInput(
	ctx context.Context,
	url string,
	formatName string,
	ioHandler native.IOHandler,
	options *types.Dictionary,
) (_ret *inputFormatContext, _err error) {
	logger.Debugf(observability.OnInsecureDebug(ctx), "openInput(ctx, '%s', '%s')", url, formatName)
	defer func() { logger.Debugf(ctx, "/openInput(ctx, ..., '%s'): %v", formatName, _err) }()

	i := &inputFormatContext{
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = i.closer.Close()
		}
	}()

	i.formatContext = astiav.AllocFormatContext()
	if i.formatContext == nil {
		return nil, types.Runtimef("unable to allocate a format context")
	}
	i.closer.Add(i.formatContext.Free)
	i.interrupter = astiav.NewIOInterrupter()
	i.closer.Add(i.interrupter.Free)
	i.formatContext.SetIOInterrupter(i.interrupter)

	var inputFormat *astiav.InputFormat
	if formatName != "" {
		inputFormat = astiav.FindInputFormat(formatName)
		if inputFormat == nil {
			return nil, types.NotFoundf("input format '%s'", formatName)
		}
	}

	if ioHandler != nil {
		ioContext, err := newIOContext(ioHandler, 0)
		if err != nil {
			return nil, err
		}
		i.closer.Add(ioContext.Free)
		i.formatContext.SetPb(ioContext)
		url = ""
	}

	dict := newAstiavDictionary(options)
	defer freeDictionary(dict)
	stop := interruptible(ctx, i.interrupter)
	defer stop()
	if err := i.formatContext.OpenInput(url, inputFormat, dict); err != nil {
		return nil, wrapError("avformat_open_input", err)
	}
	i.closer.Add(i.formatContext.CloseInput)
	consumeOptions(options, dict)

	i.packet = astiav.AllocPacket()
	i.closer.Add(i.packet.Free)
	internal.SetFinalizer(ctx, i, func(i *inputFormatContext) { _ = i.Close() })
	return i, nil
}

func (i *inputFormatContext) FormatName() string {
	if f := i.formatContext.InputFormat(); f != nil {
		return f.Name()
	}
	return ""
}

func (i *inputFormatContext) FindStreamInfo(ctx context.Context) error {
	defer interruptible(ctx, i.interrupter)()
	return wrapError("avformat_find_stream_info", i.formatContext.FindStreamInfo(nil))
}

func (i *inputFormatContext) NumStreams() int {
	return len(i.formatContext.Streams())
}

func (i *inputFormatContext) StreamInfo(idx int) native.StreamInfo {
	stream := i.formatContext.Streams()[idx]
	cp := stream.CodecParameters()
	p := types.MediaParameters{
		MediaType: mediaTypeFromAstiav(cp.MediaType()),
		CodecID:   types.CodecID(cp.CodecID()),
		BitRate:   cp.BitRate(),
		TimeBase:  rationalFromAstiav(stream.TimeBase()),
		FrameRate: rationalFromAstiav(stream.AvgFrameRate()),
		ExtraData: cp.ExtraData(),
	}
	switch p.MediaType {
	case types.MediaTypeVideo:
		p.Width = cp.Width()
		p.Height = cp.Height()
		p.PixelFormat = types.PixelFormat(cp.PixelFormat())
		p.SampleAspectRatio = rationalFromAstiav(cp.SampleAspectRatio())
	case types.MediaTypeAudio:
		p.SampleRate = cp.SampleRate()
		p.ChannelLayout = channelLayoutFromAstiav(cp.ChannelLayout())
		p.SampleFormat = types.SampleFormat(cp.SampleFormat())
		p.FrameSize = cp.FrameSize()
	}
	return native.StreamInfo{
		Parameters: p.Clone(),
		TimeBase:   p.TimeBase,
	}
}

func (i *inputFormatContext) ReadPacket(ctx context.Context, pkt *media.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.packet.Unref()
	stop := interruptible(ctx, i.interrupter)
	err := i.formatContext.ReadFrame(i.packet)
	stop()
	if err != nil {
		return wrapError("av_read_frame", err)
	}
	defer i.packet.Unref()

	streamIndex := i.packet.StreamIndex()
	packetToMedia(i.packet, pkt, rationalFromAstiav(i.formatContext.Streams()[streamIndex].TimeBase()))
	pkt.StreamIndex = streamIndex
	return nil
}

func (i *inputFormatContext) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	return i.closer.Close()
}
