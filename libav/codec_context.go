//go:build with_libav
// +build with_libav

package libav

import (
	"bytes"
	"context"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/internal"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type codecContext struct {
	codec          *Codec
	codecContext   *astiav.CodecContext
	allocator      native.BufferAllocator
	frame          *astiav.Frame
	packet         *astiav.Packet
	packetTimeBase types.Rational
	closer         *astikit.Closer
	closed         bool
}

var _ native.CodecContext = (*codecContext)(nil)

func newCodecContext(
	ctx context.Context,
	codec *Codec,
	allocator native.BufferAllocator,
) (_ret *codecContext, _err error) {
	logger.Debugf(ctx, "newCodecContext(ctx, '%s')", codec.Name())
	defer func() { logger.Debugf(ctx, "/newCodecContext(ctx, '%s'): %v", codec.Name(), _err) }()

	c := &codecContext{
		codec:     codec,
		allocator: allocator,
		closer:    astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = c.closer.Close()
		}
	}()

	c.codecContext = astiav.AllocCodecContext(codec.Codec)
	if c.codecContext == nil {
		return nil, types.Runtimef("unable to allocate a codec context for '%s'", codec.Name())
	}
	c.closer.Add(c.codecContext.Free)

	c.frame = astiav.AllocFrame()
	c.closer.Add(c.frame.Free)
	c.packet = astiav.AllocPacket()
	c.closer.Add(c.packet.Free)
	internal.SetFinalizer(ctx, c, releaseCodecContext)
	return c, nil
}

func (c *codecContext) Codec() native.Codec {
	return c.codec
}

func (c *codecContext) TimeBase() types.Rational {
	return rationalFromAstiav(c.codecContext.TimeBase())
}

func (c *codecContext) SetTimeBase(tb types.Rational) {
	c.codecContext.SetTimeBase(rationalToAstiav(tb))
}

func (c *codecContext) Flags() uint32 {
	return uint32(c.codecContext.Flags())
}

func (c *codecContext) SetFlags(v uint32) {
	c.codecContext.SetFlags(astiav.CodecContextFlags(v))
}

func (c *codecContext) Flags2() uint32 {
	return uint32(c.codecContext.Flags2())
}

func (c *codecContext) SetFlags2(v uint32) {
	c.codecContext.SetFlags2(astiav.CodecContextFlags2(v))
}

func (c *codecContext) FrameSize() int {
	return c.codecContext.FrameSize()
}

func (c *codecContext) Parameters() types.MediaParameters {
	cc := c.codecContext
	p := types.MediaParameters{
		MediaType: mediaTypeFromAstiav(cc.MediaType()),
		CodecID:   types.CodecID(cc.CodecID()),
		BitRate:   cc.BitRate(),
		TimeBase:  rationalFromAstiav(cc.TimeBase()),
		FrameRate: rationalFromAstiav(cc.Framerate()),
	}
	switch p.MediaType {
	case types.MediaTypeVideo:
		p.Width = cc.Width()
		p.Height = cc.Height()
		p.PixelFormat = types.PixelFormat(cc.PixelFormat())
		p.SampleAspectRatio = rationalFromAstiav(cc.SampleAspectRatio())
	case types.MediaTypeAudio:
		p.SampleRate = cc.SampleRate()
		p.ChannelLayout = channelLayoutFromAstiav(cc.ChannelLayout())
		p.SampleFormat = types.SampleFormat(cc.SampleFormat())
		p.FrameSize = cc.FrameSize()
	}

	params := astiav.AllocCodecParameters()
	defer params.Free()
	if err := params.FromCodecContext(cc); err == nil {
		p.ExtraData = bytes.Clone(params.ExtraData())
	}
	return p
}

func (c *codecContext) SetParameters(p types.MediaParameters) error {
	if p.MediaType != c.codec.MediaType() {
		return types.InvalidArgumentf("cannot apply %s parameters to a %s codec", p.MediaType, c.codec.MediaType())
	}
	cc := c.codecContext
	switch p.MediaType {
	case types.MediaTypeVideo:
		cc.SetWidth(p.Width)
		cc.SetHeight(p.Height)
		cc.SetPixelFormat(astiav.PixelFormat(p.PixelFormat))
		if p.SampleAspectRatio.IsValid() {
			cc.SetSampleAspectRatio(rationalToAstiav(p.SampleAspectRatio))
		}
	case types.MediaTypeAudio:
		cc.SetSampleRate(p.SampleRate)
		cc.SetSampleFormat(astiav.SampleFormat(p.SampleFormat))
		if p.ChannelLayout.Channels > 0 {
			layout, err := channelLayoutToAstiav(p.ChannelLayout)
			if err != nil {
				return err
			}
			cc.SetChannelLayout(layout)
		}
	}
	if p.BitRate > 0 {
		cc.SetBitRate(p.BitRate)
	}
	if p.TimeBase.IsValid() {
		cc.SetTimeBase(rationalToAstiav(p.TimeBase))
	}
	if p.FrameRate.IsValid() {
		cc.SetFramerate(rationalToAstiav(p.FrameRate))
	}
	if len(p.ExtraData) == 0 {
		return nil
	}

	params := astiav.AllocCodecParameters()
	defer params.Free()
	if err := params.FromCodecContext(cc); err != nil {
		return wrapError("avcodec_parameters_from_context", err)
	}
	if err := params.SetExtraData(p.ExtraData); err != nil {
		return wrapError("av_mallocz", err)
	}
	if err := params.ToCodecContext(cc); err != nil {
		return wrapError("avcodec_parameters_to_context", err)
	}
	return nil
}

// ApplyOptions consumes the generic options mapped onto the codec context
// fields; the rest is left for Open.
func (c *codecContext) ApplyOptions(ctx context.Context, options *types.Dictionary) error {
	for _, item := range options.Items() {
		switch item.Key {
		case "b":
			v, err := strconv.ParseInt(item.Value, 10, 64)
			if err != nil {
				return types.NewNativeError("av_opt_set", errCodeInvalidArgument, "invalid bit rate '"+item.Value+"'")
			}
			c.codecContext.SetBitRate(v)
		case "g":
			v, err := strconv.Atoi(item.Value)
			if err != nil || v <= 0 {
				return types.NewNativeError("av_opt_set", errCodeInvalidArgument, "invalid gop size '"+item.Value+"'")
			}
			c.codecContext.SetGopSize(v)
		case "threads":
			v, err := strconv.Atoi(item.Value)
			if err != nil || v < 0 {
				return types.NewNativeError("av_opt_set", errCodeInvalidArgument, "invalid thread count '"+item.Value+"'")
			}
			c.codecContext.SetThreadCount(v)
		default:
			continue
		}
		options.Delete(item.Key)
	}
	return nil
}

func (c *codecContext) Open(ctx context.Context, options *types.Dictionary) error {
	dict := newAstiavDictionary(options)
	defer freeDictionary(dict)
	if err := c.codecContext.Open(c.codec.Codec, dict); err != nil {
		return wrapError("avcodec_open2", err)
	}
	consumeOptions(options, dict)
	logger.Debugf(ctx, "opened '%s' (encoder: %t)", c.codec.Name(), c.codec.IsEncoder())
	return nil
}

func (c *codecContext) SendPacket(ctx context.Context, pkt *media.Packet) error {
	if pkt == nil {
		return wrapError("avcodec_send_packet", c.codecContext.SendPacket(nil))
	}
	c.packet.Unref()
	if err := c.packet.FromData(pkt.Data); err != nil {
		return wrapError("av_packet_from_data", err)
	}
	c.packet.SetPts(pkt.PTS)
	c.packet.SetDts(pkt.DTS)
	c.packet.SetDuration(pkt.Duration)
	if pkt.Key {
		c.packet.SetFlags(c.packet.Flags().Add(astiav.PacketFlagKey))
	}
	c.packetTimeBase = pkt.TimeBase
	return wrapError("avcodec_send_packet", c.codecContext.SendPacket(c.packet))
}

func (c *codecContext) ReceiveFrame(ctx context.Context, out media.Raw) error {
	if out.MediaType() != c.codec.MediaType() {
		return types.InvalidArgumentf("expected %s output, got %s", c.codec.MediaType(), out.MediaType())
	}
	c.frame.Unref()
	if err := c.codecContext.ReceiveFrame(c.frame); err != nil {
		return wrapError("avcodec_receive_frame", err)
	}
	defer c.frame.Unref()

	tb := c.packetTimeBase
	if !tb.IsValid() {
		tb = c.TimeBase()
	}
	return exportFrame(ctx, c.allocator, c.frame, out, tb)
}

func (c *codecContext) SendFrame(ctx context.Context, in media.Raw) error {
	if in == nil {
		return wrapError("avcodec_send_frame", c.codecContext.SendFrame(nil))
	}
	if in.MediaType() != c.codec.MediaType() {
		return types.InvalidArgumentf("expected %s input, got %s", c.codec.MediaType(), in.MediaType())
	}
	if err := importFrame(in, c.frame); err != nil {
		return err
	}
	defer c.frame.Unref()
	return wrapError("avcodec_send_frame", c.codecContext.SendFrame(c.frame))
}

func (c *codecContext) ReceivePacket(ctx context.Context, out *media.Packet) error {
	c.packet.Unref()
	if err := c.codecContext.ReceivePacket(c.packet); err != nil {
		return wrapError("avcodec_receive_packet", err)
	}
	defer c.packet.Unref()
	packetToMedia(c.packet, out, c.TimeBase())
	return nil
}

func (c *codecContext) Close() error {
	if c.closed {
		return types.InvalidStatef("the codec context of '%s' is already closed", c.codec.Name())
	}
	c.closed = true
	return c.closer.Close()
}

func releaseCodecContext(c *codecContext) {
	if !c.closed {
		_ = c.Close()
	}
}

func packetToMedia(pkt *astiav.Packet, out *media.Packet, timeBase types.Rational) {
	out.Data = append(out.Data[:0], pkt.Data()...)
	out.PTS = pkt.Pts()
	out.DTS = pkt.Dts()
	out.Duration = pkt.Duration()
	out.BytePos = pkt.Pos()
	out.TimeBase = timeBase
	out.Key = pkt.Flags().Has(astiav.PacketFlagKey)
	out.Discontinuous = false
	out.Complete = true
}
