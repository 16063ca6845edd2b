package fakeav

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

// readyQueueLimit is how many produced units a context may hold before
// refusing more input with ErrAgain.
const readyQueueLimit = 3

var genericCodecOptions = []string{"b", "g", "threads", "bufsize", "maxrate"}

type unit struct {
	pts        int64
	dts        int64
	duration   int64
	timeBase   types.Rational
	key        bool
	numSamples int
	planes     [][]byte
}

type codecContext struct {
	backend   *Backend
	codec     *Codec
	allocator native.BufferAllocator

	params   types.MediaParameters
	timeBase types.Rational
	flags    uint32
	flags2   uint32
	gopSize  int
	options  map[string]string

	opened   bool
	draining bool
	closed   bool
	pending  []unit
	ready    []unit
	counter  int64
}

var _ native.CodecContext = (*codecContext)(nil)

func newCodecContext(
	backend *Backend,
	codec *Codec,
	allocator native.BufferAllocator,
) *codecContext {
	return &codecContext{
		backend:   backend,
		codec:     codec,
		allocator: allocator,
		params: types.MediaParameters{
			MediaType:    codec.mediaType,
			CodecID:      codec.id,
			PixelFormat:  types.PixelFormatNone,
			SampleFormat: types.SampleFormatNone,
			FrameSize:    codec.frameSize,
		},
		gopSize: 12,
		options: map[string]string{},
	}
}

func (c *codecContext) Codec() native.Codec {
	return c.codec
}

func (c *codecContext) TimeBase() types.Rational {
	return c.timeBase
}

func (c *codecContext) SetTimeBase(tb types.Rational) {
	c.timeBase = tb
}

func (c *codecContext) Flags() uint32 {
	return c.flags
}

func (c *codecContext) SetFlags(v uint32) {
	c.flags = v
}

func (c *codecContext) Flags2() uint32 {
	return c.flags2
}

func (c *codecContext) SetFlags2(v uint32) {
	c.flags2 = v
}

func (c *codecContext) FrameSize() int {
	if c.codec.encoder {
		return c.codec.frameSize
	}
	return c.params.FrameSize
}

func (c *codecContext) Parameters() types.MediaParameters {
	p := c.params.Clone()
	p.TimeBase = c.timeBase
	return p
}

func (c *codecContext) SetParameters(p types.MediaParameters) error {
	if p.MediaType != types.MediaTypeUnknown && p.MediaType != c.codec.mediaType {
		return types.NewNativeError("avcodec_parameters_to_context", errCodeInvalidArgument,
			fmt.Sprintf("media type %s does not match codec %s", p.MediaType, c.codec.name))
	}
	p = p.Clone()
	p.MediaType = c.codec.mediaType
	p.CodecID = c.codec.id
	if p.FrameSize == 0 {
		p.FrameSize = c.params.FrameSize
	}
	c.params = p
	if p.TimeBase.IsValid() {
		c.timeBase = p.TimeBase
	}
	return nil
}

func consumeOptions(
	options *types.Dictionary,
	known []string,
	apply func(key, value string) error,
) error {
	for _, item := range options.Items() {
		if !slices.Contains(known, item.Key) {
			continue
		}
		if err := apply(item.Key, item.Value); err != nil {
			return err
		}
		options.Delete(item.Key)
	}
	return nil
}

func (c *codecContext) ApplyOptions(ctx context.Context, options *types.Dictionary) error {
	return consumeOptions(options, genericCodecOptions, func(key, value string) error {
		switch key {
		case "b":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return types.NewNativeError("av_opt_set", errCodeInvalidArgument, fmt.Sprintf("invalid bit rate '%s'", value))
			}
			c.params.BitRate = v
		case "g":
			v, err := strconv.Atoi(value)
			if err != nil || v <= 0 {
				return types.NewNativeError("av_opt_set", errCodeInvalidArgument, fmt.Sprintf("invalid gop size '%s'", value))
			}
			c.gopSize = v
		default:
			c.options[key] = value
		}
		return nil
	})
}

func (c *codecContext) Open(ctx context.Context, options *types.Dictionary) error {
	if c.opened {
		return types.NewNativeError("avcodec_open2", errCodeInvalidArgument, "already opened")
	}
	if c.codec.encoder {
		if !c.timeBase.IsValid() {
			return types.NewNativeError("avcodec_open2", errCodeInvalidArgument, "the encoder time base is not set")
		}
		switch c.codec.mediaType {
		case types.MediaTypeVideo:
			if c.params.Width <= 0 || c.params.Height <= 0 || c.params.PixelFormat == types.PixelFormatNone {
				return types.NewNativeError("avcodec_open2", errCodeInvalidArgument, "dimensions or pixel format are not set")
			}
		case types.MediaTypeAudio:
			if c.params.SampleRate <= 0 || c.params.ChannelLayout.Channels <= 0 || c.params.SampleFormat == types.SampleFormatNone {
				return types.NewNativeError("avcodec_open2", errCodeInvalidArgument, "audio format is not set")
			}
		}
	}
	if err := c.ApplyOptions(ctx, options); err != nil {
		return err
	}
	if err := consumeOptions(options, c.codec.privateOpts, func(key, value string) error {
		c.options[key] = value
		return nil
	}); err != nil {
		return err
	}
	c.opened = true
	c.backend.log(ctx, logger.LevelDebug, "opened %s (encoder: %t)", c.codec.name, c.codec.encoder)
	return nil
}

func (c *codecContext) checkPush(op string, isEncoder bool) error {
	switch {
	case c.closed || !c.opened:
		return types.NewNativeError(op, errCodeInvalidArgument, "the codec is not opened")
	case c.codec.encoder != isEncoder:
		return types.NewNativeError(op, errCodeInvalidArgument, "wrong direction")
	case c.draining:
		return native.ErrEOF
	case len(c.ready) >= readyQueueLimit:
		return native.ErrAgain
	}
	return nil
}

func (c *codecContext) push(u unit) {
	if c.codec.delay == 0 {
		c.ready = append(c.ready, u)
		return
	}
	c.pending = append(c.pending, u)
	if len(c.pending) > c.codec.delay {
		c.ready = append(c.ready, c.pending[0])
		c.pending = c.pending[1:]
	}
}

func (c *codecContext) drain() {
	c.draining = true
	c.ready = append(c.ready, c.pending...)
	c.pending = nil
}

func (c *codecContext) pop() (unit, error) {
	if len(c.ready) == 0 {
		if c.draining {
			return unit{}, native.ErrEOF
		}
		return unit{}, native.ErrAgain
	}
	u := c.ready[0]
	c.ready = c.ready[1:]
	return u, nil
}

const h264Magic = 0xFA

func (c *codecContext) SendPacket(ctx context.Context, pkt *media.Packet) error {
	if err := c.checkPush("avcodec_send_packet", false); err != nil {
		return err
	}
	if pkt == nil {
		c.drain()
		return nil
	}

	data := pkt.Data
	u := unit{
		pts:      pkt.PTS,
		dts:      pkt.DTS,
		duration: pkt.Duration,
		timeBase: pkt.TimeBase,
		key:      pkt.Key,
	}
	switch c.codec.id {
	case CodecIDH264:
		if len(data) < 2 || data[0] != h264Magic {
			return types.NewNativeError("avcodec_send_packet", errCodeInvalidData, "invalid data found when processing input")
		}
		u.key = data[1] == 1
		data = data[2:]
	case CodecIDAAC:
		if len(data) < 4 {
			return types.NewNativeError("avcodec_send_packet", errCodeInvalidData, "invalid data found when processing input")
		}
		u.numSamples = int(binary.LittleEndian.Uint32(data))
		data = data[4:]
	}

	switch c.codec.mediaType {
	case types.MediaTypeVideo:
		u.planes = splitPicture(data, c.params.Width, c.params.Height, c.params.PixelFormat)
	case types.MediaTypeAudio:
		if u.numSamples == 0 {
			channels := max(c.params.ChannelLayout.Channels, 1)
			u.numSamples = len(data) / (2 * channels)
		}
		u.planes = [][]byte{bytes.Clone(data)}
	default:
		return types.NewNativeError("avcodec_send_packet", errCodeInvalidArgument, "unsupported media type")
	}
	c.push(u)
	return nil
}

func (c *codecContext) ReceiveFrame(ctx context.Context, out media.Raw) error {
	if c.codec.encoder || !c.opened || c.closed {
		return types.NewNativeError("avcodec_receive_frame", errCodeInvalidArgument, "not an opened decoder")
	}
	if out.MediaType() != c.codec.mediaType {
		return types.NewNativeError("avcodec_receive_frame", errCodeInvalidArgument,
			fmt.Sprintf("expected %s output, got %s", c.codec.mediaType, out.MediaType()))
	}
	u, err := c.pop()
	if err != nil {
		return err
	}

	switch out := out.(type) {
	case *media.Picture:
		out.Width = c.params.Width
		out.Height = c.params.Height
		out.PixelFormat = c.params.PixelFormat
		out.Strides = pictureStrides(c.params.Width, c.params.PixelFormat)
	case *media.Audio:
		out.SampleRate = c.params.SampleRate
		out.ChannelLayout = c.params.ChannelLayout
		out.SampleFormat = c.params.SampleFormat
		out.NumSamples = u.numSamples
	}
	if err := native.ExportPlanes(ctx, c.allocator, out, u.planes); err != nil {
		return fmt.Errorf("unable to allocate the frame buffers: %w", err)
	}
	common := out.GetCommon()
	common.PTS = u.pts
	common.TimeBase = u.timeBase
	common.Key = u.key
	common.Discontinuous = false
	common.Complete = true
	return nil
}

func (c *codecContext) SendFrame(ctx context.Context, in media.Raw) error {
	if err := c.checkPush("avcodec_send_frame", true); err != nil {
		return err
	}
	if in == nil {
		c.drain()
		return nil
	}
	if in.MediaType() != c.codec.mediaType {
		return types.NewNativeError("avcodec_send_frame", errCodeInvalidArgument, "media type mismatch")
	}

	common := in.GetCommon()
	u := unit{
		pts:      common.PTS,
		dts:      common.PTS,
		timeBase: c.timeBase,
	}
	var payload []byte
	for _, plane := range in.GetPlanes() {
		payload = append(payload, plane...)
	}

	switch in := in.(type) {
	case *media.Picture:
		u.key = c.counter%int64(c.gopSize) == 0 || common.Key
		u.duration = 0
		if c.params.FrameRate.IsValid() {
			u.duration = types.Rescale(1, c.params.FrameRate.Invert(), c.timeBase)
		}
	case *media.Audio:
		u.key = true
		u.numSamples = in.NumSamples
		u.duration = types.Rescale(int64(in.NumSamples), types.NewRational(1, max(in.SampleRate, 1)), c.timeBase)
	}

	switch c.codec.id {
	case CodecIDH264:
		key := byte(0)
		if u.key {
			key = 1
		}
		payload = append([]byte{h264Magic, key}, payload...)
	case CodecIDAAC:
		hdr := binary.LittleEndian.AppendUint32(nil, uint32(u.numSamples))
		payload = append(hdr, payload...)
	}
	u.planes = [][]byte{payload}
	c.counter++
	c.push(u)
	return nil
}

func (c *codecContext) ReceivePacket(ctx context.Context, out *media.Packet) error {
	if !c.codec.encoder || !c.opened || c.closed {
		return types.NewNativeError("avcodec_receive_packet", errCodeInvalidArgument, "not an opened encoder")
	}
	u, err := c.pop()
	if err != nil {
		return err
	}
	out.Data = append(out.Data[:0], u.planes[0]...)
	out.PTS = u.pts
	out.DTS = u.dts
	out.Duration = u.duration
	out.TimeBase = u.timeBase
	out.Key = u.key
	out.Complete = true
	return nil
}

func (c *codecContext) Close() error {
	if c.closed {
		return types.NewNativeError("avcodec_free_context", errCodeInvalidArgument, "double free")
	}
	c.closed = true
	c.pending = nil
	c.ready = nil
	return nil
}
