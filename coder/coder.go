// Package coder implements the lifecycle shared by decoders and encoders,
// and the send/receive data-flow protocol on top of it.
package coder

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

// defaultAudioFrameSize replaces an unreliable frame size reported by some
// PCM codecs.
const defaultAudioFrameSize = 576

type Coder struct {
	codec     native.Codec
	codecCtx  native.CodecContext
	allocator native.BufferAllocator
	state     State
	timeBase  types.Rational
	closer    *astikit.Closer
	closed    bool
}

// FindCodec looks the codec up by name if it is set, by ID otherwise.
func FindCodec(
	ctx context.Context,
	backend native.Backend,
	codecName string,
	codecID types.CodecID,
	isEncoder bool, // otherwise: decoder
) (native.Codec, error) {
	var (
		codec native.Codec
		err   error
	)
	switch {
	case codecName != "" && isEncoder:
		codec, err = backend.FindEncoderByName(ctx, codecName)
	case codecName != "":
		codec, err = backend.FindDecoderByName(ctx, codecName)
	case isEncoder:
		codec, err = backend.FindEncoder(ctx, codecID)
	default:
		codec, err = backend.FindDecoder(ctx, codecID)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to find a codec using name '%s' or codec ID %v: %w", codecName, codecID, err)
	}
	return codec, nil
}

func newCoder(
	ctx context.Context,
	backend native.Backend,
	codec native.Codec,
	params *types.MediaParameters,
	isEncoder bool,
) (_ret *Coder, _err error) {
	logger.Tracef(ctx, "newCoder(ctx, %s, %v, %t)", codec.Name(), params, isEncoder)
	defer func() {
		logger.Tracef(ctx, "/newCoder(ctx, %s, %v, %t): %v", codec.Name(), params, isEncoder, _err)
	}()

	if codec.IsEncoder() != isEncoder {
		return nil, types.InvalidArgumentf("codec '%s' has a wrong direction (encoder: %t)", codec.Name(), codec.IsEncoder())
	}

	c := &Coder{
		codec:    codec,
		timeBase: types.DefaultTimeBase(),
		closer:   astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = c.Close(ctx)
		}
	}()

	if codec.Capabilities().Has(types.CodecCapabilityDirectRendering) {
		c.allocator = &directRenderingAllocator{}
	} else {
		c.allocator = native.DefaultBufferAllocator{}
	}

	codecCtx, err := backend.NewCodecContext(ctx, codec, c.allocator)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate a codec context for '%s': %w", codec.Name(), err)
	}
	c.codecCtx = codecCtx
	c.closer.AddWithError(codecCtx.Close)

	if params != nil {
		if err := c.codecCtx.SetParameters(*params); err != nil {
			return nil, fmt.Errorf("unable to apply the codec parameters: %w", err)
		}
	}
	if tb := c.codecCtx.TimeBase(); tb.IsValid() {
		c.timeBase = tb
	} else {
		c.codecCtx.SetTimeBase(c.timeBase)
	}
	return c, nil
}

func (c *Coder) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s)", c.codec.Name(), c.state)
}

func (c *Coder) State() State {
	return c.state
}

func (c *Coder) Codec() native.Codec {
	return c.codec
}

func (c *Coder) MediaType() types.MediaType {
	return c.codec.MediaType()
}

func (c *Coder) IsEncoder() bool {
	return c.codec.IsEncoder()
}

func (c *Coder) setState(ctx context.Context, state State) {
	logger.Tracef(ctx, "%s: state %s -> %s", c.codec.Name(), c.state, state)
	c.state = state
}

func (c *Coder) fail(ctx context.Context, err error) error {
	logger.Debugf(ctx, "%s: failed: %v", c.codec.Name(), err)
	c.setState(ctx, StateError)
	return err
}

func (c *Coder) checkMutable(op string) error {
	if c.closed {
		return types.InvalidStatef("%s: the coder is closed", op)
	}
	if c.state != StateInited {
		return types.InvalidStatef("%s is allowed only in state %s, but the coder is %s", op, StateInited, c.state)
	}
	return nil
}

func (c *Coder) checkUsable(op string) error {
	switch {
	case c.closed:
		return types.InvalidStatef("%s: the coder is closed", op)
	case c.state == StateError:
		return types.InvalidStatef("%s: the coder is in state %s", op, StateError)
	case c.state == StateInited:
		return types.InvalidStatef("%s: the coder is not opened", op)
	}
	return nil
}

// TimeBase returns the cached time base, refreshed if the codec changed it.
func (c *Coder) TimeBase() types.Rational {
	if c.codecCtx != nil && !c.closed {
		if tb := c.codecCtx.TimeBase(); tb.IsValid() && !tb.Equal(c.timeBase) {
			c.timeBase = tb
		}
	}
	return c.timeBase
}

func (c *Coder) SetTimeBase(ctx context.Context, tb types.Rational) error {
	if err := c.checkMutable("SetTimeBase"); err != nil {
		return err
	}
	if !tb.IsValid() {
		return types.InvalidArgumentf("invalid time base %s", tb)
	}
	c.timeBase = tb
	c.codecCtx.SetTimeBase(tb)
	return nil
}

func (c *Coder) Flags() uint32 {
	return c.codecCtx.Flags()
}

func (c *Coder) Flag(flag uint32) bool {
	return c.Flags()&flag == flag
}

func (c *Coder) SetFlags(ctx context.Context, flags uint32) error {
	if err := c.checkMutable("SetFlags"); err != nil {
		return err
	}
	c.codecCtx.SetFlags(flags)
	return nil
}

func (c *Coder) SetFlag(ctx context.Context, flag uint32, value bool) error {
	return c.SetFlags(ctx, setBit(c.Flags(), flag, value))
}

func (c *Coder) Flags2() uint32 {
	return c.codecCtx.Flags2()
}

func (c *Coder) Flag2(flag uint32) bool {
	return c.Flags2()&flag == flag
}

func (c *Coder) SetFlags2(ctx context.Context, flags uint32) error {
	if err := c.checkMutable("SetFlags2"); err != nil {
		return err
	}
	c.codecCtx.SetFlags2(flags)
	return nil
}

func (c *Coder) SetFlag2(ctx context.Context, flag uint32, value bool) error {
	return c.SetFlags2(ctx, setBit(c.Flags2(), flag, value))
}

func setBit(flags, flag uint32, value bool) uint32 {
	if value {
		return flags | flag
	}
	return flags &^ flag
}

// FrameSize is the number of samples per channel in an audio frame.
func (c *Coder) FrameSize() int {
	size := c.codecCtx.FrameSize()
	if c.MediaType() == types.MediaTypeAudio && size >= 0 && size <= 1 {
		return defaultAudioFrameSize
	}
	return size
}

func (c *Coder) MediaParameters() types.MediaParameters {
	p := c.codecCtx.Parameters()
	p.TimeBase = c.TimeBase()
	return p
}

func (c *Coder) SetMediaParameters(ctx context.Context, params *types.MediaParameters) error {
	if params == nil {
		return types.InvalidArgumentf("media parameters are nil")
	}
	if err := c.checkMutable("SetMediaParameters"); err != nil {
		return err
	}
	if err := c.codecCtx.SetParameters(*params); err != nil {
		return c.fail(ctx, fmt.Errorf("unable to set the media parameters: %w", err))
	}
	if params.TimeBase.IsValid() {
		c.timeBase = params.TimeBase
	}
	return nil
}

// SetPictureFormat is a shorthand to configure the video geometry.
func (c *Coder) SetPictureFormat(ctx context.Context, width, height int, pixFmt types.PixelFormat) error {
	if c.MediaType() != types.MediaTypeVideo {
		return types.InvalidArgumentf("'%s' is not a video codec", c.codec.Name())
	}
	p := c.MediaParameters()
	p.Width, p.Height, p.PixelFormat = width, height, pixFmt
	return c.SetMediaParameters(ctx, &p)
}

// SetAudioFormat is a shorthand to configure the audio format.
func (c *Coder) SetAudioFormat(ctx context.Context, sampleRate int, layout types.ChannelLayout, sampleFmt types.SampleFormat) error {
	if c.MediaType() != types.MediaTypeAudio {
		return types.InvalidArgumentf("'%s' is not an audio codec", c.codec.Name())
	}
	p := c.MediaParameters()
	p.SampleRate, p.ChannelLayout, p.SampleFormat = sampleRate, layout, sampleFmt
	return c.SetMediaParameters(ctx, &p)
}

func (c *Coder) EnsurePictureParamsMatch(p *media.Picture) error {
	if p == nil {
		return nil
	}
	params := c.codecCtx.Parameters()
	if p.Width != params.Width || p.Height != params.Height || p.PixelFormat != params.PixelFormat {
		return types.InvalidArgumentf("picture %dx%d (pix_fmt %d) does not match the coder %dx%d (pix_fmt %d)",
			p.Width, p.Height, p.PixelFormat, params.Width, params.Height, params.PixelFormat)
	}
	return nil
}

func (c *Coder) EnsureAudioParamsMatch(a *media.Audio) error {
	if a == nil {
		return nil
	}
	params := c.codecCtx.Parameters()
	if a.ChannelLayout.Channels != params.ChannelLayout.Channels || a.SampleRate != params.SampleRate || a.SampleFormat != params.SampleFormat {
		return types.InvalidArgumentf("audio %s@%dHz (sample_fmt %d) does not match the coder %s@%dHz (sample_fmt %d)",
			a.ChannelLayout, a.SampleRate, a.SampleFormat, params.ChannelLayout, params.SampleRate, params.SampleFormat)
	}
	return nil
}

// BufferStats reports how many planes the direct-rendering allocator
// reused from caller-owned media and how many it had to allocate.
func (c *Coder) BufferStats() (reused, allocated uint64) {
	a, ok := c.allocator.(*directRenderingAllocator)
	if !ok {
		return 0, 0
	}
	return a.reused.Load(), a.allocated.Load()
}

// Close releases the codec context. It is safe to call it more than once.
func (c *Coder) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	logger.Tracef(ctx, "closing %s", c.codec.Name())
	return c.closer.Close()
}
