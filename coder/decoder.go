package coder

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type Decoder struct {
	*Coder
	endOfStream bool

	samplesSinceDiscontinuity int64
	discontinuityPTS          int64
}

// NewDecoder creates a decoder; params are usually taken from the stream
// to be decoded and may be nil.
func NewDecoder(
	ctx context.Context,
	backend native.Backend,
	codec native.Codec,
	params *types.MediaParameters,
) (*Decoder, error) {
	c, err := newCoder(ctx, backend, codec, params, false)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		Coder:            c,
		discontinuityPTS: types.NoPTS,
	}, nil
}

// NewDecoderByID is NewDecoder with the codec looked up by its ID.
func NewDecoderByID(
	ctx context.Context,
	backend native.Backend,
	codecID types.CodecID,
	params *types.MediaParameters,
) (*Decoder, error) {
	codec, err := FindCodec(ctx, backend, "", codecID, false)
	if err != nil {
		return nil, err
	}
	return NewDecoder(ctx, backend, codec, params)
}

// Send feeds one packet; a nil packet starts flushing.
func (d *Decoder) Send(
	ctx context.Context,
	pkt *media.Packet,
) (_ret types.Result, _err error) {
	logger.Tracef(ctx, "Send(ctx, %v)", pkt)
	defer func() { logger.Tracef(ctx, "/Send(ctx, %v): %v %v", pkt, _ret, _err) }()

	if err := d.checkUsable("Send"); err != nil {
		return types.ResultSuccess, err
	}
	if pkt != nil && !pkt.IsComplete() {
		return types.ResultSuccess, types.InvalidArgumentf("the packet is not complete")
	}
	if d.state == StateFlushing {
		if pkt != nil {
			return types.ResultSuccess, types.InvalidStatef("the decoder is flushing, no more packets are accepted")
		}
		return types.ResultSuccess, nil
	}

	err := d.codecCtx.SendPacket(ctx, pkt)
	switch {
	case err == nil:
	case errors.Is(err, native.ErrAgain):
		return types.ResultAgain, nil
	case errors.Is(err, native.ErrEOF):
		d.setState(ctx, StateFlushing)
		return types.ResultEndOfStream, nil
	default:
		return types.ResultSuccess, d.fail(ctx, fmt.Errorf("unable to send a packet to the decoder '%s': %w", d.codec.Name(), err))
	}

	if pkt == nil {
		d.setState(ctx, StateFlushing)
	}
	return types.ResultSuccess, nil
}

// Receive fills out with the next decoded unit if one is ready.
func (d *Decoder) Receive(
	ctx context.Context,
	out media.Raw,
) (_ret types.Result, _err error) {
	logger.Tracef(ctx, "Receive(ctx)")
	defer func() { logger.Tracef(ctx, "/Receive(ctx): %v %v", _ret, _err) }()

	if err := d.checkUsable("Receive"); err != nil {
		return types.ResultSuccess, err
	}
	if out == nil {
		return types.ResultSuccess, types.InvalidArgumentf("the output is nil")
	}
	if out.MediaType() != d.MediaType() {
		return types.ResultSuccess, types.InvalidArgumentf("cannot decode %s into %T", d.MediaType(), out)
	}
	if d.endOfStream {
		return types.ResultEndOfStream, nil
	}

	out.GetCommon().Complete = false
	err := d.codecCtx.ReceiveFrame(ctx, out)
	switch {
	case err == nil:
	case errors.Is(err, native.ErrAgain):
		return types.ResultAgain, nil
	case errors.Is(err, native.ErrEOF):
		d.endOfStream = true
		return types.ResultEndOfStream, nil
	default:
		return types.ResultSuccess, d.fail(ctx, fmt.Errorf("unable to receive a frame from the decoder '%s': %w", d.codec.Name(), err))
	}

	common := out.GetCommon()
	common.SetTimeBase(d.TimeBase())
	if audio, ok := out.(*media.Audio); ok {
		d.stampAudio(ctx, audio)
	}
	return types.ResultSuccess, nil
}

// stampAudio reconstructs monotonic time stamps from the amount of samples
// decoded since the last discontinuity.
func (d *Decoder) stampAudio(ctx context.Context, a *media.Audio) {
	if a.SampleRate <= 0 {
		return
	}
	tb := d.TimeBase()
	sampleTB := types.NewRational(1, a.SampleRate)
	frameDuration := types.Rescale(int64(a.NumSamples), sampleTB, tb)

	reset := func(pts int64) {
		logger.Tracef(ctx, "audio discontinuity at %d (samples since the previous one: %d)", pts, d.samplesSinceDiscontinuity)
		d.discontinuityPTS = pts
		d.samplesSinceDiscontinuity = 0
		a.Discontinuous = true
	}

	switch {
	case d.discontinuityPTS == types.NoPTS:
		pts := a.PTS
		if pts == types.NoPTS {
			pts = 0
		}
		reset(pts)
	case a.PTS == types.NoPTS:
		// continues the time line
	default:
		predicted := d.discontinuityPTS + types.Rescale(d.samplesSinceDiscontinuity, sampleTB, tb)
		diff := a.PTS - predicted
		if diff < 0 {
			diff = -diff
		}
		if diff > frameDuration {
			reset(a.PTS)
		}
	}

	a.PTS = d.discontinuityPTS + types.Rescale(d.samplesSinceDiscontinuity, sampleTB, tb)
	d.samplesSinceDiscontinuity += int64(a.NumSamples)
}

func (d *Decoder) IsEndOfStream() bool {
	return d.endOfStream
}
