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

type Encoder struct {
	*Coder
	endOfStream bool
}

func NewEncoder(
	ctx context.Context,
	backend native.Backend,
	codec native.Codec,
	params *types.MediaParameters,
) (*Encoder, error) {
	c, err := newCoder(ctx, backend, codec, params, true)
	if err != nil {
		return nil, err
	}
	return &Encoder{Coder: c}, nil
}

// NewEncoderByName is NewEncoder with the codec looked up by its name.
func NewEncoderByName(
	ctx context.Context,
	backend native.Backend,
	codecName string,
	params *types.MediaParameters,
) (*Encoder, error) {
	codec, err := FindCodec(ctx, backend, codecName, types.CodecIDNone, true)
	if err != nil {
		return nil, err
	}
	return NewEncoder(ctx, backend, codec, params)
}

// Send feeds one raw unit; nil starts flushing. The input is not modified.
func (e *Encoder) Send(
	ctx context.Context,
	in media.Raw,
) (_ret types.Result, _err error) {
	logger.Tracef(ctx, "Send(ctx, %v)", in)
	defer func() { logger.Tracef(ctx, "/Send(ctx, %v): %v %v", in, _ret, _err) }()

	if err := e.checkUsable("Send"); err != nil {
		return types.ResultSuccess, err
	}

	var toSend media.Raw
	if in != nil {
		prepared, err := e.prepareInput(in)
		if err != nil {
			return types.ResultSuccess, err
		}
		toSend = prepared
	}

	if e.state == StateFlushing {
		if in != nil {
			return types.ResultSuccess, types.InvalidStatef("the encoder is flushing, no more input is accepted")
		}
		return types.ResultSuccess, nil
	}

	err := e.codecCtx.SendFrame(ctx, toSend)
	switch {
	case err == nil:
	case errors.Is(err, native.ErrAgain):
		return types.ResultAgain, nil
	case errors.Is(err, native.ErrEOF):
		e.setState(ctx, StateFlushing)
		return types.ResultEndOfStream, nil
	default:
		return types.ResultSuccess, e.fail(ctx, fmt.Errorf("unable to send a frame to the encoder '%s': %w", e.codec.Name(), err))
	}

	if in == nil {
		e.setState(ctx, StateFlushing)
	}
	return types.ResultSuccess, nil
}

// prepareInput validates the input and returns a shallow copy stamped
// in the encoder time base.
func (e *Encoder) prepareInput(in media.Raw) (media.Raw, error) {
	if !in.IsComplete() {
		return nil, types.InvalidArgumentf("the input is not complete")
	}
	if in.MediaType() != e.MediaType() {
		return nil, types.InvalidArgumentf("cannot encode %s with a %s encoder", in.MediaType(), e.MediaType())
	}

	switch in := in.(type) {
	case *media.Picture:
		if err := e.EnsurePictureParamsMatch(in); err != nil {
			return nil, err
		}
		cpy := *in
		cpy.SetTimeBase(e.TimeBase())
		return &cpy, nil
	case *media.Audio:
		if err := e.EnsureAudioParamsMatch(in); err != nil {
			return nil, err
		}
		if !e.codec.Capabilities().Has(types.CodecCapabilityVariableFrameSize) {
			if frameSize := e.FrameSize(); in.NumSamples > frameSize {
				return nil, types.InvalidArgumentf("%d samples do not fit into the frame size %d", in.NumSamples, frameSize)
			}
		}
		cpy := *in
		cpy.SetTimeBase(e.TimeBase())
		return &cpy, nil
	}
	return nil, types.InvalidArgumentf("unexpected input type %T", in)
}

// Receive fills out with the next encoded packet if one is ready.
func (e *Encoder) Receive(
	ctx context.Context,
	out *media.Packet,
) (_ret types.Result, _err error) {
	logger.Tracef(ctx, "Receive(ctx)")
	defer func() { logger.Tracef(ctx, "/Receive(ctx): %v %v", _ret, _err) }()

	if err := e.checkUsable("Receive"); err != nil {
		return types.ResultSuccess, err
	}
	if out == nil {
		return types.ResultSuccess, types.InvalidArgumentf("the output packet is nil")
	}
	if e.endOfStream {
		return types.ResultEndOfStream, nil
	}

	out.Complete = false
	err := e.codecCtx.ReceivePacket(ctx, out)
	switch {
	case err == nil:
	case errors.Is(err, native.ErrAgain):
		return types.ResultAgain, nil
	case errors.Is(err, native.ErrEOF):
		e.endOfStream = true
		return types.ResultEndOfStream, nil
	default:
		return types.ResultSuccess, e.fail(ctx, fmt.Errorf("unable to receive a packet from the encoder '%s': %w", e.codec.Name(), err))
	}
	if !out.TimeBase.IsValid() {
		out.TimeBase = e.TimeBase()
	}
	return types.ResultSuccess, nil
}

func (e *Encoder) IsEndOfStream() bool {
	return e.endOfStream
}
