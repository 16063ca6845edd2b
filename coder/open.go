package coder

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/types"
)

type openState struct {
	inputOptions *types.Dictionary
	unsetOut     *types.Dictionary
	scratch      *types.Dictionary
}

type openStep struct {
	Name string
	Func func(ctx context.Context, s *openState) error
}

func (c *Coder) openSteps() []openStep {
	return []openStep{
		{"copy the options", func(ctx context.Context, s *openState) error {
			s.scratch = s.inputOptions.Clone()
			return nil
		}},
		{"apply the options", func(ctx context.Context, s *openState) error {
			return c.codecCtx.ApplyOptions(ctx, s.scratch)
		}},
		{"check the parameters", func(ctx context.Context, s *openState) error {
			return c.checkParametersBeforeOpen()
		}},
		{"open the codec", func(ctx context.Context, s *openState) error {
			if err := c.codecCtx.Open(ctx, s.scratch); err != nil {
				return err
			}
			c.setState(ctx, StateOpened)
			return nil
		}},
		{"report the unset options", func(ctx context.Context, s *openState) error {
			if s.unsetOut != nil {
				s.unsetOut.CopyFrom(s.scratch)
			}
			return nil
		}},
	}
}

// Open opens the codec. Options not recognized by the codec are copied
// into unsetOptionsOut if it is not nil.
func (c *Coder) Open(
	ctx context.Context,
	inputOptions *types.Dictionary,
	unsetOptionsOut *types.Dictionary,
) (_err error) {
	logger.Debugf(ctx, "Open(ctx, '%s', ...): %s", inputOptions, c)
	defer func() { logger.Debugf(ctx, "/Open(ctx, '%s', ...): %s: %v", inputOptions, c, _err) }()

	if err := c.checkMutable("Open"); err != nil {
		return err
	}

	s := &openState{
		inputOptions: inputOptions,
		unsetOut:     unsetOptionsOut,
	}
	defer func() {
		if s.scratch != nil {
			s.scratch.Reset()
		}
	}()
	for _, step := range c.openSteps() {
		if err := step.Func(ctx, s); err != nil {
			return c.fail(ctx, fmt.Errorf("unable to %s of '%s': %w", step.Name, c.codec.Name(), err))
		}
	}
	return nil
}

func (c *Coder) checkParametersBeforeOpen() error {
	if !c.IsEncoder() {
		return nil
	}
	p := c.codecCtx.Parameters()
	switch c.MediaType() {
	case types.MediaTypeVideo:
		if p.Width <= 0 || p.Height <= 0 {
			return types.InvalidArgumentf("invalid picture dimensions %dx%d", p.Width, p.Height)
		}
		if p.PixelFormat == types.PixelFormatNone {
			return types.InvalidArgumentf("the pixel format is not set")
		}
	case types.MediaTypeAudio:
		if p.SampleRate <= 0 {
			return types.InvalidArgumentf("invalid sample rate %d", p.SampleRate)
		}
		if p.ChannelLayout.Channels <= 0 {
			return types.InvalidArgumentf("invalid channel count %d", p.ChannelLayout.Channels)
		}
		if p.SampleFormat == types.SampleFormatNone {
			return types.InvalidArgumentf("the sample format is not set")
		}
	}
	return nil
}
