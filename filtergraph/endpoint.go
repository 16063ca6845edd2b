package filtergraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

// FilterSink is where raw media enters the graph.
type FilterSink struct {
	graph     *FilterGraph
	name      string
	mediaType types.MediaType
	timeBase  types.Rational
}

func (s *FilterSink) String() string {
	return fmt.Sprintf("%s sink '%s'", s.mediaType, s.name)
}

func (s *FilterSink) Name() string {
	return s.name
}

func (s *FilterSink) MediaType() types.MediaType {
	return s.mediaType
}

// TimeBase is the time base the pushed media is rebased into.
func (s *FilterSink) TimeBase() types.Rational {
	return s.timeBase
}

func (s *FilterSink) Graph() *FilterGraph {
	return s.graph
}

// SendRaw pushes one unit into the graph; nil signals the end of stream
// of this sink.
func (s *FilterSink) SendRaw(
	ctx context.Context,
	raw media.Raw,
) (_ret types.Result, _err error) {
	logger.Tracef(ctx, "SendRaw(ctx, %v): %s", raw, s)
	defer func() { logger.Tracef(ctx, "/SendRaw(ctx, %v): %s: %v %v", raw, s, _ret, _err) }()

	if err := s.graph.checkState("SendRaw", StateOpened); err != nil {
		return types.ResultSuccess, err
	}
	if raw != nil {
		if !raw.GetCommon().IsComplete() {
			return types.ResultSuccess, types.InvalidArgumentf("incomplete media passed in")
		}
		if raw.MediaType() != s.mediaType {
			return types.ResultSuccess, types.InvalidArgumentf("cannot send %s into %s", raw.MediaType(), s)
		}
	}

	err := s.graph.graph.SendFrame(ctx, s.name, raw)
	switch {
	case err == nil:
		return types.ResultSuccess, nil
	case errors.Is(err, native.ErrAgain):
		return types.ResultAgain, nil
	case errors.Is(err, native.ErrEOF):
		return types.ResultEndOfStream, nil
	}
	return types.ResultSuccess, fmt.Errorf("%w: could not add a frame to %s: %w", types.ErrRuntime, s, err)
}

func (s *FilterSink) SendPicture(ctx context.Context, p *media.Picture) (types.Result, error) {
	if p == nil {
		return s.SendRaw(ctx, nil)
	}
	return s.SendRaw(ctx, p)
}

func (s *FilterSink) SendAudio(ctx context.Context, a *media.Audio) (types.Result, error) {
	if a == nil {
		return s.SendRaw(ctx, nil)
	}
	return s.SendRaw(ctx, a)
}

// FilterSource is where filtered media leaves the graph.
type FilterSource struct {
	graph     *FilterGraph
	name      string
	mediaType types.MediaType
	timeBase  types.Rational
}

func (s *FilterSource) String() string {
	return fmt.Sprintf("%s source '%s'", s.mediaType, s.name)
}

func (s *FilterSource) Name() string {
	return s.name
}

func (s *FilterSource) MediaType() types.MediaType {
	return s.mediaType
}

// TimeBase is known once the graph is opened.
func (s *FilterSource) TimeBase() types.Rational {
	return s.timeBase
}

func (s *FilterSource) Graph() *FilterGraph {
	return s.graph
}

func (s *FilterSource) receive(
	ctx context.Context,
	out media.Raw,
) (_ret types.Result, _err error) {
	logger.Tracef(ctx, "receive(ctx): %s", s)
	defer func() { logger.Tracef(ctx, "/receive(ctx): %s: %v %v", s, _ret, _err) }()

	if err := s.graph.checkState("Receive", StateOpened); err != nil {
		return types.ResultSuccess, err
	}
	if out.MediaType() != s.mediaType {
		return types.ResultSuccess, types.InvalidArgumentf("cannot receive %s from %s", out.MediaType(), s)
	}

	common := out.GetCommon()
	common.Complete = false
	err := s.graph.graph.ReceiveFrame(ctx, s.name, out)
	switch {
	case err == nil:
	case errors.Is(err, native.ErrAgain):
		return types.ResultAgain, nil
	case errors.Is(err, native.ErrEOF):
		return types.ResultEndOfStream, nil
	default:
		return types.ResultSuccess, fmt.Errorf("%w: could not get a frame from %s: %w", types.ErrRuntime, s, err)
	}

	if !common.TimeBase.IsValid() {
		common.TimeBase = s.timeBase
	}
	common.Complete = true
	return types.ResultSuccess, nil
}

func (s *FilterSource) ReceivePicture(ctx context.Context, out *media.Picture) (types.Result, error) {
	if out == nil {
		return types.ResultSuccess, types.InvalidArgumentf("the output picture is nil")
	}
	return s.receive(ctx, out)
}

func (s *FilterSource) ReceiveAudio(ctx context.Context, out *media.Audio) (types.Result, error) {
	if out == nil {
		return types.ResultSuccess, types.InvalidArgumentf("the output audio is nil")
	}
	return s.receive(ctx, out)
}
