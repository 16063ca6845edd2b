package container

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avcore/coder"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

// Stream is one elementary stream of a Container. It lives as long as
// its Container.
type Stream struct {
	container *Container
	index     int
	info      native.StreamInfo

	// decoder is set on read streams having a matching decoder.
	decoder *coder.Decoder

	// coder is the coder a write stream was registered with.
	coder *coder.Coder
}

func (s *Stream) String() string {
	return fmt.Sprintf("%s stream #%d", s.container.direction, s.index)
}

func (s *Stream) Container() *Container {
	return s.container
}

func (s *Stream) Index() int {
	return s.index
}

// TimeBase is the time base of the native stream; a muxer may change it
// when the header is written.
func (s *Stream) TimeBase() types.Rational {
	if s.container.direction == DirectionWrite {
		return s.container.output.StreamTimeBase(s.index)
	}
	return s.info.TimeBase
}

func (s *Stream) Parameters() types.MediaParameters {
	var p types.MediaParameters
	if s.coder != nil {
		p = s.coder.MediaParameters()
	} else {
		p = s.info.Parameters.Clone()
	}
	p.TimeBase = s.TimeBase()
	return p
}

func (s *Stream) MediaType() types.MediaType {
	return s.Parameters().MediaType
}

// Decoder is nil if no decoder matches the stream codec or the stream
// belongs to a write container.
func (s *Stream) Decoder() *coder.Decoder {
	return s.decoder
}

// Coder returns the bound coder. A read stream may have none, while a
// write stream without a coder is an internal inconsistency.
func (s *Stream) Coder(ctx context.Context) (*coder.Coder, error) {
	switch {
	case s.coder != nil:
		return s.coder, nil
	case s.decoder != nil:
		return s.decoder.Coder, nil
	case s.container.direction == DirectionWrite:
		return nil, types.Runtimef("%s has no encoder", s)
	}
	return nil, nil
}
