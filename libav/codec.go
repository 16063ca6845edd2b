//go:build with_libav
// +build with_libav

package libav

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type Codec struct {
	*astiav.Codec
}

var _ native.Codec = (*Codec)(nil)

func wrapCodec(c *astiav.Codec, description string) (native.Codec, error) {
	if c == nil {
		return nil, types.NotFoundf("%s", description)
	}
	return &Codec{Codec: c}, nil
}

func (c *Codec) ID() types.CodecID {
	return types.CodecID(c.Codec.ID())
}

func (c *Codec) MediaType() types.MediaType {
	return mediaTypeFromAstiav(c.Codec.MediaType())
}

func (c *Codec) Capabilities() types.CodecCapabilities {
	return capabilitiesFromAstiav(c.Codec.Capabilities())
}

func capabilitiesFromAstiav(in astiav.CodecCapabilities) types.CodecCapabilities {
	var caps types.CodecCapabilities
	if in&astiav.CodecCapabilityDr1 != 0 {
		caps |= types.CodecCapabilityDirectRendering
	}
	if in&astiav.CodecCapabilityDelay != 0 {
		caps |= types.CodecCapabilityDelay
	}
	if in&astiav.CodecCapabilityVariableFrameSize != 0 {
		caps |= types.CodecCapabilityVariableFrameSize
	}
	return caps
}
