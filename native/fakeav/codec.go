package fakeav

import (
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

const (
	CodecIDRawVideo = types.CodecID(iota + 1)
	CodecIDPCMS16LE
	CodecIDPCMMulaw
	CodecIDH264
	CodecIDAAC
	CodecIDBinData
)

const (
	PixelFormatYUV420P = types.PixelFormat(0)
	PixelFormatRGB24   = types.PixelFormat(2)
	PixelFormatGray8   = types.PixelFormat(8)
)

const (
	SampleFormatS16 = types.SampleFormat(1)
	SampleFormatFLT = types.SampleFormat(3)
)

const (
	errCodeInvalidArgument = -22
	errCodeNoSys           = -38
	errCodeInvalidData     = -1094995529
	errCodeFilterNotFound  = -1279870712
)

type Codec struct {
	id           types.CodecID
	name         string
	mediaType    types.MediaType
	encoder      bool
	capabilities types.CodecCapabilities
	frameSize    int
	delay        int
	privateOpts  []string
}

var _ native.Codec = (*Codec)(nil)

func (c *Codec) Name() string {
	return c.name
}

func (c *Codec) ID() types.CodecID {
	return c.id
}

func (c *Codec) MediaType() types.MediaType {
	return c.mediaType
}

func (c *Codec) IsEncoder() bool {
	return c.encoder
}

func (c *Codec) Capabilities() types.CodecCapabilities {
	return c.capabilities
}

var codecs = func() []*Codec {
	var result []*Codec
	for _, encoder := range []bool{false, true} {
		result = append(result,
			&Codec{
				id:           CodecIDRawVideo,
				name:         "rawvideo",
				mediaType:    types.MediaTypeVideo,
				encoder:      encoder,
				capabilities: types.CodecCapabilityDirectRendering,
			},
			&Codec{
				id:           CodecIDPCMS16LE,
				name:         "pcm_s16le",
				mediaType:    types.MediaTypeAudio,
				encoder:      encoder,
				capabilities: types.CodecCapabilityVariableFrameSize,
			},
			&Codec{
				id:           CodecIDPCMMulaw,
				name:         "pcm_mulaw",
				mediaType:    types.MediaTypeAudio,
				encoder:      encoder,
				capabilities: types.CodecCapabilityVariableFrameSize,
				frameSize:    1,
			},
			&Codec{
				id:           CodecIDH264,
				name:         "h264",
				mediaType:    types.MediaTypeVideo,
				encoder:      encoder,
				capabilities: types.CodecCapabilityDelay,
				delay:        2,
				privateOpts:  []string{"preset", "tune"},
			},
			&Codec{
				id:        CodecIDAAC,
				name:      "aac",
				mediaType: types.MediaTypeAudio,
				encoder:   encoder,
				frameSize: 1024,
			},
		)
	}
	return result
}()

func findCodec(match func(*Codec) bool) (native.Codec, error) {
	for _, c := range codecs {
		if match(c) {
			return c, nil
		}
	}
	return nil, types.NotFoundf("codec")
}
