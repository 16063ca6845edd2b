package types

import (
	"bytes"
	"fmt"
)

// MediaParameters is the transport-neutral description of an elementary
// stream, used to carry a codec configuration between contexts.
type MediaParameters struct {
	MediaType MediaType
	CodecID   CodecID
	CodecTag  uint32

	// video
	Width             int
	Height            int
	PixelFormat       PixelFormat
	SampleAspectRatio Rational

	// audio
	SampleRate    int
	ChannelLayout ChannelLayout
	SampleFormat  SampleFormat
	FrameSize     int

	BitRate   int64
	TimeBase  Rational
	FrameRate Rational
	ExtraData []byte
}

func (p MediaParameters) Clone() MediaParameters {
	if p.ExtraData != nil {
		p.ExtraData = bytes.Clone(p.ExtraData)
	}
	return p
}

func (p MediaParameters) String() string {
	switch p.MediaType {
	case MediaTypeVideo:
		return fmt.Sprintf("video codec:%d %dx%d pix_fmt:%d tb:%s", p.CodecID, p.Width, p.Height, p.PixelFormat, p.TimeBase)
	case MediaTypeAudio:
		return fmt.Sprintf("audio codec:%d %dHz %s sample_fmt:%d tb:%s", p.CodecID, p.SampleRate, p.ChannelLayout, p.SampleFormat, p.TimeBase)
	}
	return fmt.Sprintf("%s codec:%d tb:%s", p.MediaType, p.CodecID, p.TimeBase)
}
