package types

import (
	"fmt"
)

type MediaType int

const (
	MediaTypeUnknown = MediaType(iota)
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeData
	MediaTypeSubtitle
	EndOfMediaType
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeUnknown:
		return "unknown"
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	case MediaTypeSubtitle:
		return "subtitle"
	}
	return fmt.Sprintf("unexpected_media_type_%d", int(t))
}

// CodecID is an opaque codec identifier owned by the backend.
type CodecID int

const CodecIDNone = CodecID(0)

// PixelFormat is an opaque pixel format identifier owned by the backend.
type PixelFormat int

const PixelFormatNone = PixelFormat(-1)

// SampleFormat is an opaque sample format identifier owned by the backend.
type SampleFormat int

const SampleFormatNone = SampleFormat(-1)

// ChannelLayout is described by its channel count and an opaque mask.
type ChannelLayout struct {
	Channels int
	Mask     uint64
}

func (l ChannelLayout) String() string {
	switch {
	case l.Channels == 1 && (l.Mask == 0 || l.Mask == ChannelLayoutMono.Mask):
		return "mono"
	case l.Channels == 2 && (l.Mask == 0 || l.Mask == ChannelLayoutStereo.Mask):
		return "stereo"
	}
	return fmt.Sprintf("%d channels (0x%X)", l.Channels, l.Mask)
}

var (
	ChannelLayoutMono   = ChannelLayout{Channels: 1, Mask: 0x4}
	ChannelLayoutStereo = ChannelLayout{Channels: 2, Mask: 0x3}
)

type CodecCapabilities uint32

const (
	CodecCapabilityDirectRendering = CodecCapabilities(1 << iota)
	CodecCapabilityDelay
	CodecCapabilityVariableFrameSize
)

func (c CodecCapabilities) Has(cap CodecCapabilities) bool {
	return c&cap == cap
}

// Result is the outcome of a push/pull data-flow call.
type Result int

const (
	ResultSuccess = Result(iota)
	ResultAgain
	ResultEndOfStream
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultAgain:
		return "AGAIN"
	case ResultEndOfStream:
		return "END_OF_STREAM"
	}
	return fmt.Sprintf("unexpected_result_%d", int(r))
}
