package media

import (
	"fmt"

	"github.com/xaionaro-go/avcore/types"
)

// Raw is an uncompressed unit: either a *Picture or an *Audio.
type Raw interface {
	Media
	MediaType() types.MediaType
	GetPlanes() [][]byte
	SetPlanes([][]byte)
}

type Picture struct {
	Common
	Width       int
	Height      int
	PixelFormat types.PixelFormat
	Planes      [][]byte
	Strides     []int
}

var _ Raw = (*Picture)(nil)

func NewPicture(width, height int, pixFmt types.PixelFormat) *Picture {
	return &Picture{
		Common: Common{
			PTS: types.NoPTS,
		},
		Width:       width,
		Height:      height,
		PixelFormat: pixFmt,
	}
}

func (*Picture) MediaType() types.MediaType {
	return types.MediaTypeVideo
}

func (p *Picture) GetPlanes() [][]byte {
	return p.Planes
}

func (p *Picture) SetPlanes(planes [][]byte) {
	p.Planes = planes
}

func (p *Picture) String() string {
	return fmt.Sprintf("picture{%dx%d fmt:%d pts:%d tb:%s complete:%t}",
		p.Width, p.Height, p.PixelFormat, p.PTS, p.TimeBase, p.Complete)
}

type Audio struct {
	Common
	SampleRate    int
	ChannelLayout types.ChannelLayout
	SampleFormat  types.SampleFormat
	NumSamples    int
	Planes        [][]byte
}

var _ Raw = (*Audio)(nil)

func NewAudio(sampleRate int, layout types.ChannelLayout, sampleFmt types.SampleFormat) *Audio {
	return &Audio{
		Common: Common{
			PTS: types.NoPTS,
		},
		SampleRate:    sampleRate,
		ChannelLayout: layout,
		SampleFormat:  sampleFmt,
	}
}

func (*Audio) MediaType() types.MediaType {
	return types.MediaTypeAudio
}

func (a *Audio) GetPlanes() [][]byte {
	return a.Planes
}

func (a *Audio) SetPlanes(planes [][]byte) {
	a.Planes = planes
}

func (a *Audio) String() string {
	return fmt.Sprintf("audio{%dHz %s fmt:%d samples:%d pts:%d tb:%s complete:%t}",
		a.SampleRate, a.ChannelLayout, a.SampleFormat, a.NumSamples, a.PTS, a.TimeBase, a.Complete)
}
