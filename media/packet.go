package media

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xaionaro-go/avcore/types"
)

type Packet struct {
	Common
	StreamIndex int
	DTS         int64
	Duration    int64
	BytePos     int64
	Data        []byte
}

var _ Media = (*Packet)(nil)

func NewPacket() *Packet {
	return &Packet{
		Common: Common{
			PTS: types.NoPTS,
		},
		DTS:     types.NoPTS,
		BytePos: -1,
	}
}

func (p *Packet) Size() int {
	return len(p.Data)
}

func (p *Packet) Clone() *Packet {
	cpy := *p
	cpy.Data = bytes.Clone(p.Data)
	return &cpy
}

// Reset makes the packet empty while keeping its buffer.
func (p *Packet) Reset() {
	data := p.Data[:0]
	*p = *NewPacket()
	p.Data = data
}

// RescaleTimeStamps converts PTS, DTS and Duration into the given time base.
func (p *Packet) RescaleTimeStamps(tb types.Rational) {
	from := p.TimeBase
	p.PTS = types.Rescale(p.PTS, from, tb)
	p.DTS = types.Rescale(p.DTS, from, tb)
	if p.Duration > 0 {
		p.Duration = types.Rescale(p.Duration, from, tb)
	}
	p.TimeBase = tb
}

func (p *Packet) FrameDuration() time.Duration {
	return toDuration(p.Duration, p.TimeBase.Float64())
}

func (p *Packet) String() string {
	return fmt.Sprintf("packet{stream:%d pts:%d dts:%d dur:%d tb:%s size:%d key:%t}",
		p.StreamIndex, p.PTS, p.DTS, p.Duration, p.TimeBase, len(p.Data), p.Key)
}
