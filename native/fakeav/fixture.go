package fakeav

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
)

type FixtureStream struct {
	Parameters types.MediaParameters `json:"parameters"`
	TimeBase   types.Rational        `json:"time_base"`

	// AppearsAfter is the amount of packets to be read before the stream
	// becomes visible.
	AppearsAfter int `json:"appears_after,omitempty"`
}

// Fixture is the content of a fake container.
type Fixture struct {
	Streams  []FixtureStream   `json:"streams"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Packets  []*media.Packet   `json:"-"`
	Trailer  bool              `json:"-"`
}

func (f *Fixture) clone() *Fixture {
	cpy := &Fixture{
		Streams:  slices.Clone(f.Streams),
		Metadata: f.Metadata,
		Trailer:  f.Trailer,
	}
	for _, pkt := range f.Packets {
		cpy.Packets = append(cpy.Packets, pkt.Clone())
	}
	return cpy
}

// PacketsOf returns the amount of packets of the given stream.
func (f *Fixture) PacketsOf(streamIndex int) int {
	count := 0
	for _, pkt := range f.Packets {
		if pkt.StreamIndex == streamIndex {
			count++
		}
	}
	return count
}

// NewSyntheticFixture produces a gray 4x4 rawvideo stream at 25fps and a
// mono 8kHz pcm_s16le stream chopped into 20ms packets.
func NewSyntheticFixture(videoFrames, audioPackets int) *Fixture {
	f := &Fixture{}
	videoIdx, audioIdx := -1, -1
	if videoFrames > 0 {
		videoIdx = len(f.Streams)
		f.Streams = append(f.Streams, FixtureStream{
			Parameters: types.MediaParameters{
				MediaType:   types.MediaTypeVideo,
				CodecID:     CodecIDRawVideo,
				Width:       4,
				Height:      4,
				PixelFormat: PixelFormatGray8,
				FrameRate:   types.NewRational(25, 1),
			},
			TimeBase: types.NewRational(1, 25),
		})
	}
	if audioPackets > 0 {
		audioIdx = len(f.Streams)
		f.Streams = append(f.Streams, FixtureStream{
			Parameters: types.MediaParameters{
				MediaType:     types.MediaTypeAudio,
				CodecID:       CodecIDPCMS16LE,
				SampleRate:    8000,
				ChannelLayout: types.ChannelLayoutMono,
				SampleFormat:  SampleFormatS16,
			},
			TimeBase: types.NewRational(1, 8000),
		})
	}

	v, a := 0, 0
	for v < videoFrames || a < audioPackets {
		videoTime := int64(v) * 40
		audioTime := int64(a) * 20
		if v < videoFrames && (a >= audioPackets || videoTime <= audioTime) {
			pkt := media.NewPacket()
			pkt.StreamIndex = videoIdx
			pkt.PTS, pkt.DTS, pkt.Duration = int64(v), int64(v), 1
			pkt.TimeBase = types.NewRational(1, 25)
			pkt.Key = true
			pkt.Data = bytes.Repeat([]byte{byte(v)}, 16)
			pkt.Complete = true
			f.Packets = append(f.Packets, pkt)
			v++
			continue
		}
		pkt := media.NewPacket()
		pkt.StreamIndex = audioIdx
		pkt.PTS, pkt.DTS, pkt.Duration = int64(a)*160, int64(a)*160, 160
		pkt.TimeBase = types.NewRational(1, 8000)
		pkt.Key = true
		pkt.Data = make([]byte, 320)
		pkt.Complete = true
		f.Packets = append(f.Packets, pkt)
		a++
	}
	f.Trailer = true
	return f
}

type record struct {
	Header  *Fixture      `json:"header,omitempty"`
	Packet  *packetRecord `json:"packet,omitempty"`
	Trailer bool          `json:"trailer,omitempty"`
}

type packetRecord struct {
	Stream   int    `json:"stream"`
	PTS      int64  `json:"pts"`
	DTS      int64  `json:"dts"`
	Duration int64  `json:"duration,omitempty"`
	Key      bool   `json:"key,omitempty"`
	Data     []byte `json:"data"`
}

func encodeRecord(r record) []byte {
	b, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return append(b, '\n')
}

// ParseContainer decodes the bytes produced by the fakemux muxer.
func ParseContainer(data []byte) (*Fixture, error) {
	var result *Fixture
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(nil, 64<<20)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("unable to parse line %d: %w", lineNum, err)
		}
		switch {
		case r.Header != nil:
			if result != nil {
				return nil, fmt.Errorf("duplicate header at line %d", lineNum)
			}
			result = r.Header
		case r.Packet != nil:
			if result == nil {
				return nil, fmt.Errorf("a packet before the header at line %d", lineNum)
			}
			if r.Packet.Stream < 0 || r.Packet.Stream >= len(result.Streams) {
				return nil, fmt.Errorf("invalid stream index %d at line %d", r.Packet.Stream, lineNum)
			}
			pkt := media.NewPacket()
			pkt.StreamIndex = r.Packet.Stream
			pkt.PTS = r.Packet.PTS
			pkt.DTS = r.Packet.DTS
			pkt.Duration = r.Packet.Duration
			pkt.Key = r.Packet.Key
			pkt.Data = r.Packet.Data
			pkt.TimeBase = result.Streams[r.Packet.Stream].TimeBase
			pkt.Complete = true
			result.Packets = append(result.Packets, pkt)
		case r.Trailer:
			if result == nil {
				return nil, fmt.Errorf("a trailer before the header at line %d", lineNum)
			}
			result.Trailer = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no header found")
	}
	return result, nil
}
