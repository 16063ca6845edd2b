package pipeline

import (
	"sync/atomic"

	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
)

type FramesStatistics struct {
	Video uint64 `json:"video" yaml:"video"`
	Audio uint64 `json:"audio" yaml:"audio"`
	Other uint64 `json:"other" yaml:"other"`
}

// Statistics is a snapshot of CommonsStatistics.
type Statistics struct {
	BytesCountRead  uint64           `json:"bytes_count_read"  yaml:"bytes_count_read"`
	BytesCountWrote uint64           `json:"bytes_count_wrote" yaml:"bytes_count_wrote"`
	PacketsRead     FramesStatistics `json:"packets_read"      yaml:"packets_read"`
	PacketsWrote    FramesStatistics `json:"packets_wrote"     yaml:"packets_wrote"`
	PacketsSkipped  uint64           `json:"packets_skipped"   yaml:"packets_skipped"`
	FramesDecoded   FramesStatistics `json:"frames_decoded"    yaml:"frames_decoded"`
	FramesFiltered  FramesStatistics `json:"frames_filtered"   yaml:"frames_filtered"`
	FramesEncoded   FramesStatistics `json:"frames_encoded"    yaml:"frames_encoded"`
}

type CommonsFramesStatistics struct {
	Video atomic.Uint64
	Audio atomic.Uint64
	Other atomic.Uint64
}

func (stats *CommonsFramesStatistics) Add(mediaType types.MediaType, n uint64) {
	switch mediaType {
	case types.MediaTypeVideo:
		stats.Video.Add(n)
	case types.MediaTypeAudio:
		stats.Audio.Add(n)
	default:
		stats.Other.Add(n)
	}
}

func (stats *CommonsFramesStatistics) Convert() FramesStatistics {
	return FramesStatistics{
		Video: stats.Video.Load(),
		Audio: stats.Audio.Load(),
		Other: stats.Other.Load(),
	}
}

// CommonsStatistics is shared by the nodes of a pipeline; it is safe
// for concurrent use.
type CommonsStatistics struct {
	BytesCountRead  atomic.Uint64
	BytesCountWrote atomic.Uint64
	PacketsRead     CommonsFramesStatistics
	PacketsWrote    CommonsFramesStatistics
	PacketsSkipped  atomic.Uint64
	FramesDecoded   CommonsFramesStatistics
	FramesFiltered  CommonsFramesStatistics
	FramesEncoded   CommonsFramesStatistics
}

func (stats *CommonsStatistics) Convert() Statistics {
	return Statistics{
		BytesCountRead:  stats.BytesCountRead.Load(),
		BytesCountWrote: stats.BytesCountWrote.Load(),
		PacketsRead:     stats.PacketsRead.Convert(),
		PacketsWrote:    stats.PacketsWrote.Convert(),
		PacketsSkipped:  stats.PacketsSkipped.Load(),
		FramesDecoded:   stats.FramesDecoded.Convert(),
		FramesFiltered:  stats.FramesFiltered.Convert(),
		FramesEncoded:   stats.FramesEncoded.Convert(),
	}
}

func (stats *CommonsStatistics) packetRead(mediaType types.MediaType, pkt *media.Packet) {
	stats.BytesCountRead.Add(uint64(pkt.Size()))
	stats.PacketsRead.Add(mediaType, 1)
}

func (stats *CommonsStatistics) packetWrote(mediaType types.MediaType, pkt *media.Packet) {
	stats.BytesCountWrote.Add(uint64(pkt.Size()))
	stats.PacketsWrote.Add(mediaType, 1)
}
