package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/xsync"
)

type ThrottleConfig struct {
	// AverageBitRate is in bits per second; zero disables throttling.
	AverageBitRate         uint64        `json:"average_bit_rate,omitempty"         yaml:"average_bit_rate,omitempty"`
	BitrateAveragingPeriod time.Duration `json:"bitrate_averaging_period,omitempty" yaml:"bitrate_averaging_period,omitempty"`
}

// Throttle drops video packets to keep the average bit rate below the
// limit. After a drop everything is skipped until the next key frame.
type Throttle struct {
	AverageBitRate         uint64
	BitrateAveragingPeriod time.Duration

	locker                      xsync.Mutex
	skippedVideoFrame           bool
	videoAveragerBufferConsumed int64
	prevEncodeTS                time.Time
	now                         func() time.Time
}

func NewThrottle(
	ctx context.Context,
	cfg ThrottleConfig,
) *Throttle {
	if cfg.AverageBitRate != 0 && cfg.BitrateAveragingPeriod == 0 {
		cfg.BitrateAveragingPeriod = time.Second * 10
		logger.Warnf(ctx, "AveragingPeriod is not set, defaulting to %v", cfg.BitrateAveragingPeriod)
	}
	return &Throttle{
		AverageBitRate:         cfg.AverageBitRate,
		BitrateAveragingPeriod: cfg.BitrateAveragingPeriod,
		now:                    time.Now,
	}
}

// Accept reports if the packet fits into the bit rate budget, and
// accounts it if so.
func (f *Throttle) Accept(
	ctx context.Context,
	pkt *media.Packet,
) bool {
	return xsync.DoR1(ctx, &f.locker, func() bool {
		return f.accept(ctx, pkt)
	})
}

func (f *Throttle) accept(
	ctx context.Context,
	pkt *media.Packet,
) bool {
	if f.AverageBitRate == 0 {
		f.videoAveragerBufferConsumed = 0
		return true
	}

	now := f.now()
	prevTS := f.prevEncodeTS
	f.prevEncodeTS = now

	tsDiff := now.Sub(prevTS)
	allowMoreBits := 1 + int64(tsDiff.Seconds()*float64(f.AverageBitRate))

	f.videoAveragerBufferConsumed -= allowMoreBits
	if f.videoAveragerBufferConsumed < 0 {
		f.videoAveragerBufferConsumed = 0
	}

	averagingBuffer := int64(f.BitrateAveragingPeriod.Seconds() * float64(f.AverageBitRate))
	consumedWithPacket := f.videoAveragerBufferConsumed + int64(pkt.Size())*8
	if consumedWithPacket > averagingBuffer {
		f.skippedVideoFrame = true
		logger.Tracef(ctx, "skipping a frame to reduce the bitrate: %d > %d", consumedWithPacket, averagingBuffer)
		return false
	}

	if f.skippedVideoFrame && !pkt.Key {
		logger.Tracef(ctx, "skipping a non-key frame (BTW, the consumedWithPacket is %d/%d)", consumedWithPacket, averagingBuffer)
		return false
	}

	f.skippedVideoFrame = false
	f.videoAveragerBufferConsumed = consumedWithPacket
	return true
}

// ThrottleNode applies a Throttle to the video packets passing through.
type ThrottleNode struct {
	nodeLoop
	*Throttle
	streamTypes []types.MediaType
	stats       *CommonsStatistics
}

var _ Node = (*ThrottleNode)(nil)

// NewThrottleNode starts the node; streamTypes maps stream indexes of
// the incoming packets to their media types.
func NewThrottleNode(
	ctx context.Context,
	throttle *Throttle,
	streamTypes []types.MediaType,
	stats *CommonsStatistics,
) *ThrottleNode {
	n := &ThrottleNode{
		nodeLoop:    newNodeLoop(100, 1),
		Throttle:    throttle,
		streamTypes: streamTypes,
		stats:       stats,
	}
	n.start(ctx, n, nil)
	return n
}

func (n *ThrottleNode) String() string {
	return fmt.Sprintf("throttle(%d bps)", n.AverageBitRate)
}

func (n *ThrottleNode) SendPacket(
	ctx context.Context,
	pkt *media.Packet,
) error {
	isVideo := pkt.StreamIndex >= 0 && pkt.StreamIndex < len(n.streamTypes) &&
		n.streamTypes[pkt.StreamIndex] == types.MediaTypeVideo
	if isVideo && !n.Accept(ctx, pkt) {
		if n.stats != nil {
			n.stats.PacketsSkipped.Add(1)
		}
		return nil
	}
	return n.emit(ctx, pkt)
}

func (n *ThrottleNode) Close() error {
	n.stop()
	return nil
}
