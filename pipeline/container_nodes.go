package pipeline

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/container"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
)

// DemuxerNode reads packets from a Demuxer. Once it is started the
// Demuxer belongs to the node.
type DemuxerNode struct {
	Demuxer *container.Demuxer

	ctx        context.Context
	stats      *CommonsStatistics
	outputChan chan *media.Packet
	done       chan struct{}
	cancelFn   context.CancelFunc
	err        error
}

var _ Node = (*DemuxerNode)(nil)

func NewDemuxerNode(
	ctx context.Context,
	demuxer *container.Demuxer,
	stats *CommonsStatistics,
) *DemuxerNode {
	n := &DemuxerNode{
		Demuxer:    demuxer,
		ctx:        ctx,
		stats:      stats,
		outputChan: make(chan *media.Packet, 1),
		done:       make(chan struct{}),
	}
	ctx, n.cancelFn = context.WithCancel(ctx)
	observability.Go(ctx, func(ctx context.Context) {
		defer close(n.done)
		defer close(n.outputChan)
		n.err = n.readLoop(ctx)
	})
	return n
}

func (n *DemuxerNode) String() string {
	return fmt.Sprintf("demuxer('%s')", n.Demuxer.URL())
}

func (n *DemuxerNode) readLoop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "readLoop")
	defer func() { logger.Debugf(ctx, "/readLoop: %v", _err) }()

	for {
		pkt := media.NewPacket()
		res, err := n.Demuxer.Read(ctx, pkt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("unable to read a packet: %w", err)
		}
		if res == types.ResultEndOfStream {
			return nil
		}
		if n.stats != nil {
			mediaType := types.MediaTypeUnknown
			if s, err := n.Demuxer.Stream(ctx, pkt.StreamIndex); err == nil {
				mediaType = s.MediaType()
			}
			n.stats.packetRead(mediaType, pkt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n.outputChan <- pkt:
		}
	}
}

func (n *DemuxerNode) SendPacketChan() chan<- *media.Packet {
	return nil
}

func (n *DemuxerNode) OutputPacketsChan() <-chan *media.Packet {
	return n.outputChan
}

func (n *DemuxerNode) Err() error {
	return n.err
}

// Close stops reading and closes the Demuxer.
func (n *DemuxerNode) Close() error {
	n.cancelFn()
	<-n.done
	return n.Demuxer.Close(xcontext.DetachDone(n.ctx))
}

// MuxerNode writes the incoming packets into a Muxer. The stream index of
// a packet must be the index of an output stream.
type MuxerNode struct {
	nodeLoop
	Muxer *container.Muxer

	ctx             context.Context
	forceInterleave bool
	stats           *CommonsStatistics
}

var _ Node = (*MuxerNode)(nil)

// NewMuxerNode starts the node; the Muxer must already be opened.
func NewMuxerNode(
	ctx context.Context,
	muxer *container.Muxer,
	forceInterleave bool,
	stats *CommonsStatistics,
) *MuxerNode {
	n := &MuxerNode{
		nodeLoop:        newNodeLoop(100, 0),
		Muxer:           muxer,
		ctx:             ctx,
		forceInterleave: forceInterleave,
		stats:           stats,
	}
	n.start(ctx, n, nil)
	return n
}

func (n *MuxerNode) String() string {
	return fmt.Sprintf("muxer('%s')", n.Muxer.URL())
}

func (n *MuxerNode) SendPacket(
	ctx context.Context,
	pkt *media.Packet,
) error {
	if _, err := n.Muxer.Write(ctx, pkt, n.forceInterleave); err != nil {
		return fmt.Errorf("unable to write the packet to %s: %w", n.Muxer, err)
	}
	if n.stats != nil {
		mediaType := types.MediaTypeUnknown
		if s, err := n.Muxer.Stream(ctx, pkt.StreamIndex); err == nil {
			mediaType = s.MediaType()
		}
		n.stats.packetWrote(mediaType, pkt)
	}
	return nil
}

// Close stops writing, writes the trailer and releases the Muxer.
func (n *MuxerNode) Close() error {
	n.stop()
	return n.Muxer.Close(xcontext.DetachDone(n.ctx))
}
