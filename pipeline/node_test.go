package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
)

type sliceSource struct {
	outputChan chan *media.Packet
	err        error
	closed     bool
}

func newSliceSource(err error, sizes ...int) *sliceSource {
	s := &sliceSource{
		outputChan: make(chan *media.Packet, len(sizes)),
		err:        err,
	}
	for idx, size := range sizes {
		pkt := packetOfSize(size, true)
		pkt.PTS = int64(idx)
		pkt.TimeBase = types.NewRational(1, 25)
		s.outputChan <- pkt
	}
	close(s.outputChan)
	return s
}

func (s *sliceSource) String() string {
	return "slice"
}

func (s *sliceSource) SendPacketChan() chan<- *media.Packet {
	return nil
}

func (s *sliceSource) OutputPacketsChan() <-chan *media.Packet {
	return s.outputChan
}

func (s *sliceSource) Err() error {
	return s.err
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type collector struct {
	nodeLoop
	packets  []*media.Packet
	failOn   int
	flushed  bool
	closeErr error
}

func newCollector(ctx context.Context, failOn int) *collector {
	c := &collector{
		nodeLoop: newNodeLoop(0, 0),
		failOn:   failOn,
	}
	c.start(ctx, c, func(context.Context) error {
		c.flushed = true
		return nil
	})
	return c
}

func (c *collector) String() string { return "collector" }

func (c *collector) SendPacket(ctx context.Context, pkt *media.Packet) error {
	if len(c.packets) == c.failOn {
		return errors.New("collector is full")
	}
	c.packets = append(c.packets, pkt)
	return nil
}

func (c *collector) Close() error {
	c.stop()
	return c.closeErr
}

func TestPipelineFanOut(t *testing.T) {
	ctx := context.Background()
	source := newSliceSource(nil, 1, 2, 3)
	a, b := newCollector(ctx, -1), newCollector(ctx, -1)

	p := NewPipelineNode(source, NewPipelineNode(a), NewPipelineNode(b))
	require.NoError(t, p.Serve(ctx))
	require.NoError(t, p.Close())

	require.True(t, source.closed)
	require.True(t, a.flushed)
	require.True(t, b.flushed)
	require.Len(t, a.packets, 3)
	require.Len(t, b.packets, 3)
	for idx := range a.packets {
		require.Equal(t, a.packets[idx].Data, b.packets[idx].Data)
		require.NotSame(t, a.packets[idx], b.packets[idx], "every branch gets its own packet")
	}
}

func TestPipelineSourceError(t *testing.T) {
	ctx := context.Background()
	sourceErr := errors.New("broken input")
	source := newSliceSource(sourceErr, 1)
	sink := newCollector(ctx, -1)

	p := NewPipelineNode(source, NewPipelineNode(sink))
	err := p.Serve(ctx)
	require.ErrorIs(t, err, sourceErr)
	require.NoError(t, p.Close())
	require.Len(t, sink.packets, 1)
}

func TestPipelineDownstreamError(t *testing.T) {
	ctx := context.Background()
	source := newSliceSource(nil, 1, 2, 3)
	sink := newCollector(ctx, 1)

	p := NewPipelineNode(source, NewPipelineNode(sink))
	err := p.Serve(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "collector is full")
	require.False(t, sink.flushed)

	sink.closeErr = errors.New("close failure")
	require.ErrorIs(t, p.Close(), sink.closeErr)
}

func TestThrottleNodePassesOtherStreams(t *testing.T) {
	ctx := context.Background()
	throttle := NewThrottle(ctx, ThrottleConfig{AverageBitRate: 1, BitrateAveragingPeriod: 1})
	stats := &CommonsStatistics{}
	node := NewThrottleNode(ctx, throttle, []types.MediaType{types.MediaTypeVideo, types.MediaTypeAudio}, stats)
	sink := newCollector(ctx, -1)

	source := newSliceSource(nil, 10, 10, 10, 10)
	for idx := 0; idx < 4; idx++ {
		pkt := <-source.outputChan
		pkt.StreamIndex = idx % 2
		node.SendPacketChan() <- pkt
	}
	close(node.SendPacketChan())
	for pkt := range node.OutputPacketsChan() {
		sink.packets = append(sink.packets, pkt)
	}
	require.NoError(t, node.Err())
	require.NoError(t, node.Close())
	require.NoError(t, sink.Close())

	require.Len(t, sink.packets, 2)
	for _, pkt := range sink.packets {
		require.Equal(t, 1, pkt.StreamIndex)
	}
	require.Equal(t, uint64(2), stats.PacketsSkipped.Load())
}
