package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/media"
)

func packetOfSize(size int, key bool) *media.Packet {
	pkt := media.NewPacket()
	pkt.Data = make([]byte, size)
	pkt.Key = key
	pkt.Complete = true
	return pkt
}

func TestThrottle(t *testing.T) {
	ctx := context.Background()
	throttle := NewThrottle(ctx, ThrottleConfig{
		AverageBitRate:         8000,
		BitrateAveragingPeriod: time.Second,
	})
	now := time.Unix(1000, 0)
	throttle.now = func() time.Time { return now }

	require.True(t, throttle.Accept(ctx, packetOfSize(400, true)))
	require.True(t, throttle.Accept(ctx, packetOfSize(400, false)))
	require.False(t, throttle.Accept(ctx, packetOfSize(400, false)), "the averaging buffer is exhausted")

	now = now.Add(time.Second)
	require.False(t, throttle.Accept(ctx, packetOfSize(400, false)), "waiting for a key frame")
	require.True(t, throttle.Accept(ctx, packetOfSize(400, true)))
	require.True(t, throttle.Accept(ctx, packetOfSize(400, false)))
}

func TestThrottleDisabled(t *testing.T) {
	ctx := context.Background()
	throttle := NewThrottle(ctx, ThrottleConfig{})
	for range 100 {
		require.True(t, throttle.Accept(ctx, packetOfSize(1<<20, false)))
	}
}

func TestThrottleDefaultPeriod(t *testing.T) {
	throttle := NewThrottle(context.Background(), ThrottleConfig{AverageBitRate: 1000})
	require.Equal(t, 10*time.Second, throttle.BitrateAveragingPeriod)
}
