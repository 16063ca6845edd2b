package fakeav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
)

func TestOutputInterleave(t *testing.T) {
	ctx := context.Background()
	b := New()
	out, err := b.NewOutput(ctx, "mem://interleave", "")
	require.NoError(t, err)
	require.NoError(t, out.OpenIO(ctx, nil, 0))
	for range 2 {
		_, err := out.AddStream(ctx, types.MediaParameters{MediaType: types.MediaTypeAudio})
		require.NoError(t, err)
	}
	require.NoError(t, out.WriteHeader(ctx, nil))

	write := func(stream int, dts int64) bool {
		pkt := media.NewPacket()
		pkt.StreamIndex = stream
		pkt.PTS, pkt.DTS = dts, dts
		pkt.TimeBase = types.NewRational(1, 1000)
		flushed, err := out.WritePacket(ctx, pkt, true)
		require.NoError(t, err)
		return flushed
	}
	require.False(t, write(0, 10))
	require.False(t, write(0, 20))
	require.False(t, write(1, 5))
	require.NoError(t, out.WriteTrailer(ctx))
	require.NoError(t, out.Close())

	data, ok := b.Stored("mem://interleave")
	require.True(t, ok)
	fixture, err := ParseContainer(data)
	require.NoError(t, err)
	require.True(t, fixture.Trailer)
	require.Len(t, fixture.Packets, 3)
	require.Equal(t, []int64{5, 10, 20}, []int64{fixture.Packets[0].DTS, fixture.Packets[1].DTS, fixture.Packets[2].DTS})
}
