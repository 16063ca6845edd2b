//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

func newTestFilterGraph(t *testing.T) *filterGraph {
	g, err := newFilterGraph(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })
	return g
}

func TestFilterGraphBufferSource(t *testing.T) {
	ctx := context.Background()
	g := newTestFilterGraph(t)
	require.NoError(t, g.AddInput(ctx, native.GraphInput{
		Name:        "in",
		MediaType:   types.MediaTypeVideo,
		Width:       4,
		Height:      2,
		PixelFormat: types.PixelFormat(astiav.PixelFormatGray8),
		TimeBase:    types.NewRational(1, 25),
	}))
	require.NoError(t, g.AddOutput(ctx, native.GraphOutput{
		Name:         "out",
		MediaType:    types.MediaTypeVideo,
		PixelFormat:  types.PixelFormatNone,
		SampleFormat: types.SampleFormatNone,
	}))
	require.NoError(t, g.Configure(ctx, "[in]negate[out]"))
	require.Equal(t, types.NewRational(1, 25), g.OutputTimeBase("out"))

	pic := media.NewPicture(4, 2, types.PixelFormat(astiav.PixelFormatGray8))
	pic.Planes = [][]byte{{0, 1, 2, 3, 4, 5, 6, 7}}
	pic.Strides = []int{4}
	pic.PTS = 7
	pic.TimeBase = types.NewRational(1, 25)
	pic.Complete = true
	require.NoError(t, g.SendFrame(ctx, "in", pic))
	require.NoError(t, g.SendFrame(ctx, "in", nil))

	out := media.NewPicture(0, 0, types.PixelFormatNone)
	require.NoError(t, g.ReceiveFrame(ctx, "out", out))
	require.Equal(t, 4, out.Width)
	require.Equal(t, int64(7), out.PTS)
	require.ErrorIs(t, g.ReceiveFrame(ctx, "out", out), native.ErrEOF)

	var names []string
	for _, f := range g.Filters(ctx) {
		names = append(names, f.FilterName)
	}
	require.Contains(t, names, "buffer")
	require.Contains(t, names, "negate")
	require.Contains(t, names, "buffersink")
}

func TestFilterGraphSourceOnly(t *testing.T) {
	ctx := context.Background()
	g := newTestFilterGraph(t)
	require.NoError(t, g.AddOutput(ctx, native.GraphOutput{
		Name:         "out",
		MediaType:    types.MediaTypeVideo,
		PixelFormat:  types.PixelFormatNone,
		SampleFormat: types.SampleFormatNone,
	}))
	require.NoError(t, g.Configure(ctx, "testsrc=size=32x24:rate=10:duration=1[out]"))

	out := media.NewPicture(0, 0, types.PixelFormatNone)
	require.NoError(t, g.ReceiveFrame(ctx, "out", out))
	require.Equal(t, 32, out.Width)
	require.Equal(t, 24, out.Height)
}

func TestFilterGraphAutoConvertDisabled(t *testing.T) {
	ctx := context.Background()
	g := newTestFilterGraph(t)
	require.NoError(t, g.AddOutput(ctx, native.GraphOutput{
		Name:         "out",
		MediaType:    types.MediaTypeVideo,
		PixelFormat:  types.PixelFormat(astiav.PixelFormatGray8),
		SampleFormat: types.SampleFormatNone,
	}))
	require.NoError(t, g.SetAutoConvert(ctx, false))
	require.Error(t, g.Configure(ctx, "testsrc=size=32x24:duration=1[out]"))
}

func TestInterleavedFlushed(t *testing.T) {
	require.True(t, interleavedFlushed(1))
	require.False(t, interleavedFlushed(2))
}
