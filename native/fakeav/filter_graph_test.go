package fakeav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

func TestParseDescription(t *testing.T) {
	chains, err := parseDescription("[pin]scale=78:24[pout];[ain]atempo=1.2,volume=0.5[aout]")
	require.NoError(t, err)
	require.Len(t, chains, 2)
	require.Equal(t, []string{"pin"}, chains[0][0].inLabels)
	require.Equal(t, "78:24", chains[0][0].args)
	require.Equal(t, []string{"pout"}, chains[0][0].outLabels)
	require.Len(t, chains[1], 2)
	require.Equal(t, "volume", chains[1][1].name)

	_, err = parseDescription("")
	require.Error(t, err)
	_, err = parseDescription("[a]scale=1:1[b];;")
	require.Error(t, err)
}

func newVideoGraph(t *testing.T, description string) *filterGraph {
	ctx := context.Background()
	g := newFilterGraph(New())
	require.NoError(t, g.AddInput(ctx, native.GraphInput{
		Name:        "in",
		MediaType:   types.MediaTypeVideo,
		Width:       2,
		Height:      2,
		PixelFormat: PixelFormatGray8,
		TimeBase:    types.NewRational(1, 25),
	}))
	require.NoError(t, g.AddOutput(ctx, native.GraphOutput{
		Name:         "out",
		MediaType:    types.MediaTypeVideo,
		PixelFormat:  types.PixelFormatNone,
		SampleFormat: types.SampleFormatNone,
	}))
	require.NoError(t, g.Configure(ctx, description))
	return g
}

func TestFilterGraphFlow(t *testing.T) {
	ctx := context.Background()
	g := newVideoGraph(t, "[in]hflip,negate,scale=4:4[out]")

	pic := media.NewPicture(2, 2, PixelFormatGray8)
	pic.Planes = [][]byte{{0, 10, 20, 30}}
	pic.PTS = 3
	pic.TimeBase = types.NewRational(1, 25)
	pic.Complete = true
	require.NoError(t, g.SendFrame(ctx, "in", pic))

	out := media.NewPicture(0, 0, types.PixelFormatNone)
	require.NoError(t, g.ReceiveFrame(ctx, "out", out))
	require.Equal(t, 4, out.Width)
	require.Equal(t, int64(3), out.PTS)
	require.Equal(t, []byte{245, 245, 255, 255}, out.Planes[0][:4])
	require.ErrorIs(t, g.ReceiveFrame(ctx, "out", out), native.ErrAgain)

	require.NoError(t, g.SendFrame(ctx, "in", nil))
	require.ErrorIs(t, g.ReceiveFrame(ctx, "out", out), native.ErrEOF)
	require.ErrorIs(t, g.SendFrame(ctx, "in", pic), native.ErrEOF)
	require.Equal(t, types.NewRational(1, 25), g.OutputTimeBase("out"))
}

func TestFilterGraphConfigureErrors(t *testing.T) {
	ctx := context.Background()
	for _, description := range []string{
		"[monkeybutt]polishTurd[goldturkey]",
		"[in]scale=4:4",
		"[in]split[out][dangling]",
		"[in]atempo=2[out]",
		"[in]null[x];[y]null[out]",
	} {
		t.Run(description, func(t *testing.T) {
			g := newFilterGraph(New())
			require.NoError(t, g.AddInput(ctx, native.GraphInput{Name: "in", MediaType: types.MediaTypeVideo, Width: 2, Height: 2}))
			require.NoError(t, g.AddOutput(ctx, native.GraphOutput{Name: "out", MediaType: types.MediaTypeVideo, PixelFormat: types.PixelFormatNone}))
			err := g.Configure(ctx, description)
			require.ErrorIs(t, err, types.ErrNative)
		})
	}
}

func TestFilterGraphCommands(t *testing.T) {
	ctx := context.Background()
	g := newVideoGraph(t, "[in]scale=2:2[out]")

	_, err := g.SendCommand(ctx, "scale", "w", "8", 0)
	require.NoError(t, err)
	_, err = g.SendCommand(ctx, "Parsed_scale_0", "bogus", "1", 0)
	require.ErrorIs(t, err, native.ErrNotImplemented)
	_, err = g.SendCommand(ctx, "nothing", "w", "8", 0)
	require.ErrorIs(t, err, native.ErrNotImplemented)

	pic := media.NewPicture(2, 2, PixelFormatGray8)
	pic.Planes = [][]byte{{1, 2, 3, 4}}
	pic.Complete = true
	require.NoError(t, g.SendFrame(ctx, "in", pic))
	out := media.NewPicture(0, 0, types.PixelFormatNone)
	require.NoError(t, g.ReceiveFrame(ctx, "out", out))
	require.Equal(t, 8, out.Width)
	require.Equal(t, 2, out.Height)

	require.Contains(t, g.Dump(ctx), "Parsed_scale_0 (scale=2:2)")
}

func TestFilterGraphQueuedCommand(t *testing.T) {
	ctx := context.Background()
	g := newVideoGraph(t, "[in]scale=2:2[out]")

	require.ErrorIs(t, g.QueueCommand(ctx, "nothing", "w", "8", 0, 0), native.ErrNotImplemented)
	require.NoError(t, g.QueueCommand(ctx, "scale", "w", "6", 0, 1))

	out := media.NewPicture(0, 0, types.PixelFormatNone)
	for pts, wantWidth := range []int{2, 2, 6} {
		pic := media.NewPicture(2, 2, PixelFormatGray8)
		pic.Planes = [][]byte{{1, 2, 3, 4}}
		pic.PTS = int64(pts) * 20
		pic.TimeBase = types.NewRational(1, 25)
		pic.Complete = true
		require.NoError(t, g.SendFrame(ctx, "in", pic))
		require.NoError(t, g.ReceiveFrame(ctx, "out", out))
		require.Equal(t, wantWidth, out.Width, "pts %d", pic.PTS)
	}
}

func TestFilterGraphSourceFilters(t *testing.T) {
	ctx := context.Background()
	g := newFilterGraph(New())
	require.NoError(t, g.AddOutput(ctx, native.GraphOutput{Name: "v", MediaType: types.MediaTypeVideo, PixelFormat: types.PixelFormatNone}))
	require.NoError(t, g.AddOutput(ctx, native.GraphOutput{Name: "a", MediaType: types.MediaTypeAudio, SampleFormat: types.SampleFormatNone}))
	require.NoError(t, g.Configure(ctx, "testsrc=size=4x2:rate=10:duration=0.3,scale=2:2[v];sine=sample_rate=8000:samples_per_frame=100:d=0.02[a]"))
	require.Equal(t, types.NewRational(1, 10), g.OutputTimeBase("v"))
	require.Equal(t, types.NewRational(1, 8000), g.OutputTimeBase("a"))

	pic := media.NewPicture(0, 0, types.PixelFormatNone)
	for pts := int64(0); pts < 3; pts++ {
		require.NoError(t, g.ReceiveFrame(ctx, "v", pic))
		require.Equal(t, pts, pic.PTS)
		require.Equal(t, 2, pic.Width)
		require.Equal(t, PixelFormatRGB24, pic.PixelFormat)
	}

	audio := media.NewAudio(0, types.ChannelLayout{}, types.SampleFormatNone)
	var samples []int
	for {
		err := g.ReceiveFrame(ctx, "a", audio)
		if err != nil {
			require.ErrorIs(t, err, native.ErrEOF)
			break
		}
		samples = append(samples, audio.NumSamples)
	}
	require.Equal(t, []int{100, 60}, samples)
	require.Equal(t, int64(100), audio.PTS)

	require.ErrorIs(t, g.ReceiveFrame(ctx, "v", pic), native.ErrEOF)
}

func TestFilterGraphUnlimitedSource(t *testing.T) {
	ctx := context.Background()
	g := newFilterGraph(New())
	require.NoError(t, g.AddOutput(ctx, native.GraphOutput{Name: "out", MediaType: types.MediaTypeVideo, PixelFormat: types.PixelFormatNone}))
	require.NoError(t, g.Configure(ctx, "testsrc=s=2x2[out]"))

	pic := media.NewPicture(0, 0, types.PixelFormatNone)
	for range 100 {
		require.NoError(t, g.ReceiveFrame(ctx, "out", pic))
	}
	require.Equal(t, int64(99), pic.PTS)
}

func TestFilterGraphAutoConvert(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name    string
		enabled bool
		format  types.PixelFormat
		fails   bool
	}{
		{"enabled", true, PixelFormatGray8, false},
		{"disabled with the same format", false, PixelFormatRGB24, false},
		{"unconstrained", false, types.PixelFormatNone, false},
		{"disabled", false, PixelFormatGray8, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := newFilterGraph(New())
			require.NoError(t, g.SetAutoConvert(ctx, tc.enabled))
			require.NoError(t, g.AddOutput(ctx, native.GraphOutput{Name: "out", MediaType: types.MediaTypeVideo, PixelFormat: tc.format}))
			err := g.Configure(ctx, "testsrc=s=2x2:d=1,hflip[out]")
			if tc.fails {
				require.ErrorIs(t, err, types.ErrNative)
				return
			}
			require.NoError(t, err)
			require.ErrorIs(t, g.SetAutoConvert(ctx, true), types.ErrNative, "already configured")
		})
	}
}

func TestFilterGraphFilters(t *testing.T) {
	ctx := context.Background()
	g := newVideoGraph(t, "[in]hflip,scale=4:4[out]")
	require.Equal(t, []native.FilterInfo{
		{Name: "in", FilterName: "buffer"},
		{Name: "Parsed_hflip_0", FilterName: "hflip"},
		{Name: "Parsed_scale_1", FilterName: "scale"},
		{Name: "out", FilterName: "buffersink"},
	}, g.Filters(ctx))
}
