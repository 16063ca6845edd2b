package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/native/fakeav"
	"github.com/xaionaro-go/avcore/types"
)

const synthetic = "fake://synthetic?video=5&audio=10"

func storedFixture(t *testing.T, backend *fakeav.Backend, url string) *fakeav.Fixture {
	data, ok := backend.Stored(url)
	require.True(t, ok, url)
	fixture, err := fakeav.ParseContainer(data)
	require.NoError(t, err)
	return fixture
}

func TestRemux(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	stats, err := Remux(ctx, backend, synthetic, "mem://remux", Config{
		Video: StreamConfig{CodecName: "h264"},
	})
	require.NoError(t, err)

	require.Equal(t, FramesStatistics{Video: 5, Audio: 10}, stats.PacketsRead)
	require.Equal(t, FramesStatistics{Video: 5, Audio: 10}, stats.PacketsWrote)
	require.Equal(t, uint64(5*16+10*320), stats.BytesCountRead)
	require.Equal(t, stats.BytesCountRead, stats.BytesCountWrote)
	require.Zero(t, stats.FramesDecoded.Video+stats.FramesDecoded.Audio)
	require.Zero(t, stats.FramesEncoded.Video+stats.FramesEncoded.Audio)

	out := storedFixture(t, backend, "mem://remux")
	require.Len(t, out.Streams, 2)
	require.Equal(t, fakeav.CodecIDRawVideo, out.Streams[0].Parameters.CodecID)
	require.Equal(t, fakeav.CodecIDPCMS16LE, out.Streams[1].Parameters.CodecID)
	require.Equal(t, 5, out.PacketsOf(0))
	require.Equal(t, 10, out.PacketsOf(1))
	require.True(t, out.Trailer)
}

func TestRemuxSkipsOtherStreams(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	fixture := fakeav.NewSyntheticFixture(0, 3)
	fixture.Streams = append(fixture.Streams, fakeav.FixtureStream{
		Parameters: types.MediaParameters{
			MediaType: types.MediaTypeData,
			CodecID:   fakeav.CodecIDBinData,
		},
		TimeBase: types.NewRational(1, 1000),
	})
	for _, pkt := range fakeav.NewSyntheticFixture(0, 2).Packets {
		pkt.StreamIndex = 1
		pkt.TimeBase = types.NewRational(1, 1000)
		fixture.Packets = append(fixture.Packets, pkt)
	}
	backend.RegisterFixture("mem://with-data", fixture)

	stats, err := Remux(ctx, backend, "mem://with-data", "mem://audio-only", Config{})
	require.NoError(t, err)
	require.Equal(t, uint64(3), stats.PacketsWrote.Audio)
	require.Equal(t, uint64(2), stats.PacketsRead.Other)
	require.Equal(t, uint64(2), stats.PacketsSkipped)

	out := storedFixture(t, backend, "mem://audio-only")
	require.Len(t, out.Streams, 1)
	require.Equal(t, 3, out.PacketsOf(0))
}

func TestTranscode(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	stats, err := Transcode(ctx, backend, synthetic, "mem://transcoded", Config{
		Video: StreamConfig{
			CodecName: "h264",
			Filter:    "hflip",
			Width:     8,
			Height:    8,
			Options:   types.NewDictionary(types.DictionaryItem{Key: "g", Value: "2"}),
		},
		Audio: StreamConfig{
			CodecName:  "aac",
			SampleRate: 16000,
		},
	})
	require.NoError(t, err)

	require.Equal(t, FramesStatistics{Video: 5, Audio: 10}, stats.PacketsRead)
	require.Equal(t, FramesStatistics{Video: 5, Audio: 10}, stats.FramesDecoded)
	require.Equal(t, FramesStatistics{Video: 5, Audio: 10}, stats.FramesEncoded)
	require.Equal(t, FramesStatistics{Video: 5, Audio: 10}, stats.PacketsWrote)

	out := storedFixture(t, backend, "mem://transcoded")
	require.Len(t, out.Streams, 2)
	video, audio := out.Streams[0].Parameters, out.Streams[1].Parameters
	require.Equal(t, fakeav.CodecIDH264, video.CodecID)
	require.Equal(t, 8, video.Width)
	require.Equal(t, 8, video.Height)
	require.Equal(t, fakeav.CodecIDAAC, audio.CodecID)
	require.Equal(t, 16000, audio.SampleRate)

	for _, pkt := range out.Packets {
		if pkt.StreamIndex == 0 {
			require.Len(t, pkt.Data, 2+8*8)
		}
	}
}

func TestTranscodeOnlyAudio(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	stats, err := Transcode(ctx, backend, synthetic, "mem://mulaw", Config{
		Audio: StreamConfig{CodecName: "pcm_mulaw"},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), stats.FramesDecoded.Video)
	require.Equal(t, uint64(10), stats.FramesEncoded.Audio)
	require.Zero(t, stats.FramesFiltered.Audio, "no conversion is needed")

	out := storedFixture(t, backend, "mem://mulaw")
	require.Equal(t, fakeav.CodecIDRawVideo, out.Streams[0].Parameters.CodecID)
	require.Equal(t, fakeav.CodecIDPCMMulaw, out.Streams[1].Parameters.CodecID)
	require.Equal(t, 5, out.PacketsOf(0))
	require.Equal(t, 10, out.PacketsOf(1))
}

func TestChainThrottlesVideo(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	stats, err := Remux(ctx, backend, synthetic, "mem://throttled", Config{
		Throttle: ThrottleConfig{
			AverageBitRate:         1,
			BitrateAveragingPeriod: time.Second,
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), stats.PacketsSkipped)
	require.Equal(t, FramesStatistics{Audio: 10}, stats.PacketsWrote)

	out := storedFixture(t, backend, "mem://throttled")
	require.Len(t, out.Streams, 2)
	require.Zero(t, out.PacketsOf(0))
	require.Equal(t, 10, out.PacketsOf(1))
}

func TestNewChainErrors(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	_, err := NewChain(ctx, backend, "mem://nothing", "mem://out", Config{})
	require.Error(t, err)

	_, err = NewChain(ctx, backend, synthetic, "mem://out", Config{
		Video: StreamConfig{CodecName: "nonexistent"},
	})
	require.Error(t, err)
	_, ok := backend.Stored("mem://out")
	require.False(t, ok, "nothing is written on failure")

	_, err = NewChain(ctx, backend, synthetic, "mem://out", Config{OutputFormat: "nonexistent"})
	require.Error(t, err)

	backend.RegisterFixture("mem://empty", &fakeav.Fixture{})
	_, err = NewChain(ctx, backend, "mem://empty", "mem://out", Config{})
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestChainUnusedOptionsAreNotFatal(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	_, err := Remux(ctx, backend, synthetic, "mem://options", Config{
		InputOptions:  types.NewDictionary(types.DictionaryItem{Key: "probesize", Value: "32"}, types.DictionaryItem{Key: "bogus", Value: "1"}),
		OutputOptions: types.NewDictionary(types.DictionaryItem{Key: "title", Value: "hello"}, types.DictionaryItem{Key: "bogus", Value: "2"}),
	})
	require.NoError(t, err)
	out := storedFixture(t, backend, "mem://options")
	require.Equal(t, "hello", out.Metadata["title"])
}

func TestChainServeCancelled(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	chain, err := NewChain(ctx, backend, synthetic, "mem://cancelled", Config{})
	require.NoError(t, err)

	cancelledCtx, cancelFn := context.WithCancel(ctx)
	cancelFn()
	require.Error(t, chain.Serve(cancelledCtx))
	require.NoError(t, chain.Close())
}
