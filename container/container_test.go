package container

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/native/fakeav"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/secret"
)

func TestStreamsAreDiscoveredLazily(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()
	fixture := fakeav.NewSyntheticFixture(4, 0)
	fixture.Streams = append(fixture.Streams, fakeav.FixtureStream{
		Parameters: types.MediaParameters{
			MediaType: types.MediaTypeData,
			CodecID:   fakeav.CodecIDBinData,
		},
		TimeBase:     types.NewRational(1, 1000),
		AppearsAfter: 2,
	})
	backend.RegisterFixture("mem://late", fixture)

	d, err := OpenDemuxer(ctx, backend, "mem://late", DemuxerConfig{}, nil)
	require.NoError(t, err)
	defer d.Close(ctx)

	require.Equal(t, 1, d.NumStreams(ctx))
	first, err := d.Stream(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, first.Decoder())
	_, err = d.Stream(ctx, 1)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = d.Stream(ctx, -1)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	prev := d.NumStreams(ctx)
	pkt := media.NewPacket()
	for {
		res, err := d.Read(ctx, pkt)
		require.NoError(t, err)
		num := d.NumStreams(ctx)
		require.GreaterOrEqual(t, num, prev)
		require.Len(t, d.Streams(ctx), num)
		prev = num
		if res == types.ResultEndOfStream {
			break
		}
		require.True(t, pkt.IsComplete())
		require.Equal(t, types.NewRational(1, 25), pkt.TimeBase)
	}
	require.Equal(t, 2, prev)

	again, err := d.Stream(ctx, 0)
	require.NoError(t, err)
	require.Same(t, first, again, "streams must never be rescanned")

	data, err := d.Stream(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, data.Decoder(), "no decoder is an acceptable state")
	c, err := data.Coder(ctx)
	require.NoError(t, err)
	require.Nil(t, c)
	require.Equal(t, types.MediaTypeData, data.MediaType())

	res, err := d.Read(ctx, pkt)
	require.NoError(t, err)
	require.Equal(t, types.ResultEndOfStream, res)

	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx))
	_, err = d.Read(ctx, pkt)
	require.ErrorIs(t, err, types.ErrInvalidState)
}

func TestOpenDemuxerErrors(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	_, err := OpenDemuxer(ctx, backend, "", DemuxerConfig{}, nil)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = OpenDemuxer(ctx, backend, "mem://nothing", DemuxerConfig{}, nil)
	require.ErrorIs(t, err, types.ErrNative)

	unset := types.NewDictionary()
	d, err := OpenDemuxer(ctx, backend, "fake://synthetic?video=1", DemuxerConfig{
		Options: types.NewDictionary(
			types.DictionaryItem{Key: "probesize", Value: "32"},
			types.DictionaryItem{Key: "bogus", Value: "1"},
		),
	}, unset)
	require.NoError(t, err)
	require.Equal(t, []string{"bogus"}, unset.Keys())
	require.NoError(t, d.Close(ctx))
}

func openedDecoders(t *testing.T, d *Demuxer) []*Stream {
	ctx := context.Background()
	streams := d.Streams(ctx)
	for _, s := range streams {
		require.NotNil(t, s.Decoder())
		require.NoError(t, s.Decoder().Open(ctx, nil, nil))
	}
	return streams
}

func TestMuxerLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()
	d, err := OpenDemuxer(ctx, backend, "fake://synthetic?video=2", DemuxerConfig{}, nil)
	require.NoError(t, err)
	defer d.Close(ctx)

	m, err := NewMuxer(ctx, backend, "mem://lifecycle", MuxerConfig{})
	require.NoError(t, err)
	require.Equal(t, MuxerStateInited, m.State())

	pkt := fakeav.NewSyntheticFixture(1, 0).Packets[0]
	_, err = m.Write(ctx, pkt, false)
	require.ErrorIs(t, err, types.ErrInvalidState, "write before open")

	_, err = m.AddNewStream(ctx, nil)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
	notOpened, err := d.Stream(ctx, 0)
	require.NoError(t, err)
	_, err = m.AddNewStream(ctx, notOpened.Decoder().Coder)
	require.ErrorIs(t, err, types.ErrInvalidArgument, "the coder is not opened")
	require.Zero(t, m.NumStreams(ctx))

	require.ErrorIs(t, m.SetOutputBufferLength(0), types.ErrInvalidArgument)
	require.NoError(t, m.SetOutputBufferLength(64))
	require.Equal(t, 64, m.OutputBufferLength())

	streams := openedDecoders(t, d)
	s, err := m.AddNewStream(ctx, streams[0].Decoder().Coder)
	require.NoError(t, err)
	c, err := s.Coder(ctx)
	require.NoError(t, err)
	require.Same(t, streams[0].Decoder().Coder, c)
	require.Equal(t, types.NewRational(1, 25), s.TimeBase())

	unset := types.NewDictionary()
	require.NoError(t, m.Open(ctx, types.NewDictionary(
		types.DictionaryItem{Key: "title", Value: "lifecycle"},
		types.DictionaryItem{Key: "bogus", Value: "1"},
	), unset))
	require.Equal(t, MuxerStateOpened, m.State())
	require.Equal(t, []string{"bogus"}, unset.Keys())
	require.Equal(t, types.NewRational(1, 1000), s.TimeBase(), "the format picks its own time base")

	_, err = m.AddNewStream(ctx, streams[0].Decoder().Coder)
	require.ErrorIs(t, err, types.ErrInvalidState, "add a stream after open")
	require.ErrorIs(t, m.Open(ctx, nil, nil), types.ErrInvalidState)
	require.ErrorIs(t, m.SetOutputBufferLength(128), types.ErrInvalidState)

	_, err = m.Write(ctx, nil, false)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = m.Write(ctx, media.NewPacket(), false)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
	bad := pkt.Clone()
	bad.StreamIndex = 5
	_, err = m.Write(ctx, bad, false)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
	require.Equal(t, MuxerStateOpened, m.State(), "invalid arguments must not break the muxer")

	_, err = m.Write(ctx, pkt, false)
	require.NoError(t, err)
	require.Equal(t, MuxerStatistics{PacketsWritten: 1, BytesWritten: 16}, m.Statistics())

	require.NoError(t, m.Close(ctx))
	require.Equal(t, MuxerStateClosed, m.State())
	require.ErrorIs(t, m.Close(ctx), types.ErrInvalidState, "no double free")
	_, err = m.Write(ctx, pkt, false)
	require.ErrorIs(t, err, types.ErrInvalidState)

	stored, ok := backend.Stored("mem://lifecycle")
	require.True(t, ok)
	fixture, err := fakeav.ParseContainer(stored)
	require.NoError(t, err)
	require.True(t, fixture.Trailer)
	require.Equal(t, "lifecycle", fixture.Metadata["title"])
	require.Equal(t, int64(0), fixture.Packets[0].PTS)
}

func TestMuxerOpenFailureMovesToError(t *testing.T) {
	ctx := context.Background()
	m, err := NewMuxer(ctx, fakeav.New(), "mem://empty", MuxerConfig{})
	require.NoError(t, err)

	err = m.Open(ctx, nil, nil)
	require.ErrorIs(t, err, types.ErrNative, "no streams")
	require.Equal(t, MuxerStateError, m.State())
	require.ErrorIs(t, m.Open(ctx, nil, nil), types.ErrInvalidState)

	require.NoError(t, m.Close(ctx))
	require.Equal(t, MuxerStateError, m.State())
	require.ErrorIs(t, m.Close(ctx), types.ErrInvalidState)
}

func TestMuxerCloseWithoutOpen(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()
	m, err := NewMuxer(ctx, backend, "mem://never-opened", MuxerConfig{})
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx))
	require.Equal(t, MuxerStateClosed, m.State())
	_, ok := backend.Stored("mem://never-opened")
	require.False(t, ok, "nothing must be written without opening")
}

func TestNewMuxerErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewMuxer(ctx, fakeav.New(), "", MuxerConfig{})
	require.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = NewMuxer(ctx, fakeav.New(), "mem://x", MuxerConfig{FormatName: "nonexistent"})
	require.ErrorIs(t, err, types.ErrNative)
}

func remux(
	t *testing.T,
	backend *fakeav.Backend,
	from string,
	m *Muxer,
	forceInterleave bool,
) int {
	ctx := context.Background()
	d, err := OpenDemuxer(ctx, backend, from, DemuxerConfig{}, nil)
	require.NoError(t, err)
	defer d.Close(ctx)

	for _, s := range openedDecoders(t, d) {
		_, err := m.AddNewStream(ctx, s.Decoder().Coder)
		require.NoError(t, err)
	}
	require.NoError(t, m.Open(ctx, nil, nil))

	count := 0
	pkt := media.NewPacket()
	for {
		res, err := d.Read(ctx, pkt)
		require.NoError(t, err)
		if res == types.ResultEndOfStream {
			break
		}
		_, err = m.Write(ctx, pkt, forceInterleave)
		require.NoError(t, err)
		count++
	}
	require.NoError(t, m.Close(ctx))
	return count
}

func TestRemuxRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()
	m, err := NewMuxer(ctx, backend, "mem://remux", MuxerConfig{})
	require.NoError(t, err)
	count := remux(t, backend, "fake://synthetic?video=5&audio=10", m, false)
	require.Equal(t, 15, count)

	d, err := OpenDemuxer(ctx, backend, "mem://remux", DemuxerConfig{}, nil)
	require.NoError(t, err)
	defer d.Close(ctx)
	require.Equal(t, 2, d.NumStreams(ctx))

	total := 0
	pkt := media.NewPacket()
	var lastAudioPTS int64 = -1
	for {
		res, err := d.Read(ctx, pkt)
		require.NoError(t, err)
		if res == types.ResultEndOfStream {
			break
		}
		if pkt.StreamIndex == 1 {
			require.Greater(t, pkt.PTS, lastAudioPTS)
			require.Equal(t, types.NewRational(1, 1000), pkt.TimeBase)
			lastAudioPTS = pkt.PTS
		}
		total++
	}
	require.Equal(t, count, total)
	require.Equal(t, int64(180), lastAudioPTS, "the 10th 20ms audio packet")
}

func TestRemuxThroughIOHandler(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()

	var buf bytes.Buffer
	m, err := NewMuxer(ctx, backend, "", MuxerConfig{
		IOHandler: NewIOHandlerAdapter(ctx, &buf),
	})
	require.NoError(t, err)
	count := remux(t, backend, "fake://synthetic?video=3&audio=3", m, true)

	d, err := OpenDemuxer(ctx, backend, "", DemuxerConfig{
		IOHandler: NewIOHandlerAdapter(ctx, bytes.NewReader(buf.Bytes())),
	}, nil)
	require.NoError(t, err)
	defer d.Close(ctx)

	total := 0
	pkt := media.NewPacket()
	for {
		res, err := d.Read(ctx, pkt)
		require.NoError(t, err)
		if res == types.ResultEndOfStream {
			break
		}
		total++
	}
	require.Equal(t, count, total)
}

type failingWriter struct {
	panic bool
}

func (w failingWriter) Write(b []byte) (int, error) {
	if w.panic {
		panic("boom")
	}
	return 0, errors.New("disk is full")
}

func TestIOHandlerAdapterErrors(t *testing.T) {
	ctx := context.Background()

	h := NewIOHandlerAdapter(ctx, failingWriter{})
	require.True(t, h.IsWritable())
	require.False(t, h.IsSeekable())
	require.Equal(t, -1, h.Write([]byte{1}))
	require.EqualError(t, h.LastError(), "disk is full")
	require.Equal(t, -1, h.Read(make([]byte, 1)))
	require.Equal(t, int64(-1), h.SeekTo(0, 0))
	require.Zero(t, h.Close())

	h = NewIOHandlerAdapter(ctx, failingWriter{panic: true})
	require.Equal(t, -1, h.Write([]byte{1}))
	require.Error(t, h.LastError())

	r := NewIOHandlerAdapter(ctx, bytes.NewReader([]byte{1, 2, 3}))
	require.Equal(t, int64(3), r.SeekTo(0, native.SeekSize))
	buf := make([]byte, 8)
	require.Equal(t, 3, r.Read(buf))
	require.Equal(t, native.IOEOF, r.Read(buf))
}

func TestBuildOutputURL(t *testing.T) {
	for _, tc := range []struct {
		url        string
		key        string
		wantURL    string
		wantFormat string
	}{
		{"rtmp://example.org/live", "abc", "rtmp://example.org:1935/live/abc", "flv"},
		{"rtmps://example.org", "abc", "rtmps://example.org:443//abc", "flv"},
		{"srt://example.org:9000", "", "srt://example.org:9000", "mpegts"},
		{"mem://out", "", "mem://out", ""},
	} {
		t.Run(tc.url, func(t *testing.T) {
			u, format, err := buildOutputURL(tc.url, secret.New(tc.key))
			require.NoError(t, err)
			require.Equal(t, tc.wantURL, u)
			require.Equal(t, tc.wantFormat, format)
		})
	}
	_, _, err := buildOutputURL("", secret.New(""))
	require.Error(t, err)
}
