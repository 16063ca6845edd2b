package coder

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native/fakeav"
	"github.com/xaionaro-go/avcore/types"
)

func videoParams() *types.MediaParameters {
	return &types.MediaParameters{
		MediaType:   types.MediaTypeVideo,
		Width:       4,
		Height:      4,
		PixelFormat: fakeav.PixelFormatGray8,
		FrameRate:   types.NewRational(25, 1),
		TimeBase:    types.NewRational(1, 25),
	}
}

func audioParams() *types.MediaParameters {
	return &types.MediaParameters{
		MediaType:     types.MediaTypeAudio,
		SampleRate:    8000,
		ChannelLayout: types.ChannelLayoutMono,
		SampleFormat:  fakeav.SampleFormatS16,
		TimeBase:      types.NewRational(1, 8000),
	}
}

func newEncoder(t *testing.T, name string, params *types.MediaParameters) *Encoder {
	ctx := context.Background()
	enc, err := NewEncoderByName(ctx, fakeav.New(), name, params)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, enc.Close(ctx)) })
	return enc
}

func newDecoder(t *testing.T, codecID types.CodecID, params *types.MediaParameters) *Decoder {
	ctx := context.Background()
	dec, err := NewDecoderByID(ctx, fakeav.New(), codecID, params)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, dec.Close(ctx)) })
	return dec
}

func TestMutatorsAreGatedByState(t *testing.T) {
	ctx := context.Background()
	enc := newEncoder(t, "rawvideo", videoParams())
	require.NoError(t, enc.SetTimeBase(ctx, types.NewRational(1, 50)))
	require.NoError(t, enc.SetFlag(ctx, FlagGlobalHeader, true))
	require.True(t, enc.Flag(FlagGlobalHeader))
	require.NoError(t, enc.SetFlag2(ctx, Flag2Fast, true))
	require.ErrorIs(t, enc.SetTimeBase(ctx, types.Rational{}), types.ErrInvalidArgument)
	require.ErrorIs(t, enc.SetMediaParameters(ctx, nil), types.ErrInvalidArgument)

	require.NoError(t, enc.Open(ctx, nil, nil))
	require.Equal(t, StateOpened, enc.State())

	require.ErrorIs(t, enc.SetTimeBase(ctx, types.NewRational(1, 30)), types.ErrInvalidState)
	require.ErrorIs(t, enc.SetFlags(ctx, 0), types.ErrInvalidState)
	require.ErrorIs(t, enc.SetFlags2(ctx, 0), types.ErrInvalidState)
	require.ErrorIs(t, enc.SetMediaParameters(ctx, videoParams()), types.ErrInvalidState)
	require.ErrorIs(t, enc.Open(ctx, nil, nil), types.ErrInvalidState)

	require.Equal(t, StateOpened, enc.State())
	require.Equal(t, types.NewRational(1, 50), enc.TimeBase())
	require.True(t, enc.Flag(FlagGlobalHeader))
	require.True(t, enc.Flag2(Flag2Fast))
}

func TestAudioFrameSize(t *testing.T) {
	for _, tc := range []struct {
		codec string
		want  int
	}{
		{"pcm_s16le", 576},
		{"pcm_mulaw", 576},
		{"aac", 1024},
	} {
		t.Run(tc.codec, func(t *testing.T) {
			require.Equal(t, tc.want, newEncoder(t, tc.codec, audioParams()).FrameSize())
		})
	}
	require.Equal(t, 0, newEncoder(t, "h264", videoParams()).FrameSize())
}

func TestOpenReportsUnsetOptions(t *testing.T) {
	ctx := context.Background()
	enc := newEncoder(t, "h264", videoParams())

	in := types.NewDictionary(
		types.DictionaryItem{Key: "b", Value: "100000"},
		types.DictionaryItem{Key: "bogus", Value: "1"},
		types.DictionaryItem{Key: "preset", Value: "fast"},
	)
	unset := types.NewDictionary(types.DictionaryItem{Key: "stale", Value: "x"})
	require.NoError(t, enc.Open(ctx, in, unset))
	require.Equal(t, []string{"bogus"}, unset.Keys())
	require.Equal(t, 3, in.Len(), "the input options must be left untouched")
	require.Equal(t, int64(100000), enc.MediaParameters().BitRate)
}

func TestOpenFailureMovesToError(t *testing.T) {
	ctx := context.Background()
	params := videoParams()
	params.Width = 0
	enc := newEncoder(t, "rawvideo", params)

	err := enc.Open(ctx, types.NewDictionary(types.DictionaryItem{Key: "b", Value: "1"}), nil)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
	require.Equal(t, StateError, enc.State())

	_, err = enc.Send(ctx, nil)
	require.ErrorIs(t, err, types.ErrInvalidState)
	_, err = enc.Receive(ctx, media.NewPacket())
	require.ErrorIs(t, err, types.ErrInvalidState)
}

func TestOpenInvalidOptionValueMovesToError(t *testing.T) {
	ctx := context.Background()
	dec := newDecoder(t, fakeav.CodecIDRawVideo, videoParams())
	err := dec.Open(ctx, types.NewDictionary(types.DictionaryItem{Key: "g", Value: "-1"}), nil)
	require.ErrorIs(t, err, types.ErrNative)
	require.Equal(t, StateError, dec.State())
}

func TestDecoderDrainsAndEndOfStreamIsSticky(t *testing.T) {
	ctx := context.Background()
	dec := newDecoder(t, fakeav.CodecIDRawVideo, videoParams())
	require.NoError(t, dec.Open(ctx, nil, nil))

	fixture := fakeav.NewSyntheticFixture(3, 0)
	for _, pkt := range fixture.Packets {
		res, err := dec.Send(ctx, pkt)
		require.NoError(t, err)
		require.Equal(t, types.ResultSuccess, res)
	}

	res, err := dec.Send(ctx, media.NewPacket())
	require.ErrorIs(t, err, types.ErrInvalidArgument, "an incomplete packet")
	require.Equal(t, StateOpened, dec.State())

	res, err = dec.Send(ctx, fixture.Packets[0])
	require.NoError(t, err)
	require.Equal(t, types.ResultAgain, res, "the ready queue is full")

	pic := media.NewPicture(0, 0, types.PixelFormatNone)
	for idx := range 3 {
		res, err := dec.Receive(ctx, pic)
		require.NoError(t, err)
		require.Equal(t, types.ResultSuccess, res)
		require.True(t, pic.IsComplete())
		require.Equal(t, int64(idx), pic.PTS)
		require.Equal(t, bytes.Repeat([]byte{byte(idx)}, 16), pic.Planes[0])
	}
	res, err = dec.Receive(ctx, pic)
	require.NoError(t, err)
	require.Equal(t, types.ResultAgain, res)

	res, err = dec.Send(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, types.ResultSuccess, res)
	require.Equal(t, StateFlushing, dec.State())

	res, err = dec.Send(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, types.ResultSuccess, res)

	_, err = dec.Send(ctx, fixture.Packets[0])
	require.ErrorIs(t, err, types.ErrInvalidState)

	for range 3 {
		res, err := dec.Receive(ctx, pic)
		require.NoError(t, err)
		require.Equal(t, types.ResultEndOfStream, res)
	}
	require.True(t, dec.IsEndOfStream())

	reused, allocated := dec.BufferStats()
	require.Equal(t, uint64(1), allocated)
	require.Equal(t, uint64(2), reused)
}

func TestDecoderRebasesTimeStamps(t *testing.T) {
	ctx := context.Background()
	params := videoParams()
	params.TimeBase = types.Rational{}
	dec := newDecoder(t, fakeav.CodecIDRawVideo, params)
	require.NoError(t, dec.SetTimeBase(ctx, types.NewRational(1, 1000)))
	require.NoError(t, dec.Open(ctx, nil, nil))

	pkt := fakeav.NewSyntheticFixture(3, 0).Packets[2]
	_, err := dec.Send(ctx, pkt)
	require.NoError(t, err)
	pic := media.NewPicture(0, 0, types.PixelFormatNone)
	res, err := dec.Receive(ctx, pic)
	require.NoError(t, err)
	require.Equal(t, types.ResultSuccess, res)
	require.Equal(t, int64(80), pic.PTS)
	require.Equal(t, types.NewRational(1, 1000), pic.TimeBase)
	require.Equal(t, int64(2), pkt.PTS)
}

func TestDecoderAudioTimeStamps(t *testing.T) {
	ctx := context.Background()
	dec := newDecoder(t, fakeav.CodecIDPCMS16LE, audioParams())
	require.NoError(t, dec.Open(ctx, nil, nil))

	type expectation struct {
		pts           int64
		discontinuous bool
	}
	for idx, tc := range []struct {
		inPTS int64
		want  expectation
	}{
		{0, expectation{0, true}},
		{types.NoPTS, expectation{160, false}},
		{330, expectation{320, false}},
		{10000, expectation{10000, true}},
		{10160, expectation{10160, false}},
		{types.NoPTS, expectation{10320, false}},
	} {
		pkt := media.NewPacket()
		pkt.PTS, pkt.DTS = tc.inPTS, tc.inPTS
		pkt.TimeBase = types.NewRational(1, 8000)
		pkt.Data = make([]byte, 320)
		pkt.Complete = true
		res, err := dec.Send(ctx, pkt)
		require.NoError(t, err)
		require.Equal(t, types.ResultSuccess, res)

		a := media.NewAudio(0, types.ChannelLayout{}, types.SampleFormatNone)
		res, err = dec.Receive(ctx, a)
		require.NoError(t, err)
		require.Equal(t, types.ResultSuccess, res)
		require.Equal(t, 160, a.NumSamples)
		require.Equal(t, tc.want.pts, a.PTS, "frame #%d", idx)
		require.Equal(t, tc.want.discontinuous, a.Discontinuous, "frame #%d", idx)
	}
}

func TestEncoderRejectsMismatchedInput(t *testing.T) {
	ctx := context.Background()
	enc := newEncoder(t, "rawvideo", videoParams())
	require.NoError(t, enc.Open(ctx, nil, nil))

	pic := media.NewPicture(8, 8, fakeav.PixelFormatGray8)
	pic.Complete = true
	_, err := enc.Send(ctx, pic)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = enc.Send(ctx, media.NewPicture(4, 4, fakeav.PixelFormatGray8))
	require.ErrorIs(t, err, types.ErrInvalidArgument, "incomplete")

	_, err = enc.Send(ctx, media.NewAudio(8000, types.ChannelLayoutMono, fakeav.SampleFormatS16))
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	require.Equal(t, StateOpened, enc.State())
	require.NoError(t, enc.EnsurePictureParamsMatch(nil))
	require.NoError(t, enc.EnsureAudioParamsMatch(nil))
}

func TestEncoderRejectsOversizedAudioFrames(t *testing.T) {
	ctx := context.Background()
	enc := newEncoder(t, "aac", audioParams())
	require.NoError(t, enc.Open(ctx, nil, nil))

	a := media.NewAudio(8000, types.ChannelLayoutMono, fakeav.SampleFormatS16)
	a.NumSamples = 2048
	a.Planes = [][]byte{make([]byte, 4096)}
	a.Complete = true
	_, err := enc.Send(ctx, a)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestEncodeDecodeWithDelay(t *testing.T) {
	ctx := context.Background()
	enc := newEncoder(t, "h264", videoParams())
	require.NoError(t, enc.Open(ctx, types.NewDictionary(types.DictionaryItem{Key: "g", Value: "2"}), nil))
	dec := newDecoder(t, fakeav.CodecIDH264, videoParams())
	require.NoError(t, dec.Open(ctx, nil, nil))

	var packets []*media.Packet
	drainEncoder := func() types.Result {
		for {
			pkt := media.NewPacket()
			res, err := enc.Receive(ctx, pkt)
			require.NoError(t, err)
			if res != types.ResultSuccess {
				return res
			}
			require.Equal(t, types.NewRational(1, 25), pkt.TimeBase)
			packets = append(packets, pkt)
		}
	}

	const frames = 5
	for idx := range frames {
		pic := media.NewPicture(4, 4, fakeav.PixelFormatGray8)
		pic.Planes = [][]byte{bytes.Repeat([]byte{byte(idx)}, 16)}
		pic.PTS = int64(idx) * 40
		pic.TimeBase = types.NewRational(1, 1000)
		pic.Complete = true
		res, err := enc.Send(ctx, pic)
		require.NoError(t, err)
		require.Equal(t, types.ResultSuccess, res)
		require.Equal(t, int64(idx)*40, pic.PTS, "the input must not be modified")
		require.Equal(t, types.ResultAgain, drainEncoder())
	}
	require.Len(t, packets, frames-2, "two frames are delayed")

	_, err := enc.Send(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, types.ResultEndOfStream, drainEncoder())
	require.Len(t, packets, frames)
	require.Equal(t, []bool{true, false, true, false, true}, []bool{
		packets[0].Key, packets[1].Key, packets[2].Key, packets[3].Key, packets[4].Key,
	})

	var decoded []int64
	for _, pkt := range packets {
		_, err := dec.Send(ctx, pkt)
		require.NoError(t, err)
		for {
			pic := media.NewPicture(0, 0, types.PixelFormatNone)
			res, err := dec.Receive(ctx, pic)
			require.NoError(t, err)
			if res != types.ResultSuccess {
				break
			}
			decoded = append(decoded, pic.PTS)
		}
	}
	_, err = dec.Send(ctx, nil)
	require.NoError(t, err)
	for {
		pic := media.NewPicture(0, 0, types.PixelFormatNone)
		res, err := dec.Receive(ctx, pic)
		require.NoError(t, err)
		if res == types.ResultEndOfStream {
			break
		}
		require.Equal(t, types.ResultSuccess, res)
		decoded = append(decoded, pic.PTS)
	}
	require.Equal(t, []int64{0, 1, 2, 3, 4}, decoded)
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dec, err := NewDecoderByID(ctx, fakeav.New(), fakeav.CodecIDRawVideo, nil)
	require.NoError(t, err)
	require.NoError(t, dec.Close(ctx))
	require.NoError(t, dec.Close(ctx))
	_, err = dec.Send(ctx, nil)
	require.ErrorIs(t, err, types.ErrInvalidState)
}

func TestWrongCodecDirection(t *testing.T) {
	ctx := context.Background()
	backend := fakeav.New()
	codec, err := backend.FindEncoderByName(ctx, "rawvideo")
	require.NoError(t, err)
	_, err = NewDecoder(ctx, backend, codec, nil)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = NewDecoderByID(ctx, backend, fakeav.CodecIDBinData, nil)
	require.ErrorIs(t, err, types.ErrNotFound)
}
