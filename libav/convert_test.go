//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"errors"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

func TestWrapError(t *testing.T) {
	require.NoError(t, wrapError("op", nil))
	require.ErrorIs(t, wrapError("op", astiav.ErrEagain), native.ErrAgain)
	require.ErrorIs(t, wrapError("op", astiav.ErrEof), native.ErrEOF)

	err := wrapError("avcodec_open2", astiav.Error(errCodeInvalidArgument))
	require.ErrorIs(t, err, types.ErrNative)
	var nativeErr *types.NativeError
	require.True(t, errors.As(err, &nativeErr))
	require.Equal(t, "avcodec_open2", nativeErr.Op)
	require.Equal(t, errCodeInvalidArgument, nativeErr.Code)
	require.True(t, isErrorCode(astiav.Error(errCodeNotImplemented), errCodeNotImplemented))
}

func TestConversions(t *testing.T) {
	r := types.NewRational(1, 90000)
	require.Equal(t, r, rationalFromAstiav(rationalToAstiav(r)))

	for _, mt := range []types.MediaType{types.MediaTypeVideo, types.MediaTypeAudio, types.MediaTypeData, types.MediaTypeSubtitle} {
		require.Equal(t, mt, mediaTypeFromAstiav(mediaTypeToAstiav(mt)))
	}

	layout, err := channelLayoutToAstiav(types.ChannelLayoutStereo)
	require.NoError(t, err)
	require.Equal(t, types.ChannelLayoutStereo, channelLayoutFromAstiav(layout))
	_, err = channelLayoutToAstiav(types.ChannelLayout{Channels: 5})
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestFindCodec(t *testing.T) {
	b := &Backend{}
	_, err := b.FindEncoderByName(context.Background(), "no-such-encoder")
	require.ErrorIs(t, err, types.ErrNotFound)

	c, err := b.FindDecoderByName(context.Background(), "pcm_s16le")
	require.NoError(t, err)
	require.Equal(t, types.MediaTypeAudio, c.MediaType())
	require.False(t, c.IsEncoder())
}

func TestCapabilities(t *testing.T) {
	require.Equal(t, types.CodecCapabilities(0), capabilitiesFromAstiav(0))
	caps := capabilitiesFromAstiav(astiav.CodecCapabilityDr1 | astiav.CodecCapabilityVariableFrameSize | astiav.CodecCapabilityFrameThreads)
	require.True(t, caps.Has(types.CodecCapabilityDirectRendering))
	require.True(t, caps.Has(types.CodecCapabilityVariableFrameSize))
	require.False(t, caps.Has(types.CodecCapabilityDelay))

	c, err := (&Backend{}).FindEncoderByName(context.Background(), "pcm_s16le")
	require.NoError(t, err)
	require.True(t, c.Capabilities().Has(types.CodecCapabilityVariableFrameSize))
}
