//go:build with_libav
// +build with_libav

package libav

import (
	"syscall"

	"github.com/asticode/go-astiav"
	"github.com/pkg/errors"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

var (
	errCodeInvalidArgument = -int(syscall.EINVAL)
	errCodeNotImplemented  = -int(syscall.ENOSYS)
)

func isErrorCode(err error, code int) bool {
	var avErr astiav.Error
	return errors.As(err, &avErr) && int(avErr) == code
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, astiav.ErrEagain):
		return native.ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return native.ErrEOF
	}
	var avErr astiav.Error
	if errors.As(err, &avErr) {
		return types.NewNativeError(op, int(avErr), avErr.Error())
	}
	return errors.Wrap(err, op)
}

func rationalFromAstiav(r astiav.Rational) types.Rational {
	return types.NewRational(r.Num(), r.Den())
}

func rationalToAstiav(r types.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func mediaTypeFromAstiav(t astiav.MediaType) types.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return types.MediaTypeVideo
	case astiav.MediaTypeAudio:
		return types.MediaTypeAudio
	case astiav.MediaTypeData:
		return types.MediaTypeData
	case astiav.MediaTypeSubtitle:
		return types.MediaTypeSubtitle
	}
	return types.MediaTypeUnknown
}

func mediaTypeToAstiav(t types.MediaType) astiav.MediaType {
	switch t {
	case types.MediaTypeVideo:
		return astiav.MediaTypeVideo
	case types.MediaTypeAudio:
		return astiav.MediaTypeAudio
	case types.MediaTypeData:
		return astiav.MediaTypeData
	case types.MediaTypeSubtitle:
		return astiav.MediaTypeSubtitle
	}
	return astiav.MediaTypeUnknown
}

func channelLayoutFromAstiav(l astiav.ChannelLayout) types.ChannelLayout {
	switch channels := l.Channels(); channels {
	case 1:
		return types.ChannelLayoutMono
	case 2:
		return types.ChannelLayoutStereo
	default:
		return types.ChannelLayout{Channels: channels}
	}
}

func channelLayoutToAstiav(l types.ChannelLayout) (astiav.ChannelLayout, error) {
	switch l.Channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	case 3:
		return astiav.ChannelLayout2Point1, nil
	case 4:
		return astiav.ChannelLayoutQuad, nil
	case 6:
		return astiav.ChannelLayout5Point1, nil
	case 8:
		return astiav.ChannelLayout7Point1, nil
	}
	return astiav.ChannelLayout{}, types.InvalidArgumentf("unsupported channel layout %s", l)
}

// newAstiavDictionary returns nil for an empty input; the result must be
// freed by the caller.
func newAstiavDictionary(d *types.Dictionary) *astiav.Dictionary {
	if d.Len() == 0 {
		return nil
	}
	result := astiav.NewDictionary()
	for _, item := range d.Items() {
		if err := result.Set(item.Key, item.Value, 0); err != nil {
			continue
		}
	}
	return result
}

// consumeOptions removes from d every key the native call consumed, i.e.
// every key not left in the remaining dictionary.
func consumeOptions(d *types.Dictionary, remaining *astiav.Dictionary) {
	for _, key := range d.Keys() {
		if remaining != nil && remaining.Get(key, nil, 0) != nil {
			continue
		}
		d.Delete(key)
	}
}

func freeDictionary(d *astiav.Dictionary) {
	if d != nil {
		d.Free()
	}
}
