//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

// frameAlign makes the exported planes tightly packed.
const frameAlign = 1

// exportFrame copies a native frame into out, packing all the planes
// into a single one.
func exportFrame(
	ctx context.Context,
	allocator native.BufferAllocator,
	f *astiav.Frame,
	out media.Raw,
	timeBase types.Rational,
) error {
	data, err := f.Data().Bytes(frameAlign)
	if err != nil {
		return wrapError("av_image_copy_to_buffer", err)
	}

	key := true
	switch out := out.(type) {
	case *media.Picture:
		out.Width = f.Width()
		out.Height = f.Height()
		out.PixelFormat = types.PixelFormat(f.PixelFormat())
		out.Strides = nil
		key = f.PictureType() == astiav.PictureTypeI
	case *media.Audio:
		out.SampleRate = f.SampleRate()
		out.ChannelLayout = channelLayoutFromAstiav(f.ChannelLayout())
		out.SampleFormat = types.SampleFormat(f.SampleFormat())
		out.NumSamples = f.NbSamples()
	default:
		return types.InvalidArgumentf("unexpected output type %T", out)
	}
	if err := native.ExportPlanes(ctx, allocator, out, [][]byte{data}); err != nil {
		return fmt.Errorf("unable to allocate the frame buffers: %w", err)
	}

	common := out.GetCommon()
	common.PTS = f.Pts()
	common.TimeBase = timeBase
	common.Key = key
	common.Discontinuous = false
	common.Complete = true
	return nil
}

// importFrame fills f with a copy of in.
func importFrame(in media.Raw, f *astiav.Frame) error {
	f.Unref()
	switch in := in.(type) {
	case *media.Picture:
		f.SetWidth(in.Width)
		f.SetHeight(in.Height)
		f.SetPixelFormat(astiav.PixelFormat(in.PixelFormat))
	case *media.Audio:
		layout, err := channelLayoutToAstiav(in.ChannelLayout)
		if err != nil {
			return err
		}
		f.SetSampleRate(in.SampleRate)
		f.SetChannelLayout(layout)
		f.SetSampleFormat(astiav.SampleFormat(in.SampleFormat))
		f.SetNbSamples(in.NumSamples)
	default:
		return types.InvalidArgumentf("unexpected input type %T", in)
	}
	if err := f.AllocBuffer(0); err != nil {
		return wrapError("av_frame_get_buffer", err)
	}

	var data []byte
	planes := in.GetPlanes()
	if len(planes) == 1 {
		data = planes[0]
	} else {
		for _, plane := range planes {
			data = append(data, plane...)
		}
	}
	if err := f.Data().SetBytes(data, frameAlign); err != nil {
		return wrapError("av_image_fill_arrays", err)
	}
	f.SetPts(in.GetCommon().PTS)
	return nil
}
