package fakeav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

// filterImpl merges one frame per input pad into a single output frame,
// which is then delivered to every output pad.
type filterImpl interface {
	apply(frames []media.Raw) (media.Raw, error)
	command(cmd, args string) (string, error)
}

type filterDef struct {
	mediaType types.MediaType
	pads      func(args map[string]string) (inputs int, outputs int, err error)
	create    func(args map[string]string) (filterImpl, error)
}

func onePad(map[string]string) (int, int, error) {
	return 1, 1, nil
}

func countArg(args map[string]string, key string, positional string, def int) (int, error) {
	v, ok := args[key]
	if !ok {
		v, ok = args[positional]
	}
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid value '%s' of '%s'", v, key)
	}
	return n, nil
}

var filterDefs = map[string]*filterDef{
	"null":  {mediaType: types.MediaTypeVideo, pads: onePad, create: newIdentity},
	"copy":  {mediaType: types.MediaTypeVideo, pads: onePad, create: newIdentity},
	"anull": {mediaType: types.MediaTypeAudio, pads: onePad, create: newIdentity},
	"acopy": {mediaType: types.MediaTypeAudio, pads: onePad, create: newIdentity},
	"scale": {mediaType: types.MediaTypeVideo, pads: onePad, create: newScale},
	"pad":   {mediaType: types.MediaTypeVideo, pads: onePad, create: newPad},
	"hflip": {mediaType: types.MediaTypeVideo, pads: onePad, create: func(map[string]string) (filterImpl, error) {
		return transformFilter(func(in media.Raw) media.Raw {
			p := clonePicture(in.(*media.Picture))
			p.Planes = hflipPlanes(p.Planes, p.Width, p.Height, p.PixelFormat)
			return p
		}), nil
	}},
	"negate": {mediaType: types.MediaTypeVideo, pads: onePad, create: func(map[string]string) (filterImpl, error) {
		return transformFilter(func(in media.Raw) media.Raw {
			p := clonePicture(in.(*media.Picture))
			for _, plane := range p.Planes {
				for idx := range plane {
					plane[idx] = 255 - plane[idx]
				}
			}
			return p
		}), nil
	}},
	"split": {
		mediaType: types.MediaTypeVideo,
		pads: func(args map[string]string) (int, int, error) {
			n, err := countArg(args, "outputs", "0", 2)
			return 1, n, err
		},
		create: newIdentity,
	},
	"asplit": {
		mediaType: types.MediaTypeAudio,
		pads: func(args map[string]string) (int, int, error) {
			n, err := countArg(args, "outputs", "0", 2)
			return 1, n, err
		},
		create: newIdentity,
	},
	"overlay": {
		mediaType: types.MediaTypeVideo,
		pads: func(map[string]string) (int, int, error) {
			return 2, 1, nil
		},
		create: newOverlay,
	},
	"amix": {
		mediaType: types.MediaTypeAudio,
		pads: func(args map[string]string) (int, int, error) {
			n, err := countArg(args, "inputs", "0", 2)
			return n, 1, err
		},
		create: func(map[string]string) (filterImpl, error) {
			return amix{}, nil
		},
	},
	"volume": {mediaType: types.MediaTypeAudio, pads: onePad, create: newVolume},
	"atempo": {mediaType: types.MediaTypeAudio, pads: onePad, create: newATempo},

	"testsrc": {mediaType: types.MediaTypeVideo, pads: noInputs, create: newTestSource},
	"sine":    {mediaType: types.MediaTypeAudio, pads: noInputs, create: newSineSource},
}

// parseArgs splits "a:b:key=value" into {"0": a, "1": b, "key": value}.
func parseArgs(args string) map[string]string {
	result := map[string]string{}
	if args == "" {
		return result
	}
	for idx, part := range strings.Split(args, ":") {
		if k, v, ok := strings.Cut(part, "="); ok {
			result[strings.TrimSpace(k)] = strings.TrimSpace(v)
			continue
		}
		result[strconv.Itoa(idx)] = strings.TrimSpace(part)
	}
	return result
}

func argValue(args map[string]string, positional string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			return v, true
		}
	}
	v, ok := args[positional]
	return v, ok
}

type noCommands struct{}

func (noCommands) command(cmd, args string) (string, error) {
	return "", native.ErrNotImplemented
}

type transformFilter func(in media.Raw) media.Raw

func (f transformFilter) apply(frames []media.Raw) (media.Raw, error) {
	return f(frames[0]), nil
}

func (transformFilter) command(cmd, args string) (string, error) {
	return "", native.ErrNotImplemented
}

func newIdentity(map[string]string) (filterImpl, error) {
	return transformFilter(cloneRaw), nil
}

type scale struct {
	width  int
	height int
}

func parseDimension(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n == 0 || n < -1 {
		return 0, fmt.Errorf("invalid dimension '%s'", v)
	}
	return n, nil
}

func newScale(args map[string]string) (filterImpl, error) {
	s := &scale{width: -1, height: -1}
	if v, ok := argValue(args, "0", "w", "width"); ok {
		n, err := parseDimension(v)
		if err != nil {
			return nil, err
		}
		s.width = n
	}
	if v, ok := argValue(args, "1", "h", "height"); ok {
		n, err := parseDimension(v)
		if err != nil {
			return nil, err
		}
		s.height = n
	}
	return s, nil
}

func (s *scale) apply(frames []media.Raw) (media.Raw, error) {
	in := frames[0].(*media.Picture)
	w, h := s.width, s.height
	switch {
	case w < 0 && h < 0:
		w, h = in.Width, in.Height
	case w < 0:
		w = max(1, in.Width*h/max(in.Height, 1))
	case h < 0:
		h = max(1, in.Height*w/max(in.Width, 1))
	}
	out := clonePicture(in)
	out.Planes = scalePlanes(in.Planes, in.Width, in.Height, w, h, in.PixelFormat)
	out.Width, out.Height = w, h
	out.Strides = pictureStrides(w, in.PixelFormat)
	return out, nil
}

func (s *scale) command(cmd, args string) (string, error) {
	switch cmd {
	case "w", "width":
		n, err := parseDimension(args)
		if err != nil {
			return "", err
		}
		s.width = n
	case "h", "height":
		n, err := parseDimension(args)
		if err != nil {
			return "", err
		}
		s.height = n
	default:
		return "", native.ErrNotImplemented
	}
	return "", nil
}

type padFilter struct {
	noCommands
	width  int
	height int
}

func newPad(args map[string]string) (filterImpl, error) {
	p := &padFilter{}
	for _, dim := range []struct {
		dst  *int
		pos  string
		keys []string
	}{
		{&p.width, "0", []string{"w", "width"}},
		{&p.height, "1", []string{"h", "height"}},
	} {
		v, ok := argValue(args, dim.pos, dim.keys...)
		if !ok {
			return nil, fmt.Errorf("pad dimensions are not set")
		}
		n, err := parseDimension(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid pad dimension '%s'", v)
		}
		*dim.dst = n
	}
	return p, nil
}

func (p *padFilter) apply(frames []media.Raw) (media.Raw, error) {
	in := frames[0].(*media.Picture)
	if p.width < in.Width || p.height < in.Height {
		return nil, fmt.Errorf("padded dimensions %dx%d cannot be smaller than the input %dx%d", p.width, p.height, in.Width, in.Height)
	}
	out := clonePicture(in)
	out.Width, out.Height = p.width, p.height
	out.Planes = blitPlanes(nil, p.width, p.height, in.Planes, in.Width, in.Height, 0, 0, in.PixelFormat)
	out.Strides = pictureStrides(p.width, in.PixelFormat)
	return out, nil
}

type overlay struct {
	noCommands
	x int
	y int
}

func newOverlay(args map[string]string) (filterImpl, error) {
	o := &overlay{}
	if v, ok := argValue(args, "0", "x"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid x '%s'", v)
		}
		o.x = n
	}
	if v, ok := argValue(args, "1", "y"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid y '%s'", v)
		}
		o.y = n
	}
	return o, nil
}

func (o *overlay) apply(frames []media.Raw) (media.Raw, error) {
	main := frames[0].(*media.Picture)
	over := frames[1].(*media.Picture)
	out := clonePicture(main)
	out.Planes = blitPlanes(out.Planes, main.Width, main.Height, over.Planes, over.Width, over.Height, o.x, o.y, main.PixelFormat)
	return out, nil
}

// blitPlanes copies src into dst at (x, y); dst is allocated if nil.
func blitPlanes(
	dst [][]byte, dstW, dstH int,
	src [][]byte, srcW, srcH int,
	x, y int,
	pixFmt types.PixelFormat,
) [][]byte {
	dstGeom := pictureGeometry(dstW, dstH, pixFmt)
	srcGeom := pictureGeometry(srcW, srcH, pixFmt)
	if dst == nil {
		for _, g := range dstGeom {
			dst = append(dst, make([]byte, g.width*g.height*g.bpp))
		}
	}
	for idx := range dstGeom {
		if idx >= len(src) || idx >= len(srcGeom) || idx >= len(dst) {
			break
		}
		d, s := dstGeom[idx], srcGeom[idx]
		px := x * d.width / max(dstW, 1)
		py := y * d.height / max(dstH, 1)
		for row := 0; row < s.height && py+row < d.height; row++ {
			if py+row < 0 || px >= d.width {
				continue
			}
			n := min(s.width, d.width-px) * s.bpp
			si := row * s.width * s.bpp
			di := ((py+row)*d.width + px) * d.bpp
			if si+n <= len(src[idx]) && di+n <= len(dst[idx]) {
				copy(dst[idx][di:di+n], src[idx][si:si+n])
			}
		}
	}
	return dst
}

type volume struct {
	factor float64
}

func newVolume(args map[string]string) (filterImpl, error) {
	v := &volume{factor: 1}
	if s, ok := argValue(args, "0", "volume"); ok {
		if _, err := v.command("volume", s); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (v *volume) apply(frames []media.Raw) (media.Raw, error) {
	out := cloneAudio(frames[0].(*media.Audio))
	for _, plane := range out.Planes {
		for idx := 0; idx+1 < len(plane); idx += 2 {
			sample := float64(int16(binary.LittleEndian.Uint16(plane[idx:])))
			sample = math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(sample*v.factor)))
			binary.LittleEndian.PutUint16(plane[idx:], uint16(int16(sample)))
		}
	}
	return out, nil
}

func (v *volume) command(cmd, args string) (string, error) {
	if cmd != "volume" {
		return "", native.ErrNotImplemented
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(args, "dB"), 64)
	if err != nil || f < 0 {
		return "", fmt.Errorf("invalid volume '%s'", args)
	}
	if strings.HasSuffix(args, "dB") {
		f = math.Pow(10, f/20)
	}
	v.factor = f
	return "", nil
}

type atempo struct {
	tempo float64
}

func newATempo(args map[string]string) (filterImpl, error) {
	a := &atempo{tempo: 1}
	if s, ok := argValue(args, "0", "tempo"); ok {
		if _, err := a.command("tempo", s); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *atempo) apply(frames []media.Raw) (media.Raw, error) {
	in := frames[0].(*media.Audio)
	out := cloneAudio(in)
	channels := max(in.ChannelLayout.Channels, 1)
	outSamples := int(math.Round(float64(in.NumSamples) / a.tempo))
	for pIdx, plane := range in.Planes {
		resampled := make([]byte, outSamples*channels*2)
		for s := 0; s < outSamples; s++ {
			src := int(float64(s) * a.tempo)
			si := src * channels * 2
			di := s * channels * 2
			if si+channels*2 <= len(plane) {
				copy(resampled[di:di+channels*2], plane[si:si+channels*2])
			}
		}
		out.Planes[pIdx] = resampled
	}
	out.NumSamples = outSamples
	if in.PTS != types.NoPTS {
		out.PTS = int64(math.Round(float64(in.PTS) / a.tempo))
	}
	return out, nil
}

func (a *atempo) command(cmd, args string) (string, error) {
	if cmd != "tempo" {
		return "", native.ErrNotImplemented
	}
	f, err := strconv.ParseFloat(args, 64)
	if err != nil || f < 0.5 || f > 100 {
		return "", fmt.Errorf("tempo value %s is out of range [0.5, 100.0]", args)
	}
	a.tempo = f
	return "", nil
}

type amix struct {
	noCommands
}

func (amix) apply(frames []media.Raw) (media.Raw, error) {
	out := cloneAudio(frames[0].(*media.Audio))
	for _, f := range frames[1:] {
		other := f.(*media.Audio)
		out.NumSamples = min(out.NumSamples, other.NumSamples)
		for pIdx := range out.Planes {
			if pIdx >= len(other.Planes) {
				break
			}
			a, b := out.Planes[pIdx], other.Planes[pIdx]
			for idx := 0; idx+1 < len(a) && idx+1 < len(b); idx += 2 {
				sum := int32(int16(binary.LittleEndian.Uint16(a[idx:]))) + int32(int16(binary.LittleEndian.Uint16(b[idx:])))
				sum = max(math.MinInt16, min(math.MaxInt16, sum))
				binary.LittleEndian.PutUint16(a[idx:], uint16(int16(sum)))
			}
		}
	}
	return out, nil
}

func clonePlanes(planes [][]byte) [][]byte {
	result := make([][]byte, len(planes))
	for idx, plane := range planes {
		result[idx] = bytes.Clone(plane)
	}
	return result
}

func clonePicture(p *media.Picture) *media.Picture {
	cpy := *p
	cpy.Planes = clonePlanes(p.Planes)
	cpy.Strides = append([]int(nil), p.Strides...)
	return &cpy
}

func cloneAudio(a *media.Audio) *media.Audio {
	cpy := *a
	cpy.Planes = clonePlanes(a.Planes)
	return &cpy
}

func cloneRaw(raw media.Raw) media.Raw {
	switch raw := raw.(type) {
	case *media.Picture:
		return clonePicture(raw)
	case *media.Audio:
		return cloneAudio(raw)
	}
	panic(fmt.Errorf("unexpected media type %T", raw))
}
