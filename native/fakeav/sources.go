package fakeav

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/types"
)

// frameGenerator is implemented by filters without input pads.
type frameGenerator interface {
	// next returns false once the configured duration is exhausted.
	next() (media.Raw, bool)
	timeBase() types.Rational
	format() streamFormat
}

func noInputs(map[string]string) (int, int, error) {
	return 0, 1, nil
}

func positiveIntArg(args map[string]string, def int, positional string, keys ...string) (int, error) {
	v, ok := argValue(args, positional, keys...)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid value '%s' of '%s'", v, keys[0])
	}
	return n, nil
}

// durationArg returns a negative value if the duration is unlimited.
func durationArg(args map[string]string) (float64, error) {
	v, ok := argValue(args, "", "duration", "d")
	if !ok {
		return -1, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid duration '%s'", v)
	}
	return f, nil
}

type testSource struct {
	noCommands
	width  int
	height int
	rate   int
	frames int64
	sent   int64
}

func newTestSource(args map[string]string) (filterImpl, error) {
	src := &testSource{width: 320, height: 240}
	if v, ok := argValue(args, "", "size", "s"); ok {
		w, h, found := strings.Cut(v, "x")
		if !found {
			return nil, fmt.Errorf("invalid size '%s'", v)
		}
		var err error
		if src.width, err = parseDimension(w); err != nil || src.width < 0 {
			return nil, fmt.Errorf("invalid size '%s'", v)
		}
		if src.height, err = parseDimension(h); err != nil || src.height < 0 {
			return nil, fmt.Errorf("invalid size '%s'", v)
		}
	}
	var err error
	if src.rate, err = positiveIntArg(args, 25, "", "rate", "r"); err != nil {
		return nil, err
	}
	duration, err := durationArg(args)
	if err != nil {
		return nil, err
	}
	src.frames = -1
	if duration >= 0 {
		src.frames = int64(math.Round(duration * float64(src.rate)))
	}
	return src, nil
}

func (s *testSource) apply([]media.Raw) (media.Raw, error) {
	return nil, fmt.Errorf("testsrc has no inputs")
}

func (s *testSource) timeBase() types.Rational {
	return types.NewRational(1, s.rate)
}

func (s *testSource) format() streamFormat {
	return streamFormat{pixelFormat: PixelFormatRGB24}
}

func (s *testSource) next() (media.Raw, bool) {
	if s.frames >= 0 && s.sent >= s.frames {
		return nil, false
	}
	p := media.NewPicture(s.width, s.height, PixelFormatRGB24)
	p.Planes = splitPicture(nil, s.width, s.height, PixelFormatRGB24)
	for _, plane := range p.Planes {
		for idx := range plane {
			plane[idx] = byte(int64(idx) + s.sent)
		}
	}
	p.Strides = pictureStrides(s.width, PixelFormatRGB24)
	p.PTS = s.sent
	p.TimeBase = s.timeBase()
	p.Key = true
	p.Complete = true
	s.sent++
	return p, true
}

type sineSource struct {
	noCommands
	frequency       float64
	sampleRate      int
	samplesPerFrame int
	samples         int64
	sent            int64
}

func newSineSource(args map[string]string) (filterImpl, error) {
	src := &sineSource{frequency: 440}
	if v, ok := argValue(args, "", "frequency", "f"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid frequency '%s'", v)
		}
		src.frequency = f
	}
	var err error
	if src.sampleRate, err = positiveIntArg(args, 44100, "", "sample_rate", "r"); err != nil {
		return nil, err
	}
	if src.samplesPerFrame, err = positiveIntArg(args, 1024, "", "samples_per_frame"); err != nil {
		return nil, err
	}
	duration, err := durationArg(args)
	if err != nil {
		return nil, err
	}
	src.samples = -1
	if duration >= 0 {
		src.samples = int64(math.Round(duration * float64(src.sampleRate)))
	}
	return src, nil
}

func (s *sineSource) apply([]media.Raw) (media.Raw, error) {
	return nil, fmt.Errorf("sine has no inputs")
}

func (s *sineSource) timeBase() types.Rational {
	return types.NewRational(1, s.sampleRate)
}

func (s *sineSource) format() streamFormat {
	return streamFormat{
		sampleFormat: SampleFormatS16,
		sampleRate:   s.sampleRate,
		channels:     1,
	}
}

func (s *sineSource) next() (media.Raw, bool) {
	n := int64(s.samplesPerFrame)
	if s.samples >= 0 {
		n = min(n, s.samples-s.sent)
	}
	if n <= 0 {
		return nil, false
	}
	a := media.NewAudio(s.sampleRate, types.ChannelLayoutMono, SampleFormatS16)
	plane := make([]byte, n*2)
	for idx := int64(0); idx < n; idx++ {
		t := float64(s.sent+idx) / float64(s.sampleRate)
		v := int16(math.Round(math.Sin(2*math.Pi*s.frequency*t) * math.MaxInt16 / 8))
		binary.LittleEndian.PutUint16(plane[idx*2:], uint16(v))
	}
	a.Planes = [][]byte{plane}
	a.NumSamples = int(n)
	a.PTS = s.sent
	a.TimeBase = s.timeBase()
	a.Key = true
	a.Complete = true
	s.sent += n
	return a, true
}
