package pipeline

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/coder"
	"github.com/xaionaro-go/avcore/container"
	"github.com/xaionaro-go/avcore/filtergraph"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/xcontext"
)

// StreamConfig describes what happens to the streams of one media type.
type StreamConfig struct {
	// CodecName is the encoder to use; empty means copying the packets.
	CodecName string `json:"codec_name,omitempty" yaml:"codec_name,omitempty"`

	// Filter is a filter chain description placed between the decoder
	// and the encoder, for example "hflip,negate".
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`

	// Width and Height are the size of the encoded pictures; zero means
	// the input size.
	Width  int `json:"width,omitempty"  yaml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty"`

	// SampleRate of the encoded audio; zero means the input rate.
	SampleRate int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`

	BitRate int64             `json:"bit_rate,omitempty" yaml:"bit_rate,omitempty"`
	Options *types.Dictionary `json:"-"                  yaml:"-"`
}

func (cfg StreamConfig) IsCopy() bool {
	return cfg.CodecName == ""
}

// streamTranscoder converts the packets of one input stream into the
// packets of one output stream.
type streamTranscoder struct {
	inputIndex  int
	outputIndex int
	mediaType   types.MediaType
	stats       *CommonsStatistics

	// all nil when copying
	decoder *coder.Decoder
	graph   *filtergraph.FilterGraph
	sink    *filtergraph.FilterSink
	source  *filtergraph.FilterSource
	encoder *coder.Encoder
}

func (t *streamTranscoder) String() string {
	return fmt.Sprintf("stream #%d->#%d (%s)", t.inputIndex, t.outputIndex, t.mediaType)
}

func (t *streamTranscoder) isCopy() bool {
	return t.encoder == nil
}

// outputCoder is the coder the output stream is registered with.
func (t *streamTranscoder) outputCoder() *coder.Coder {
	if t.encoder != nil {
		return t.encoder.Coder
	}
	return t.decoder.Coder
}

func newRaw(mediaType types.MediaType) media.Raw {
	if mediaType == types.MediaTypeVideo {
		return media.NewPicture(0, 0, types.PixelFormatNone)
	}
	return media.NewAudio(0, types.ChannelLayout{}, types.SampleFormatNone)
}

func newStreamTranscoder(
	ctx context.Context,
	backend native.Backend,
	closer *astikit.Closer,
	stream *container.Stream,
	outputIndex int,
	cfg StreamConfig,
	stats *CommonsStatistics,
) (_ret *streamTranscoder, _err error) {
	logger.Debugf(ctx, "newStreamTranscoder(ctx, %s, %d, %#+v)", stream, outputIndex, cfg)
	defer func() { logger.Debugf(ctx, "/newStreamTranscoder(ctx, %s, %d): %v", stream, outputIndex, _err) }()

	t := &streamTranscoder{
		inputIndex:  stream.Index(),
		outputIndex: outputIndex,
		mediaType:   stream.MediaType(),
		stats:       stats,
		decoder:     stream.Decoder(),
	}
	if t.decoder == nil {
		return nil, types.NotFoundf("no decoder for %s", stream)
	}
	if t.decoder.State() == coder.StateInited {
		if err := t.decoder.Open(ctx, nil, nil); err != nil {
			return nil, fmt.Errorf("unable to open the decoder of %s: %w", stream, err)
		}
	}
	if cfg.IsCopy() {
		return t, nil
	}

	in := t.decoder.MediaParameters()
	out := types.MediaParameters{
		MediaType: in.MediaType,
		BitRate:   cfg.BitRate,
	}
	needsConversion := cfg.Filter != ""
	switch in.MediaType {
	case types.MediaTypeVideo:
		out.Width, out.Height = in.Width, in.Height
		if cfg.Width > 0 && cfg.Height > 0 {
			out.Width, out.Height = cfg.Width, cfg.Height
		}
		out.PixelFormat = in.PixelFormat
		out.SampleAspectRatio = in.SampleAspectRatio
		out.FrameRate = in.FrameRate
		out.TimeBase = t.decoder.TimeBase()
		needsConversion = needsConversion || out.Width != in.Width || out.Height != in.Height
	case types.MediaTypeAudio:
		out.SampleRate = in.SampleRate
		if cfg.SampleRate > 0 {
			out.SampleRate = cfg.SampleRate
		}
		out.ChannelLayout = in.ChannelLayout
		out.SampleFormat = in.SampleFormat
		out.TimeBase = types.NewRational(1, out.SampleRate)
		needsConversion = needsConversion || out.SampleRate != in.SampleRate
	default:
		return nil, types.InvalidArgumentf("transcoding %s is not supported", in.MediaType)
	}

	encoder, err := coder.NewEncoderByName(ctx, backend, cfg.CodecName, &out)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the encoder '%s': %w", cfg.CodecName, err)
	}
	closer.AddWithError(func() error {
		return encoder.Close(xcontext.DetachDone(ctx))
	})
	if err := encoder.Open(ctx, cfg.Options, nil); err != nil {
		return nil, fmt.Errorf("unable to open the encoder '%s': %w", cfg.CodecName, err)
	}
	t.encoder = encoder

	if needsConversion {
		if err := t.initFilter(ctx, backend, closer, in, out, cfg.Filter); err != nil {
			return nil, fmt.Errorf("unable to initialize the filter of %s: %w", stream, err)
		}
	}
	return t, nil
}

func (t *streamTranscoder) initFilter(
	ctx context.Context,
	backend native.Backend,
	closer *astikit.Closer,
	in, out types.MediaParameters,
	filter string,
) error {
	g, err := filtergraph.New(ctx, backend)
	if err != nil {
		return err
	}
	closer.AddWithError(func() error {
		return g.Close(xcontext.DetachDone(ctx))
	})

	switch in.MediaType {
	case types.MediaTypeVideo:
		if filter == "" {
			filter = "null"
		}
		if out.Width != in.Width || out.Height != in.Height {
			filter += fmt.Sprintf(",scale=%d:%d", out.Width, out.Height)
		}
		t.sink, err = g.AddPictureSink(ctx, "in", in.Width, in.Height, in.PixelFormat, t.decoder.TimeBase(), in.SampleAspectRatio)
		if err != nil {
			return err
		}
		t.source, err = g.AddPictureSource(ctx, "out", out.PixelFormat)
	case types.MediaTypeAudio:
		if filter == "" {
			filter = "anull"
		}
		t.sink, err = g.AddAudioSink(ctx, "in", in.SampleRate, in.ChannelLayout, in.SampleFormat, types.Rational{})
		if err != nil {
			return err
		}
		t.source, err = g.AddAudioSource(ctx, "out", out.SampleRate, out.ChannelLayout, out.SampleFormat)
	}
	if err != nil {
		return err
	}
	if err := g.Open(ctx, "[in]"+filter+"[out]"); err != nil {
		return err
	}
	t.graph = g
	return nil
}

type emitFunc func(ctx context.Context, pkt *media.Packet) error

// process handles one input packet; nil flushes the whole chain.
func (t *streamTranscoder) process(
	ctx context.Context,
	pkt *media.Packet,
	emit emitFunc,
) error {
	if t.isCopy() {
		if pkt == nil {
			return nil
		}
		pkt.StreamIndex = t.outputIndex
		return emit(ctx, pkt)
	}

	for {
		res, err := t.decoder.Send(ctx, pkt)
		if err != nil {
			return err
		}
		if err := t.drainDecoder(ctx, emit); err != nil {
			return err
		}
		if res != types.ResultAgain {
			break
		}
	}
	if pkt != nil {
		return nil
	}

	if t.graph != nil {
		if _, err := t.sink.SendRaw(ctx, nil); err != nil {
			return err
		}
		if err := t.drainFilter(ctx, emit); err != nil {
			return err
		}
	}
	return t.encode(ctx, nil, emit)
}

func (t *streamTranscoder) drainDecoder(ctx context.Context, emit emitFunc) error {
	for {
		raw := newRaw(t.mediaType)
		res, err := t.decoder.Receive(ctx, raw)
		if err != nil {
			return err
		}
		if res != types.ResultSuccess {
			return nil
		}
		if t.stats != nil {
			t.stats.FramesDecoded.Add(t.mediaType, 1)
		}
		if err := t.filter(ctx, raw, emit); err != nil {
			return err
		}
	}
}

func (t *streamTranscoder) filter(ctx context.Context, raw media.Raw, emit emitFunc) error {
	if t.graph == nil {
		return t.encode(ctx, raw, emit)
	}
	for {
		res, err := t.sink.SendRaw(ctx, raw)
		if err != nil {
			return err
		}
		if err := t.drainFilter(ctx, emit); err != nil {
			return err
		}
		if res != types.ResultAgain {
			return nil
		}
	}
}

func (t *streamTranscoder) drainFilter(ctx context.Context, emit emitFunc) error {
	for {
		raw := newRaw(t.mediaType)
		var (
			res types.Result
			err error
		)
		switch raw := raw.(type) {
		case *media.Picture:
			res, err = t.source.ReceivePicture(ctx, raw)
		case *media.Audio:
			res, err = t.source.ReceiveAudio(ctx, raw)
		}
		if err != nil {
			return err
		}
		if res != types.ResultSuccess {
			return nil
		}
		if t.stats != nil {
			t.stats.FramesFiltered.Add(t.mediaType, 1)
		}
		if err := t.encode(ctx, raw, emit); err != nil {
			return err
		}
	}
}

// encode sends raw (nil flushes) and emits every packet that is ready.
func (t *streamTranscoder) encode(ctx context.Context, raw media.Raw, emit emitFunc) error {
	for {
		res, err := t.encoder.Send(ctx, raw)
		if err != nil {
			return err
		}
		if err := t.drainEncoder(ctx, emit); err != nil {
			return err
		}
		if res != types.ResultAgain {
			return nil
		}
	}
}

func (t *streamTranscoder) drainEncoder(ctx context.Context, emit emitFunc) error {
	for {
		pkt := media.NewPacket()
		res, err := t.encoder.Receive(ctx, pkt)
		if err != nil {
			return err
		}
		if res != types.ResultSuccess {
			return nil
		}
		if t.stats != nil {
			t.stats.FramesEncoded.Add(t.mediaType, 1)
		}
		pkt.StreamIndex = t.outputIndex
		if err := emit(ctx, pkt); err != nil {
			return err
		}
	}
}

// TranscoderNode routes the incoming packets through per-stream
// transcoders. Packets of streams without a transcoder are dropped.
type TranscoderNode struct {
	nodeLoop
	streams map[int]*streamTranscoder
	closer  *astikit.Closer
	stats   *CommonsStatistics
}

var _ Node = (*TranscoderNode)(nil)

func newTranscoderNode(
	ctx context.Context,
	streams []*streamTranscoder,
	closer *astikit.Closer,
	stats *CommonsStatistics,
) *TranscoderNode {
	n := &TranscoderNode{
		nodeLoop: newNodeLoop(100, 1),
		streams:  map[int]*streamTranscoder{},
		closer:   closer,
		stats:    stats,
	}
	for _, t := range streams {
		n.streams[t.inputIndex] = t
	}
	n.start(ctx, n, n.flush)
	return n
}

func (n *TranscoderNode) String() string {
	return fmt.Sprintf("transcoder(%d streams)", len(n.streams))
}

func (n *TranscoderNode) SendPacket(
	ctx context.Context,
	pkt *media.Packet,
) error {
	t := n.streams[pkt.StreamIndex]
	if t == nil {
		logger.Tracef(ctx, "dropping a packet of stream #%d", pkt.StreamIndex)
		if n.stats != nil {
			n.stats.PacketsSkipped.Add(1)
		}
		return nil
	}
	if err := t.process(ctx, pkt, n.emit); err != nil {
		return fmt.Errorf("unable to transcode a packet of %s: %w", t, err)
	}
	return nil
}

func (n *TranscoderNode) flush(ctx context.Context) error {
	for idx := 0; idx < len(n.streams); idx++ {
		for _, t := range n.streams {
			if t.outputIndex != idx {
				continue
			}
			if err := t.process(ctx, nil, n.emit); err != nil {
				return fmt.Errorf("unable to flush %s: %w", t, err)
			}
		}
	}
	return nil
}

// Close stops the node and releases the encoders and filter graphs.
func (n *TranscoderNode) Close() error {
	n.stop()
	return n.closer.Close()
}
