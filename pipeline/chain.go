package pipeline

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/avcore/container"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/xcontext"
)

type Config struct {
	InputFormat   string            `json:"input_format,omitempty"  yaml:"input_format,omitempty"`
	InputOptions  *types.Dictionary `json:"-"                       yaml:"-"`
	OutputFormat  string            `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	OutputOptions *types.Dictionary `json:"-"                       yaml:"-"`
	StreamKey     secret.String     `json:"-"                       yaml:"-"`

	Video StreamConfig `json:"video,omitempty" yaml:"video,omitempty"`
	Audio StreamConfig `json:"audio,omitempty" yaml:"audio,omitempty"`

	Throttle        ThrottleConfig `json:"throttle,omitempty"         yaml:"throttle,omitempty"`
	ForceInterleave bool           `json:"force_interleave,omitempty" yaml:"force_interleave,omitempty"`
}

// Chain is a ready-to-serve pipeline from one input to one output.
type Chain struct {
	Input       *DemuxerNode
	Transcoder  *TranscoderNode
	Throttle    *ThrottleNode
	Output      *MuxerNode
	Pipeline    *Pipeline
	StreamTypes []types.MediaType

	stats *CommonsStatistics
}

// NewChain opens the input and the output and starts the nodes; the
// packets start moving once Serve is called.
func NewChain(
	ctx context.Context,
	backend native.Backend,
	inputURL string,
	outputURL string,
	cfg Config,
) (_ret *Chain, _err error) {
	logger.Debugf(ctx, "NewChain(ctx, '%s', '%s', %#+v)", inputURL, outputURL, cfg)
	defer func() { logger.Debugf(ctx, "/NewChain(ctx, '%s', '%s'): %v", inputURL, outputURL, _err) }()

	unset := types.NewDictionary()
	demuxer, err := container.OpenDemuxer(ctx, backend, inputURL, container.DemuxerConfig{
		FormatName: cfg.InputFormat,
		Options:    cfg.InputOptions,
	}, unset)
	if err != nil {
		return nil, fmt.Errorf("unable to open the input '%s': %w", inputURL, err)
	}
	warnUnsetOptions(ctx, "input", unset)

	closer := astikit.NewCloser()
	muxer, err := container.NewMuxer(ctx, backend, outputURL, container.MuxerConfig{
		FormatName: cfg.OutputFormat,
		StreamKey:  cfg.StreamKey,
	})
	if err != nil {
		_ = demuxer.Close(ctx)
		return nil, fmt.Errorf("unable to initialize the output '%s': %w", outputURL, err)
	}
	defer func() {
		if _err == nil {
			return
		}
		ctx := xcontext.DetachDone(ctx)
		var result *multierror.Error
		result = multierror.Append(result, muxer.Close(ctx), closer.Close(), demuxer.Close(ctx))
		if err := result.ErrorOrNil(); err != nil {
			logger.Debugf(ctx, "unable to release the chain: %v", err)
		}
	}()

	stats := &CommonsStatistics{}
	var (
		transcoders []*streamTranscoder
		streamTypes []types.MediaType
	)
	for _, stream := range demuxer.Streams(ctx) {
		var streamCfg StreamConfig
		switch stream.MediaType() {
		case types.MediaTypeVideo:
			streamCfg = cfg.Video
		case types.MediaTypeAudio:
			streamCfg = cfg.Audio
		default:
			logger.Debugf(ctx, "skipping %s: %s", stream, stream.MediaType())
			continue
		}
		t, err := newStreamTranscoder(ctx, backend, closer, stream, len(transcoders), streamCfg, stats)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the transcoder for %s: %w", stream, err)
		}
		if _, err := muxer.AddNewStream(ctx, t.outputCoder()); err != nil {
			return nil, fmt.Errorf("unable to add the output stream for %s: %w", t, err)
		}
		transcoders = append(transcoders, t)
		streamTypes = append(streamTypes, t.mediaType)
	}
	if len(transcoders) == 0 {
		return nil, types.NotFoundf("no audio or video streams in '%s'", inputURL)
	}

	unset = types.NewDictionary()
	if err := muxer.Open(ctx, cfg.OutputOptions, unset); err != nil {
		return nil, fmt.Errorf("unable to open the output '%s': %w", outputURL, err)
	}
	warnUnsetOptions(ctx, "output", unset)

	c := &Chain{
		StreamTypes: streamTypes,
		stats:       stats,
	}
	c.Output = NewMuxerNode(ctx, muxer, cfg.ForceInterleave, stats)
	next := NewPipelineNode(c.Output)
	if cfg.Throttle.AverageBitRate != 0 {
		c.Throttle = NewThrottleNode(ctx, NewThrottle(ctx, cfg.Throttle), streamTypes, stats)
		next = NewPipelineNode(c.Throttle, next)
	}
	c.Transcoder = newTranscoderNode(ctx, transcoders, closer, stats)
	c.Input = NewDemuxerNode(ctx, demuxer, stats)
	c.Pipeline = NewPipelineNode(c.Input, NewPipelineNode(c.Transcoder, next))
	return c, nil
}

func warnUnsetOptions(ctx context.Context, side string, unset *types.Dictionary) {
	for _, key := range unset.Keys() {
		logger.Warnf(ctx, "the %s option '%s' was not used", side, key)
	}
}

func (c *Chain) String() string {
	return fmt.Sprintf("%s -> %s", c.Input, c.Output)
}

// Serve blocks until the input is exhausted and everything is written,
// or until ctx is cancelled.
func (c *Chain) Serve(ctx context.Context) error {
	return c.Pipeline.Serve(ctx)
}

func (c *Chain) GetStats() Statistics {
	return c.stats.Convert()
}

// Close stops the nodes, writes the trailer and releases everything.
func (c *Chain) Close() error {
	return c.Pipeline.Close()
}

// Transcode runs a chain to the end and returns its final statistics.
func Transcode(
	ctx context.Context,
	backend native.Backend,
	inputURL string,
	outputURL string,
	cfg Config,
) (_ret Statistics, _err error) {
	logger.Debugf(ctx, "Transcode(ctx, '%s', '%s')", inputURL, outputURL)
	defer func() { logger.Debugf(ctx, "/Transcode(ctx, '%s', '%s'): %v", inputURL, outputURL, _err) }()

	chain, err := NewChain(ctx, backend, inputURL, outputURL, cfg)
	if err != nil {
		return Statistics{}, err
	}
	serveErr := chain.Serve(ctx)
	closeErr := chain.Close()
	stats := chain.GetStats()
	if serveErr != nil {
		return stats, fmt.Errorf("unable to process '%s': %w", inputURL, serveErr)
	}
	if closeErr != nil {
		return stats, fmt.Errorf("unable to finalize '%s': %w", outputURL, closeErr)
	}
	return stats, nil
}

// Remux copies every audio and video packet without decoding it.
func Remux(
	ctx context.Context,
	backend native.Backend,
	inputURL string,
	outputURL string,
	cfg Config,
) (Statistics, error) {
	cfg.Video = StreamConfig{}
	cfg.Audio = StreamConfig{}
	return Transcode(ctx, backend, inputURL, outputURL, cfg)
}
