//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/internal"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type graphSource struct {
	native.GraphInput
	context *astiav.BuffersrcFilterContext
}

type graphSink struct {
	native.GraphOutput
	context *astiav.BuffersinkFilterContext
}

type queuedCommand struct {
	target  string
	command string
	args    string
	flags   int
	ts      float64
}

type filterGraph struct {
	graph      *astiav.FilterGraph
	frame      *astiav.Frame
	sources    []*graphSource
	sinks      []*graphSink
	commands   []queuedCommand
	configured bool
	closed     bool
	closer     *astikit.Closer
}

var _ native.FilterGraph = (*filterGraph)(nil)

func newFilterGraph(ctx context.Context) (*filterGraph, error) {
	g := &filterGraph{
		closer: astikit.NewCloser(),
	}
	g.graph = astiav.AllocFilterGraph()
	if g.graph == nil {
		return nil, types.Runtimef("unable to allocate a filter graph")
	}
	g.closer.Add(g.graph.Free)
	g.frame = astiav.AllocFrame()
	g.closer.Add(g.frame.Free)
	internal.SetFinalizer(ctx, g, func(g *filterGraph) { _ = g.Close() })
	return g, nil
}

func (g *filterGraph) hasEndpoint(name string) bool {
	return g.source(name) != nil || g.sink(name) != nil
}

func (g *filterGraph) source(name string) *graphSource {
	for _, src := range g.sources {
		if src.Name == name {
			return src
		}
	}
	return nil
}

func (g *filterGraph) sink(name string) *graphSink {
	for _, sink := range g.sinks {
		if sink.Name == name {
			return sink
		}
	}
	return nil
}

func (g *filterGraph) AddInput(ctx context.Context, in native.GraphInput) error {
	if g.configured {
		return types.InvalidStatef("the graph is already configured")
	}
	if g.hasEndpoint(in.Name) {
		return types.InvalidArgumentf("endpoint '%s' already exists", in.Name)
	}

	params := astiav.AllocBuffersrcFilterContextParameters()
	if params == nil {
		return types.Runtimef("unable to allocate buffer source parameters")
	}
	defer params.Free()

	var filterName string
	switch in.MediaType {
	case types.MediaTypeVideo:
		filterName = "buffer"
		params.SetWidth(in.Width)
		params.SetHeight(in.Height)
		params.SetPixelFormat(astiav.PixelFormat(in.PixelFormat))
		params.SetTimeBase(rationalToAstiav(in.TimeBase))
		if in.SampleAspectRatio.IsValid() {
			params.SetSampleAspectRatio(rationalToAstiav(in.SampleAspectRatio))
		} else {
			params.SetSampleAspectRatio(astiav.NewRational(0, 1))
		}
		if in.FrameRate.IsValid() {
			params.SetFramerate(rationalToAstiav(in.FrameRate))
		}
	case types.MediaTypeAudio:
		layout, err := channelLayoutToAstiav(in.ChannelLayout)
		if err != nil {
			return err
		}
		filterName = "abuffer"
		params.SetChannelLayout(layout)
		params.SetSampleFormat(astiav.SampleFormat(in.SampleFormat))
		params.SetSampleRate(in.SampleRate)
		params.SetTimeBase(rationalToAstiav(in.TimeBase))
	default:
		return types.InvalidArgumentf("media type %s is not supported by filter graphs", in.MediaType)
	}

	filter := astiav.FindFilterByName(filterName)
	if filter == nil {
		return types.NotFoundf("filter '%s'", filterName)
	}
	ctxSrc, err := g.graph.NewBuffersrcFilterContext(filter, in.Name)
	if err != nil {
		return fmt.Errorf("unable to allocate the buffer source '%s': %w", in.Name, err)
	}
	if err := ctxSrc.SetParameters(params); err != nil {
		return wrapError("av_buffersrc_parameters_set", err)
	}
	if err := ctxSrc.Initialize(nil); err != nil {
		return wrapError("avfilter_init_dict", err)
	}
	g.sources = append(g.sources, &graphSource{GraphInput: in, context: ctxSrc})
	return nil
}

func (g *filterGraph) SetAutoConvert(ctx context.Context, enabled bool) error {
	if g.configured {
		return types.InvalidStatef("the graph is already configured")
	}
	setAutoConvert(g.graph, enabled)
	return nil
}

func (g *filterGraph) Filters(ctx context.Context) []native.FilterInfo {
	var result []native.FilterInfo
	for _, fc := range g.graph.Filters() {
		info := native.FilterInfo{FilterName: fc.Filter().Name()}
		if class := fc.Class(); class != nil {
			info.Name = class.ItemName()
		}
		result = append(result, info)
	}
	return result
}

func (g *filterGraph) AddOutput(ctx context.Context, out native.GraphOutput) error {
	if g.configured {
		return types.InvalidStatef("the graph is already configured")
	}
	if g.hasEndpoint(out.Name) {
		return types.InvalidArgumentf("endpoint '%s' already exists", out.Name)
	}

	var filterName string
	switch out.MediaType {
	case types.MediaTypeVideo:
		filterName = "buffersink"
	case types.MediaTypeAudio:
		filterName = "abuffersink"
	default:
		return types.InvalidArgumentf("media type %s is not supported by filter graphs", out.MediaType)
	}

	filter := astiav.FindFilterByName(filterName)
	if filter == nil {
		return types.NotFoundf("filter '%s'", filterName)
	}
	ctxSink, err := g.graph.NewBuffersinkFilterContext(filter, out.Name)
	if err != nil {
		return wrapError("avfilter_graph_create_filter", err)
	}
	g.sinks = append(g.sinks, &graphSink{GraphOutput: out, context: ctxSink})
	return nil
}

// constraints returns the filter chain enforcing the output format, or
// an empty string if the output is unconstrained.
func (s *graphSink) constraints() (string, error) {
	var chain []string
	switch s.MediaType {
	case types.MediaTypeVideo:
		if s.PixelFormat != types.PixelFormatNone {
			chain = append(chain, "format=pix_fmts="+astiav.PixelFormat(s.PixelFormat).String())
		}
	case types.MediaTypeAudio:
		var opts []string
		if s.SampleFormat != types.SampleFormatNone {
			opts = append(opts, "sample_fmts="+astiav.SampleFormat(s.SampleFormat).String())
		}
		if s.SampleRate > 0 {
			opts = append(opts, "sample_rates="+strconv.Itoa(s.SampleRate))
		}
		if s.ChannelLayout.Channels > 0 {
			layout, err := channelLayoutToAstiav(s.ChannelLayout)
			if err != nil {
				return "", err
			}
			opts = append(opts, "channel_layouts="+layout.String())
		}
		if len(opts) > 0 {
			chain = append(chain, "aformat="+strings.Join(opts, ":"))
		}
		if s.FrameSize > 0 {
			chain = append(chain, fmt.Sprintf("asetnsamples=n=%d:p=0", s.FrameSize))
		}
	}
	return strings.Join(chain, ","), nil
}

func (g *filterGraph) Configure(ctx context.Context, description string) (_err error) {
	logger.Debugf(ctx, "Configure(ctx, '%s')", description)
	defer func() { logger.Debugf(ctx, "/Configure(ctx, '%s'): %v", description, _err) }()

	if g.configured {
		return types.InvalidStatef("the graph is already configured")
	}

	var outputs *astiav.FilterInOut
	for idx := len(g.sources) - 1; idx >= 0; idx-- {
		src := g.sources[idx]
		o := astiav.AllocFilterInOut()
		o.SetName(src.Name)
		o.SetFilterContext(src.context.FilterContext())
		o.SetPadIdx(0)
		o.SetNext(outputs)
		outputs = o
	}
	defer func() {
		if outputs != nil {
			outputs.Free()
		}
	}()

	var inputs *astiav.FilterInOut
	for idx := len(g.sinks) - 1; idx >= 0; idx-- {
		sink := g.sinks[idx]
		label := sink.Name
		chain, err := sink.constraints()
		if err != nil {
			return err
		}
		if chain != "" {
			label = sink.Name + "_sink"
			description += fmt.Sprintf(";[%s]%s[%s]", sink.Name, chain, label)
		}
		i := astiav.AllocFilterInOut()
		i.SetName(label)
		i.SetFilterContext(sink.context.FilterContext())
		i.SetPadIdx(0)
		i.SetNext(inputs)
		inputs = i
	}
	defer func() {
		if inputs != nil {
			inputs.Free()
		}
	}()

	if err := g.graph.Parse(description, inputs, outputs); err != nil {
		return wrapError("avfilter_graph_parse_ptr", err)
	}
	if err := g.graph.Configure(); err != nil {
		return wrapError("avfilter_graph_config", err)
	}
	g.configured = true
	return nil
}

func (g *filterGraph) SendFrame(ctx context.Context, input string, raw media.Raw) error {
	if !g.configured {
		return types.InvalidStatef("the graph is not configured")
	}
	src := g.source(input)
	if src == nil {
		return types.NotFoundf("input '%s'", input)
	}
	if raw == nil {
		return wrapError("av_buffersrc_add_frame_flags", src.context.AddFrame(nil, astiav.NewBuffersrcFlags()))
	}
	if raw.MediaType() != src.MediaType {
		return types.InvalidArgumentf("input '%s' expects %s, got %s", input, src.MediaType, raw.MediaType())
	}
	if err := g.runQueuedCommands(ctx, raw.GetCommon()); err != nil {
		return err
	}
	if err := importFrame(raw, g.frame); err != nil {
		return err
	}
	defer g.frame.Unref()
	return wrapError("av_buffersrc_add_frame_flags", src.context.AddFrame(g.frame, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)))
}

func (g *filterGraph) runQueuedCommands(ctx context.Context, common *media.Common) error {
	if len(g.commands) == 0 || common.PTS == types.NoPTS {
		return nil
	}
	now := float64(common.PTS) * common.TimeBase.Float64()
	var pending []queuedCommand
	for _, cmd := range g.commands {
		if cmd.ts > now {
			pending = append(pending, cmd)
			continue
		}
		resp, err := g.SendCommand(ctx, cmd.target, cmd.command, cmd.args, cmd.flags)
		if err != nil {
			return fmt.Errorf("unable to run the queued command '%s %s' on '%s': %w", cmd.command, cmd.args, cmd.target, err)
		}
		logger.Debugf(ctx, "queued command '%s %s' on '%s': '%s'", cmd.command, cmd.args, cmd.target, resp)
	}
	g.commands = pending
	return nil
}

func (g *filterGraph) ReceiveFrame(ctx context.Context, output string, out media.Raw) error {
	if !g.configured {
		return types.InvalidStatef("the graph is not configured")
	}
	sink := g.sink(output)
	if sink == nil {
		return types.NotFoundf("output '%s'", output)
	}
	if out.MediaType() != sink.MediaType {
		return types.InvalidArgumentf("output '%s' produces %s, got %s", output, sink.MediaType, out.MediaType())
	}
	g.frame.Unref()
	if err := sink.context.GetFrame(g.frame, astiav.NewBuffersinkFlags()); err != nil {
		return wrapError("av_buffersink_get_frame_flags", err)
	}
	defer g.frame.Unref()
	return exportFrame(ctx, nil, g.frame, out, rationalFromAstiav(sink.context.TimeBase()))
}

func (g *filterGraph) OutputTimeBase(output string) types.Rational {
	sink := g.sink(output)
	if sink == nil || !g.configured {
		return types.Rational{}
	}
	return rationalFromAstiav(sink.context.TimeBase())
}

func (g *filterGraph) SendCommand(
	ctx context.Context,
	target, command, args string,
	flags int,
) (string, error) {
	if !g.configured {
		return "", types.InvalidStatef("the graph is not configured")
	}
	resp, err := g.graph.SendCommand(target, command, args, astiav.FilterCommandFlags(flags))
	if isErrorCode(err, errCodeNotImplemented) {
		return "", native.ErrNotImplemented
	}
	if err != nil {
		return "", wrapError("avfilter_graph_send_command", err)
	}
	return resp, nil
}

func (g *filterGraph) QueueCommand(
	ctx context.Context,
	target, command, args string,
	flags int,
	ts float64,
) error {
	if !g.configured {
		return types.InvalidStatef("the graph is not configured")
	}
	g.commands = append(g.commands, queuedCommand{
		target:  target,
		command: command,
		args:    args,
		flags:   flags,
		ts:      ts,
	})
	sort.SliceStable(g.commands, func(i, j int) bool {
		return g.commands[i].ts < g.commands[j].ts
	})
	return nil
}

func (g *filterGraph) Dump(ctx context.Context) string {
	return g.graph.String()
}

func (g *filterGraph) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	return g.closer.Close()
}
