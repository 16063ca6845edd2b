// Package filtergraph builds a graph of filters from a textual
// description and moves raw media in (through sinks) and out (through
// sources) of it.
package filtergraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type State int

const (
	StateInited = State(iota)
	StateOpened
	StateError
)

func (s State) String() string {
	switch s {
	case StateInited:
		return "INITED"
	case StateOpened:
		return "OPENED"
	case StateError:
		return "ERROR"
	}
	return fmt.Sprintf("unexpected_state_%d", int(s))
}

// AutoConvert controls whether the graph inserts format conversion
// filters between filters that do not share a format.
type AutoConvert int

const (
	AutoConvertAll = AutoConvert(iota)
	AutoConvertNone
)

func (c AutoConvert) String() string {
	switch c {
	case AutoConvertAll:
		return "all"
	case AutoConvertNone:
		return "none"
	}
	return fmt.Sprintf("unexpected_auto_convert_%d", int(c))
}

// FilterGraph owns a native graph and its named endpoints. It is not
// safe for concurrent use.
type FilterGraph struct {
	graph       native.FilterGraph
	state       State
	autoConvert AutoConvert
	closed      bool
	closer      *astikit.Closer

	sinks   []*FilterSink
	sources []*FilterSource
}

func New(
	ctx context.Context,
	backend native.Backend,
) (_ret *FilterGraph, _err error) {
	logger.Debugf(ctx, "New")
	defer func() { logger.Debugf(ctx, "/New: %v", _err) }()

	graph, err := backend.NewFilterGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to allocate a filter graph: %w", types.ErrRuntime, err)
	}
	g := &FilterGraph{
		graph:  graph,
		closer: astikit.NewCloser(),
	}
	g.closer.AddWithError(graph.Close)
	return g, nil
}

func (g *FilterGraph) State() State {
	return g.state
}

func (g *FilterGraph) String() string {
	return fmt.Sprintf("filter graph (%s; sinks: %d; sources: %d)", g.state, len(g.sinks), len(g.sources))
}

func (g *FilterGraph) setState(ctx context.Context, state State) {
	logger.Tracef(ctx, "filter graph: state %s -> %s", g.state, state)
	g.state = state
}

func (g *FilterGraph) fail(ctx context.Context, err error) error {
	logger.Debugf(ctx, "filter graph failed: %v", err)
	g.setState(ctx, StateError)
	return err
}

func (g *FilterGraph) checkState(op string, expected State) error {
	switch {
	case g.closed:
		return types.InvalidStatef("%s: the filter graph is closed", op)
	case g.state != expected:
		return types.InvalidStatef("%s is allowed only in state %s, but the filter graph is %s", op, expected, g.state)
	}
	return nil
}

func (g *FilterGraph) hasEndpoint(name string) bool {
	for _, s := range g.sinks {
		if s.name == name {
			return true
		}
	}
	for _, s := range g.sources {
		if s.name == name {
			return true
		}
	}
	return false
}

func (g *FilterGraph) checkNewEndpoint(op, name string) error {
	if err := g.checkState(op, StateInited); err != nil {
		return err
	}
	if name == "" {
		return types.InvalidArgumentf("%s: the name is empty", op)
	}
	if g.hasEndpoint(name) {
		return types.Runtimef("%s: an endpoint named '%s' is already registered", op, name)
	}
	return nil
}

func (g *FilterGraph) addSink(ctx context.Context, in native.GraphInput) (*FilterSink, error) {
	if err := g.graph.AddInput(ctx, in); err != nil {
		return nil, fmt.Errorf("%w: unable to create the buffer source '%s': %w", types.ErrRuntime, in.Name, err)
	}
	s := &FilterSink{
		graph:     g,
		name:      in.Name,
		mediaType: in.MediaType,
		timeBase:  in.TimeBase,
	}
	g.sinks = append(g.sinks, s)
	return s, nil
}

func (g *FilterGraph) addSource(ctx context.Context, out native.GraphOutput) (*FilterSource, error) {
	if err := g.graph.AddOutput(ctx, out); err != nil {
		return nil, fmt.Errorf("%w: unable to create the buffer sink '%s': %w", types.ErrRuntime, out.Name, err)
	}
	s := &FilterSource{
		graph:     g,
		name:      out.Name,
		mediaType: out.MediaType,
	}
	g.sources = append(g.sources, s)
	return s, nil
}

// AddAudioSink registers an endpoint for pushing audio into the graph. An
// invalid timeBase defaults to 1/sampleRate.
func (g *FilterGraph) AddAudioSink(
	ctx context.Context,
	name string,
	sampleRate int,
	layout types.ChannelLayout,
	format types.SampleFormat,
	timeBase types.Rational,
) (_ret *FilterSink, _err error) {
	logger.Debugf(ctx, "AddAudioSink(ctx, '%s', %d, %s, %d, %s)", name, sampleRate, layout, format, timeBase)
	defer func() { logger.Debugf(ctx, "/AddAudioSink(ctx, '%s'): %v", name, _err) }()

	if err := g.checkNewEndpoint("AddAudioSink", name); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, types.InvalidArgumentf("invalid sample rate %d", sampleRate)
	}
	if layout.Channels <= 0 {
		return nil, types.InvalidArgumentf("invalid channel layout %s", layout)
	}
	if format == types.SampleFormatNone {
		return nil, types.InvalidArgumentf("the sample format is not set")
	}
	if !timeBase.IsValid() {
		timeBase = types.NewRational(1, sampleRate)
	}
	return g.addSink(ctx, native.GraphInput{
		Name:          name,
		MediaType:     types.MediaTypeAudio,
		SampleRate:    sampleRate,
		ChannelLayout: layout,
		SampleFormat:  format,
		TimeBase:      timeBase,
	})
}

// AddPictureSink registers an endpoint for pushing pictures into the
// graph. An invalid timeBase defaults to the microsecond time base.
func (g *FilterGraph) AddPictureSink(
	ctx context.Context,
	name string,
	width, height int,
	format types.PixelFormat,
	timeBase types.Rational,
	pixelAspectRatio types.Rational,
) (_ret *FilterSink, _err error) {
	logger.Debugf(ctx, "AddPictureSink(ctx, '%s', %dx%d, %d, %s, %s)", name, width, height, format, timeBase, pixelAspectRatio)
	defer func() { logger.Debugf(ctx, "/AddPictureSink(ctx, '%s'): %v", name, _err) }()

	if err := g.checkNewEndpoint("AddPictureSink", name); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, types.InvalidArgumentf("invalid picture dimensions %dx%d", width, height)
	}
	if format == types.PixelFormatNone {
		return nil, types.InvalidArgumentf("the pixel format is not set")
	}
	if !timeBase.IsValid() {
		timeBase = types.DefaultTimeBase()
	}
	if !pixelAspectRatio.IsValid() {
		pixelAspectRatio = types.NewRational(1, 1)
	}
	return g.addSink(ctx, native.GraphInput{
		Name:              name,
		MediaType:         types.MediaTypeVideo,
		Width:             width,
		Height:            height,
		PixelFormat:       format,
		SampleAspectRatio: pixelAspectRatio,
		TimeBase:          timeBase,
	})
}

// AddAudioSource registers an endpoint for pulling audio out of the
// graph. Zero values and SampleFormatNone leave the property up to the
// graph.
func (g *FilterGraph) AddAudioSource(
	ctx context.Context,
	name string,
	sampleRate int,
	layout types.ChannelLayout,
	format types.SampleFormat,
) (_ret *FilterSource, _err error) {
	logger.Debugf(ctx, "AddAudioSource(ctx, '%s', %d, %s, %d)", name, sampleRate, layout, format)
	defer func() { logger.Debugf(ctx, "/AddAudioSource(ctx, '%s'): %v", name, _err) }()

	if err := g.checkNewEndpoint("AddAudioSource", name); err != nil {
		return nil, err
	}
	if sampleRate < 0 || layout.Channels < 0 {
		return nil, types.InvalidArgumentf("invalid audio format: %d Hz, %s", sampleRate, layout)
	}
	return g.addSource(ctx, native.GraphOutput{
		Name:          name,
		MediaType:     types.MediaTypeAudio,
		PixelFormat:   types.PixelFormatNone,
		SampleRate:    sampleRate,
		ChannelLayout: layout,
		SampleFormat:  format,
	})
}

// AddPictureSource registers an endpoint for pulling pictures out of the
// graph. PixelFormatNone leaves the format up to the graph.
func (g *FilterGraph) AddPictureSource(
	ctx context.Context,
	name string,
	format types.PixelFormat,
) (_ret *FilterSource, _err error) {
	logger.Debugf(ctx, "AddPictureSource(ctx, '%s', %d)", name, format)
	defer func() { logger.Debugf(ctx, "/AddPictureSource(ctx, '%s'): %v", name, _err) }()

	if err := g.checkNewEndpoint("AddPictureSource", name); err != nil {
		return nil, err
	}
	return g.addSource(ctx, native.GraphOutput{
		Name:         name,
		MediaType:    types.MediaTypeVideo,
		PixelFormat:  format,
		SampleFormat: types.SampleFormatNone,
	})
}

// Open links the registered endpoints according to the description, for
// example "[in]scale=78:24[out]". Every endpoint must be used and no pad
// may stay unconnected. Any failure is terminal.
func (g *FilterGraph) Open(
	ctx context.Context,
	description string,
) (_err error) {
	logger.Debugf(ctx, "Open(ctx, '%s')", description)
	defer func() { logger.Debugf(ctx, "/Open(ctx, '%s'): %v", description, _err) }()

	if err := g.checkState("Open", StateInited); err != nil {
		return err
	}
	if description == "" {
		return g.fail(ctx, types.InvalidArgumentf("the filter graph description is empty"))
	}
	if err := g.graph.Configure(ctx, description); err != nil {
		return g.fail(ctx, fmt.Errorf("%w: unable to configure the filter graph '%s': %w", types.ErrRuntime, description, err))
	}
	for _, s := range g.sources {
		s.timeBase = g.graph.OutputTimeBase(s.name)
	}
	g.setState(ctx, StateOpened)
	return nil
}

// SetAutoConvert must be called before Open.
func (g *FilterGraph) SetAutoConvert(
	ctx context.Context,
	mode AutoConvert,
) (_err error) {
	logger.Debugf(ctx, "SetAutoConvert(ctx, %s)", mode)
	defer func() { logger.Debugf(ctx, "/SetAutoConvert(ctx, %s): %v", mode, _err) }()

	if err := g.checkState("SetAutoConvert", StateInited); err != nil {
		return err
	}
	switch mode {
	case AutoConvertAll, AutoConvertNone:
	default:
		return types.InvalidArgumentf("unexpected auto-conversion mode %d", int(mode))
	}
	if err := g.graph.SetAutoConvert(ctx, mode == AutoConvertAll); err != nil {
		return fmt.Errorf("%w: unable to set the auto-conversion mode to '%s': %w", types.ErrRuntime, mode, err)
	}
	g.autoConvert = mode
	return nil
}

func (g *FilterGraph) AutoConvert() AutoConvert {
	return g.autoConvert
}

// Filters lists the filter instances of an opened graph.
func (g *FilterGraph) Filters(ctx context.Context) ([]native.FilterInfo, error) {
	if err := g.checkState("Filters", StateOpened); err != nil {
		return nil, err
	}
	return g.graph.Filters(ctx), nil
}

// Filter looks up a filter instance by its name, for example
// "Parsed_scale_0" or the name of an endpoint.
func (g *FilterGraph) Filter(ctx context.Context, name string) (native.FilterInfo, error) {
	filters, err := g.Filters(ctx)
	if err != nil {
		return native.FilterInfo{}, err
	}
	for _, f := range filters {
		if f.Name == name {
			return f, nil
		}
	}
	return native.FilterInfo{}, types.NotFoundf("filter '%s'", name)
}

func (g *FilterGraph) NumSinks() int {
	return len(g.sinks)
}

func (g *FilterGraph) Sink(idx int) (*FilterSink, error) {
	if idx < 0 || idx >= len(g.sinks) {
		return nil, types.InvalidArgumentf("sink index %d is out of range [0, %d)", idx, len(g.sinks))
	}
	return g.sinks[idx], nil
}

func (g *FilterGraph) SinkByName(name string) (*FilterSink, error) {
	for _, s := range g.sinks {
		if s.name == name {
			return s, nil
		}
	}
	return nil, types.NotFoundf("sink '%s'", name)
}

func (g *FilterGraph) NumSources() int {
	return len(g.sources)
}

func (g *FilterGraph) Source(idx int) (*FilterSource, error) {
	if idx < 0 || idx >= len(g.sources) {
		return nil, types.InvalidArgumentf("source index %d is out of range [0, %d)", idx, len(g.sources))
	}
	return g.sources[idx], nil
}

func (g *FilterGraph) SourceByName(name string) (*FilterSource, error) {
	for _, s := range g.sources {
		if s.name == name {
			return s, nil
		}
	}
	return nil, types.NotFoundf("source '%s'", name)
}

func commandError(op, target, command string, err error) error {
	if errors.Is(err, native.ErrNotImplemented) {
		return types.NotFoundf("%s: no filter '%s' supports the command '%s'", op, target, command)
	}
	return fmt.Errorf("%w: %s: command '%s' to '%s' failed: %w", types.ErrRuntime, op, command, target, err)
}

// SendCommand executes the command on the target filter(s) right away.
// The target is either a filter instance name, a filter name or "all".
func (g *FilterGraph) SendCommand(
	ctx context.Context,
	target string,
	command string,
	args string,
	flags int,
) (_ret string, _err error) {
	logger.Debugf(ctx, "SendCommand(ctx, '%s', '%s', '%s', %d)", target, command, args, flags)
	defer func() {
		logger.Debugf(ctx, "/SendCommand(ctx, '%s', '%s', '%s', %d): '%s' %v", target, command, args, flags, _ret, _err)
	}()

	if err := g.checkState("SendCommand", StateOpened); err != nil {
		return "", err
	}
	resp, err := g.graph.SendCommand(ctx, target, command, args, flags)
	if err != nil {
		return "", commandError("SendCommand", target, command, err)
	}
	return resp, nil
}

// QueueCommand schedules the command to the moment the graph processes
// the frame at ts seconds.
func (g *FilterGraph) QueueCommand(
	ctx context.Context,
	target string,
	command string,
	args string,
	flags int,
	ts float64,
) (_err error) {
	logger.Debugf(ctx, "QueueCommand(ctx, '%s', '%s', '%s', %d, %f)", target, command, args, flags, ts)
	defer func() {
		logger.Debugf(ctx, "/QueueCommand(ctx, '%s', '%s', '%s', %d, %f): %v", target, command, args, flags, ts, _err)
	}()

	if err := g.checkState("QueueCommand", StateOpened); err != nil {
		return err
	}
	if err := g.graph.QueueCommand(ctx, target, command, args, flags, ts); err != nil {
		return commandError("QueueCommand", target, command, err)
	}
	return nil
}

// DisplayString returns a human-readable dump of the graph.
func (g *FilterGraph) DisplayString(ctx context.Context) string {
	if g.closed {
		return ""
	}
	return g.graph.Dump(ctx)
}

// Close frees the native graph; the endpoints become unusable.
func (g *FilterGraph) Close(ctx context.Context) error {
	if g.closed {
		return nil
	}
	logger.Debugf(ctx, "closing %s", g)
	g.closed = true
	return g.closer.Close()
}
