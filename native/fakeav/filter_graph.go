package fakeav

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

type frameReceiver interface {
	receive(raw media.Raw)
	receiveEOF()
	mediaType() types.MediaType
	String() string
}

type frameProducer interface {
	timeBase() types.Rational
	String() string
}

type inputPad struct {
	node      *filterNode
	index     int
	queue     []media.Raw
	eof       bool
	producer  frameProducer
	connected bool
}

func (p *inputPad) receive(raw media.Raw) {
	p.queue = append(p.queue, raw)
}

func (p *inputPad) receiveEOF() {
	p.eof = true
}

func (p *inputPad) mediaType() types.MediaType {
	return p.node.def.mediaType
}

func (p *inputPad) String() string {
	return fmt.Sprintf("%s:%d", p.node.instance, p.index)
}

type filterNode struct {
	instance string
	name     string
	args     string
	def      *filterDef
	impl     filterImpl
	inputs   []*inputPad
	outputs  []frameReceiver
	tb       types.Rational
	eofSent  bool
}

func (n *filterNode) timeBase() types.Rational {
	return n.tb
}

func (n *filterNode) String() string {
	return n.instance
}

func (n *filterNode) run() (bool, error) {
	if len(n.inputs) == 0 {
		return false, nil
	}
	progress := false
	for {
		ready := true
		for _, in := range n.inputs {
			if len(in.queue) == 0 {
				ready = false
				break
			}
		}
		if !ready {
			break
		}
		frames := make([]media.Raw, len(n.inputs))
		for idx, in := range n.inputs {
			frames[idx] = in.queue[0]
			in.queue = in.queue[1:]
		}
		out, err := n.impl.apply(frames)
		if err != nil {
			return progress, types.NewNativeError(n.instance, errCodeInvalidArgument, err.Error())
		}
		for idx, receiver := range n.outputs {
			if idx == 0 {
				receiver.receive(out)
				continue
			}
			receiver.receive(cloneRaw(out))
		}
		progress = true
	}

	if !n.eofSent {
		for _, in := range n.inputs {
			if in.eof && len(in.queue) == 0 {
				n.eofSent = true
				break
			}
		}
		if n.eofSent {
			for _, receiver := range n.outputs {
				receiver.receiveEOF()
			}
			progress = true
		}
	}
	return progress, nil
}

type graphInput struct {
	cfg       native.GraphInput
	target    frameReceiver
	eof       bool
	connected bool
}

func (i *graphInput) timeBase() types.Rational {
	return i.cfg.TimeBase
}

func (i *graphInput) String() string {
	return i.cfg.Name
}

type graphOutput struct {
	cfg       native.GraphOutput
	queue     []media.Raw
	eof       bool
	connected bool
	producer  frameProducer
}

func (o *graphOutput) receive(raw media.Raw) {
	o.queue = append(o.queue, raw)
}

func (o *graphOutput) receiveEOF() {
	o.eof = true
}

func (o *graphOutput) mediaType() types.MediaType {
	return o.cfg.MediaType
}

func (o *graphOutput) String() string {
	return o.cfg.Name
}

type queuedCommand struct {
	target  string
	command string
	args    string
	flags   int
	ts      float64
}

type filterGraph struct {
	backend    *Backend
	inputs     []*graphInput
	outputs    []*graphOutput
	nodes      []*filterNode
	queue      []queuedCommand
	noConvert  bool
	configured bool
	closed     bool
}

var _ native.FilterGraph = (*filterGraph)(nil)

func newFilterGraph(backend *Backend) *filterGraph {
	return &filterGraph{
		backend: backend,
	}
}

func (g *filterGraph) hasEndpoint(name string) bool {
	return g.input(name) != nil || g.output(name) != nil
}

func (g *filterGraph) input(name string) *graphInput {
	for _, in := range g.inputs {
		if in.cfg.Name == name {
			return in
		}
	}
	return nil
}

func (g *filterGraph) output(name string) *graphOutput {
	for _, out := range g.outputs {
		if out.cfg.Name == name {
			return out
		}
	}
	return nil
}

func (g *filterGraph) AddInput(ctx context.Context, in native.GraphInput) error {
	if g.configured {
		return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, "the graph is already configured")
	}
	if g.hasEndpoint(in.Name) {
		return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, fmt.Sprintf("duplicate filter name '%s'", in.Name))
	}
	switch in.MediaType {
	case types.MediaTypeVideo:
		if in.Width <= 0 || in.Height <= 0 {
			return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, "invalid picture dimensions")
		}
	case types.MediaTypeAudio:
		if in.SampleRate <= 0 || in.ChannelLayout.Channels <= 0 {
			return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, "invalid audio format")
		}
	default:
		return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, fmt.Sprintf("unsupported media type %s", in.MediaType))
	}
	g.inputs = append(g.inputs, &graphInput{cfg: in})
	return nil
}

func (g *filterGraph) SetAutoConvert(ctx context.Context, enabled bool) error {
	if g.configured || g.closed {
		return types.NewNativeError("avfilter_graph_set_auto_convert", errCodeInvalidArgument, "the graph is already configured")
	}
	g.noConvert = !enabled
	return nil
}

func (g *filterGraph) Filters(ctx context.Context) []native.FilterInfo {
	var result []native.FilterInfo
	for _, in := range g.inputs {
		name := "buffer"
		if in.cfg.MediaType == types.MediaTypeAudio {
			name = "abuffer"
		}
		result = append(result, native.FilterInfo{Name: in.cfg.Name, FilterName: name})
	}
	for _, node := range g.nodes {
		result = append(result, native.FilterInfo{Name: node.instance, FilterName: node.name})
	}
	for _, out := range g.outputs {
		name := "buffersink"
		if out.cfg.MediaType == types.MediaTypeAudio {
			name = "abuffersink"
		}
		result = append(result, native.FilterInfo{Name: out.cfg.Name, FilterName: name})
	}
	return result
}

func (g *filterGraph) AddOutput(ctx context.Context, out native.GraphOutput) error {
	if g.configured {
		return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, "the graph is already configured")
	}
	if g.hasEndpoint(out.Name) {
		return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, fmt.Sprintf("duplicate filter name '%s'", out.Name))
	}
	switch out.MediaType {
	case types.MediaTypeVideo, types.MediaTypeAudio:
	default:
		return types.NewNativeError("avfilter_graph_create_filter", errCodeInvalidArgument, fmt.Sprintf("unsupported media type %s", out.MediaType))
	}
	g.outputs = append(g.outputs, &graphOutput{cfg: out})
	return nil
}

type pendingOutput struct {
	node *filterNode
	pad  int
}

func (g *filterGraph) Configure(ctx context.Context, description string) (_err error) {
	if g.configured || g.closed {
		return types.NewNativeError("avfilter_graph_config", errCodeInvalidArgument, "the graph is already configured")
	}
	defer func() {
		if _err != nil {
			g.nodes = nil
			for _, in := range g.inputs {
				in.target, in.connected = nil, false
			}
			for _, out := range g.outputs {
				out.producer, out.connected = nil, false
			}
		}
	}()
	invalid := func(format string, args ...any) error {
		return types.NewNativeError("avfilter_graph_parse_ptr", errCodeInvalidArgument, fmt.Sprintf(format, args...))
	}

	chains, err := parseDescription(description)
	if err != nil {
		return invalid("%v", err)
	}

	labeledOutputs := map[string]pendingOutput{}
	type labeledInput struct {
		label string
		pad   *inputPad
	}
	var labeledInputs []labeledInput

	for _, chain := range chains {
		var prev *filterNode
		var prevLabeledOutputs int
		for _, pf := range chain {
			def := filterDefs[pf.name]
			if def == nil {
				return types.NewNativeError("avfilter_graph_parse_ptr", errCodeFilterNotFound, fmt.Sprintf("no such filter: '%s'", pf.name))
			}
			args := parseArgs(pf.args)
			numIn, numOut, err := def.pads(args)
			if err != nil {
				return invalid("%s: %v", pf.name, err)
			}
			impl, err := def.create(args)
			if err != nil {
				return invalid("%s: %v", pf.name, err)
			}
			node := &filterNode{
				instance: fmt.Sprintf("Parsed_%s_%d", pf.name, len(g.nodes)),
				name:     pf.name,
				args:     pf.args,
				def:      def,
				impl:     impl,
				outputs:  make([]frameReceiver, numOut),
			}
			for idx := 0; idx < numIn; idx++ {
				node.inputs = append(node.inputs, &inputPad{node: node, index: idx})
			}
			if gen, ok := impl.(frameGenerator); ok {
				node.tb = gen.timeBase()
			}
			g.nodes = append(g.nodes, node)

			if len(pf.inLabels) > numIn {
				return invalid("too many input labels for %s", node.instance)
			}
			if len(pf.outLabels) > numOut {
				return invalid("too many output labels for %s", node.instance)
			}

			nextIn := 0
			if prev != nil && len(pf.inLabels) == 0 {
				for outIdx := prevLabeledOutputs; outIdx < len(prev.outputs) && nextIn < numIn; outIdx++ {
					if err := g.link(prev, outIdx, node.inputs[nextIn]); err != nil {
						return err
					}
					nextIn++
				}
			}
			for _, label := range pf.inLabels {
				labeledInputs = append(labeledInputs, labeledInput{label: label, pad: node.inputs[nextIn]})
				nextIn++
			}
			for idx, label := range pf.outLabels {
				if _, ok := labeledOutputs[label]; ok {
					return invalid("duplicate output label '%s'", label)
				}
				labeledOutputs[label] = pendingOutput{node: node, pad: idx}
			}
			prev = node
			prevLabeledOutputs = len(pf.outLabels)
		}
	}

	for _, li := range labeledInputs {
		if in := g.input(li.label); in != nil {
			if in.connected {
				return invalid("input '%s' is used more than once", li.label)
			}
			if in.cfg.MediaType != li.pad.mediaType() {
				return invalid("media type mismatch between '%s' and %s", li.label, li.pad)
			}
			in.target, in.connected = li.pad, true
			li.pad.producer, li.pad.connected = in, true
			continue
		}
		src, ok := labeledOutputs[li.label]
		if !ok {
			return invalid("input pad %s labeled '%s' is not connected", li.pad, li.label)
		}
		delete(labeledOutputs, li.label)
		if err := g.link(src.node, src.pad, li.pad); err != nil {
			return err
		}
	}
	for label, src := range labeledOutputs {
		out := g.output(label)
		if out == nil {
			return invalid("output pad %s:%d labeled '%s' is not connected", src.node.instance, src.pad, label)
		}
		if out.connected {
			return invalid("output '%s' is used more than once", label)
		}
		if out.cfg.MediaType != src.node.def.mediaType {
			return invalid("media type mismatch between %s and '%s'", src.node.instance, label)
		}
		src.node.outputs[src.pad] = out
		out.producer, out.connected = src.node, true
	}

	for _, node := range g.nodes {
		for _, in := range node.inputs {
			if !in.connected {
				return invalid("input pad %s is not connected", in)
			}
		}
		for idx, out := range node.outputs {
			if out == nil {
				return invalid("output pad %s:%d is not connected", node.instance, idx)
			}
		}
	}
	for _, in := range g.inputs {
		if !in.connected {
			return invalid("buffer source '%s' is not connected", in.cfg.Name)
		}
	}
	for _, out := range g.outputs {
		if !out.connected {
			return invalid("buffer sink '%s' is not connected", out.cfg.Name)
		}
	}

	for range g.nodes {
		for _, node := range g.nodes {
			if len(node.inputs) > 0 {
				node.tb = node.inputs[0].producer.timeBase()
			}
		}
	}

	if g.noConvert {
		for _, out := range g.outputs {
			if err := checkFormat(out); err != nil {
				return err
			}
		}
	}

	g.configured = true
	g.backend.log(ctx, logger.LevelDebug, "configured a graph of %d filters", len(g.nodes))
	return nil
}

func (g *filterGraph) link(src *filterNode, srcPad int, dst *inputPad) error {
	if src.def.mediaType != dst.mediaType() {
		return types.NewNativeError("avfilter_link", errCodeInvalidArgument,
			fmt.Sprintf("media type mismatch between %s:%d and %s", src.instance, srcPad, dst))
	}
	if src.outputs[srcPad] != nil {
		return types.NewNativeError("avfilter_link", errCodeInvalidArgument,
			fmt.Sprintf("output pad %s:%d is linked twice", src.instance, srcPad))
	}
	src.outputs[srcPad] = dst
	dst.producer, dst.connected = src, true
	return nil
}

func (g *filterGraph) propagate() error {
	for {
		progress := false
		for _, node := range g.nodes {
			p, err := node.run()
			if err != nil {
				return err
			}
			progress = progress || p
		}
		if !progress {
			return nil
		}
	}
}

// maxGeneratorAttempts limits how many frames every source filter may
// produce while serving a single ReceiveFrame.
const maxGeneratorAttempts = 64

// generate lets every source filter produce one frame (or its end of
// stream) and pushes the result through the graph.
func (g *filterGraph) generate() (bool, error) {
	progress := false
	for _, node := range g.nodes {
		gen, ok := node.impl.(frameGenerator)
		if !ok || node.eofSent {
			continue
		}
		progress = true
		frame, ok := gen.next()
		if !ok {
			node.eofSent = true
			for _, receiver := range node.outputs {
				receiver.receiveEOF()
			}
			continue
		}
		for idx, receiver := range node.outputs {
			if idx == 0 {
				receiver.receive(frame)
				continue
			}
			receiver.receive(cloneRaw(frame))
		}
	}
	if !progress {
		return false, nil
	}
	return true, g.propagate()
}

type streamFormat struct {
	pixelFormat  types.PixelFormat
	sampleFormat types.SampleFormat
	sampleRate   int
	channels     int
}

// formatOf follows the first input of every filter up to a buffer
// source or a source filter. None of the filters changes the format.
func formatOf(p frameProducer) (streamFormat, bool) {
	for {
		switch producer := p.(type) {
		case *graphInput:
			return streamFormat{
				pixelFormat:  producer.cfg.PixelFormat,
				sampleFormat: producer.cfg.SampleFormat,
				sampleRate:   producer.cfg.SampleRate,
				channels:     producer.cfg.ChannelLayout.Channels,
			}, true
		case *filterNode:
			if gen, ok := producer.impl.(frameGenerator); ok {
				return gen.format(), true
			}
			if len(producer.inputs) == 0 {
				return streamFormat{}, false
			}
			p = producer.inputs[0].producer
		default:
			return streamFormat{}, false
		}
	}
}

func checkFormat(out *graphOutput) error {
	format, ok := formatOf(out.producer)
	if !ok {
		return nil
	}
	mismatch := false
	switch out.cfg.MediaType {
	case types.MediaTypeVideo:
		mismatch = out.cfg.PixelFormat != types.PixelFormatNone && out.cfg.PixelFormat != format.pixelFormat
	case types.MediaTypeAudio:
		mismatch = (out.cfg.SampleFormat != types.SampleFormatNone && out.cfg.SampleFormat != format.sampleFormat) ||
			(out.cfg.SampleRate > 0 && out.cfg.SampleRate != format.sampleRate) ||
			(out.cfg.ChannelLayout.Channels > 0 && out.cfg.ChannelLayout.Channels != format.channels)
	}
	if mismatch {
		return types.NewNativeError("avfilter_graph_config", errCodeInvalidArgument,
			fmt.Sprintf("the filters '%v' and '%s' do not have a common format and automatic conversion is disabled", out.producer, out.cfg.Name))
	}
	return nil
}

func (g *filterGraph) SendFrame(ctx context.Context, input string, raw media.Raw) error {
	if !g.configured || g.closed {
		return types.NewNativeError("av_buffersrc_add_frame", errCodeInvalidArgument, "the graph is not configured")
	}
	in := g.input(input)
	if in == nil {
		return types.NewNativeError("av_buffersrc_add_frame", errCodeInvalidArgument, fmt.Sprintf("no buffer source '%s'", input))
	}
	if in.eof {
		return native.ErrEOF
	}
	if raw == nil {
		in.eof = true
		in.target.receiveEOF()
		return g.propagate()
	}
	if raw.MediaType() != in.cfg.MediaType {
		return types.NewNativeError("av_buffersrc_add_frame", errCodeInvalidArgument, "media type mismatch")
	}
	switch raw := raw.(type) {
	case *media.Picture:
		if raw.Width != in.cfg.Width || raw.Height != in.cfg.Height || raw.PixelFormat != in.cfg.PixelFormat {
			return types.NewNativeError("av_buffersrc_add_frame", errCodeInvalidArgument, "changing video frame properties on the fly is not supported")
		}
	case *media.Audio:
		if raw.SampleRate != in.cfg.SampleRate || raw.ChannelLayout.Channels != in.cfg.ChannelLayout.Channels || raw.SampleFormat != in.cfg.SampleFormat {
			return types.NewNativeError("av_buffersrc_add_frame", errCodeInvalidArgument, "changing audio frame properties on the fly is not supported")
		}
	}
	frame := cloneRaw(raw)
	frame.GetCommon().SetTimeBase(in.cfg.TimeBase)
	if err := g.runQueuedCommands(ctx, frame.GetCommon()); err != nil {
		return err
	}
	in.target.receive(frame)
	return g.propagate()
}

func (g *filterGraph) ReceiveFrame(ctx context.Context, output string, out media.Raw) error {
	if !g.configured || g.closed {
		return types.NewNativeError("av_buffersink_get_frame", errCodeInvalidArgument, "the graph is not configured")
	}
	o := g.output(output)
	if o == nil {
		return types.NewNativeError("av_buffersink_get_frame", errCodeInvalidArgument, fmt.Sprintf("no buffer sink '%s'", output))
	}
	if out.MediaType() != o.cfg.MediaType {
		return types.NewNativeError("av_buffersink_get_frame", errCodeInvalidArgument, "media type mismatch")
	}
	for attempt := 0; len(o.queue) == 0 && !o.eof && attempt < maxGeneratorAttempts; attempt++ {
		progress, err := g.generate()
		if err != nil {
			return err
		}
		if !progress {
			break
		}
	}
	if len(o.queue) == 0 {
		if o.eof {
			return native.ErrEOF
		}
		return native.ErrAgain
	}
	frame := o.queue[0]
	o.queue = o.queue[1:]
	frame = convertToOutput(frame, o.cfg)

	switch src := frame.(type) {
	case *media.Picture:
		dst := out.(*media.Picture)
		dst.Width, dst.Height, dst.PixelFormat, dst.Strides = src.Width, src.Height, src.PixelFormat, src.Strides
	case *media.Audio:
		dst := out.(*media.Audio)
		dst.SampleRate, dst.ChannelLayout, dst.SampleFormat, dst.NumSamples = src.SampleRate, src.ChannelLayout, src.SampleFormat, src.NumSamples
	}
	if err := native.ExportPlanes(ctx, nil, out, frame.GetPlanes()); err != nil {
		return err
	}
	*out.GetCommon() = *frame.GetCommon()
	out.GetCommon().Complete = true
	return nil
}

func (g *filterGraph) OutputTimeBase(output string) types.Rational {
	o := g.output(output)
	if o == nil || o.producer == nil {
		return types.Rational{}
	}
	return o.producer.timeBase()
}

func (g *filterGraph) SendCommand(ctx context.Context, target, command, args string, flags int) (string, error) {
	if !g.configured || g.closed {
		return "", types.NewNativeError("avfilter_graph_send_command", errCodeInvalidArgument, "the graph is not configured")
	}
	const flagOne = 1
	var (
		responses []string
		handled   bool
	)
	for _, node := range g.nodes {
		if target != "all" && target != node.instance && target != node.name {
			continue
		}
		resp, err := node.impl.command(command, args)
		if errors.Is(err, native.ErrNotImplemented) {
			continue
		}
		if err != nil {
			return "", types.NewNativeError("avfilter_graph_send_command", errCodeInvalidArgument, err.Error())
		}
		handled = true
		if resp != "" {
			responses = append(responses, resp)
		}
		if flags&flagOne != 0 {
			break
		}
	}
	if !handled {
		return "", native.ErrNotImplemented
	}
	return strings.Join(responses, "\n"), nil
}

func (g *filterGraph) QueueCommand(ctx context.Context, target, command, args string, flags int, ts float64) error {
	if !g.configured || g.closed {
		return types.NewNativeError("avfilter_graph_queue_command", errCodeInvalidArgument, "the graph is not configured")
	}
	found := false
	for _, node := range g.nodes {
		if target == "all" || target == node.instance || target == node.name {
			found = true
			break
		}
	}
	if !found {
		return native.ErrNotImplemented
	}
	g.queue = append(g.queue, queuedCommand{
		target:  target,
		command: command,
		args:    args,
		flags:   flags,
		ts:      ts,
	})
	return nil
}

// runQueuedCommands executes the queued commands which are due at the
// time of the frame.
func (g *filterGraph) runQueuedCommands(ctx context.Context, frame *media.Common) error {
	if len(g.queue) == 0 || frame.PTS == types.NoPTS || !frame.TimeBase.IsValid() {
		return nil
	}
	now := float64(frame.PTS) * frame.TimeBase.Float64()
	remaining := g.queue[:0]
	var due []queuedCommand
	for _, cmd := range g.queue {
		if cmd.ts <= now {
			due = append(due, cmd)
			continue
		}
		remaining = append(remaining, cmd)
	}
	g.queue = remaining
	for _, cmd := range due {
		g.backend.log(ctx, logger.LevelDebug, "running the queued command '%s %s' for '%s' at %f", cmd.command, cmd.args, cmd.target, now)
		if _, err := g.SendCommand(ctx, cmd.target, cmd.command, cmd.args, cmd.flags); err != nil && !errors.Is(err, native.ErrNotImplemented) {
			return err
		}
	}
	return nil
}

func (g *filterGraph) Dump(ctx context.Context) string {
	var b strings.Builder
	for _, in := range g.inputs {
		fmt.Fprintf(&b, "buffer '%s' (%s) -> %v\n", in.cfg.Name, in.cfg.MediaType, in.target)
	}
	for _, node := range g.nodes {
		var ins []string
		for _, in := range node.inputs {
			ins = append(ins, fmt.Sprintf("%v", in.producer))
		}
		var outs []string
		for _, out := range node.outputs {
			outs = append(outs, fmt.Sprintf("%v", out))
		}
		fmt.Fprintf(&b, "%s (%s", node.instance, node.name)
		if node.args != "" {
			fmt.Fprintf(&b, "=%s", node.args)
		}
		fmt.Fprintf(&b, ") [%s] -> [%s]\n", strings.Join(ins, ","), strings.Join(outs, ","))
	}
	for _, out := range g.outputs {
		fmt.Fprintf(&b, "buffersink '%s' (%s) <- %v\n", out.cfg.Name, out.cfg.MediaType, out.producer)
	}
	return b.String()
}

func (g *filterGraph) Close() error {
	if g.closed {
		return types.NewNativeError("avfilter_graph_free", errCodeInvalidArgument, "double free")
	}
	g.closed = true
	g.nodes = nil
	return nil
}

func convertToOutput(frame media.Raw, cfg native.GraphOutput) media.Raw {
	switch frame := frame.(type) {
	case *media.Picture:
		if cfg.PixelFormat == types.PixelFormatNone || cfg.PixelFormat == frame.PixelFormat {
			return frame
		}
		return convertPicture(frame, cfg.PixelFormat)
	case *media.Audio:
		if cfg.SampleFormat != types.SampleFormatNone {
			frame.SampleFormat = cfg.SampleFormat
		}
		if cfg.ChannelLayout.Channels > 0 {
			frame.ChannelLayout = cfg.ChannelLayout
		}
		if cfg.SampleRate > 0 && cfg.SampleRate != frame.SampleRate {
			tempo := &atempo{tempo: float64(frame.SampleRate) / float64(cfg.SampleRate)}
			resampled, _ := tempo.apply([]media.Raw{frame})
			a := resampled.(*media.Audio)
			a.SampleRate = cfg.SampleRate
			a.PTS = frame.PTS
			return a
		}
	}
	return frame
}

// convertPicture converts through the luma plane.
func convertPicture(in *media.Picture, pixFmt types.PixelFormat) *media.Picture {
	luma := make([]byte, in.Width*in.Height)
	if len(in.Planes) > 0 {
		src := in.Planes[0]
		for idx := range luma {
			switch in.PixelFormat {
			case PixelFormatRGB24:
				if idx*3+2 < len(src) {
					luma[idx] = byte((int(src[idx*3]) + int(src[idx*3+1]) + int(src[idx*3+2])) / 3)
				}
			default:
				if idx < len(src) {
					luma[idx] = src[idx]
				}
			}
		}
	}

	out := clonePicture(in)
	out.PixelFormat = pixFmt
	out.Strides = pictureStrides(in.Width, pixFmt)
	geoms := pictureGeometry(in.Width, in.Height, pixFmt)
	out.Planes = make([][]byte, len(geoms))
	for idx, g := range geoms {
		plane := make([]byte, g.width*g.height*g.bpp)
		switch {
		case idx == 0 && g.bpp == 1:
			copy(plane, luma)
		case idx == 0:
			for p := 0; p < g.width*g.height; p++ {
				for k := 0; k < g.bpp; k++ {
					plane[p*g.bpp+k] = luma[p]
				}
			}
		default:
			for p := range plane {
				plane[p] = 128
			}
		}
		out.Planes[idx] = plane
	}
	return out
}
