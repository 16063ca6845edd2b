package container

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/avcore/coder"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/xcontext"
)

const defaultOutputBufferLength = 32768

type MuxerState int

const (
	MuxerStateInited = MuxerState(iota)
	MuxerStateOpened
	MuxerStateClosed
	MuxerStateError
)

func (s MuxerState) String() string {
	switch s {
	case MuxerStateInited:
		return "INITED"
	case MuxerStateOpened:
		return "OPENED"
	case MuxerStateClosed:
		return "CLOSED"
	case MuxerStateError:
		return "ERROR"
	}
	return fmt.Sprintf("unexpected_muxer_state_%d", int(s))
}

type MuxerConfig struct {
	// FormatName forces the output format; empty means guessing it
	// from the URL.
	FormatName string

	// StreamKey is appended to the URL path.
	StreamKey secret.String

	// IOHandler replaces the URL as the byte sink if set.
	IOHandler native.IOHandler
}

type MuxerStatistics struct {
	PacketsWritten uint64
	BytesWritten   uint64
}

// Muxer is a write container. Close must be called explicitly: the
// trailer is never written implicitly.
type Muxer struct {
	*Container
	url          string
	cfg          MuxerConfig
	state        MuxerState
	bufferLength int
	released     bool

	packetsWritten atomic.Uint64
	bytesWritten   atomic.Uint64
}

func NewMuxer(
	ctx context.Context,
	backend native.Backend,
	url string,
	cfg MuxerConfig,
) (_ret *Muxer, _err error) {
	logger.Debugf(ctx, "NewMuxer(ctx, '%s', '%s')", url, cfg.FormatName)
	defer func() { logger.Debugf(ctx, "/NewMuxer(ctx, '%s', '%s'): %v", url, cfg.FormatName, _err) }()

	formatName := cfg.FormatName
	fullURL := url
	if cfg.IOHandler == nil {
		var (
			guessedFormat string
			err           error
		)
		fullURL, guessedFormat, err = buildOutputURL(url, cfg.StreamKey)
		if err != nil {
			return nil, types.InvalidArgumentf("%v", err)
		}
		if formatName == "" {
			formatName = guessedFormat
		}
	}

	output, err := backend.NewOutput(ctx, fullURL, formatName)
	if err != nil {
		return nil, fmt.Errorf("allocating output format context failed using URL '%s': %w", url, err)
	}
	m := &Muxer{
		Container:    newWriteContainer(backend, output),
		url:          url,
		cfg:          cfg,
		bufferLength: defaultOutputBufferLength,
	}
	m.closer.AddWithError(output.Close)
	return m, nil
}

func (m *Muxer) String() string {
	return fmt.Sprintf("muxer '%s' (%s, %s)", m.url, m.FormatName(), m.state)
}

// URL is the URL as it was passed, without the stream key.
func (m *Muxer) URL() string {
	return m.url
}

func (m *Muxer) State() MuxerState {
	return m.state
}

func (m *Muxer) setState(ctx context.Context, state MuxerState) {
	logger.Tracef(ctx, "muxer '%s': state %s -> %s", m.url, m.state, state)
	m.state = state
}

func (m *Muxer) fail(ctx context.Context, err error) error {
	logger.Debugf(ctx, "muxer '%s' failed: %v", m.url, err)
	m.setState(ctx, MuxerStateError)
	return err
}

func (m *Muxer) checkState(op string, expected MuxerState) error {
	if m.state != expected {
		return types.InvalidStatef("%s is allowed only in state %s, but the muxer is %s", op, expected, m.state)
	}
	return nil
}

// SetOutputBufferLength sets the size of the I/O buffer used once the
// muxer is opened.
func (m *Muxer) SetOutputBufferLength(size int) error {
	if err := m.checkState("SetOutputBufferLength", MuxerStateInited); err != nil {
		return err
	}
	if size <= 0 {
		return types.InvalidArgumentf("the buffer length must be positive, but is %d", size)
	}
	m.bufferLength = size
	return nil
}

func (m *Muxer) OutputBufferLength() int {
	return m.bufferLength
}

// AddNewStream registers an output stream configured from an opened
// coder. Most formats do not allow adding streams once the header is
// written, so it is allowed only before Open.
func (m *Muxer) AddNewStream(
	ctx context.Context,
	c *coder.Coder,
) (_ret *Stream, _err error) {
	logger.Debugf(ctx, "AddNewStream(ctx, %s)", c)
	defer func() { logger.Debugf(ctx, "/AddNewStream(ctx, %s): %v", c, _err) }()

	if err := m.checkState("AddNewStream", MuxerStateInited); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, types.InvalidArgumentf("the coder is nil")
	}
	switch c.State() {
	case coder.StateOpened, coder.StateFlushing:
	default:
		return nil, types.InvalidArgumentf("the coder %s is not opened", c)
	}

	params := c.MediaParameters()
	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(ctx, "output stream parameters: %s", spew.Sdump(params))
	}
	idx, err := m.output.AddStream(ctx, params)
	if err != nil {
		return nil, m.fail(ctx, fmt.Errorf("unable to add a new output stream: %w", err))
	}

	m.discover(ctx)
	s := m.streams[idx]
	s.coder = c
	return s, nil
}

// Open opens the I/O (unless the format handles it itself) and writes the
// header. Options not recognized are copied into unsetOptionsOut if it is
// not nil.
func (m *Muxer) Open(
	ctx context.Context,
	inputOptions *types.Dictionary,
	unsetOptionsOut *types.Dictionary,
) (_err error) {
	logger.Debugf(ctx, "Open(ctx, '%s'): %s", inputOptions, m)
	defer func() { logger.Debugf(ctx, "/Open(ctx, '%s'): %s: %v", inputOptions, m, _err) }()

	if err := m.checkState("Open", MuxerStateInited); err != nil {
		return err
	}

	options := inputOptions.Clone()
	defer options.Reset()

	if m.output.NeedsFile() {
		if err := m.output.OpenIO(ctx, m.cfg.IOHandler, m.bufferLength); err != nil {
			return m.fail(ctx, fmt.Errorf("unable to open the I/O context (URL: '%s'): %w", m.url, err))
		}
	}
	if err := m.output.WriteHeader(ctx, options); err != nil {
		return m.fail(ctx, fmt.Errorf("unable to write the header: %w", err))
	}
	if unsetOptionsOut != nil {
		unsetOptionsOut.CopyFrom(options)
	}
	m.setState(ctx, MuxerStateOpened)
	return nil
}

// Write writes the packet into the stream of the same index. The packet
// itself is not modified: the time stamps are rebased on a copy.
// The returned value reports if all the buffered data was flushed.
func (m *Muxer) Write(
	ctx context.Context,
	pkt *media.Packet,
	forceInterleave bool,
) (_ret bool, _err error) {
	logger.Tracef(ctx, "Write(ctx, %v, %t)", pkt, forceInterleave)
	defer func() { logger.Tracef(ctx, "/Write(ctx, %v, %t): %t %v", pkt, forceInterleave, _ret, _err) }()

	if err := m.checkState("Write", MuxerStateOpened); err != nil {
		return false, err
	}
	if pkt == nil {
		return false, types.InvalidArgumentf("the packet is nil")
	}
	if !pkt.IsComplete() {
		return false, types.InvalidArgumentf("the packet is not complete")
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return false, types.InvalidArgumentf("stream index %d is out of range [0, %d)", pkt.StreamIndex, len(m.streams))
	}

	stream := m.streams[pkt.StreamIndex]
	out, err := m.stampOutputPacket(ctx, stream, pkt)
	if err != nil {
		return false, err
	}

	flushed, err := m.output.WritePacket(ctx, out, forceInterleave)
	if err != nil {
		return false, m.fail(ctx, fmt.Errorf("unable to write the packet into %s: %w", stream, err))
	}
	m.packetsWritten.Add(1)
	m.bytesWritten.Add(uint64(out.Size()))
	return flushed, nil
}

// stampOutputPacket returns a copy of pkt rebased into the time base of
// the output stream.
func (m *Muxer) stampOutputPacket(
	ctx context.Context,
	stream *Stream,
	pkt *media.Packet,
) (*media.Packet, error) {
	out := *pkt
	if !out.TimeBase.IsValid() {
		c, err := stream.Coder(ctx)
		if err != nil {
			return nil, m.fail(ctx, err)
		}
		out.TimeBase = c.TimeBase()
	}
	out.RescaleTimeStamps(stream.TimeBase())
	return &out, nil
}

func (m *Muxer) Statistics() MuxerStatistics {
	return MuxerStatistics{
		PacketsWritten: m.packetsWritten.Load(),
		BytesWritten:   m.bytesWritten.Load(),
	}
}

// Close writes the trailer (if the muxer was opened) and releases every
// resource. A second call returns an error without touching the I/O.
func (m *Muxer) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close(ctx): %s", m)
	defer func() { logger.Debugf(ctx, "/Close(ctx): %s: %v", m, _err) }()

	if m.released {
		return types.InvalidStatef("the muxer is already closed")
	}

	// the trailer has to be written even if the caller gave up
	ctx = xcontext.DetachDone(ctx)

	var result *multierror.Error
	wasOpened := m.state == MuxerStateOpened
	if wasOpened {
		if err := m.output.WriteTrailer(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to write the trailer: %w", err))
		}
	}

	m.released = true
	if err := m.closer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to release the output: %w", err))
	}

	err := result.ErrorOrNil()
	switch {
	case err != nil:
		return m.fail(ctx, err)
	case m.state != MuxerStateError:
		m.setState(ctx, MuxerStateClosed)
	}
	return nil
}
