package fakeav

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

var fakeMuxOptions = []string{"title", "flush_packets"}

type outputContext struct {
	backend    *Backend
	url        string
	formatName string

	streams  []FixtureStream
	metadata map[string]string
	lastDTS  []int64

	ioHandler    native.IOHandler
	ioOpened     bool
	bufferLength int
	buf          bytes.Buffer
	written      bytes.Buffer

	interleaveQueue []*media.Packet
	headerWritten   bool
	trailerWritten  bool
	closed          bool
}

var _ native.OutputFormatContext = (*outputContext)(nil)

func (b *Backend) NewOutput(
	ctx context.Context,
	outputURL string,
	formatName string,
) (native.OutputFormatContext, error) {
	if formatName == "" {
		formatName = FormatNameFakeMux
	}
	switch formatName {
	case FormatNameFakeMux, FormatNameNull:
	default:
		return nil, types.NewNativeError("avformat_alloc_output_context2", errCodeInvalidArgument,
			fmt.Sprintf("requested output format '%s' is not known", formatName))
	}
	return &outputContext{
		backend:      b,
		url:          outputURL,
		formatName:   formatName,
		metadata:     map[string]string{},
		bufferLength: 32768,
	}, nil
}

func (o *outputContext) FormatName() string {
	return o.formatName
}

func (o *outputContext) URL() string {
	return o.url
}

func (o *outputContext) NeedsFile() bool {
	return o.formatName != FormatNameNull
}

func (o *outputContext) OpenIO(ctx context.Context, ioHandler native.IOHandler, bufferLength int) error {
	if o.ioOpened {
		return types.NewNativeError("avio_open", errCodeInvalidArgument, "already opened")
	}
	if ioHandler != nil && !ioHandler.IsWritable() {
		return types.NewNativeError("avio_open", errCodeInvalidArgument, "the I/O handler is not writable")
	}
	o.ioHandler = ioHandler
	if bufferLength > 0 {
		o.bufferLength = bufferLength
	}
	o.ioOpened = true
	return nil
}

func (o *outputContext) AddStream(ctx context.Context, params types.MediaParameters) (int, error) {
	if o.headerWritten {
		return -1, types.NewNativeError("avformat_new_stream", errCodeInvalidArgument, "the header is already written")
	}
	o.streams = append(o.streams, FixtureStream{
		Parameters: params.Clone(),
		TimeBase:   params.TimeBase,
	})
	o.lastDTS = append(o.lastDTS, types.NoPTS)
	return len(o.streams) - 1, nil
}

func (o *outputContext) NumStreams() int {
	return len(o.streams)
}

func (o *outputContext) StreamTimeBase(idx int) types.Rational {
	return o.streams[idx].TimeBase
}

func (o *outputContext) WriteHeader(ctx context.Context, options *types.Dictionary) error {
	if o.headerWritten {
		return types.NewNativeError("avformat_write_header", errCodeInvalidArgument, "the header is already written")
	}
	if o.NeedsFile() && !o.ioOpened {
		return types.NewNativeError("avformat_write_header", errCodeInvalidArgument, "the I/O context is not opened")
	}
	if len(o.streams) == 0 {
		return types.NewNativeError("avformat_write_header", errCodeInvalidArgument, "no streams to mux were specified")
	}
	if err := consumeOptions(options, fakeMuxOptions, func(key, value string) error {
		o.metadata[key] = value
		return nil
	}); err != nil {
		return err
	}

	// the container stores time stamps in milliseconds
	for idx := range o.streams {
		o.streams[idx].TimeBase = types.NewRational(1, 1000)
		o.streams[idx].Parameters.TimeBase = o.streams[idx].TimeBase
	}
	o.headerWritten = true
	o.backend.log(ctx, logger.LevelDebug, "wrote the header of '%s' with %d streams", o.url, len(o.streams))
	return o.emit(encodeRecord(record{Header: &Fixture{
		Streams:  o.streams,
		Metadata: o.metadata,
	}}))
}

func (o *outputContext) WritePacket(ctx context.Context, pkt *media.Packet, interleave bool) (bool, error) {
	if !o.headerWritten || o.trailerWritten {
		return false, types.NewNativeError("av_write_frame", errCodeInvalidArgument, "the muxer is not writable")
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(o.streams) {
		return false, types.NewNativeError("av_write_frame", errCodeInvalidArgument, fmt.Sprintf("invalid stream index %d", pkt.StreamIndex))
	}

	if !interleave {
		if err := o.writePacket(pkt); err != nil {
			return false, err
		}
		return len(o.interleaveQueue) == 0, nil
	}

	o.interleaveQueue = append(o.interleaveQueue, pkt.Clone())
	if err := o.flushInterleaved(false); err != nil {
		return false, err
	}
	return len(o.interleaveQueue) == 0, nil
}

func (o *outputContext) flushInterleaved(all bool) error {
	for len(o.interleaveQueue) > 0 {
		if !all {
			seen := map[int]struct{}{}
			for _, pkt := range o.interleaveQueue {
				seen[pkt.StreamIndex] = struct{}{}
			}
			if len(seen) < len(o.streams) {
				return nil
			}
		}
		idx := 0
		for i, pkt := range o.interleaveQueue {
			if packetTime(pkt) < packetTime(o.interleaveQueue[idx]) {
				idx = i
			}
		}
		pkt := o.interleaveQueue[idx]
		o.interleaveQueue = slices.Delete(o.interleaveQueue, idx, idx+1)
		if err := o.writePacket(pkt); err != nil {
			return err
		}
	}
	return nil
}

func packetTime(pkt *media.Packet) int64 {
	ts := pkt.DTS
	if ts == types.NoPTS {
		ts = pkt.PTS
	}
	return types.Rescale(ts, pkt.TimeBase, types.DefaultTimeBase())
}

func (o *outputContext) writePacket(pkt *media.Packet) error {
	if pkt.DTS != types.NoPTS {
		last := o.lastDTS[pkt.StreamIndex]
		if last != types.NoPTS && pkt.DTS < last {
			return types.NewNativeError("av_write_frame", errCodeInvalidArgument,
				fmt.Sprintf("application provided invalid, non monotonically increasing dts to muxer in stream %d: %d >= %d", pkt.StreamIndex, last, pkt.DTS))
		}
		o.lastDTS[pkt.StreamIndex] = pkt.DTS
	}
	return o.emit(encodeRecord(record{Packet: &packetRecord{
		Stream:   pkt.StreamIndex,
		PTS:      pkt.PTS,
		DTS:      pkt.DTS,
		Duration: pkt.Duration,
		Key:      pkt.Key,
		Data:     pkt.Data,
	}}))
}

func (o *outputContext) emit(b []byte) error {
	if !o.NeedsFile() {
		return nil
	}
	o.buf.Write(b)
	if o.buf.Len() >= o.bufferLength {
		return o.flushBuffer()
	}
	return nil
}

func (o *outputContext) flushBuffer() error {
	if o.buf.Len() == 0 {
		return nil
	}
	data := o.buf.Bytes()
	if o.ioHandler != nil {
		for len(data) > 0 {
			n := o.ioHandler.Write(data)
			if n < 0 {
				o.buf.Reset()
				return types.NewNativeError("avio_write", n, "I/O error")
			}
			if n == 0 {
				return types.NewNativeError("avio_write", -5, "short write")
			}
			data = data[n:]
		}
	} else {
		o.written.Write(data)
	}
	o.buf.Reset()
	return nil
}

func (o *outputContext) WriteTrailer(ctx context.Context) error {
	if !o.headerWritten || o.trailerWritten {
		return types.NewNativeError("av_write_trailer", errCodeInvalidArgument, "the muxer is not writable")
	}
	o.trailerWritten = true
	if err := o.flushInterleaved(true); err != nil {
		return err
	}
	if err := o.emit(encodeRecord(record{Trailer: true})); err != nil {
		return err
	}
	return o.flushBuffer()
}

func (o *outputContext) Close() error {
	if o.closed {
		return types.NewNativeError("avio_closep", errCodeInvalidArgument, "double free")
	}
	o.closed = true
	if !o.ioOpened {
		return nil
	}
	if err := o.flushBuffer(); err != nil {
		return err
	}
	if o.ioHandler != nil {
		if r := o.ioHandler.Close(); r < 0 {
			return types.NewNativeError("avio_closep", r, "unable to close the I/O handler")
		}
		return nil
	}
	o.backend.store(context.Background(), o.url, o.written.Bytes())
	return nil
}
