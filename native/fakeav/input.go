package fakeav

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
)

// SyntheticScheme makes OpenInput generate a fixture from the URL query:
// fake://synthetic?video=N&audio=M
const SyntheticScheme = "fake"

var genericInputOptions = []string{"probesize", "analyzeduration", "fflags"}

type inputContext struct {
	backend   *Backend
	fixture   *Fixture
	readCount int
	closed    bool
}

var _ native.InputFormatContext = (*inputContext)(nil)

func (b *Backend) OpenInput(
	ctx context.Context,
	inputURL string,
	formatName string,
	ioHandler native.IOHandler,
	options *types.Dictionary,
) (native.InputFormatContext, error) {
	if formatName != "" && formatName != FormatNameFakeMux {
		return nil, types.NewNativeError("avformat_open_input", errCodeInvalidArgument,
			fmt.Sprintf("unknown input format '%s'", formatName))
	}
	if err := consumeOptions(options, genericInputOptions, func(key, value string) error { return nil }); err != nil {
		return nil, err
	}

	fixture, err := b.loadFixture(ctx, inputURL, ioHandler)
	if err != nil {
		return nil, err
	}
	b.log(ctx, logger.LevelDebug, "opened input '%s': %d streams, %d packets", inputURL, len(fixture.Streams), len(fixture.Packets))
	return &inputContext{
		backend: b,
		fixture: fixture,
	}, nil
}

func (b *Backend) loadFixture(
	ctx context.Context,
	inputURL string,
	ioHandler native.IOHandler,
) (*Fixture, error) {
	if ioHandler != nil {
		data, err := readAll(ioHandler)
		if err != nil {
			return nil, err
		}
		fixture, err := ParseContainer(data)
		if err != nil {
			return nil, types.NewNativeError("avformat_open_input", errCodeInvalidData, err.Error())
		}
		return fixture, nil
	}

	var (
		fixture *Fixture
		stored  []byte
	)
	b.locker.Do(ctx, func() {
		fixture = b.fixtures[inputURL]
		stored = b.storage[inputURL]
	})
	switch {
	case fixture != nil:
		return fixture.clone(), nil
	case stored != nil:
		fixture, err := ParseContainer(stored)
		if err != nil {
			return nil, types.NewNativeError("avformat_open_input", errCodeInvalidData, err.Error())
		}
		return fixture, nil
	case strings.HasPrefix(inputURL, SyntheticScheme+"://"):
		u, err := url.Parse(inputURL)
		if err != nil {
			return nil, types.NewNativeError("avformat_open_input", errCodeInvalidArgument, err.Error())
		}
		video, _ := strconv.Atoi(u.Query().Get("video"))
		audio, _ := strconv.Atoi(u.Query().Get("audio"))
		return NewSyntheticFixture(video, audio), nil
	}
	return nil, types.NewNativeError("avformat_open_input", -2, fmt.Sprintf("'%s': no such file or directory", inputURL))
}

func readAll(h native.IOHandler) ([]byte, error) {
	var (
		result []byte
		buf    = make([]byte, 4096)
	)
	for {
		n := h.Read(buf)
		switch {
		case n == native.IOEOF || n == 0:
			return result, nil
		case n < 0:
			return nil, types.NewNativeError("avio_read", n, "I/O error")
		}
		result = append(result, buf[:n]...)
	}
}

func (i *inputContext) FormatName() string {
	return FormatNameFakeMux
}

func (i *inputContext) FindStreamInfo(ctx context.Context) error {
	if i.closed {
		return types.NewNativeError("avformat_find_stream_info", errCodeInvalidArgument, "closed")
	}
	return nil
}

func (i *inputContext) NumStreams() int {
	count := 0
	for _, s := range i.fixture.Streams {
		if s.AppearsAfter > i.readCount {
			break
		}
		count++
	}
	return count
}

func (i *inputContext) StreamInfo(idx int) native.StreamInfo {
	s := i.fixture.Streams[idx]
	return native.StreamInfo{
		Parameters: s.Parameters.Clone(),
		TimeBase:   s.TimeBase,
	}
}

func (i *inputContext) ReadPacket(ctx context.Context, pkt *media.Packet) error {
	if i.closed {
		return types.NewNativeError("av_read_frame", errCodeInvalidArgument, "closed")
	}
	if err := ctx.Err(); err != nil {
		return types.NewNativeError("av_read_frame", -1414092869, "immediate exit requested")
	}
	if i.readCount >= len(i.fixture.Packets) {
		return native.ErrEOF
	}
	src := i.fixture.Packets[i.readCount]
	i.readCount++

	data := append(pkt.Data[:0], src.Data...)
	*pkt = *src
	pkt.Data = data
	pkt.TimeBase = i.fixture.Streams[src.StreamIndex].TimeBase
	pkt.Complete = true
	return nil
}

func (i *inputContext) Close() error {
	if i.closed {
		return types.NewNativeError("avformat_close_input", errCodeInvalidArgument, "double free")
	}
	i.closed = true
	return nil
}
