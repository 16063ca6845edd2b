//go:build with_libav
// +build with_libav

// Package libav implements the native backend on top of FFmpeg through
// go-astiav.
package libav

import (
	"context"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/xsync"
)

type Backend struct {
	locker     xsync.Mutex
	logHandler native.LogHandler
}

var (
	_ native.Backend   = (*Backend)(nil)
	_ native.LogSource = (*Backend)(nil)
)

func New(ctx context.Context) (native.Backend, error) {
	b := &Backend{}
	astiav.SetLogLevel(astiav.LogLevelInfo)
	astiav.SetLogCallback(b.onLog)
	logger.Debugf(ctx, "initialized the libav backend")
	return b, nil
}

func (*Backend) Name() string {
	return "libav"
}

func (b *Backend) SetLogHandler(handler native.LogHandler) {
	b.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		b.logHandler = handler
	})
}

func (b *Backend) onLog(c astiav.Classer, l astiav.LogLevel, _, msg string) {
	handler := xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &b.locker, func() native.LogHandler {
		return b.logHandler
	})
	if handler == nil {
		return
	}
	component := "libav"
	if c != nil {
		if class := c.Class(); class != nil {
			component = class.Name()
		}
	}
	handler(logLevelFromAstiav(l), component, strings.TrimRight(msg, "\n"))
}

func logLevelFromAstiav(l astiav.LogLevel) logger.Level {
	switch {
	case l <= astiav.LogLevelFatal:
		return logger.LevelFatal
	case l <= astiav.LogLevelError:
		return logger.LevelError
	case l <= astiav.LogLevelWarning:
		return logger.LevelWarning
	case l <= astiav.LogLevelInfo:
		return logger.LevelInfo
	case l <= astiav.LogLevelDebug:
		return logger.LevelDebug
	}
	return logger.LevelTrace
}

func (b *Backend) FindDecoder(ctx context.Context, codecID types.CodecID) (native.Codec, error) {
	return wrapCodec(astiav.FindDecoder(astiav.CodecID(codecID)), fmt.Sprintf("decoder for codec ID %d", codecID))
}

func (b *Backend) FindEncoder(ctx context.Context, codecID types.CodecID) (native.Codec, error) {
	return wrapCodec(astiav.FindEncoder(astiav.CodecID(codecID)), fmt.Sprintf("encoder for codec ID %d", codecID))
}

func (b *Backend) FindDecoderByName(ctx context.Context, name string) (native.Codec, error) {
	return wrapCodec(astiav.FindDecoderByName(name), fmt.Sprintf("decoder '%s'", name))
}

func (b *Backend) FindEncoderByName(ctx context.Context, name string) (native.Codec, error) {
	return wrapCodec(astiav.FindEncoderByName(name), fmt.Sprintf("encoder '%s'", name))
}

func (b *Backend) NewCodecContext(
	ctx context.Context,
	codec native.Codec,
	allocator native.BufferAllocator,
) (native.CodecContext, error) {
	c, ok := codec.(*Codec)
	if !ok {
		return nil, types.InvalidArgumentf("codec %T does not belong to the libav backend", codec)
	}
	return newCodecContext(ctx, c, allocator)
}

func (b *Backend) OpenInput(
	ctx context.Context,
	url string,
	formatName string,
	ioHandler native.IOHandler,
	options *types.Dictionary,
) (native.InputFormatContext, error) {
	return openInput(ctx, url, formatName, ioHandler, options)
}

func (b *Backend) NewOutput(
	ctx context.Context,
	url string,
	formatName string,
) (native.OutputFormatContext, error) {
	return newOutput(ctx, url, formatName)
}

func (b *Backend) NewFilterGraph(ctx context.Context) (native.FilterGraph, error) {
	return newFilterGraph(ctx)
}
