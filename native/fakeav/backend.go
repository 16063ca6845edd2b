// Package fakeav is a deterministic in-memory implementation of the native
// backend. It understands a handful of trivial codecs, an in-memory
// container format and a small filter language subset.
package fakeav

import (
	"bytes"
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/xsync"
)

const (
	FormatNameFakeMux = "fakemux"
	FormatNameNull    = "null"
)

type Backend struct {
	locker     xsync.Mutex
	fixtures   map[string]*Fixture
	storage    map[string][]byte
	logHandler native.LogHandler
}

var (
	_ native.Backend   = (*Backend)(nil)
	_ native.LogSource = (*Backend)(nil)
)

func New() *Backend {
	return &Backend{
		fixtures: map[string]*Fixture{},
		storage:  map[string][]byte{},
	}
}

func (*Backend) Name() string {
	return "fakeav"
}

func (b *Backend) SetLogHandler(handler native.LogHandler) {
	b.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		b.logHandler = handler
	})
}

func (b *Backend) log(ctx context.Context, level logger.Level, format string, args ...any) {
	handler := xsync.DoR1(xsync.WithNoLogging(ctx, true), &b.locker, func() native.LogHandler {
		return b.logHandler
	})
	if handler == nil {
		return
	}
	handler(level, "fakeav", fmt.Sprintf(format, args...))
}

// RegisterFixture makes the fixture readable by OpenInput at the given URL.
func (b *Backend) RegisterFixture(url string, fixture *Fixture) {
	b.locker.Do(context.Background(), func() {
		b.fixtures[url] = fixture
	})
}

// Stored returns the bytes written by a muxer into the given URL.
func (b *Backend) Stored(url string) ([]byte, bool) {
	return xsync.DoR2(context.Background(), &b.locker, func() ([]byte, bool) {
		data, ok := b.storage[url]
		return bytes.Clone(data), ok
	})
}

func (b *Backend) store(ctx context.Context, url string, data []byte) {
	b.locker.Do(ctx, func() {
		b.storage[url] = bytes.Clone(data)
	})
}

func (b *Backend) FindDecoder(ctx context.Context, codecID types.CodecID) (native.Codec, error) {
	return findCodec(func(c *Codec) bool { return c.id == codecID && !c.encoder })
}

func (b *Backend) FindEncoder(ctx context.Context, codecID types.CodecID) (native.Codec, error) {
	return findCodec(func(c *Codec) bool { return c.id == codecID && c.encoder })
}

func (b *Backend) FindDecoderByName(ctx context.Context, name string) (native.Codec, error) {
	return findCodec(func(c *Codec) bool { return c.name == name && !c.encoder })
}

func (b *Backend) FindEncoderByName(ctx context.Context, name string) (native.Codec, error) {
	return findCodec(func(c *Codec) bool { return c.name == name && c.encoder })
}

func (b *Backend) NewCodecContext(
	ctx context.Context,
	codec native.Codec,
	allocator native.BufferAllocator,
) (native.CodecContext, error) {
	c, ok := codec.(*Codec)
	if !ok {
		return nil, types.InvalidArgumentf("codec %T does not belong to the fakeav backend", codec)
	}
	if allocator == nil {
		allocator = native.DefaultBufferAllocator{}
	}
	b.log(ctx, logger.LevelTrace, "allocating a context for %s", c.name)
	return newCodecContext(b, c, allocator), nil
}

func (b *Backend) NewFilterGraph(ctx context.Context) (native.FilterGraph, error) {
	return newFilterGraph(b), nil
}
