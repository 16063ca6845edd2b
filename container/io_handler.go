package container

import (
	"context"
	"errors"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/native"
)

// IOHandlerAdapter exposes Go streams to the native library. Every error
// and panic is converted into a negative return value, because nothing
// richer can cross that boundary.
type IOHandlerAdapter struct {
	ctx    context.Context
	reader io.Reader
	writer io.Writer
	seeker io.Seeker
	closer io.Closer

	lastErr error
}

var _ native.IOHandler = (*IOHandlerAdapter)(nil)

// NewIOHandlerAdapter uses rw as a reader, writer, seeker and closer
// depending on which of the interfaces it implements.
func NewIOHandlerAdapter(ctx context.Context, rw any) *IOHandlerAdapter {
	h := &IOHandlerAdapter{ctx: ctx}
	h.reader, _ = rw.(io.Reader)
	h.writer, _ = rw.(io.Writer)
	h.seeker, _ = rw.(io.Seeker)
	h.closer, _ = rw.(io.Closer)
	return h
}

// LastError returns the last error hidden behind a negative return value.
func (h *IOHandlerAdapter) LastError() error {
	return h.lastErr
}

func (h *IOHandlerAdapter) recoverPanic(result *int64) {
	r := recover()
	if r == nil {
		return
	}
	logger.Errorf(h.ctx, "got panic in an I/O callback: %v", r)
	h.lastErr = errors.New("panic in an I/O callback")
	*result = -1
}

func (h *IOHandlerAdapter) setErr(err error) {
	logger.Debugf(h.ctx, "I/O callback failed: %v", err)
	h.lastErr = err
}

func (h *IOHandlerAdapter) Read(buf []byte) (_ret int) {
	var result int64
	defer func() { _ret = int(result) }()
	defer h.recoverPanic(&result)

	if h.reader == nil {
		result = -1
		return
	}
	n, err := h.reader.Read(buf)
	switch {
	case n > 0:
		result = int64(n)
	case errors.Is(err, io.EOF):
		result = native.IOEOF
	case err != nil:
		h.setErr(err)
		result = -1
	}
	return
}

func (h *IOHandlerAdapter) Write(buf []byte) (_ret int) {
	var result int64
	defer func() { _ret = int(result) }()
	defer h.recoverPanic(&result)

	if h.writer == nil {
		result = -1
		return
	}
	n, err := h.writer.Write(buf)
	if err != nil {
		h.setErr(err)
		result = -1
		return
	}
	result = int64(n)
	return
}

func (h *IOHandlerAdapter) SeekTo(offset int64, whence int) (_ret int64) {
	defer h.recoverPanic(&_ret)

	if h.seeker == nil {
		return -1
	}
	if whence == native.SeekSize {
		cur, err := h.seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			h.setErr(err)
			return -1
		}
		size, err := h.seeker.Seek(0, io.SeekEnd)
		if err != nil {
			h.setErr(err)
			return -1
		}
		if _, err := h.seeker.Seek(cur, io.SeekStart); err != nil {
			h.setErr(err)
			return -1
		}
		return size
	}
	pos, err := h.seeker.Seek(offset, whence)
	if err != nil {
		h.setErr(err)
		return -1
	}
	return pos
}

func (h *IOHandlerAdapter) IsWritable() bool {
	return h.writer != nil
}

func (h *IOHandlerAdapter) IsSeekable() bool {
	return h.seeker != nil
}

func (h *IOHandlerAdapter) Close() (_ret int) {
	var result int64
	defer func() { _ret = int(result) }()
	defer h.recoverPanic(&result)

	if h.closer == nil {
		return
	}
	if err := h.closer.Close(); err != nil {
		h.setErr(err)
		result = -1
	}
	return
}
