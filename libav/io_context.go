//go:build with_libav
// +build with_libav

package libav

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcore/native"
)

const defaultIOBufferLength = 32768

// newIOContext makes the native library drive the handler.
func newIOContext(
	handler native.IOHandler,
	bufferLength int,
) (*astiav.IOContext, error) {
	if bufferLength <= 0 {
		bufferLength = defaultIOBufferLength
	}

	var seekFunc astiav.IOContextSeekFunc
	if handler.IsSeekable() {
		seekFunc = func(offset int64, whence int) (int64, error) {
			n := handler.SeekTo(offset, whence)
			if n < 0 {
				return 0, astiav.Error(n)
			}
			return n, nil
		}
	}

	var writeFunc astiav.IOContextWriteFunc
	if handler.IsWritable() {
		writeFunc = func(b []byte) (int, error) {
			n := handler.Write(b)
			if n < 0 {
				return 0, astiav.Error(n)
			}
			return n, nil
		}
	}

	readFunc := func(b []byte) (int, error) {
		n := handler.Read(b)
		switch {
		case n == native.IOEOF:
			return 0, astiav.ErrEof
		case n < 0:
			return 0, astiav.Error(n)
		}
		return n, nil
	}

	ioContext, err := astiav.AllocIOContext(bufferLength, handler.IsWritable(), readFunc, seekFunc, writeFunc)
	if err != nil {
		return nil, wrapError("avio_alloc_context", err)
	}
	return ioContext, nil
}
