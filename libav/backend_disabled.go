//go:build !with_libav
// +build !with_libav

package libav

import (
	"context"
	"errors"

	"github.com/xaionaro-go/avcore/native"
)

// ErrNotCompiledIn is returned when the binary is built without the
// with_libav tag.
var ErrNotCompiledIn = errors.New("the libav backend is not compiled in, rebuild with '-tags with_libav'")

func New(ctx context.Context) (native.Backend, error) {
	return nil, ErrNotCompiledIn
}
