package internal

import (
	"context"
	"runtime"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// SetFinalizer calls release once obj becomes unreachable.
func SetFinalizer[T any](
	ctx context.Context,
	obj T,
	release func(in T),
) {
	runtime.SetFinalizer(obj, func(obj T) {
		logger.Debugf(ctx, "finalizing %T", obj)
		release(obj)
	})
}
