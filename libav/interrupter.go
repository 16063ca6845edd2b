//go:build with_libav
// +build with_libav

package libav

import (
	"context"

	"github.com/asticode/go-astiav"
)

// interruptible arms the interrupter for the duration of a blocking call:
// cancelling ctx aborts the native I/O in progress.
func interruptible(ctx context.Context, interrupter *astiav.IOInterrupter) (stop func()) {
	interrupter.Resume()
	if ctx.Err() != nil {
		interrupter.Interrupt()
	}
	stopAfter := context.AfterFunc(ctx, interrupter.Interrupt)
	return func() { stopAfter() }
}
