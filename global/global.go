// Package global keeps the process-wide state shared by every backend:
// the one-shot initialization guard and the bridge forwarding the native
// library log into go-belt.
package global

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/xsync"
)

var (
	initialized    atomic.Bool
	locker         xsync.Mutex
	bridgeLogger   logger.Logger
	logSources     []native.LogSource
	forwardedLines atomic.Uint64
	droppedLines   atomic.Uint64
)

// Init sets up the process-wide state on the first call and attaches the
// log bridge to the given backends on every call.
func Init(ctx context.Context, backends ...native.Backend) {
	if initialized.CompareAndSwap(false, true) {
		logger.Debugf(ctx, "initializing")
	}
	locker.Do(ctx, func() {
		bridgeLogger = logger.FromCtx(ctx)
	})
	for _, backend := range backends {
		src, ok := backend.(native.LogSource)
		if !ok {
			logger.Tracef(ctx, "backend %s does not emit logs", backend.Name())
			continue
		}
		locker.Do(ctx, func() {
			if !slices.Contains(logSources, src) {
				logSources = append(logSources, src)
			}
		})
		src.SetLogHandler(forwardLog)
	}
}

// Deinit detaches the log bridge; a following Init starts over.
func Deinit(ctx context.Context) {
	if !initialized.CompareAndSwap(true, false) {
		return
	}
	logger.Debugf(ctx, "deinitializing")
	sources := xsync.DoR1(ctx, &locker, func() []native.LogSource {
		sources := logSources
		logSources = nil
		bridgeLogger = nil
		return sources
	})
	for _, src := range sources {
		src.SetLogHandler(nil)
	}
}

func IsInitialized() bool {
	return initialized.Load()
}

// DefaultTimeBase is the time base used where none is configured.
func DefaultTimeBase() types.Rational {
	return types.DefaultTimeBase()
}

// ForwardedLogLines is the amount of native log lines passed to the logger.
func ForwardedLogLines() uint64 {
	return forwardedLines.Load()
}

// DroppedLogLines is the amount of native log lines received while the
// bridge had no logger.
func DroppedLogLines() uint64 {
	return droppedLines.Load()
}

// forwardLog may be called from any thread of the native library; it must
// never call Init.
func forwardLog(level logger.Level, component string, message string) {
	ctx := xsync.WithNoLogging(context.Background(), true)
	l := xsync.DoR1(ctx, &locker, func() logger.Logger {
		return bridgeLogger
	})
	if l == nil || !initialized.Load() {
		droppedLines.Add(1)
		return
	}
	forwardedLines.Add(1)
	l.Logf(level, "[%s] %s", component, message)
}
