package global

import (
	"context"
	"testing"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/native/fakeav"
	"github.com/xaionaro-go/avcore/types"
)

type recordingSource struct {
	native.Backend
	handler native.LogHandler
}

func (s *recordingSource) SetLogHandler(h native.LogHandler) {
	s.handler = h
}

func TestLogBridgeDoesNotInit(t *testing.T) {
	ctx := logger.CtxWithLogger(context.Background(), logrus.Default().WithLevel(logger.LevelTrace))
	Deinit(ctx)

	dropped := DroppedLogLines()
	forwardLog(logger.LevelInfo, "test", "before init")
	require.False(t, IsInitialized())
	require.Equal(t, dropped+1, DroppedLogLines())

	src := &recordingSource{Backend: fakeav.New()}
	Init(ctx, src)
	require.True(t, IsInitialized())
	require.NotNil(t, src.handler)

	forwarded := ForwardedLogLines()
	src.handler(logger.LevelDebug, "test", "after init")
	require.Equal(t, forwarded+1, ForwardedLogLines())

	Init(ctx)
	require.True(t, IsInitialized())

	Deinit(ctx)
	require.False(t, IsInitialized())
	require.Nil(t, src.handler)
}

func TestBackendLogsAreForwarded(t *testing.T) {
	ctx := logger.CtxWithLogger(context.Background(), logrus.Default().WithLevel(logger.LevelTrace))
	backend := fakeav.New()
	Init(ctx, backend)
	defer Deinit(ctx)

	forwarded := ForwardedLogLines()
	codec, err := backend.FindDecoderByName(ctx, "rawvideo")
	require.NoError(t, err)
	codecCtx, err := backend.NewCodecContext(ctx, codec, nil)
	require.NoError(t, err)
	require.NoError(t, codecCtx.Open(ctx, types.NewDictionary()))
	require.Greater(t, ForwardedLogLines(), forwarded)
	require.Equal(t, types.NewRational(1, 1000000), DefaultTimeBase())
}

func TestReInitRegistersSourceOnce(t *testing.T) {
	ctx := logger.CtxWithLogger(context.Background(), logrus.Default().WithLevel(logger.LevelTrace))
	src := &recordingSource{Backend: fakeav.New()}
	Init(ctx, src)
	defer Deinit(ctx)
	Init(ctx, src)
	Init(ctx, src, fakeav.New())

	registered := 0
	locker.Do(ctx, func() {
		for _, s := range logSources {
			if s == native.LogSource(src) {
				registered++
			}
		}
	})
	require.Equal(t, 1, registered)

	forwarded := ForwardedLogLines()
	src.handler(logger.LevelInfo, "test", "once")
	require.Equal(t, forwarded+1, ForwardedLogLines())
}
