package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore"
	"github.com/xaionaro-go/avcore/native/fakeav"
	"github.com/xaionaro-go/avcore/pipeline"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input:
  url: fake://synthetic?video=2&audio=2
output:
  url: mem://from-file
  format: fakemux
video:
  codec: h264
`), 0o644))

	cfg, err := loadConfig(path, nil)
	require.NoError(t, err)
	require.Equal(t, "mem://from-file", cfg.Output.URL)
	require.Equal(t, "fakemux", cfg.Output.Format)
	require.Equal(t, avcore.VideoCodecH264, cfg.Video.Codec)

	cfg, err = loadConfig(path, []string{"in", "out"})
	require.NoError(t, err)
	require.Equal(t, "in", cfg.Input.URL)
	require.Equal(t, "out", cfg.Output.URL)
	require.Equal(t, "fakemux", cfg.Output.Format)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := newBackend(ctx, backendNameFake)
	require.NoError(t, err)
	require.IsType(t, &fakeav.Backend{}, backend)

	_, err = newBackend(ctx, "gstreamer")
	require.Error(t, err)
}

func TestRemuxWithFakeBackend(t *testing.T) {
	ctx := context.Background()
	cfg, err := loadConfig("", []string{"fake://synthetic?video=3&audio=3", "mem://remuxed"})
	require.NoError(t, err)
	chainCfg, err := cfg.Convert()
	require.NoError(t, err)

	backend, err := newBackend(ctx, backendNameFake)
	require.NoError(t, err)
	stats, err := pipeline.Transcode(ctx, backend, cfg.Input.URL, cfg.Output.URL, chainCfg)
	require.NoError(t, err)
	require.Equal(t, uint64(3), stats.PacketsWrote.Video)
	require.Equal(t, uint64(3), stats.PacketsWrote.Audio)

	_, ok := backend.(*fakeav.Backend).Stored("mem://remuxed")
	require.True(t, ok)
}
