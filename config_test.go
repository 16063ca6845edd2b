package avcore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcore/pipeline"
	"github.com/xaionaro-go/avcore/types"
)

func TestConfigMarshalUnmarshal(t *testing.T) {
	cfg := &PipelineConfig{
		Input: InputConfig{
			URL: "rtmp://127.0.0.1:1935/live/in",
			CustomOptions: CustomOptions{
				{Key: "probesize", Value: "32"},
			},
		},
		Output: OutputConfig{
			URL:       "rtmp://example.org/live/",
			Format:    "flv",
			StreamKey: "abc",
		},
		Video: EncodeVideoConfig{
			Codec:   VideoCodecH264,
			Quality: ptr(VideoQualityConstantBitrate(2)),
			Filter:  "hflip",
			Width:   1280,
			Height:  720,
			CustomOptions: CustomOptions{
				{Key: "preset", Value: "veryfast"},
			},
		},
		Audio: EncodeAudioConfig{
			Codec:   AudioCodecCopy,
			Quality: ptr(AudioQualityConstantBitrate(2)),
		},
		Throttle: pipeline.ThrottleConfig{
			AverageBitRate:         1000000,
			BitrateAveragingPeriod: 5 * time.Second,
		},
		ForceInterleave: true,
	}

	b, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	defer func() {
		r := recover()
		if r != nil {
			require.Nil(t, r, string(b))
		}
	}()

	var cfgDup PipelineConfig
	err = yaml.Unmarshal(b, &cfgDup)
	require.NoError(t, err, string(b))

	require.Equal(t, cfg, &cfgDup)
}

func TestConfigUnmarshalYAML(t *testing.T) {
	var cfg PipelineConfig
	err := yaml.Unmarshal([]byte(`
input:
  url: fake://synthetic?video=5&audio=10
output:
  url: mem://out
video:
  codec: H264
  quality:
    type: constant_quality
    quality: 23
audio:
  codec: aac
  sample_rate: 48000
  quality:
    type: constant_bitrate
    bitrate: 128000
`), &cfg)
	require.NoError(t, err)

	require.Equal(t, VideoCodecH264, cfg.Video.Codec)
	require.Equal(t, ptr(VideoQualityConstantQuality(23)), cfg.Video.Quality)
	require.Equal(t, AudioCodecAAC, cfg.Audio.Codec)
	require.Equal(t, 48000, cfg.Audio.SampleRate)
	require.Equal(t, ptr(AudioQualityConstantBitrate(128000)), cfg.Audio.Quality)
}

func TestConfigUnmarshalJSON(t *testing.T) {
	var cfg PipelineConfig
	err := json.Unmarshal([]byte(`{
		"input": {"url": "a"},
		"output": {"url": "b"},
		"video": {"codec": "hevc", "quality": {"type": "constant_bitrate", "bitrate": 3000000}},
		"audio": {"codec": "opus"}
	}`), &cfg)
	require.NoError(t, err)
	require.Equal(t, VideoCodecHEVC, cfg.Video.Codec)
	require.Equal(t, ptr(VideoQualityConstantBitrate(3000000)), cfg.Video.Quality)
	require.Equal(t, AudioCodecOpus, cfg.Audio.Codec)
	require.Nil(t, cfg.Audio.Quality)

	b, err := json.Marshal(cfg.Video)
	require.NoError(t, err)
	var video EncodeVideoConfig
	require.NoError(t, json.Unmarshal(b, &video))
	require.Equal(t, cfg.Video, video)
}

func TestConfigUnmarshalErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown codec":   "video:\n  codec: mpeg1\n",
		"unknown quality": "video:\n  codec: h264\n  quality:\n    type: magic\n",
		"bad bitrate":     "audio:\n  codec: aac\n  quality:\n    type: constant_bitrate\n    bitrate: loud\n",
	} {
		t.Run(name, func(t *testing.T) {
			var cfg PipelineConfig
			require.Error(t, yaml.Unmarshal([]byte(doc), &cfg))
		})
	}
}

func TestConfigConvert(t *testing.T) {
	cfg := PipelineConfig{
		Input: InputConfig{URL: "in"},
		Output: OutputConfig{
			URL:       "out",
			StreamKey: "key",
			CustomOptions: CustomOptions{
				{Key: "flush_packets", Value: "0"},
				{Key: "flush_packets", Value: "1"},
			},
		},
		Video: EncodeVideoConfig{
			Codec:   VideoCodecH264,
			Encoder: "libx264",
			Quality: ptr(VideoQualityConstantQuality(28)),
		},
		Audio: EncodeAudioConfig{
			Codec:   AudioCodecAAC,
			Quality: ptr(AudioQualityConstantBitrate(64000)),
		},
	}
	result, err := cfg.Convert()
	require.NoError(t, err)

	require.Equal(t, "libx264", result.Video.CodecName)
	crf, ok := result.Video.Options.Get("crf")
	require.True(t, ok)
	require.Equal(t, "28", crf)
	require.Equal(t, "aac", result.Audio.CodecName)
	require.Equal(t, int64(64000), result.Audio.BitRate)
	require.Nil(t, result.InputOptions)
	flush, _ := result.OutputOptions.Get("flush_packets")
	require.Equal(t, "1", flush)
	require.Equal(t, "key", result.StreamKey.Get())

	v, ok := cfg.Output.CustomOptions.Get("flush_packets")
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestConfigConvertErrors(t *testing.T) {
	for name, cfg := range map[string]PipelineConfig{
		"no input":  {Output: OutputConfig{URL: "out"}},
		"no output": {Input: InputConfig{URL: "in"}},
		"copied video with a filter": {
			Input:  InputConfig{URL: "in"},
			Output: OutputConfig{URL: "out"},
			Video:  EncodeVideoConfig{Codec: VideoCodecCopy, Filter: "hflip"},
		},
		"only width": {
			Input:  InputConfig{URL: "in"},
			Output: OutputConfig{URL: "out"},
			Video:  EncodeVideoConfig{Codec: VideoCodecH264, Width: 640},
		},
		"copied audio with a sample rate": {
			Input:  InputConfig{URL: "in"},
			Output: OutputConfig{URL: "out"},
			Audio:  EncodeAudioConfig{SampleRate: 44100},
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := cfg.Convert()
			require.ErrorIs(t, err, types.ErrInvalidArgument)
		})
	}
}
