// Package avcore is the configuration of transcoding jobs built with the
// packages of this module.
package avcore

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/xaionaro-go/avcore/pipeline"
	"github.com/xaionaro-go/avcore/types"
	"github.com/xaionaro-go/secret"
	"gopkg.in/yaml.v3"
)

// PipelineConfig describes one job: what to read, what to write and what
// to do with the streams in between.
type PipelineConfig struct {
	Input           InputConfig             `json:"input"                      yaml:"input"`
	Output          OutputConfig            `json:"output"                     yaml:"output"`
	Video           EncodeVideoConfig       `json:"video,omitempty"            yaml:"video,omitempty"`
	Audio           EncodeAudioConfig       `json:"audio,omitempty"            yaml:"audio,omitempty"`
	Throttle        pipeline.ThrottleConfig `json:"throttle,omitempty"         yaml:"throttle,omitempty"`
	ForceInterleave bool                    `json:"force_interleave,omitempty" yaml:"force_interleave,omitempty"`
}

type InputConfig struct {
	URL           string        `json:"url,omitempty"            yaml:"url,omitempty"`
	Format        string        `json:"format,omitempty"         yaml:"format,omitempty"`
	CustomOptions CustomOptions `json:"custom_options,omitempty" yaml:"custom_options,omitempty"`
}

type OutputConfig struct {
	URL           string        `json:"url,omitempty"            yaml:"url,omitempty"`
	Format        string        `json:"format,omitempty"         yaml:"format,omitempty"`
	StreamKey     string        `json:"stream_key,omitempty"     yaml:"stream_key,omitempty"`
	CustomOptions CustomOptions `json:"custom_options,omitempty" yaml:"custom_options,omitempty"`
}

// Convert validates the config and turns it into what pipeline.NewChain
// expects.
func (cfg PipelineConfig) Convert() (pipeline.Config, error) {
	if cfg.Input.URL == "" {
		return pipeline.Config{}, types.InvalidArgumentf("the input URL is not set")
	}
	if cfg.Output.URL == "" {
		return pipeline.Config{}, types.InvalidArgumentf("the output URL is not set")
	}
	video, err := cfg.Video.StreamConfig()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("invalid video config: %w", err)
	}
	audio, err := cfg.Audio.StreamConfig()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("invalid audio config: %w", err)
	}
	return pipeline.Config{
		InputFormat:     cfg.Input.Format,
		InputOptions:    cfg.Input.CustomOptions.Dictionary(),
		OutputFormat:    cfg.Output.Format,
		OutputOptions:   cfg.Output.CustomOptions.Dictionary(),
		StreamKey:       secret.New(cfg.Output.StreamKey),
		Video:           video,
		Audio:           audio,
		Throttle:        cfg.Throttle,
		ForceInterleave: cfg.ForceInterleave,
	}, nil
}

type EncodeVideoConfig struct {
	Codec VideoCodec `json:"codec,omitempty"   yaml:"codec,omitempty"`

	// Encoder overrides the encoder name derived from Codec, for example
	// "libx264" instead of "h264".
	Encoder       string        `json:"encoder,omitempty"        yaml:"encoder,omitempty"`
	Quality       VideoQuality  `json:"quality,omitempty"        yaml:"quality,omitempty"`
	Filter        string        `json:"filter,omitempty"         yaml:"filter,omitempty"`
	Width         int           `json:"width,omitempty"          yaml:"width,omitempty"`
	Height        int           `json:"height,omitempty"         yaml:"height,omitempty"`
	CustomOptions CustomOptions `json:"custom_options,omitempty" yaml:"custom_options,omitempty"`
}

func (cfg EncodeVideoConfig) GetCustomOptions() CustomOptions {
	return cfg.CustomOptions
}

func (cfg EncodeVideoConfig) IsCopy() bool {
	return cfg.Encoder == "" && (cfg.Codec == VideoCodecUndefined || cfg.Codec == VideoCodecCopy)
}

func (cfg EncodeVideoConfig) StreamConfig() (pipeline.StreamConfig, error) {
	if cfg.IsCopy() {
		if cfg.Quality != nil || cfg.Filter != "" || cfg.Width != 0 || cfg.Height != 0 {
			return pipeline.StreamConfig{}, types.InvalidArgumentf("the video is copied, it cannot be filtered or re-encoded")
		}
		return pipeline.StreamConfig{}, nil
	}
	if (cfg.Width == 0) != (cfg.Height == 0) {
		return pipeline.StreamConfig{}, types.InvalidArgumentf("both width and height should be set, got %dx%d", cfg.Width, cfg.Height)
	}

	result := pipeline.StreamConfig{
		CodecName: cfg.Encoder,
		Filter:    cfg.Filter,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Options:   cfg.CustomOptions.Dictionary(),
	}
	if result.CodecName == "" {
		result.CodecName = cfg.Codec.String()
	}
	switch q := cfg.Quality.(type) {
	case nil:
	case *VideoQualityConstantBitrate:
		result.BitRate = int64(*q)
	case *VideoQualityConstantQuality:
		if _, ok := cfg.CustomOptions.Get("crf"); !ok {
			if result.Options == nil {
				result.Options = types.NewDictionary()
			}
			result.Options.Set("crf", strconv.Itoa(int(*q)))
		}
	default:
		return pipeline.StreamConfig{}, types.InvalidArgumentf("unexpected video quality type %T", q)
	}
	return result, nil
}

func (c *EncodeVideoConfig) UnmarshalJSON(b []byte) (_err error) {
	type plain EncodeVideoConfig
	aux := struct {
		*plain
		Quality videoQualitySerializable `json:"quality,omitempty"`
	}{plain: (*plain)(c)}
	err := json.Unmarshal(b, &aux)
	if err != nil {
		return fmt.Errorf("unable to un-JSON-ize: %w", err)
	}
	c.Quality, err = aux.Quality.Convert()
	if err != nil {
		return fmt.Errorf("unable to convert the 'quality' field: %w", err)
	}
	return nil
}

func (c *EncodeVideoConfig) UnmarshalYAML(b []byte) (_err error) {
	m := map[string]any{}
	err := yaml.Unmarshal(b, m)
	if err != nil {
		return fmt.Errorf("unable to unmarshal EncodeVideoConfig bytes to a map: %w", err)
	}
	quality := m["quality"]
	m["quality"] = nil
	b, err = yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("unable to remarshal back to EncodeVideoConfig from the map: %w", err)
	}
	err = yaml.Unmarshal(b, c)
	if err != nil {
		return fmt.Errorf("unable to un-YAML-ize: %w", err)
	}
	if quality != nil {
		sb, err := yaml.Marshal(quality)
		if err != nil {
			return fmt.Errorf("unable to remarshal back to EncodeVideoConfig from the map: %w", err)
		}
		s := videoQualitySerializable{}
		err = yaml.Unmarshal(sb, &s)
		if err != nil {
			return fmt.Errorf("unable to un-YAML-ize: %w", err)
		}
		c.Quality, err = s.Convert()
		if err != nil {
			return fmt.Errorf("unable to convert the 'quality' field: %w", err)
		}
	}
	return nil
}

func (c EncodeVideoConfig) MarshalYAML() ([]byte, error) {
	cpy := c
	if cpy.Quality != nil {
		cpy.Quality = cpy.Quality.serializable()
	}
	return yaml.Marshal(cpy)
}

type EncodeAudioConfig struct {
	Codec AudioCodec `json:"codec,omitempty"   yaml:"codec,omitempty"`

	// Encoder overrides the encoder name derived from Codec.
	Encoder       string        `json:"encoder,omitempty"        yaml:"encoder,omitempty"`
	Quality       AudioQuality  `json:"quality,omitempty"        yaml:"quality,omitempty"`
	Filter        string        `json:"filter,omitempty"         yaml:"filter,omitempty"`
	SampleRate    int           `json:"sample_rate,omitempty"    yaml:"sample_rate,omitempty"`
	CustomOptions CustomOptions `json:"custom_options,omitempty" yaml:"custom_options,omitempty"`
}

func (cfg EncodeAudioConfig) GetCustomOptions() CustomOptions {
	return cfg.CustomOptions
}

func (cfg EncodeAudioConfig) IsCopy() bool {
	return cfg.Encoder == "" && (cfg.Codec == AudioCodecUndefined || cfg.Codec == AudioCodecCopy)
}

func (cfg EncodeAudioConfig) StreamConfig() (pipeline.StreamConfig, error) {
	if cfg.IsCopy() {
		if cfg.Quality != nil || cfg.Filter != "" || cfg.SampleRate != 0 {
			return pipeline.StreamConfig{}, types.InvalidArgumentf("the audio is copied, it cannot be filtered or re-encoded")
		}
		return pipeline.StreamConfig{}, nil
	}

	result := pipeline.StreamConfig{
		CodecName:  cfg.Encoder,
		Filter:     cfg.Filter,
		SampleRate: cfg.SampleRate,
		Options:    cfg.CustomOptions.Dictionary(),
	}
	if result.CodecName == "" {
		result.CodecName = cfg.Codec.String()
	}
	switch q := cfg.Quality.(type) {
	case nil:
	case *AudioQualityConstantBitrate:
		result.BitRate = int64(*q)
	default:
		return pipeline.StreamConfig{}, types.InvalidArgumentf("unexpected audio quality type %T", q)
	}
	return result, nil
}

func (c *EncodeAudioConfig) UnmarshalJSON(b []byte) (_err error) {
	type plain EncodeAudioConfig
	aux := struct {
		*plain
		Quality audioQualitySerializable `json:"quality,omitempty"`
	}{plain: (*plain)(c)}
	err := json.Unmarshal(b, &aux)
	if err != nil {
		return fmt.Errorf("unable to un-JSON-ize: %w", err)
	}
	c.Quality, err = aux.Quality.Convert()
	if err != nil {
		return fmt.Errorf("unable to convert the 'quality' field: %w", err)
	}
	return nil
}

func (c *EncodeAudioConfig) UnmarshalYAML(b []byte) (_err error) {
	m := map[string]any{}
	err := yaml.Unmarshal(b, m)
	if err != nil {
		return fmt.Errorf("unable to unmarshal EncodeAudioConfig bytes to a map: %w", err)
	}
	quality := m["quality"]
	m["quality"] = nil
	b, err = yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("unable to remarshal back to EncodeAudioConfig from the map: %w", err)
	}
	err = yaml.Unmarshal(b, c)
	if err != nil {
		return fmt.Errorf("unable to un-YAML-ize: %w", err)
	}
	if quality != nil {
		sb, err := yaml.Marshal(quality)
		if err != nil {
			return fmt.Errorf("unable to remarshal back to EncodeAudioConfig from the map: %w", err)
		}
		s := audioQualitySerializable{}
		err = yaml.Unmarshal(sb, &s)
		if err != nil {
			return fmt.Errorf("unable to un-YAML-ize: %w", err)
		}
		c.Quality, err = s.Convert()
		if err != nil {
			return fmt.Errorf("unable to convert the 'quality' field: %w", err)
		}
	}
	return nil
}

func (c EncodeAudioConfig) MarshalYAML() ([]byte, error) {
	cpy := c
	if cpy.Quality != nil {
		cpy.Quality = cpy.Quality.serializable()
	}
	return yaml.Marshal(cpy)
}

// toUint accepts what JSON and YAML decoders produce for numbers.
func toUint(v any) (uint, bool) {
	switch v := v.(type) {
	case int:
		return uint(v), v >= 0
	case int64:
		return uint(v), v >= 0
	case uint:
		return v, true
	case uint64:
		return uint(v), true
	case float64:
		return uint(v), v >= 0
	}
	return 0, false
}

type AudioQuality interface {
	audioQuality()
	typeName() string
	serializable() audioQualitySerializable
	setValues(vq audioQualitySerializable) error
}

type AudioQualityConstantBitrate uint

func (AudioQualityConstantBitrate) typeName() string {
	return "constant_bitrate"
}

func (AudioQualityConstantBitrate) audioQuality() {}

func (aq AudioQualityConstantBitrate) serializable() audioQualitySerializable {
	return map[string]any{
		"type":    aq.typeName(),
		"bitrate": uint(aq),
	}
}

func (aq AudioQualityConstantBitrate) MarshalJSON() ([]byte, error) {
	return json.Marshal(aq.serializable())
}

func (aq AudioQualityConstantBitrate) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(aq.serializable())
}

func (aq *AudioQualityConstantBitrate) setValues(in audioQualitySerializable) error {
	bitrateR := in["bitrate"]
	bitrate, ok := toUint(bitrateR)
	if !ok {
		return fmt.Errorf("have not found a non-negative number using key 'bitrate' in %#+v, found %T, instead", in, bitrateR)
	}

	*aq = AudioQualityConstantBitrate(bitrate)
	return nil
}

type audioQualitySerializable map[string]any

func (audioQualitySerializable) audioQuality() {}

func (aq audioQualitySerializable) typeName() string {
	result, _ := aq["type"].(string)
	return result
}

func (aq audioQualitySerializable) serializable() audioQualitySerializable {
	return aq
}

func (aq audioQualitySerializable) setValues(in audioQualitySerializable) error {
	for k := range aq {
		delete(aq, k)
	}
	maps.Copy(aq, in)
	return nil
}

func (aq audioQualitySerializable) Convert() (AudioQuality, error) {
	typeName, ok := aq["type"].(string)
	if !ok {
		return nil, nil
	}

	var r AudioQuality
	for _, sample := range []AudioQuality{
		ptr(AudioQualityConstantBitrate(0)),
	} {
		if sample.typeName() == typeName {
			r = sample
			break
		}
	}
	if r == nil {
		return nil, fmt.Errorf("unknown type '%s'", typeName)
	}

	if err := r.setValues(aq); err != nil {
		return nil, fmt.Errorf("unable to convert the value (aq): %w", err)
	}
	return r, nil
}

type AudioCodec uint

const (
	AudioCodecUndefined = AudioCodec(iota)
	AudioCodecCopy
	AudioCodecAAC
	AudioCodecVorbis
	AudioCodecOpus
	AudioCodecPCMS16LE
	EndOfAudioCodec
)

func (ac *AudioCodec) String() string {
	if ac == nil {
		return "null"
	}

	switch *ac {
	case AudioCodecUndefined:
		return "<undefined>"
	case AudioCodecCopy:
		return "<copy>"
	case AudioCodecAAC:
		return "aac"
	case AudioCodecVorbis:
		return "vorbis"
	case AudioCodecOpus:
		return "opus"
	case AudioCodecPCMS16LE:
		return "pcm_s16le"
	}
	return fmt.Sprintf("unexpected_audio_codec_id_%d", uint(*ac))
}

func (ac AudioCodec) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ac.String() + `"`), nil
}

func (ac AudioCodec) MarshalText() ([]byte, error) {
	return []byte(ac.String()), nil
}

func (ac *AudioCodec) UnmarshalJSON(b []byte) error {
	return ac.UnmarshalText([]byte(strings.Trim(string(b), `"`)))
}

func (ac *AudioCodec) UnmarshalText(b []byte) error {
	if ac == nil {
		return fmt.Errorf("AudioCodec is nil")
	}
	s := strings.ToLower(string(b))
	for cmp := AudioCodecUndefined; cmp < EndOfAudioCodec; cmp++ {
		if cmp.String() == s {
			*ac = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the AudioCodec: '%s'", s)
}

type VideoQuality interface {
	videoQuality()
	typeName() string
	serializable() videoQualitySerializable
	setValues(vq videoQualitySerializable) error
}

type VideoQualityConstantBitrate uint

func (VideoQualityConstantBitrate) typeName() string {
	return "constant_bitrate"
}

func (VideoQualityConstantBitrate) videoQuality() {}

func (vq VideoQualityConstantBitrate) serializable() videoQualitySerializable {
	return videoQualitySerializable{
		"type":    vq.typeName(),
		"bitrate": uint(vq),
	}
}

func (vq VideoQualityConstantBitrate) MarshalJSON() ([]byte, error) {
	return json.Marshal(vq.serializable())
}

func (vq VideoQualityConstantBitrate) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(vq.serializable())
}

func (vq *VideoQualityConstantBitrate) setValues(in videoQualitySerializable) error {
	bitrate, ok := toUint(in["bitrate"])
	if !ok {
		return fmt.Errorf("have not found a non-negative number using key 'bitrate' in %#+v", in)
	}

	*vq = VideoQualityConstantBitrate(bitrate)
	return nil
}

// VideoQualityConstantQuality is passed to the encoder as "crf".
type VideoQualityConstantQuality uint8

func (VideoQualityConstantQuality) typeName() string {
	return "constant_quality"
}

func (VideoQualityConstantQuality) videoQuality() {}

func (vq VideoQualityConstantQuality) serializable() videoQualitySerializable {
	return videoQualitySerializable{
		"type":    vq.typeName(),
		"quality": uint(vq),
	}
}

func (vq VideoQualityConstantQuality) MarshalJSON() ([]byte, error) {
	return json.Marshal(vq.serializable())
}

func (vq VideoQualityConstantQuality) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(vq.serializable())
}

func (vq *VideoQualityConstantQuality) setValues(in videoQualitySerializable) error {
	quality, ok := toUint(in["quality"])
	if !ok || quality > 255 {
		return fmt.Errorf("have not found a value in [0, 255] using key 'quality' in %#+v", in)
	}

	*vq = VideoQualityConstantQuality(quality)
	return nil
}

type videoQualitySerializable map[string]any

func (videoQualitySerializable) videoQuality() {}

func (vq videoQualitySerializable) typeName() string {
	result, _ := vq["type"].(string)
	return result
}

func (vq videoQualitySerializable) serializable() videoQualitySerializable {
	return vq
}

func (vq videoQualitySerializable) setValues(in videoQualitySerializable) error {
	for k := range vq {
		delete(vq, k)
	}
	maps.Copy(vq, in)
	return nil
}

func (vq videoQualitySerializable) Convert() (VideoQuality, error) {
	typeName, ok := vq["type"].(string)
	if !ok {
		return nil, nil
	}

	var r VideoQuality
	for _, sample := range []VideoQuality{
		ptr(VideoQualityConstantBitrate(0)),
		ptr(VideoQualityConstantQuality(0)),
	} {
		if sample.typeName() == typeName {
			r = sample
			break
		}
	}
	if r == nil {
		return nil, fmt.Errorf("unknown type '%s'", typeName)
	}

	if err := r.setValues(vq); err != nil {
		return nil, fmt.Errorf("unable to convert the value (vq): %w", err)
	}
	return r, nil
}

func ptr[T any](in T) *T {
	return &in
}

type VideoCodec uint

const (
	VideoCodecUndefined = VideoCodec(iota)
	VideoCodecCopy
	VideoCodecH264
	VideoCodecHEVC
	VideoCodecAV1
	VideoCodecRawVideo
	EndOfVideoCodec
)

func (vc *VideoCodec) String() string {
	if vc == nil {
		return "null"
	}

	switch *vc {
	case VideoCodecUndefined:
		return "<undefined>"
	case VideoCodecCopy:
		return "<copy>"
	case VideoCodecH264:
		return "h264"
	case VideoCodecHEVC:
		return "hevc"
	case VideoCodecAV1:
		return "av1"
	case VideoCodecRawVideo:
		return "rawvideo"
	}
	return fmt.Sprintf("unexpected_video_codec_id_%d", uint(*vc))
}

func (vc VideoCodec) MarshalJSON() ([]byte, error) {
	return []byte(`"` + vc.String() + `"`), nil
}

func (vc VideoCodec) MarshalText() ([]byte, error) {
	return []byte(vc.String()), nil
}

func (vc *VideoCodec) UnmarshalJSON(b []byte) error {
	return vc.UnmarshalText([]byte(strings.Trim(string(b), `"`)))
}

func (vc *VideoCodec) UnmarshalText(b []byte) error {
	if vc == nil {
		return fmt.Errorf("VideoCodec is nil")
	}
	s := strings.ToLower(string(b))
	for cmp := VideoCodecUndefined; cmp < EndOfVideoCodec; cmp++ {
		if cmp.String() == s {
			*vc = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the VideoCodec: '%s'", s)
}
