package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/audiolens/keyscope/logging"
)

// AudioData represents decoded audio: mono PCM at the file's native
// sample rate, plus whatever tags the container carried. Artist/Title
// are empty strings when the container has no tags; that is a normal
// outcome, not an error.
type AudioData struct {
	PCM        []float64
	SampleRate int
	Artist     string
	Title      string
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	FFmpegPath  string        `json:"ffmpeg_path"`
	FFprobePath string        `json:"ffprobe_path"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Timeout:     60 * time.Second,
	}
}

// Decoder turns arbitrary audio containers into mono float64 PCM using
// FFmpeg. The file's native sample rate is preserved: no resampling and
// no loudness normalization, so downstream measurements see the signal
// as stored.
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes an audio file into mono PCM at its native sample
// rate and extracts artist/title tags when present
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"filename":  filename,
	})

	probe, err := d.probeFile(ctx, filename)
	if err != nil {
		logger.Error(err, "failed to probe audio file")
		return nil, err
	}

	logger.Debug("audio metadata detected", logging.Fields{
		"sample_rate": probe.SampleRate,
		"channels":    probe.Channels,
		"codec":       probe.Codec,
		"artist":      probe.Artist,
		"title":       probe.Title,
	})

	samples, err := d.decodePCM(ctx, filename, probe.SampleRate)
	if err != nil {
		logger.Error(err, "failed to decode audio file")
		return nil, err
	}

	logger.Debug("decode completed", logging.Fields{
		"samples":  len(samples),
		"duration": float64(len(samples)) / float64(probe.SampleRate),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: probe.SampleRate,
		Artist:     probe.Artist,
		Title:      probe.Title,
	}, nil
}

// probeResult holds the properties and tags FFprobe reported for a file
type probeResult struct {
	SampleRate int
	Channels   int
	Codec      string
	Artist     string
	Title      string
}

// probeFile runs ffprobe to discover the native sample rate and the
// container tags
func (d *Decoder) probeFile(ctx context.Context, filename string) (*probeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		"-select_streams", "a:0",
		filename,
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, d.config.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(output)
}

// parseProbeOutput parses ffprobe JSON into a probeResult
func parseProbeOutput(jsonData []byte) (*probeResult, error) {
	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
		Format struct {
			Tags map[string]string `json:"tags"`
		} `json:"format"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %q", stream.SampleRate)
	}

	return &probeResult{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Artist:     tagValue(probe.Format.Tags, "artist"),
		Title:      tagValue(probe.Format.Tags, "title"),
	}, nil
}

// tagValue looks up a container tag case-insensitively; tag key casing
// varies by container format
func tagValue(tags map[string]string, key string) string {
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// decodePCM runs ffmpeg to produce mono raw float64 samples at the
// file's native sample rate
func (d *Decoder) decodePCM(ctx context.Context, filename string, sampleRate int) ([]float64, error) {
	args := []string{
		"-i", filename,
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-vn",
		"-v", "error",
		"pipe:1",
	}

	decodeCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(decodeCtx, d.config.FFmpegPath, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	return samples, nil
}

// bytesToFloat64 converts raw little-endian float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := 0; i < sampleCount; i++ {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig checks that ffmpeg and ffprobe binaries are reachable
func (d *Decoder) ValidateConfig() error {
	if d.config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %v", d.config.Timeout)
	}

	if err := exec.Command(d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if err := exec.Command(d.config.FFprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}

	return nil
}
