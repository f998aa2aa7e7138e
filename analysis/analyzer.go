package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/audiolens/keyscope/algorithms/chroma"
	"github.com/audiolens/keyscope/algorithms/temporal"
	"github.com/audiolens/keyscope/algorithms/tonal"
	"github.com/audiolens/keyscope/logging"
	"github.com/audiolens/keyscope/transcode"
)

// fallbackBPM is reported when the tempo estimator cannot find a beat
const fallbackBPM = 120.0

// SampleSource provides mono PCM plus container tags for a file
type SampleSource interface {
	DecodeFile(ctx context.Context, path string) (*transcode.AudioData, error)
}

// ChromaProvider produces a 12xT pitch-class energy matrix from a signal
type ChromaProvider interface {
	ComputeChroma(signal []float64, sampleRate int) ([][]float64, error)
}

// TempoSource estimates tempo in BPM; non-positive means "no beat found"
type TempoSource interface {
	EstimateTempo(signal []float64, sampleRate int) float64
}

// Analyzer orchestrates one analysis request: decode, then run the
// independent estimators and assemble the result record. The estimators
// are stateless, so a single Analyzer is safe for concurrent requests.
type Analyzer struct {
	decoder  SampleSource
	chroma   ChromaProvider
	tempo    TempoSource
	key      *tonal.KeyEstimator
	loudness *temporal.LoudnessEstimator
	logger   logging.Logger
}

// NewAnalyzer creates an analyzer with the default collaborators wired in
func NewAnalyzer(decoder SampleSource) *Analyzer {
	return &Analyzer{
		decoder:  decoder,
		chroma:   chroma.NewChromaCQTDefault(),
		tempo:    temporal.NewTempoEstimator(),
		key:      tonal.NewKeyEstimator(),
		loudness: temporal.NewLoudnessEstimator(),
		logger:   logging.GetGlobalLogger(),
	}
}

// Analyze decodes the file at path and runs the full feature set over it
func (a *Analyzer) Analyze(ctx context.Context, path string) (*Result, error) {
	logger := a.logger.WithFields(logging.Fields{"path": path})

	audio, err := a.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if len(audio.PCM) == 0 {
		return nil, fmt.Errorf("empty audio file")
	}

	duration := Duration(len(audio.PCM), audio.SampleRate)

	tempo := a.tempo.EstimateTempo(audio.PCM, audio.SampleRate)
	if math.IsNaN(tempo) || tempo <= 0 {
		tempo = fallbackBPM
	}

	keyResult := tonal.KeyResult{Key: tonal.UnknownKey}
	chromagram, err := a.chroma.ComputeChroma(audio.PCM, audio.SampleRate)
	if err != nil {
		logger.Warn("chromagram computation failed, reporting unknown key", logging.Fields{
			"error": err.Error(),
		})
	} else {
		keyResult = a.key.Estimate(chromagram)
	}

	loudness := a.loudness.Estimate(audio.PCM, audio.SampleRate)

	result := &Result{
		BPM:               round1(tempo),
		Key:               keyResult.Key,
		KeyConfidence:     round1(keyResult.Confidence),
		Loudness:          round1(loudness),
		Duration:          duration,
		DurationFormatted: FormatDuration(duration),
		Artist:            optionalString(audio.Artist),
		Title:             optionalString(audio.Title),
	}

	logger.Info("analysis completed", logging.Fields{
		"bpm":      result.BPM,
		"key":      result.Key,
		"loudness": result.Loudness,
		"duration": result.DurationFormatted,
	})

	return result, nil
}

func round1(value float64) float64 {
	return math.Round(value*10.0) / 10.0
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
