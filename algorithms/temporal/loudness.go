package temporal

import (
	"math"

	"github.com/audiolens/keyscope/algorithms/common"
	"github.com/audiolens/keyscope/logging"
)

const (
	// SilenceFloorDB is the lower bound of the loudness scale and the
	// absolute gate threshold
	SilenceFloorDB = -70.0

	// blockSeconds is the momentary measurement window (400 ms, 50% overlap)
	blockSeconds = 0.4

	// rmsEpsilon keeps the dB conversion finite for silent blocks
	rmsEpsilon = 1e-8

	// scaleOffsetDB aligns the block average with the values the legacy
	// analyzer reported. Changing it toward BS.1770 calibration breaks
	// compatibility with stored measurements.
	scaleOffsetDB = 10.0

	// relativeGateDB sits below the mean of the absolutely-gated blocks
	relativeGateDB = 10.0
)

// LoudnessEstimator produces a single LUFS-like loudness value in
// [-70, 0] using block-gated average energy. It is stateless and safe
// for concurrent use. This is an approximation, not an ITU-R BS.1770
// measurement: no K-weighting, no true peak.
type LoudnessEstimator struct {
	logger logging.Logger
}

// NewLoudnessEstimator creates a loudness estimator logging through the
// global logger
func NewLoudnessEstimator() *LoudnessEstimator {
	return NewLoudnessEstimatorWithLogger(logging.GetGlobalLogger())
}

// NewLoudnessEstimatorWithLogger creates a loudness estimator with an
// injected diagnostic logger
func NewLoudnessEstimatorWithLogger(logger logging.Logger) *LoudnessEstimator {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &LoudnessEstimator{logger: logger}
}

// Estimate computes the gated loudness of a mono sample buffer.
// Empty input or a non-positive sample rate yields the silence floor.
func (le *LoudnessEstimator) Estimate(samples []float64, sampleRate int) float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return SilenceFloorDB
	}

	blockLength := int(blockSeconds * float64(sampleRate))
	hopLength := blockLength / 2

	if len(samples) < blockLength || hopLength <= 0 {
		// Too short for block gating: measure the whole signal at once
		db := toDB(common.RMS(samples)) - scaleOffsetDB
		le.logger.Debug("signal shorter than one block, whole-signal fallback", logging.Fields{
			"samples":      len(samples),
			"block_length": blockLength,
			"loudness_db":  db,
		})
		return common.Clamp(db, SilenceFloorDB, 0.0)
	}

	blockDB := blockLevels(samples, blockLength, hopLength)

	// Absolute gate: drop near-silent blocks so they cannot drag the
	// relative threshold down
	gated := make([]float64, 0, len(blockDB))
	for _, db := range blockDB {
		if db > SilenceFloorDB {
			gated = append(gated, db)
		}
	}
	if len(gated) == 0 {
		le.logger.Debug("no blocks above silence threshold")
		return SilenceFloorDB
	}

	threshold := common.Mean(gated) - relativeGateDB

	le.logger.Debug("loudness gates", logging.Fields{
		"blocks":             len(blockDB),
		"gated_blocks":       len(gated),
		"relative_threshold": threshold,
	})

	// Relative gate, evaluated against the full block set to preserve
	// the legacy arithmetic exactly
	final := make([]float64, 0, len(blockDB))
	for _, db := range blockDB {
		if db > threshold {
			final = append(final, db)
		}
	}
	if len(final) == 0 {
		le.logger.Debug("no blocks above relative threshold")
		return SilenceFloorDB
	}

	loudness := common.Mean(final) - scaleOffsetDB
	return common.Clamp(loudness, SilenceFloorDB, 0.0)
}

// blockLevels frames the signal into overlapping complete blocks and
// returns the per-block level in dB. Trailing samples beyond the final
// full block are discarded.
func blockLevels(samples []float64, blockLength, hopLength int) []float64 {
	numBlocks := (len(samples)-blockLength)/hopLength + 1
	levels := make([]float64, numBlocks)

	for i := 0; i < numBlocks; i++ {
		start := i * hopLength
		levels[i] = toDB(common.RMS(samples[start : start+blockLength]))
	}

	return levels
}

func toDB(rms float64) float64 {
	return 20.0 * math.Log10(rms+rmsEpsilon)
}
