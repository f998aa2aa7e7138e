package tonal

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/audiolens/keyscope/algorithms/common"
	"github.com/audiolens/keyscope/logging"
)

// UnknownKey is the sentinel label returned when the chromagram carries
// no usable pitch-class energy.
const UnknownKey = "Unknown"

// keyNames maps pitch class index to note name, index 0 = C
var keyNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Harmonic templates over semitone offsets from an assumed root.
// Index order: root, m2, M2, m3, M3, P4, tritone, P5, m6, M6, m7, M7.
var (
	majorTemplate = [12]float64{1.0, 0.0, 0.3, 0.0, 0.6, 0.4, 0.0, 0.8, 0.0, 0.4, 0.0, 0.2}
	minorTemplate = [12]float64{1.0, 0.0, 0.3, 0.6, 0.0, 0.4, 0.0, 0.8, 0.4, 0.0, 0.4, 0.0}
)

// epsilon guards the confidence ratio denominators
const epsilon = 1e-6

// KeyResult holds a detected key and its confidence on a 0-100 scale.
// Major keys render as the bare pitch-class name ("C", "F#"), minor keys
// carry an "m" suffix ("Am").
type KeyResult struct {
	Key        string  `json:"key"`
	Confidence float64 `json:"confidence"`
}

// KeyEstimator detects the dominant key of a chromagram by correlating
// the time-averaged pitch-class profile against rotated harmonic
// templates. It is stateless and safe for concurrent use.
type KeyEstimator struct {
	logger logging.Logger
}

// NewKeyEstimator creates a key estimator logging through the global logger
func NewKeyEstimator() *KeyEstimator {
	return NewKeyEstimatorWithLogger(logging.GetGlobalLogger())
}

// NewKeyEstimatorWithLogger creates a key estimator with an injected
// diagnostic logger
func NewKeyEstimatorWithLogger(logger logging.Logger) *KeyEstimator {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &KeyEstimator{logger: logger}
}

// Estimate classifies the dominant key of a 12xT chromagram.
// It never fails: degenerate input (empty, all-zero, NaN) yields
// {UnknownKey, 0}.
func (ke *KeyEstimator) Estimate(chromagram [][]float64) KeyResult {
	profile := averageChroma(chromagram)
	if profile == nil || common.HasNaN(profile) {
		return KeyResult{Key: UnknownKey, Confidence: 0.0}
	}

	if floats.Max(profile) <= 0 {
		// No energy at all: correlations would collapse to zero
		return KeyResult{Key: UnknownKey, Confidence: 0.0}
	}

	normalized := common.PeakNormalize(profile)

	var majorScores, minorScores [12]float64
	for root := 0; root < 12; root++ {
		majorScores[root] = floats.Dot(normalized, rotateTemplate(majorTemplate, root))
		minorScores[root] = floats.Dot(normalized, rotateTemplate(minorTemplate, root))
	}

	majorRoot, majorBest, majorSecond := bestRoot(majorScores)
	minorRoot, minorBest, minorSecond := bestRoot(minorScores)

	ke.logger.Debug("key template correlation", logging.Fields{
		"best_major": majorBest, "best_major_key": keyNames[majorRoot],
		"best_minor": minorBest, "best_minor_key": keyNames[minorRoot] + "m",
	})

	// Ties favor major
	var key string
	var best, second, losing float64
	if majorBest >= minorBest {
		key = keyNames[majorRoot]
		best, second, losing = majorBest, majorSecond, minorBest
	} else {
		key = keyNames[minorRoot] + "m"
		best, second, losing = minorBest, minorSecond, majorBest
	}

	// Blend absolute template match, margin over the runner-up root of the
	// same mode, and margin between the two modes.
	absConf := (best + 1.0) / 2.0
	relConf := (best - second) / (best + epsilon)
	modeConf := (best - losing) / (math.Max(best, losing) + epsilon)
	confidence := (absConf*0.4 + relConf*0.4 + modeConf*0.2) * 100.0

	ke.logger.Debug("key confidence", logging.Fields{
		"key":       key,
		"abs_conf":  absConf,
		"rel_conf":  relConf,
		"mode_conf": modeConf,
	})

	if math.IsNaN(confidence) {
		confidence = 0.0
	}

	return KeyResult{
		Key:        key,
		Confidence: common.Clamp(confidence, 0.0, 100.0),
	}
}

// averageChroma collapses a 12xT chromagram into a 12-element pitch-class
// profile. Returns nil for malformed or empty input.
func averageChroma(chromagram [][]float64) []float64 {
	if len(chromagram) != 12 {
		return nil
	}

	profile := make([]float64, 12)
	for pc, row := range chromagram {
		if len(row) == 0 {
			return nil
		}
		profile[pc] = common.Mean(row)
	}

	return profile
}

// rotateTemplate shifts a template so its root weight lands on the given
// pitch class
func rotateTemplate(template [12]float64, root int) []float64 {
	rotated := make([]float64, 12)
	for i, val := range template {
		rotated[(i+root)%12] = val
	}
	return rotated
}

// bestRoot returns the argmax root plus the best and second-best scores.
// Ties resolve to the lowest pitch class, which keeps the estimator
// deterministic on degenerate flat input.
func bestRoot(scores [12]float64) (root int, best, second float64) {
	best = math.Inf(-1)
	for i, score := range scores {
		if score > best {
			best = score
			root = i
		}
	}

	second = math.Inf(-1)
	for i, score := range scores {
		if i != root && score > second {
			second = score
		}
	}

	return root, best, second
}
