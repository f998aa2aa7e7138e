package temporal

import (
	"github.com/audiolens/keyscope/algorithms/common"
	"github.com/audiolens/keyscope/logging"
)

const defaultTempoBPM = 120.0

// TempoEstimator estimates tempo in BPM from the autocorrelation of the
// short-time energy envelope. Stateless, safe for concurrent use.
type TempoEstimator struct {
	logger logging.Logger
}

// NewTempoEstimator creates a tempo estimator logging through the global
// logger
func NewTempoEstimator() *TempoEstimator {
	return NewTempoEstimatorWithLogger(logging.GetGlobalLogger())
}

// NewTempoEstimatorWithLogger creates a tempo estimator with an injected
// diagnostic logger
func NewTempoEstimatorWithLogger(logger logging.Logger) *TempoEstimator {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &TempoEstimator{logger: logger}
}

// EstimateTempo returns the dominant tempo in BPM, searching 60-180 BPM.
// Returns 0 when the signal is too short to carry a beat; callers decide
// the substitute value.
func (te *TempoEstimator) EstimateTempo(signal []float64, sampleRate int) float64 {
	if len(signal) == 0 || sampleRate <= 0 {
		return 0.0
	}

	// 100ms frames with 25% hop for the beat-rate envelope
	frameSize := int(0.1 * float64(sampleRate))
	hopSize := frameSize / 4
	if frameSize <= 0 || hopSize <= 0 {
		return 0.0
	}

	envelope := rmsEnvelope(signal, frameSize, hopSize)
	if len(envelope) < 10 {
		return 0.0
	}

	autocorr := autocorrelate(envelope, len(envelope)/2)
	tempo := te.pickTempo(autocorr, hopSize, sampleRate)

	te.logger.Debug("tempo estimate", logging.Fields{
		"envelope_frames": len(envelope),
		"tempo_bpm":       tempo,
	})

	return tempo
}

// rmsEnvelope computes the short-time RMS envelope over complete frames
func rmsEnvelope(signal []float64, frameSize, hopSize int) []float64 {
	if len(signal) < frameSize {
		return nil
	}

	numFrames := (len(signal)-frameSize)/hopSize + 1
	envelope := make([]float64, numFrames)

	for i := 0; i < numFrames; i++ {
		start := i * hopSize
		envelope[i] = common.RMS(signal[start : start+frameSize])
	}

	return envelope
}

// autocorrelate computes the normalized autocorrelation up to maxLag
func autocorrelate(signal []float64, maxLag int) []float64 {
	if maxLag > len(signal) {
		maxLag = len(signal)
	}

	autocorr := make([]float64, maxLag)
	for lag := 0; lag < maxLag; lag++ {
		sum := 0.0
		for i := 0; i < len(signal)-lag; i++ {
			sum += signal[i] * signal[i+lag]
		}
		autocorr[lag] = sum / float64(len(signal)-lag)
	}

	if len(autocorr) > 0 && autocorr[0] > 0 {
		scale := autocorr[0]
		for i := range autocorr {
			autocorr[i] /= scale
		}
	}

	return autocorr
}

// pickTempo finds the strongest autocorrelation peak whose lag falls in
// the 60-180 BPM range and converts it back to BPM
func (te *TempoEstimator) pickTempo(autocorr []float64, hopSize, sampleRate int) float64 {
	if len(autocorr) < 3 {
		return defaultTempoBPM
	}

	timePerFrame := float64(hopSize) / float64(sampleRate)

	minLag := int((60.0 / 180.0) / timePerFrame)
	maxLag := int(1.0 / timePerFrame) // 60 BPM
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(autocorr)-1 {
		maxLag = len(autocorr) - 2
	}

	bestLag := 0
	bestVal := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if autocorr[lag] > autocorr[lag-1] &&
			autocorr[lag] > autocorr[lag+1] &&
			autocorr[lag] > bestVal {
			bestVal = autocorr[lag]
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return defaultTempoBPM
	}

	period := float64(bestLag) * timePerFrame
	return 60.0 / period
}
