package chroma

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/audiolens/keyscope/algorithms/common"
	"github.com/audiolens/keyscope/logging"
)

// c1Frequency is the lowest analyzed pitch (C1). Anchoring the bin grid
// on a C keeps the fold to pitch classes a plain modulo.
const c1Frequency = 32.703195662574764

// ChromaCQT computes a 12xT chromagram on a constant-Q frequency grid:
// note bins spaced f_k = f_min * 2^(k/binsPerOctave), evaluated on a
// windowed FFT per frame and folded into the 12 pitch classes. More bins
// per octave than the semitone default sharpens pitch discrimination for
// slightly detuned material.
type ChromaCQT struct {
	minFreq       float64
	binsPerOctave int
	frameSize     int
	hopSize       int
	noteFreqs     []float64
	logger        logging.Logger
}

// NewChromaCQT creates a chromagram calculator with a custom grid.
// binsPerOctave must be a multiple of 12.
func NewChromaCQT(minFreq float64, octaves, binsPerOctave, frameSize, hopSize int) *ChromaCQT {
	totalBins := octaves * binsPerOctave
	noteFreqs := make([]float64, totalBins)
	for k := 0; k < totalBins; k++ {
		noteFreqs[k] = minFreq * math.Pow(2.0, float64(k)/float64(binsPerOctave))
	}

	return &ChromaCQT{
		minFreq:       minFreq,
		binsPerOctave: binsPerOctave,
		frameSize:     frameSize,
		hopSize:       hopSize,
		noteFreqs:     noteFreqs,
		logger:        logging.GetGlobalLogger(),
	}
}

// NewChromaCQTDefault creates a chromagram calculator with standard
// musical settings: C1 base, 6 octaves, 36 bins per octave (1/3-semitone
// resolution)
func NewChromaCQTDefault() *ChromaCQT {
	return NewChromaCQT(c1Frequency, 6, 36, 8192, 4096)
}

// ComputeChroma computes the chromagram of a mono signal. The result has
// exactly 12 rows (pitch classes C..B), one column per analysis frame;
// all values are finite, non-negative energies.
func (c *ChromaCQT) ComputeChroma(signal []float64, sampleRate int) ([][]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if c.binsPerOctave%12 != 0 {
		return nil, fmt.Errorf("bins per octave must be a multiple of 12, got %d", c.binsPerOctave)
	}

	numFrames := (len(signal)-c.frameSize)/c.hopSize + 1
	if numFrames < 1 {
		// Short signals still yield one zero-padded frame
		numFrames = 1
	}

	fftSize := common.NextPowerOfTwo(c.frameSize)
	window := hannWindow(c.frameSize)

	// Map each note bin to its nearest spectral bin, dropping anything at
	// or above Nyquist
	nyquistBin := fftSize / 2
	binIndex := make([]int, len(c.noteFreqs))
	for k, freq := range c.noteFreqs {
		idx := int(math.Round(freq * float64(fftSize) / float64(sampleRate)))
		if idx < 1 || idx >= nyquistBin {
			idx = -1
		}
		binIndex[k] = idx
	}

	chromagram := make([][]float64, 12)
	for pc := range chromagram {
		chromagram[pc] = make([]float64, numFrames)
	}

	frame := make([]float64, fftSize)
	for f := 0; f < numFrames; f++ {
		start := f * c.hopSize

		for i := 0; i < fftSize; i++ {
			frame[i] = 0.0
		}
		for i := 0; i < c.frameSize && start+i < len(signal); i++ {
			frame[i] = signal[start+i] * window[i]
		}

		spectrum := fft.FFTReal(frame)

		for k, idx := range binIndex {
			if idx < 0 {
				continue
			}
			mag := cmplx.Abs(spectrum[idx])
			pc := (k * 12 / c.binsPerOctave) % 12
			chromagram[pc][f] += mag * mag
		}
	}

	c.logger.Debug("chromagram computed", logging.Fields{
		"frames":          numFrames,
		"bins_per_octave": c.binsPerOctave,
		"sample_rate":     sampleRate,
	})

	return chromagram, nil
}

// hannWindow generates a Hann window of the given length
func hannWindow(length int) []float64 {
	window := make([]float64, length)
	for i := 0; i < length; i++ {
		window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(length-1)))
	}
	return window
}
