// Package melspec computes the fixed-shape log-mel spectrogram tensor
// consumed by the turn-completion classifier.
//
// The constants below are fixed by the classifier's training convention and
// must not be altered: changing any of them silently diverges from the input
// distribution the model was trained on.
package melspec

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// SampleRate of the input audio in Hz.
	SampleRate = 16000

	// FFTSize is the length of each real FFT. Analysis windows are
	// zero-padded from WindowLength up to this size.
	FFTSize = 512

	// WindowLength is the analysis window in samples (25 ms).
	WindowLength = 400

	// HopLength is the stride between consecutive frames in samples (10 ms).
	HopLength = 160

	// MelBands is the number of mel filterbank bands (tensor rows).
	MelBands = 80

	// TargetFrames is the fixed number of STFT frames (tensor columns).
	TargetFrames = 800

	// MaxSamples is the longest input that fits the target frame count:
	// (TargetFrames-1)*HopLength + WindowLength.
	MaxSamples = (TargetFrames-1)*HopLength + WindowLength

	// numBins is the number of retained frequency bins (Nyquist half).
	numBins = FFTSize/2 + 1

	// logFloor guards the log-scale step against log of zero.
	logFloor = 1e-10

	// normEpsilon guards the normalization divide against zero deviation.
	normEpsilon = 1e-8
)

var (
	// ErrInvalidLength is returned for empty input or input longer than
	// MaxSamples.
	ErrInvalidLength = errors.New("melspec: input length must be in [1, 128240] samples")

	// ErrNonFinite is returned when the input contains a NaN or Inf sample.
	// The extractor fails fast rather than propagate corrupt values.
	ErrNonFinite = errors.New("melspec: input contains a non-finite sample")
)

// Extractor converts mono 16 kHz audio into a normalized log-mel tensor of
// exactly [MelBands, TargetFrames], laid out row-major (all TargetFrames
// values of band 0, then band 1, and so on).
//
// The Hann window, mel filterbank, FFT plan, and all scratch buffers are
// built once at construction and reused across calls; Extract allocates only
// its output slice. An Extractor is not safe for concurrent use.
type Extractor struct {
	window     [WindowLength]float64
	filterbank [][]float64 // [MelBands][numBins], zero outside each triangle
	fft        *fourier.FFT

	// scratch, reused across calls
	aligned [MaxSamples]float64 // length-normalized input
	frame   [FFTSize]float64    // windowed, zero-padded analysis frame
	coeffs  [numBins]complex128 // FFT output
	power   [numBins]float64    // per-bin power spectrum
}

// NewExtractor builds the window function, mel filterbank, and FFT plan.
// It returns an error if the filterbank cannot be constructed — the
// extractor cannot exist in a usable state without it.
func NewExtractor() (*Extractor, error) {
	e := &Extractor{
		fft: fourier.NewFFT(FFTSize),
	}

	// Periodic Hann window over the analysis length.
	for i := range e.window {
		e.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(WindowLength)))
	}

	fb, err := melFilterbank(MelBands, FFTSize, SampleRate)
	if err != nil {
		return nil, err
	}
	e.filterbank = fb
	return e, nil
}

// Extract computes the normalized log-mel tensor for samples. The result has
// length MelBands*TargetFrames regardless of input length: shorter inputs
// are left-padded with zeros so the end of the audio aligns with the end of
// the frame window, anchoring recent speech at the tensor's tail.
//
// Empty or over-length input fails with ErrInvalidLength; any NaN or Inf
// sample fails with ErrNonFinite before any scratch state is touched.
// For valid input the transform is total and deterministic: repeated calls
// on identical input yield bit-identical output.
func (e *Extractor) Extract(samples []float32) ([]float32, error) {
	if len(samples) == 0 || len(samples) > MaxSamples {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidLength, len(samples))
	}
	for _, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, ErrNonFinite
		}
	}

	// Length normalization: zero prefix, input suffix.
	pad := MaxSamples - len(samples)
	for i := range pad {
		e.aligned[i] = 0
	}
	for i, s := range samples {
		e.aligned[pad+i] = float64(s)
	}

	out := make([]float32, MelBands*TargetFrames)

	for f := range TargetFrames {
		start := f * HopLength

		// Window and zero-pad the analysis frame.
		for i := range WindowLength {
			e.frame[i] = e.aligned[start+i] * e.window[i]
		}
		for i := WindowLength; i < FFTSize; i++ {
			e.frame[i] = 0
		}

		// Real FFT; keep the Nyquist-symmetric half as power.
		e.fft.Coefficients(e.coeffs[:], e.frame[:])
		for i := range numBins {
			re := real(e.coeffs[i])
			im := imag(e.coeffs[i])
			e.power[i] = re*re + im*im
		}

		// Mel projection and log scale, one column per frame.
		for m := range MelBands {
			var sum float64
			for i, w := range e.filterbank[m] {
				if w != 0 {
					sum += w * e.power[i]
				}
			}
			out[m*TargetFrames+f] = float32(math.Log10(math.Max(sum, logFloor)))
		}
	}

	normalize(out)
	return out, nil
}

// normalize applies (x-mean)/(std+epsilon) using a single global mean and
// standard deviation over the whole tensor. Normalization is deliberately
// global rather than per-band: the classifier was trained against this
// convention.
func normalize(t []float32) {
	var sum float64
	for _, v := range t {
		sum += float64(v)
	}
	mean := sum / float64(len(t))

	var sqsum float64
	for _, v := range t {
		d := float64(v) - mean
		sqsum += d * d
	}
	std := math.Sqrt(sqsum / float64(len(t)))

	inv := 1 / (std + normEpsilon)
	for i, v := range t {
		t[i] = float32((float64(v) - mean) * inv)
	}
}

// hzToMel converts a frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts a mel value back to Hz.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank builds the [bands][fftSize/2+1] triangular filterbank with
// vertices at mel-evenly-spaced center frequencies between 0 Hz and Nyquist.
// Weights outside a band's support are exactly zero.
func melFilterbank(bands, fftSize, sampleRate int) ([][]float64, error) {
	if bands <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("melspec: invalid filterbank parameters (bands=%d fft=%d rate=%d)",
			bands, fftSize, sampleRate)
	}

	bins := fftSize/2 + 1
	nyquist := float64(sampleRate) / 2

	// bands+2 vertices evenly spaced on the mel axis.
	melLo := hzToMel(0)
	melHi := hzToMel(nyquist)
	vertices := make([]float64, bands+2)
	for i := range vertices {
		mel := melLo + (melHi-melLo)*float64(i)/float64(bands+1)
		vertices[i] = melToHz(mel)
	}

	fb := make([][]float64, bands)
	for m := range bands {
		row := make([]float64, bins)
		left, center, right := vertices[m], vertices[m+1], vertices[m+2]
		for i := range bins {
			hz := float64(i) * float64(sampleRate) / float64(fftSize)
			switch {
			case hz <= left || hz >= right:
				// outside support: exactly zero
			case hz <= center:
				row[i] = (hz - left) / (center - left)
			default:
				row[i] = (right - hz) / (right - center)
			}
		}
		fb[m] = row
	}
	return fb, nil
}

// Filterbank returns a copy of the mel filterbank matrix, shaped
// [MelBands][FFTSize/2+1]. Intended for inspection and tests.
func (e *Extractor) Filterbank() [][]float64 {
	out := make([][]float64, len(e.filterbank))
	for i, row := range e.filterbank {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
