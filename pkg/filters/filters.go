package filters

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

type Kind string

const (
	Butterworth Kind = "butterworth"
	Gaussian    Kind = "gaussian"
	Median      Kind = "median"
)

const (
	// shorter sequences pass through the low-pass filter unchanged
	MinButterworthSamples = 10
	MinWindowSamples      = 3
	// normalized cutoff used when the requested one is at or above Nyquist
	MaxNormalizedCutoff = 0.99
	gaussian_truncate   = 4.0
)

// Func transforms a whole gap-free sequence. The input is never modified.
type Func func([]float64) []float64

type Params struct {
	Order        int
	CutoffHz     float64
	Sigma        float64
	MedianKernel int
}

func DefaultParams() Params {
	return Params{
		Order:        4,
		CutoffHz:     6,
		Sigma:        1,
		MedianKernel: 3,
	}
}

// Engine hands out smoothing functions. Stateless, safe for concurrent use.
type Engine struct {
	params Params
	logger *slog.Logger
}

func NewEngine(params Params, logger *slog.Logger) *Engine {
	return &Engine{params: params, logger: logger}
}

// Get returns the filter of the given kind for a sequence sampled at
// sample_rate Hz. Unknown kinds get the identity function.
func (e *Engine) Get(kind Kind, sample_rate float64) Func {
	switch kind {
	case Butterworth:
		return e.butterworth(sample_rate)
	case Gaussian:
		return e.gaussian()
	case Median:
		return e.median()
	default:
		e.warn("Unknown filter kind, passing data through", "kind", kind)
		return identity
	}
}

func identity(x []float64) []float64 {
	return slices.Clone(x)
}

func (e *Engine) butterworth(sample_rate float64) Func {
	params := e.params
	return func(x []float64) []float64 {
		if len(x) < MinButterworthSamples {
			return slices.Clone(x)
		}
		if sample_rate <= 0 {
			e.warn("Bad sample rate, skipping filter", "sample_rate", sample_rate)
			return slices.Clone(x)
		}
		wn := params.CutoffHz / (sample_rate / 2)
		if wn >= 1 {
			wn = MaxNormalizedCutoff
		}
		b, a, err := ButterLowpass(params.Order, wn)
		if err != nil {
			e.warn("Can't design filter", "err", err)
			return slices.Clone(x)
		}
		y, err := FiltFilt(b, a, x)
		if err != nil {
			e.warn("Can't apply filter", "err", err, "samples", len(x))
			return slices.Clone(x)
		}
		return y
	}
}

func (e *Engine) gaussian() Func {
	sigma := e.params.Sigma
	return func(x []float64) []float64 {
		if len(x) < MinWindowSamples || sigma <= 0 {
			return slices.Clone(x)
		}
		kernel := gaussianKernel(sigma)
		radius := len(kernel) / 2
		n := len(x)
		y := make([]float64, n)
		for i := range n {
			var acc float64
			for k, w := range kernel {
				acc += w * x[reflect(i+k-radius, n)]
			}
			y[i] = acc
		}
		return y
	}
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(gaussian_truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// index into a sequence of length n extended by mirroring about the
// edges, the edge samples included (d c b a | a b c d | d c b a)
func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

func (e *Engine) median() Func {
	kernel := e.params.MedianKernel
	return func(x []float64) []float64 {
		if len(x) < MinWindowSamples || kernel < 1 || kernel%2 == 0 {
			return slices.Clone(x)
		}
		half := kernel / 2
		n := len(x)
		y := make([]float64, n)
		window := make([]float64, kernel)
		for i := range n {
			// zero padded at both ends
			for k := range kernel {
				j := i + k - half
				if j < 0 || j >= n {
					window[k] = 0
				} else {
					window[k] = x[j]
				}
			}
			slices.Sort(window)
			y[i] = window[half]
		}
		return y
	}
}

func (e *Engine) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
