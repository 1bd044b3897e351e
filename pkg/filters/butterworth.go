package filters

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ERR_DESIGN    = errors.New("Degenerate filter design")
	ERR_TOO_SHORT = errors.New("Sequence is not longer than the padding")
)

// ButterLowpass designs a digital low-pass Butterworth filter of the
// given order. Wn is the cutoff normalized to the Nyquist frequency,
// 0 < Wn < 1. Returns numerator b and denominator a with a[0] == 1.
func ButterLowpass(order int, wn float64) (b, a []float64, err error) {
	if order < 1 || !(wn > 0 && wn < 1) {
		return nil, nil, fmt.Errorf("order %d, cutoff %v: %w", order, wn, ERR_DESIGN)
	}
	// prewarp for the bilinear transform with fs = 2
	const fs2 = 4.0
	warped := fs2 * math.Tan(math.Pi*wn/2)

	poles := make([]complex128, 0, order)
	for m := -order + 1; m < order; m += 2 {
		p := -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*order)))
		poles = append(poles, p*complex(warped, 0))
	}

	digital_poles := make([]complex128, order)
	denominator := complex(1, 0)
	for i, p := range poles {
		digital_poles[i] = (fs2 + p) / (fs2 - p)
		denominator *= fs2 - p
	}
	gain := math.Pow(warped, float64(order)) * real(1/denominator)

	zeros := make([]complex128, order)
	for i := range zeros {
		zeros[i] = -1
	}
	b = realPart(poly(zeros))
	for i := range b {
		b[i] *= gain
	}
	a = realPart(poly(digital_poles))
	for _, v := range slices.Concat(a, b) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("order %d, cutoff %v: %w", order, wn, ERR_DESIGN)
		}
	}
	return b, a, nil
}

// coefficients of the monic polynomial with the given roots,
// highest power first
func poly(roots []complex128) []complex128 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	return c
}

func realPart(c []complex128) []float64 {
	ret := make([]float64, len(c))
	for i, v := range c {
		ret[i] = real(v)
	}
	return ret
}

// LfilterZi returns the initial state of Lfilter that corresponds to the
// steady state of a unit step response
func LfilterZi(b, a []float64) ([]float64, error) {
	n := max(len(a), len(b))
	b, a = padTo(b, n), padTo(a, n)
	if n < 2 {
		return []float64{}, nil
	}
	if a[0] != 1 {
		a0 := a[0]
		for i := range n {
			b[i] /= a0
			a[i] /= a0
		}
	}

	// (I - companion(a)^T) zi = b[1:] - a[1:] * b[0]
	m := n - 1
	lhs := mat.NewDense(m, m, nil)
	for i := range m {
		lhs.Set(i, i, 1)
		lhs.Set(i, 0, lhs.At(i, 0)+a[i+1])
		if i+1 < m {
			lhs.Set(i, i+1, -1)
		}
	}
	rhs := mat.NewVecDense(m, nil)
	for i := range m {
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(lhs, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("Can't solve for initial conditions: %w", err)
		}
	}
	ret := make([]float64, m)
	for i := range m {
		ret[i] = zi.AtVec(i)
	}
	return ret, nil
}

// Lfilter runs x through the filter (b, a) in direct form II transposed
// starting from state zi, a[0] must be 1. Returns the output and the
// final state.
func Lfilter(b, a, x, zi []float64) ([]float64, []float64) {
	n := max(len(a), len(b))
	b, a = padTo(b, n), padTo(a, n)
	z := make([]float64, n)
	copy(z, zi)
	y := make([]float64, len(x))
	for k, xk := range x {
		yk := b[0]*xk + z[0]
		for i := 0; i < n-2; i++ {
			z[i] = b[i+1]*xk + z[i+1] - a[i+1]*yk
		}
		if n > 1 {
			z[n-2] = b[n-1]*xk - a[n-1]*yk
		}
		y[k] = yk
	}
	return y, z[:max(n-1, 0)]
}

// FiltFilt applies the filter forward and backward for zero phase,
// padding both ends with an odd extension of 3 * max(len(a), len(b))
// samples. x must be longer than the padding.
func FiltFilt(b, a, x []float64) ([]float64, error) {
	padlen := 3 * max(len(a), len(b))
	if len(x) <= padlen {
		return nil, fmt.Errorf("%d samples, padding %d: %w", len(x), padlen, ERR_TOO_SHORT)
	}
	zi, err := LfilterZi(b, a)
	if err != nil {
		return nil, err
	}

	ext := oddExtend(x, padlen)
	y, _ := Lfilter(b, a, ext, scaled(zi, ext[0]))
	slices.Reverse(y)
	y, _ = Lfilter(b, a, y, scaled(zi, y[0]))
	slices.Reverse(y)

	out := y[padlen : len(y)-padlen]
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("Filter output is not finite: %w", ERR_DESIGN)
		}
	}
	return out, nil
}

func oddExtend(x []float64, n int) []float64 {
	l := len(x)
	ext := make([]float64, 0, l+2*n)
	for i := n; i > 0; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := l - 2; i > l-2-n; i-- {
		ext = append(ext, 2*x[l-1]-x[i])
	}
	return ext
}

func scaled(v []float64, s float64) []float64 {
	return floats.ScaleTo(make([]float64, len(v)), s, v)
}

func padTo(s []float64, n int) []float64 {
	ret := make([]float64, n)
	copy(ret, s)
	return ret
}
