package tensor

import (
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalizes src to zero mean and unit variance, then applies the
// learned weight and bias. GPT-2 style (biased, unlike RMSNorm).
func LayerNorm(dst, src, weight, bias []float32, eps float32) {
	var mean float32
	for _, v := range src {
		mean += v
	}
	mean /= float32(len(src))
	var variance float32
	for _, v := range src {
		d := v - mean
		variance += d * d
	}
	variance /= float32(len(src))
	inv := float32(1.0) / float32(math.Sqrt(float64(variance+eps)))
	for i := range src {
		dst[i] = (src[i]-mean)*inv*weight[i] + bias[i]
	}
}

// Softmax applies the softmax function to x.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Gelu computes the Gaussian Error Linear Unit activation using the tanh
// approximation, matching the GPT-2 reference ("gelu_new").
func Gelu(x float32) float32 {
	const c = 0.7978845608028654 // sqrt(2/pi)
	v := float64(x)
	return float32(0.5 * v * (1.0 + math.Tanh(c*(v+0.044715*v*v*v))))
}

// Argmax returns the index of the largest element of x, or -1 when x is empty.
func Argmax(x []float32) int {
	if len(x) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
