package nn

import (
	"math"
	"math/rand"
)

// uniformInit fills data with samples from U(-bound, bound).
func uniformInit(data []float32, bound float64, rng *rand.Rand) {
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// kaimingBound is the default linear/conv/recurrent init bound, 1/sqrt(fanIn).
func kaimingBound(fanIn int) float64 {
	if fanIn < 1 {
		fanIn = 1
	}
	return 1.0 / math.Sqrt(float64(fanIn))
}

// XavierUniform fills data with the Glorot uniform scheme,
// U(-sqrt(6/(fanIn+fanOut)), +sqrt(6/(fanIn+fanOut))).
func XavierUniform(data []float32, fanIn, fanOut int, rng *rand.Rand) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	uniformInit(data, bound, rng)
}
