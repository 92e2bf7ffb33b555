package vector

import "math"

// SquaredL2 returns the squared Euclidean distance between a and b, the metric a flat L2 index reports.
// Vectors of different length are infinitely far apart.
func SquaredL2(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// RelevanceScore maps a distance to a similarity in (0, 1]: 1/(1+d).
// It is monotonically decreasing; distance 0 scores 1.
func RelevanceScore(distance float64) float64 {
	if math.IsNaN(distance) || distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}
