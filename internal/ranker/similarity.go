package ranker

import "math"

// CosineSimilarity returns dot(u,v) / (|u|*|v|).
// Empty vectors, mismatched lengths, zero norms and non-finite results all score 0.
func CosineSimilarity(u, v []float32) float64 {
	if len(u) == 0 || len(u) != len(v) {
		return 0
	}

	var dot, normU, normV float64
	for i := range u {
		a, b := float64(u[i]), float64(v[i])
		dot += a * b
		normU += a * a
		normV += b * b
	}

	if normU == 0 || normV == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normU) * math.Sqrt(normV))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}

	// Rounding can push parallel vectors marginally past 1
	return math.Max(-1, math.Min(1, sim))
}
