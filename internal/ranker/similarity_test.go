package ranker

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		u, v []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{1, 2}, []float32{0, 0}, 0},
		{"empty", []float32{}, []float32{}, 0},
		{"nil", nil, []float32{1}, 0},
		{"length mismatch", []float32{1, 2, 3}, []float32{1, 2}, 0},
		{"nan component", []float32{float32(math.NaN()), 1}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.u, tt.v), 1e-9)
		})
	}
}

func TestCosineSimilaritySelf(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v := make([]float32, 64)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
		assert.Equal(t, 0.0, CosineSimilarity(v, make([]float32, len(v))))
	}
}

func BenchmarkCosineSimilarity(b *testing.B) {
	u := make([]float32, 1536)
	v := make([]float32, 1536)
	for i := range u {
		u[i] = float32(i%7) / 7
		v[i] = float32(i%5) / 5
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CosineSimilarity(u, v)
	}
}
