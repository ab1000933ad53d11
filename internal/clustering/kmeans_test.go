package clustering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	points := [][]float64{{0, 5, 10}, {10, 5, 20}, {5, 5, 15}}

	norm, bounds := Normalize(points)
	assert.Equal(t, [][]float64{{0, 0, 0}, {1, 0, 1}, {0.5, 0, 0.5}}, norm)
	assert.Equal(t, []float64{0, 5, 10}, bounds.Min)
	assert.Equal(t, []float64{5, 5, 15}, bounds.Denormalize([]float64{0.5, 0, 0.5}))

	empty, _ := Normalize(nil)
	assert.Nil(t, empty)
}

func TestKMeansSingleClusterInertia(t *testing.T) {
	points := [][]float64{{0, 0}, {2, 0}, {0, 2}, {2, 2}}

	res := KMeans(points, 1, Options{Rand: NewRand(7)})
	require.Equal(t, 1, res.K)
	assert.True(t, res.Converged)
	assert.Equal(t, []float64{1, 1}, res.Centroids[0])
	// sum of squared deviations from the mean
	assert.InDelta(t, 8.0, res.Inertia, 1e-9)
	assert.Equal(t, 0.0, Silhouette(points, res.Assignments, res.K))
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	var points [][]float64
	for i := 0; i < 10; i++ {
		points = append(points, []float64{0.01 * float64(i), 0})
		points = append(points, []float64{5 + 0.01*float64(i), 5})
	}

	res := KMeans(points, 2, Options{Rand: NewRand(42)})
	require.Len(t, res.Centroids, 2)
	for i := 0; i < len(points); i += 2 {
		assert.Equal(t, res.Assignments[0], res.Assignments[i])
		assert.Equal(t, res.Assignments[1], res.Assignments[i+1])
	}
	assert.NotEqual(t, res.Assignments[0], res.Assignments[1])
	assert.Greater(t, Silhouette(points, res.Assignments, 2), 0.9)
}

func TestKMeansIsDeterministicForSeed(t *testing.T) {
	var points [][]float64
	for i := 0; i < 40; i++ {
		points = append(points, []float64{float64(i % 7), float64((i * 3) % 11)})
	}

	a := KMeans(points, 4, Options{Rand: NewRand(99)})
	b := KMeans(points, 4, Options{Rand: NewRand(99)})
	assert.Equal(t, a.Assignments, b.Assignments)
	assert.Equal(t, a.Inertia, b.Inertia)
}

func TestKMeansClampsKToPoints(t *testing.T) {
	points := [][]float64{{0}, {1}}
	res := KMeans(points, 5, Options{Rand: NewRand(1)})
	assert.Equal(t, 2, res.K)
	assert.Equal(t, 0.0, res.Inertia)
}

func TestKMeansIdenticalPoints(t *testing.T) {
	points := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	res := KMeans(points, 2, Options{Rand: NewRand(3)})
	assert.Equal(t, 0.0, res.Inertia)
	assert.Len(t, res.Assignments, 3)
}

func TestSilhouetteGuards(t *testing.T) {
	points := [][]float64{{0}, {1}}
	assert.Equal(t, 0.0, Silhouette(points, []int{0, 1}, 2))
	assert.Equal(t, 0.0, Silhouette(points, []int{0, 0}, 1))
}

func TestSilhouetteSingletonScoresZero(t *testing.T) {
	points := [][]float64{{0}, {0.1}, {10}}
	// the lone point contributes 0; the pair scores close to 1
	s := Silhouette(points, []int{0, 0, 1}, 2)
	assert.InDelta(t, (2*(1-0.1/9.95))/3, s, 0.01)
}
