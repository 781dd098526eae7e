// Package colour provides dominant colour extraction and palette aggregation.
package colour

import (
	"fmt"
	"math"
	"math/rand"
)

// KMeans clusters colour samples in RGB space.
// A KMeans holds only tuning parameters and is safe for concurrent use;
// all per-run state lives in the caller's random source and local slices.
type KMeans struct {
	maxIterations int
	convergence   float64
}

// NewKMeans creates a KMeans with default settings.
func NewKMeans() *KMeans {
	return &KMeans{
		maxIterations: 20,
		convergence:   2.0,
	}
}

// NewKMeansWithOptions creates a KMeans with custom iteration cap and convergence threshold.
// Non-positive values fall back to the defaults.
func NewKMeansWithOptions(maxIterations int, convergence float64) *KMeans {
	km := NewKMeans()
	if maxIterations > 0 {
		km.maxIterations = maxIterations
	}
	if convergence > 0 {
		km.convergence = convergence
	}
	return km
}

// point3D represents a point in 3D RGB colour space.
type point3D struct {
	R, G, B float64
}

// distance calculates the Euclidean distance between two points in RGB space.
func (p point3D) distance(other point3D) float64 {
	dr := p.R - other.R
	dg := p.G - other.G
	db := p.B - other.B
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// toRGB rounds to the nearest integer and clamps each component to [0,255].
func (p point3D) toRGB() RGB {
	return RGB{R: clampChannel(p.R), G: clampChannel(p.G), B: clampChannel(p.B)}
}

func clampChannel(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

// Cluster partitions samples into k groups and returns the k centroids with
// their weights (relative cluster sizes summing to 1).
// Exactly k centroids are returned whenever len(samples) >= k, even when the
// samples contain fewer than k distinct colours.
func (km *KMeans) Cluster(samples []RGB, k int, rng *rand.Rand) ([]RGB, []float64, error) {
	if err := validateColourCount(k); err != nil {
		return nil, nil, err
	}
	if len(samples) < k {
		return nil, nil, fmt.Errorf("%w: %d samples for %d clusters", ErrInsufficientSamples, len(samples), k)
	}
	if rng == nil {
		return nil, nil, fmt.Errorf("random source cannot be nil")
	}

	points := make([]point3D, len(samples))
	for i, s := range samples {
		points[i] = point3D{R: float64(s.R), G: float64(s.G), B: float64(s.B)}
	}

	centroids, weights := km.run(points, k, rng)

	out := make([]RGB, len(centroids))
	for i, c := range centroids {
		out[i] = c.toRGB()
	}
	return out, weights, nil
}

// run performs Lloyd iterations from a k-means++ initialisation.
func (km *KMeans) run(points []point3D, k int, rng *rand.Rand) ([]point3D, []float64) {
	centroids := initializeCentroidsKMeansPlusPlus(points, k, rng)

	// -1 marks "unassigned" so the first pass always registers every point as changed.
	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}

	for iter := 0; iter < km.maxIterations; iter++ {
		changed := 0
		for i, point := range points {
			nearest := findNearestCentroid(point, centroids)
			if assignments[i] != nearest {
				assignments[i] = nearest
				changed++
			}
		}

		// Fewer than 1% of assignments moved.
		if float64(changed)/float64(len(points)) < 0.01 {
			break
		}

		newCentroids := recalculateCentroids(points, assignments, k, rng)

		totalMovement := 0.0
		for i := range centroids {
			totalMovement += centroids[i].distance(newCentroids[i])
		}
		avgMovement := totalMovement / float64(k)

		centroids = newCentroids

		if avgMovement < km.convergence {
			break
		}
	}

	// Final assignment against the settled centroids so weights match them.
	weights := make([]float64, k)
	for _, point := range points {
		weights[findNearestCentroid(point, centroids)]++
	}
	total := float64(len(points))
	for i := range weights {
		weights[i] /= total
	}

	return centroids, weights
}

// initializeCentroidsKMeansPlusPlus chooses initial centroids with probability
// proportional to squared distance from the nearest existing centroid.
func initializeCentroidsKMeansPlusPlus(points []point3D, k int, rng *rand.Rand) []point3D {
	if len(points) == 0 || k == 0 {
		return []point3D{}
	}

	centroids := make([]point3D, 0, k)
	centroids = append(centroids, points[rng.Intn(len(points))])

	distances := make([]float64, len(points))
	for len(centroids) < k {
		totalDistance := 0.0
		for i, point := range points {
			minDist := math.MaxFloat64
			for _, centroid := range centroids {
				if dist := point.distance(centroid); dist < minDist {
					minDist = dist
				}
			}
			distances[i] = minDist * minDist
			totalDistance += distances[i]
		}

		if totalDistance == 0 {
			// Every point coincides with a centroid: duplicate the last one,
			// nudged so ties resolve deterministically to the earlier centroid.
			last := centroids[len(centroids)-1]
			centroids = append(centroids, point3D{R: last.R + 0.1, G: last.G + 0.1, B: last.B + 0.1})
			continue
		}

		target := rng.Float64() * totalDistance
		cumulative := 0.0
		chosen := len(points) - 1
		for i, dist := range distances {
			cumulative += dist
			if cumulative >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, points[chosen])
	}

	return centroids
}

// findNearestCentroid finds the index of the nearest centroid to a point.
func findNearestCentroid(point point3D, centroids []point3D) int {
	minDist := math.MaxFloat64
	nearest := 0

	for i, centroid := range centroids {
		if dist := point.distance(centroid); dist < minDist {
			minDist = dist
			nearest = i
		}
	}

	return nearest
}

// recalculateCentroids recalculates centroid positions from their assigned points.
// Empty clusters are re-seeded from a random point.
func recalculateCentroids(points []point3D, assignments []int, k int, rng *rand.Rand) []point3D {
	sums := make([]point3D, k)
	counts := make([]int, k)

	for i, point := range points {
		cluster := assignments[i]
		sums[cluster].R += point.R
		sums[cluster].G += point.G
		sums[cluster].B += point.B
		counts[cluster]++
	}

	centroids := make([]point3D, k)
	for i := range k {
		if counts[i] > 0 {
			n := float64(counts[i])
			centroids[i] = point3D{R: sums[i].R / n, G: sums[i].G / n, B: sums[i].B / n}
		} else {
			centroids[i] = points[rng.Intn(len(points))]
		}
	}

	return centroids
}
