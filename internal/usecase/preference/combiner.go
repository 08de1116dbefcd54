// Package preference derives a user's personalization vector from their
// interaction history.
package preference

import "math"

// Interaction weights. Likes are a stronger signal than views.
const (
	viewedWeight = 0.3
	likedWeight  = 0.7
)

// Combine folds liked and viewed post embeddings into a single unit vector.
// Each group is averaged, the averages are blended 0.7 liked / 0.3 viewed,
// and the blend is L2-normalized. Nil entries are skipped; when neither
// group contributes a vector the result is nil and the user stays cold.
func Combine(liked, viewed [][]float32) []float32 {
	likedAvg := averageEmbeddings(liked)
	viewedAvg := averageEmbeddings(viewed)

	if likedAvg == nil && viewedAvg == nil {
		return nil
	}
	if likedAvg == nil {
		return normalize(viewedAvg)
	}
	if viewedAvg == nil {
		return normalize(likedAvg)
	}

	// Dimensions can differ across embedding model versions; missing
	// trailing components count as zero.
	dim := len(likedAvg)
	if len(viewedAvg) > dim {
		dim = len(viewedAvg)
	}
	combined := make([]float32, dim)
	for i := range combined {
		var v float64
		if i < len(likedAvg) {
			v += likedWeight * float64(likedAvg[i])
		}
		if i < len(viewedAvg) {
			v += viewedWeight * float64(viewedAvg[i])
		}
		combined[i] = float32(v)
	}
	return normalize(combined)
}

// averageEmbeddings computes the component-wise mean of the non-nil vectors.
// Returns nil when nothing contributes.
func averageEmbeddings(embeddings [][]float32) []float32 {
	var (
		sum   []float64
		count int
	)
	for _, e := range embeddings {
		if len(e) == 0 {
			continue
		}
		if len(e) > len(sum) {
			grown := make([]float64, len(e))
			copy(grown, sum)
			sum = grown
		}
		for i, v := range e {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	avg := make([]float32, len(sum))
	for i, v := range sum {
		avg[i] = float32(v / float64(count))
	}
	return avg
}

// normalize scales v to unit length. A zero vector carries no direction and
// normalizes to nil.
func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
