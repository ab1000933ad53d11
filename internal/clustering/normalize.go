package clustering

// Bounds holds the per-dimension range used to normalize a point set.
type Bounds struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// Normalize rescales every dimension independently onto [0,1]. A dimension
// with zero range maps to 0.
func Normalize(points [][]float64) ([][]float64, Bounds) {
	if len(points) == 0 {
		return nil, Bounds{}
	}
	dims := len(points[0])
	b := Bounds{Min: clone(points[0]), Max: clone(points[0])}
	for _, p := range points[1:] {
		for d, v := range p {
			b.Min[d] = min(b.Min[d], v)
			b.Max[d] = max(b.Max[d], v)
		}
	}

	out := make([][]float64, len(points))
	for i, p := range points {
		row := make([]float64, dims)
		for d, v := range p {
			span := b.Max[d] - b.Min[d]
			if span > 0 {
				row[d] = (v - b.Min[d]) / span
			}
		}
		out[i] = row
	}
	return out, b
}

// Denormalize maps a normalized vector back onto the original scale.
func (b Bounds) Denormalize(v []float64) []float64 {
	out := make([]float64, len(v))
	for d, x := range v {
		out[d] = b.Min[d] + x*(b.Max[d]-b.Min[d])
	}
	return out
}
