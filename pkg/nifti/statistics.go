package nifti

import "math"

// Statistics summarizes the finite voxel values of a volume.
type Statistics struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Count  int64
}

// ComputeStatistics makes two passes over the voxels: min, max, sum and
// count of finite values first, then the squared deviations from the mean.
// StdDev is the population standard deviation. NaN and infinities are
// skipped; an all-non-finite volume reports zeros.
func ComputeStatistics(v *Voxels) Statistics {
	at := v.accessor()
	n := v.Len()

	var (
		st  Statistics
		sum float64
	)
	st.Min = math.Inf(1)
	st.Max = math.Inf(-1)

	for i := 0; i < n; i++ {
		x := at(i)
		if !isFinite(x) {
			continue
		}
		if x < st.Min {
			st.Min = x
		}
		if x > st.Max {
			st.Max = x
		}
		sum += x
		st.Count++
	}

	if st.Count == 0 {
		return Statistics{}
	}
	st.Mean = sum / float64(st.Count)

	var sumSqDev float64
	for i := 0; i < n; i++ {
		x := at(i)
		if !isFinite(x) {
			continue
		}
		d := x - st.Mean
		sumSqDev += d * d
	}
	st.StdDev = math.Sqrt(sumSqDev / float64(st.Count))

	return st
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
