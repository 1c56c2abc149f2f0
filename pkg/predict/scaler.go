package predict

import "math"

// standardScaler standardizes features to zero mean and unit variance.
// Fit on the training partition only; constant features scale by 1 so
// transformation never divides by zero.
type standardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// fitScaler computes per-feature mean and standard deviation.
func fitScaler(samples [][]float64) *standardScaler {
	if len(samples) == 0 {
		return &standardScaler{}
	}

	width := len(samples[0])
	scaler := &standardScaler{
		Mean:  make([]float64, width),
		Scale: make([]float64, width),
	}

	for _, sample := range samples {
		for j, value := range sample {
			scaler.Mean[j] += value
		}
	}

	for j := range scaler.Mean {
		scaler.Mean[j] /= float64(len(samples))
	}

	for _, sample := range samples {
		for j, value := range sample {
			dev := value - scaler.Mean[j]
			scaler.Scale[j] += dev * dev
		}
	}

	for j := range scaler.Scale {
		scaler.Scale[j] = math.Sqrt(scaler.Scale[j] / float64(len(samples)))
		if scaler.Scale[j] == 0 {
			scaler.Scale[j] = 1
		}
	}

	return scaler
}

// transform standardizes one sample.
func (s *standardScaler) transform(sample []float64) []float64 {
	scaled := make([]float64, len(sample))

	for j, value := range sample {
		if j < len(s.Mean) {
			scaled[j] = (value - s.Mean[j]) / s.Scale[j]

			continue
		}

		scaled[j] = value
	}

	return scaled
}

// transformAll standardizes a sample matrix.
func (s *standardScaler) transformAll(samples [][]float64) [][]float64 {
	scaled := make([][]float64, len(samples))
	for i, sample := range samples {
		scaled[i] = s.transform(sample)
	}

	return scaled
}
