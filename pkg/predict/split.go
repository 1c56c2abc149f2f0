package predict

import "math/rand"

// stratifiedSplit partitions samples into train and test sets, preserving
// the label distribution per class. Each class keeps at least one training
// sample. Deterministic for a fixed seed.
func stratifiedSplit(
	samples [][]float64,
	labels []float64,
	testFraction float64,
	seed int64,
) (trainX, testX [][]float64, trainY, testY []float64) {
	byClass := make(map[float64][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}

	// Deterministic class order: iterate 0 then 1 explicitly, then any
	// stray labels (regression residuals never reach here).
	classes := []float64{0, 1}
	for label := range byClass {
		if label != 0 && label != 1 {
			classes = append(classes, label)
		}
	}

	rng := rand.New(rand.NewSource(seed))

	for _, class := range classes {
		indices := byClass[class]
		if len(indices) == 0 {
			continue
		}

		rng.Shuffle(len(indices), func(a, b int) {
			indices[a], indices[b] = indices[b], indices[a]
		})

		testCount := int(testFraction * float64(len(indices)))
		if testCount >= len(indices) {
			testCount = len(indices) - 1
		}

		for i, idx := range indices {
			if i < testCount {
				testX = append(testX, samples[idx])
				testY = append(testY, labels[idx])

				continue
			}

			trainX = append(trainX, samples[idx])
			trainY = append(trainY, labels[idx])
		}
	}

	return trainX, testX, trainY, testY
}
