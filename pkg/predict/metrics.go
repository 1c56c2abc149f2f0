package predict

import "sort"

// decisionThreshold converts a probability into a predicted class.
const decisionThreshold = 0.5

// Metrics holds binary-classification quality measures for one partition.
type Metrics struct {
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	ROCAUC    float64 `json:"roc_auc" yaml:"roc_auc"`
}

// evaluate scores predicted probabilities against true labels.
func evaluate(probs, labels []float64) Metrics {
	if len(probs) == 0 {
		return Metrics{}
	}

	var tp, fp, tn, fn float64

	for i, prob := range probs {
		predicted := prob >= decisionThreshold
		actual := labels[i] >= decisionThreshold

		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}

	metrics := Metrics{
		Accuracy:  (tp + tn) / float64(len(probs)),
		Precision: safeDivide(tp, tp+fp),
		Recall:    safeDivide(tp, tp+fn),
		ROCAUC:    rocAUC(probs, labels),
	}
	metrics.F1 = safeDivide(2*metrics.Precision*metrics.Recall, metrics.Precision+metrics.Recall)

	return metrics
}

// rocAUC computes the area under the ROC curve by the rank statistic,
// averaging ranks across probability ties. Degenerate single-class
// partitions score 0.5.
func rocAUC(probs, labels []float64) float64 {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		return probs[order[a]] < probs[order[b]]
	})

	ranks := make([]float64, len(probs))

	for i := 0; i < len(order); {
		j := i
		for j < len(order) && probs[order[j]] == probs[order[i]] {
			j++
		}

		// Average rank over the tie group; ranks are 1-based.
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}

		i = j
	}

	var positives, rankSum float64

	for i, label := range labels {
		if label >= decisionThreshold {
			positives++
			rankSum += ranks[i]
		}
	}

	negatives := float64(len(labels)) - positives
	if positives == 0 || negatives == 0 {
		return 0.5
	}

	return (rankSum - positives*(positives+1)/2) / (positives * negatives)
}

func safeDivide(num, den float64) float64 {
	if den == 0 {
		return 0
	}

	return num / den
}
