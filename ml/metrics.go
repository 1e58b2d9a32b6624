package ml

import (
	"fmt"
	"math"
)

// RMSE is the root mean squared error between predictions and truth.
func RMSE(actual, predicted []float64) (float64, error) {
	if err := sameLength(actual, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual))), nil
}

// MAE is the mean absolute error between predictions and truth.
func MAE(actual, predicted []float64) (float64, error) {
	if err := sameLength(actual, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual)), nil
}

// RSquared is the coefficient of determination of predictions against truth.
func RSquared(actual, predicted []float64) (float64, error) {
	if err := sameLength(actual, predicted); err != nil {
		return 0, err
	}
	mean := 0.0
	for _, y := range actual {
		mean += y
	}
	mean /= float64(len(actual))

	rss, tss := 0.0, 0.0
	for i := range actual {
		r := actual[i] - predicted[i]
		rss += r * r
		d := actual[i] - mean
		tss += d * d
	}
	if tss == 0 {
		return 0, fmt.Errorf("actual values are constant")
	}
	return 1 - rss/tss, nil
}

// Accuracy is the fraction of matching labels.
func Accuracy(actual, predicted []string) (float64, error) {
	if len(actual) != len(predicted) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return 0, fmt.Errorf("empty inputs")
	}
	correct := 0
	for i := range actual {
		if actual[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual)), nil
}

// ConfusionMatrix counts actual x predicted label pairs.
func ConfusionMatrix(actual, predicted []string) (map[string]map[string]int, error) {
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("length mismatch: %d vs %d", len(actual), len(predicted))
	}
	out := make(map[string]map[string]int)
	for i := range actual {
		row, ok := out[actual[i]]
		if !ok {
			row = make(map[string]int)
			out[actual[i]] = row
		}
		row[predicted[i]]++
	}
	return out, nil
}

func sameLength(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return fmt.Errorf("empty inputs")
	}
	return nil
}
