// Package compute implements derived numerical views over stored records.
package compute

import "fmt"

// Misfits returns the squared, error-normalized residuals between a
// response vector and observed values: ((response - observed) / error)^2.
func Misfits(response, observed, errors []float64) ([]float64, error) {
	if len(observed) != len(errors) {
		return nil, fmt.Errorf("observation has %d values but %d errors", len(observed), len(errors))
	}
	if len(response) != len(observed) {
		return nil, fmt.Errorf("response has %d values, observation has %d", len(response), len(observed))
	}
	out := make([]float64, len(response))
	for i := range response {
		if errors[i] == 0 {
			return nil, fmt.Errorf("observation error at position %d is zero", i)
		}
		d := (response[i] - observed[i]) / errors[i]
		out[i] = d * d
	}
	return out, nil
}

// Summary collapses a misfit vector to its sum.
func Summary(misfits []float64) float64 {
	var sum float64
	for _, v := range misfits {
		sum += v
	}
	return sum
}
