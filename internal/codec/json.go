package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ensemblestore/pkg/domain"
)

// DecodeJSON parses a nested JSON array into a flattened matrix, enforcing
// rectangularity at every level.
func DecodeJSON(data []byte) (domain.FloatMatrix, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.FloatMatrix{}, fmt.Errorf("parse json: %w", err)
	}
	shape, values, err := flatten(raw)
	if err != nil {
		return domain.FloatMatrix{}, err
	}
	return domain.FloatMatrix{Shape: shape, Values: values}, nil
}

func flatten(node any) ([]int, []float64, error) {
	switch v := node.(type) {
	case float64:
		return []int{}, []float64{v}, nil
	case []any:
		if len(v) == 0 {
			return []int{0}, nil, nil
		}
		headShape, values, err := flatten(v[0])
		if err != nil {
			return nil, nil, err
		}
		for _, sibling := range v[1:] {
			shape, more, err := flatten(sibling)
			if err != nil {
				return nil, nil, err
			}
			if !equalShape(shape, headShape) {
				return nil, nil, fmt.Errorf("ragged array: %v next to %v", shape, headShape)
			}
			values = append(values, more...)
		}
		return append([]int{len(v)}, headShape...), values, nil
	default:
		return nil, nil, fmt.Errorf("unexpected element %T in matrix", node)
	}
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EncodeJSON renders the matrix as a nested JSON array. A rank-0 matrix
// encodes as a bare number.
func EncodeJSON(m domain.FloatMatrix) ([]byte, error) {
	var b strings.Builder
	if err := writeNested(&b, m.Shape, m.Values); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeNested(b *strings.Builder, shape []int, values []float64) error {
	if len(shape) == 0 {
		if len(values) != 1 {
			return fmt.Errorf("scalar requires exactly one value, got %d", len(values))
		}
		b.WriteString(formatFloat(values[0]))
		return nil
	}
	stride := 1
	for _, dim := range shape[1:] {
		stride *= dim
	}
	b.WriteByte('[')
	for i := 0; i < shape[0]; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeNested(b, shape[1:], values[i*stride:(i+1)*stride]); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
