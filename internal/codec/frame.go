package codec

import (
	"fmt"
	"math"
	"strconv"

	"ensemblestore/pkg/domain"
)

// Frame is a two-dimensional labeled table: the tabular rendering of a
// matrix. Missing cells (from outer joins of ragged series) hold NaN.
type Frame struct {
	Columns []string
	Index   []string
	Values  [][]float64 // len(Index) rows of len(Columns) cells
}

// Series is one labeled row contributed to a frame.
type Series struct {
	Label   string
	Columns []string
	Values  []float64
}

// BuildFrame outer-joins the series into a frame. Column order is
// first-seen; cells absent from a series are NaN.
func BuildFrame(series []Series) Frame {
	var columns []string
	position := make(map[string]int)
	for _, s := range series {
		for _, col := range s.Columns {
			if _, ok := position[col]; !ok {
				position[col] = len(columns)
				columns = append(columns, col)
			}
		}
	}
	frame := Frame{Columns: columns}
	for _, s := range series {
		row := make([]float64, len(columns))
		for i := range row {
			row[i] = math.NaN()
		}
		for i, col := range s.Columns {
			if i < len(s.Values) {
				row[position[col]] = s.Values[i]
			}
		}
		frame.Index = append(frame.Index, s.Label)
		frame.Values = append(frame.Values, row)
	}
	return frame
}

// PositionalLabels returns "0".."n-1", the fallback when a matrix carries no
// explicit labels.
func PositionalLabels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

// FrameFromMatrix renders a rank-1 or rank-2 matrix as a frame. A rank-1
// matrix becomes a single row. rowLabels overrides the row index when
// non-nil; missing labels fall back to positions.
func FrameFromMatrix(m domain.FloatMatrix, rowLabels []string) (Frame, error) {
	var rows, cols int
	switch m.Rank() {
	case 1:
		rows, cols = 1, m.Shape[0]
	case 2:
		rows, cols = m.Shape[0], m.Shape[1]
	default:
		return Frame{}, fmt.Errorf("tabular rendering of rank-%d matrices not supported", m.Rank())
	}
	columns := PositionalLabels(cols)
	index := PositionalLabels(rows)
	if m.Labels != nil {
		if len(m.Labels.Columns) == cols {
			columns = append([]string(nil), m.Labels.Columns...)
		}
		if m.Rank() == 2 && len(m.Labels.Rows) == rows {
			index = append([]string(nil), m.Labels.Rows...)
		}
	}
	if rowLabels != nil {
		if len(rowLabels) != rows {
			return Frame{}, fmt.Errorf("%d row labels for %d rows", len(rowLabels), rows)
		}
		index = append([]string(nil), rowLabels...)
	}
	frame := Frame{Columns: columns, Index: index}
	for r := 0; r < rows; r++ {
		frame.Values = append(frame.Values, append([]float64(nil), m.Values[r*cols:(r+1)*cols]...))
	}
	return frame, nil
}

// Matrix converts the frame back to a labeled rank-2 matrix.
func (f Frame) Matrix() domain.FloatMatrix {
	values := make([]float64, 0, len(f.Index)*len(f.Columns))
	for _, row := range f.Values {
		values = append(values, row...)
	}
	return domain.FloatMatrix{
		Shape:  []int{len(f.Index), len(f.Columns)},
		Values: values,
		Labels: &domain.Labels{
			Columns: append([]string(nil), f.Columns...),
			Rows:    append([]string(nil), f.Index...),
		},
	}
}
