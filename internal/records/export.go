package records

import (
	"context"
	"path"
	"sort"
	"strconv"

	"ensemblestore/internal/codec"
	"ensemblestore/pkg/domain"
)

// ExportFrame assembles the ensemble's response records into one wide frame:
// one row per realization, columns named "<record>:<label>". Realizations
// missing a record leave NaN cells, so ragged ensembles export cleanly.
// Filters are glob patterns matched against record names; an empty filter
// list keeps every response.
func (s *Service) ExportFrame(ctx context.Context, ensembleID string, filters []string) (codec.Frame, error) {
	rows := make(map[int]*codec.Series)
	var indexes []int
	rowFor := func(index int) *codec.Series {
		if row, ok := rows[index]; ok {
			return row
		}
		row := &codec.Series{Label: strconv.Itoa(index)}
		rows[index] = row
		indexes = append(indexes, index)
		return row
	}

	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.GetEnsemble(ensembleID); !ok {
			return domain.EnsembleNotFoundError{EnsembleID: ensembleID}
		}
		names := make(map[string]bool)
		var order []string
		for _, record := range view.ListRecords(ensembleID) {
			if record.Class != domain.RecordClassResponse {
				continue
			}
			if !nameSelected(record.Name, filters) {
				continue
			}
			if !names[record.Name] {
				names[record.Name] = true
				order = append(order, record.Name)
			}
		}
		for _, name := range order {
			for _, record := range view.ListRecordsByName(ensembleID, name) {
				matrixID, isMatrix := record.Payload.MatrixID()
				if !isMatrix {
					continue
				}
				matrix, ok := view.GetMatrix(matrixID)
				if !ok {
					continue
				}
				if record.RealizationIndex != nil && matrix.Rank() == 1 {
					appendColumns(rowFor(*record.RealizationIndex), name, matrix, matrixColumns(matrix, matrix.Shape[0]))
					continue
				}
				if record.RealizationIndex == nil && matrix.Rank() == 2 {
					columns := matrixColumns(matrix, matrix.Shape[1])
					for i := 0; i < matrix.Shape[0]; i++ {
						sliced, err := matrix.Slice(i)
						if err != nil {
							return err
						}
						appendColumns(rowFor(i), name, sliced, columns)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return codec.Frame{}, err
	}

	sort.Ints(indexes)
	series := make([]codec.Series, 0, len(indexes))
	for _, index := range indexes {
		series = append(series, *rows[index])
	}
	return codec.BuildFrame(series), nil
}

// ExportCSV renders the export frame as CSV.
func (s *Service) ExportCSV(ctx context.Context, ensembleID string, filters []string) ([]byte, error) {
	frame, err := s.ExportFrame(ctx, ensembleID, filters)
	if err != nil {
		return nil, err
	}
	return codec.EncodeCSV(frame)
}

func nameSelected(name string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, pattern := range filters {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func matrixColumns(matrix domain.FloatMatrix, n int) []string {
	if matrix.Labels != nil && len(matrix.Labels.Columns) == n {
		return matrix.Labels.Columns
	}
	return codec.PositionalLabels(n)
}

func appendColumns(row *codec.Series, name string, matrix domain.FloatMatrix, columns []string) {
	for i, col := range columns {
		row.Columns = append(row.Columns, name+":"+col)
		if i < len(matrix.Values) {
			row.Values = append(row.Values, matrix.Values[i])
		}
	}
}
