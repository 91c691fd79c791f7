package records

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"ensemblestore/internal/codec"
	"ensemblestore/internal/compute"
	"ensemblestore/pkg/domain"
)

// ComputeMisfits compares a response record against its attached
// observations. The result frame has one row per realization; columns are
// the observation x-axis positions, or one summed column per observation
// when summary is set.
func (s *Service) ComputeMisfits(ctx context.Context, ensembleID, responseName string, realizationIndex *int, summary bool) (codec.Frame, error) {
	type realizationResponse struct {
		index   int
		matrix  domain.FloatMatrix
		columns []string
	}
	var responses []realizationResponse
	var observations []domain.Observation

	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, err := ensembleFor(view, ensembleID, realizationIndex, responseName); err != nil {
			return err
		}
		found := false
		seen := make(map[string]bool)
		collectObservations := func(record domain.Record) {
			for _, observationID := range record.ObservationIDs {
				if seen[observationID] {
					continue
				}
				seen[observationID] = true
				if observation, ok := view.GetObservation(observationID); ok {
					observations = append(observations, observation)
				}
			}
		}
		for _, record := range view.ListRecordsByName(ensembleID, responseName) {
			matrixID, isMatrix := record.Payload.MatrixID()
			if !isMatrix {
				continue
			}
			matrix, ok := view.GetMatrix(matrixID)
			if !ok {
				continue
			}
			collectObservations(record)
			if record.RealizationIndex == nil && matrix.Rank() == 2 {
				columns := matrixColumns(matrix, matrix.Shape[1])
				for i := 0; i < matrix.Shape[0]; i++ {
					if realizationIndex != nil && *realizationIndex != i {
						continue
					}
					sliced, err := matrix.Slice(i)
					if err != nil {
						return err
					}
					responses = append(responses, realizationResponse{index: i, matrix: sliced, columns: columns})
					found = true
				}
			} else if record.RealizationIndex != nil && matrix.Rank() == 1 {
				if realizationIndex != nil && *realizationIndex != *record.RealizationIndex {
					continue
				}
				responses = append(responses, realizationResponse{
					index:   *record.RealizationIndex,
					matrix:  matrix,
					columns: matrixColumns(matrix, matrix.Shape[0]),
				})
				found = true
			}
		}
		if !found {
			return domain.RecordNotFoundError{Name: responseName, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
		}
		if len(observations) == 0 {
			return domain.ValidationError{Reason: fmt.Sprintf("record %q has no observations", responseName)}
		}
		return nil
	})
	if err != nil {
		return codec.Frame{}, err
	}

	sort.Slice(responses, func(i, j int) bool { return responses[i].index < responses[j].index })

	var series []codec.Series
	for _, response := range responses {
		row := codec.Series{Label: strconv.Itoa(response.index)}
		for _, observation := range observations {
			values, err := valuesAt(response.matrix, response.columns, observation.XAxis)
			if err != nil {
				return codec.Frame{}, domain.ValidationError{Reason: err.Error()}
			}
			misfits, err := compute.Misfits(values, observation.Values, observation.Errors)
			if err != nil {
				return codec.Frame{}, domain.ValidationError{Reason: err.Error()}
			}
			if summary {
				row.Columns = append(row.Columns, observation.Name)
				row.Values = append(row.Values, compute.Summary(misfits))
				continue
			}
			for i, x := range observation.XAxis {
				row.Columns = append(row.Columns, observationColumn(observations, observation, x))
				row.Values = append(row.Values, misfits[i])
			}
		}
		series = append(series, row)
	}
	return codec.BuildFrame(series), nil
}

// valuesAt extracts the response values at the observation's x positions,
// matching by column label.
func valuesAt(matrix domain.FloatMatrix, columns, xAxis []string) ([]float64, error) {
	position := make(map[string]int, len(columns))
	for i, col := range columns {
		position[col] = i
	}
	out := make([]float64, len(xAxis))
	for i, x := range xAxis {
		p, ok := position[x]
		if !ok {
			return nil, fmt.Errorf("response has no value at x position %q", x)
		}
		out[i] = matrix.Values[p]
	}
	return out, nil
}

// observationColumn keeps columns unambiguous when several observations
// contribute to one frame.
func observationColumn(all []domain.Observation, observation domain.Observation, x string) string {
	if len(all) == 1 {
		return x
	}
	return observation.Name + "@" + x
}
