package records

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"ensemblestore/internal/codec"
	"ensemblestore/pkg/domain"
)

// RecordData is one materialized record read. Matrix records carry encoded
// Data with its ContentType; file records carry a Body stream with the
// stored Filename and MimeType.
type RecordData struct {
	Record      domain.Record
	Data        []byte
	ContentType string
	Filename    string
	Body        io.ReadCloser
	Size        int64
}

// IsFile reports whether the read produced a file stream.
func (d RecordData) IsFile() bool { return d.Body != nil }

// resolved is the outcome of record resolution inside a view: the record
// plus, for matrix reads served from an ensemble-wide record, the slice
// index.
type resolved struct {
	record domain.Record
	matrix *domain.FloatMatrix
	file   *domain.File
	slice  *int
}

// resolveRecord finds the record for (name, realizationIndex). A
// per-realization request with no exact match falls back to the
// ensemble-wide matrix of the same name, which is then sliced at the
// realization's first-axis row.
func resolveRecord(view domain.TransactionView, ensembleID, name string, realizationIndex *int) (resolved, error) {
	if _, err := ensembleFor(view, ensembleID, realizationIndex, name); err != nil {
		return resolved{}, err
	}
	record, ok := view.FindRecord(ensembleID, name, realizationIndex)
	var slice *int
	if !ok && realizationIndex != nil {
		record, ok = view.FindRecord(ensembleID, name, nil)
		if ok {
			if _, isMatrix := record.Payload.MatrixID(); !isMatrix {
				ok = false
			} else {
				slice = realizationIndex
			}
		}
	}
	if !ok {
		return resolved{}, domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
	}

	out := resolved{record: record, slice: slice}
	if matrixID, isMatrix := record.Payload.MatrixID(); isMatrix {
		matrix, ok := view.GetMatrix(matrixID)
		if !ok {
			return resolved{}, domain.ValidationError{Reason: fmt.Sprintf("matrix %q not found", matrixID)}
		}
		if slice != nil {
			sliced, err := matrix.Slice(*slice)
			if err != nil {
				return resolved{}, domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
			}
			matrix = sliced
		}
		out.matrix = &matrix
	} else if fileID, isFile := record.Payload.FileID(); isFile {
		file, ok := view.GetFile(fileID)
		if !ok {
			return resolved{}, domain.ValidationError{Reason: fmt.Sprintf("file %q not found", fileID)}
		}
		out.file = &file
	}
	return out, nil
}

// ReadRecord materializes one record in the accepted format. File records
// ignore the accept format and stream their stored content.
func (s *Service) ReadRecord(ctx context.Context, ensembleID, name string, realizationIndex *int, accept codec.Format) (RecordData, error) {
	var res resolved
	if err := s.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		res, err = resolveRecord(view, ensembleID, name, realizationIndex)
		return err
	}); err != nil {
		return RecordData{}, err
	}

	if res.file != nil {
		return s.readFile(ctx, res)
	}

	matrix := *res.matrix
	var rowLabels []string
	if res.slice != nil && accept.Tabular() {
		// The slice of an ensemble-wide matrix renders as one row labeled
		// with the realization index.
		rowLabels = []string{strconv.Itoa(*res.slice)}
	}
	if accept.Tabular() && matrix.Rank() > 2 {
		return RecordData{}, domain.NotImplementedError{RecordType: domain.RecordTypeFloatMatrix, AcceptFormat: accept.ContentType()}
	}
	data, err := codec.EncodeMatrix(accept, matrix, rowLabels)
	if err != nil {
		return RecordData{}, domain.NotImplementedError{RecordType: domain.RecordTypeFloatMatrix, AcceptFormat: accept.ContentType()}
	}
	return RecordData{
		Record:      res.record,
		Data:        data,
		ContentType: accept.ContentType(),
		Size:        int64(len(data)),
	}, nil
}

func (s *Service) readFile(ctx context.Context, res resolved) (RecordData, error) {
	file := *res.file
	out := RecordData{
		Record:      res.record,
		ContentType: file.MimeType,
		Filename:    file.Filename,
	}
	switch file.Body.Kind() {
	case domain.FileBodyInline:
		content, _ := file.Body.Content()
		out.Body = io.NopCloser(bytes.NewReader(content))
		out.Size = int64(len(content))
		return out, nil
	case domain.FileBodyExternal:
		if s.blobs == nil {
			return RecordData{}, fmt.Errorf("%w: record stored externally but no blob backend configured", domain.ErrBackendUnavailable)
		}
		_, key, _ := file.Body.Locator()
		info, body, err := s.blobs.Get(ctx, key)
		if err != nil {
			return RecordData{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		out.Body = body
		out.Size = info.Size
		return out, nil
	default:
		return RecordData{}, domain.ValidationError{
			Reason: fmt.Sprintf("record %q has not been finalized", res.record.Name),
		}
	}
}

// RecordSummary describes one record name within an ensemble.
type RecordSummary struct {
	Name               string             `json:"name"`
	Type               domain.RecordType  `json:"type"`
	Class              domain.RecordClass `json:"record_class"`
	EnsembleWide       bool               `json:"ensemble_wide"`
	RealizationIndexes []int              `json:"realization_indexes,omitempty"`
	Userdata           map[string]any     `json:"userdata,omitempty"`
}

// ListRecordSummaries groups the ensemble's records by name.
func (s *Service) ListRecordSummaries(ctx context.Context, ensembleID string) ([]RecordSummary, error) {
	var out []RecordSummary
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.GetEnsemble(ensembleID); !ok {
			return domain.EnsembleNotFoundError{EnsembleID: ensembleID}
		}
		position := make(map[string]int)
		for _, record := range view.ListRecords(ensembleID) {
			i, ok := position[record.Name]
			if !ok {
				i = len(out)
				position[record.Name] = i
				out = append(out, RecordSummary{
					Name:     record.Name,
					Type:     record.Payload.Type(),
					Class:    record.Class,
					Userdata: record.Userdata,
				})
			}
			if record.RealizationIndex == nil {
				out[i].EnsembleWide = true
			} else {
				out[i].RealizationIndexes = append(out[i].RealizationIndexes, *record.RealizationIndex)
			}
		}
		return nil
	})
	return out, err
}

// ParameterInfo pairs a parameter record name with its prior, when one is
// attached.
type ParameterInfo struct {
	Name  string        `json:"name"`
	Prior *domain.Prior `json:"prior,omitempty"`
}

// Parameters lists the ensemble's parameter records with their priors.
func (s *Service) Parameters(ctx context.Context, ensembleID string) ([]ParameterInfo, error) {
	var out []ParameterInfo
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.GetEnsemble(ensembleID); !ok {
			return domain.EnsembleNotFoundError{EnsembleID: ensembleID}
		}
		seen := make(map[string]bool)
		for _, record := range view.ListRecords(ensembleID) {
			if record.Class != domain.RecordClassParameter || seen[record.Name] {
				continue
			}
			seen[record.Name] = true
			info := ParameterInfo{Name: record.Name}
			if record.PriorID != nil {
				if prior, ok := view.FindPrior(*record.PriorID); ok {
					info.Prior = &prior
				}
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

// Responses lists the ensemble's response records.
func (s *Service) Responses(ctx context.Context, ensembleID string) ([]RecordSummary, error) {
	summaries, err := s.ListRecordSummaries(ctx, ensembleID)
	if err != nil {
		return nil, err
	}
	var out []RecordSummary
	for _, summary := range summaries {
		if summary.Class == domain.RecordClassResponse {
			out = append(out, summary)
		}
	}
	return out, nil
}

// SetLabels attaches column and row labels to a matrix record. Label counts
// must match the matrix dimensions.
func (s *Service) SetLabels(ctx context.Context, ensembleID, name string, realizationIndex *int, labels domain.Labels) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		record, ok := tx.Snapshot().FindRecord(ensembleID, name, realizationIndex)
		if !ok {
			return domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
		}
		matrixID, isMatrix := record.Payload.MatrixID()
		if !isMatrix {
			return domain.ValidationError{Reason: fmt.Sprintf("record %q is not a matrix record", name)}
		}
		matrix, ok := tx.Snapshot().GetMatrix(matrixID)
		if !ok {
			return domain.ValidationError{Reason: fmt.Sprintf("matrix %q not found", matrixID)}
		}
		if err := validateLabels(matrix, labels); err != nil {
			return err
		}
		_, err := tx.UpdateMatrix(matrixID, func(m *domain.FloatMatrix) error {
			m.Labels = &domain.Labels{
				Columns: append([]string(nil), labels.Columns...),
				Rows:    append([]string(nil), labels.Rows...),
			}
			return nil
		})
		return err
	})
}

func validateLabels(matrix domain.FloatMatrix, labels domain.Labels) error {
	switch matrix.Rank() {
	case 1:
		if len(labels.Columns) != matrix.Shape[0] {
			return domain.ValidationError{Reason: fmt.Sprintf("%d column labels for %d columns", len(labels.Columns), matrix.Shape[0])}
		}
		if len(labels.Rows) > 1 {
			return domain.ValidationError{Reason: fmt.Sprintf("%d row labels for a rank-1 matrix", len(labels.Rows))}
		}
	case 2:
		if len(labels.Columns) != matrix.Shape[1] {
			return domain.ValidationError{Reason: fmt.Sprintf("%d column labels for %d columns", len(labels.Columns), matrix.Shape[1])}
		}
		if len(labels.Rows) != matrix.Shape[0] {
			return domain.ValidationError{Reason: fmt.Sprintf("%d row labels for %d rows", len(labels.Rows), matrix.Shape[0])}
		}
	default:
		return domain.ValidationError{Reason: fmt.Sprintf("labels not supported for rank-%d matrices", matrix.Rank())}
	}
	return nil
}

// GetLabels returns the labels of a matrix record, nil when unset.
func (s *Service) GetLabels(ctx context.Context, ensembleID, name string, realizationIndex *int) (*domain.Labels, error) {
	var out *domain.Labels
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		res, err := resolveRecord(view, ensembleID, name, realizationIndex)
		if err != nil {
			return err
		}
		if res.matrix == nil {
			return domain.ValidationError{Reason: fmt.Sprintf("record %q is not a matrix record", name)}
		}
		out = res.matrix.Labels
		return nil
	})
	return out, err
}
