package records

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"ensemblestore/internal/blob"
	"ensemblestore/internal/codec"
	"ensemblestore/pkg/domain"
)

// WriteMatrixInput carries one matrix record write.
type WriteMatrixInput struct {
	Name             string
	RealizationIndex *int
	Format           codec.Format
	Data             []byte
	// Class overrides the derived record class when non-empty.
	Class domain.RecordClass
	// PriorName names an experiment prior to attach; parameters only.
	PriorName string
}

// WriteMatrix decodes and stores a matrix record. The record class defaults
// to the ensemble's parameter/response name sets.
func (s *Service) WriteMatrix(ctx context.Context, ensembleID string, in WriteMatrixInput) (domain.Record, error) {
	matrix, decodeErr := codec.DecodeMatrix(in.Format, in.Data)

	var created domain.Record
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ensemble, err := ensembleFor(tx.Snapshot(), ensembleID, in.RealizationIndex, in.Name)
		if err != nil {
			return err
		}
		if decodeErr != nil {
			return domain.MalformedMatrixError{
				Name:             in.Name,
				EnsembleID:       ensembleID,
				RealizationIndex: in.RealizationIndex,
				Reason:           decodeErr.Error(),
			}
		}
		class := in.Class
		if class == "" {
			class = deriveClass(ensemble, in.Name)
		}
		var priorID *string
		if in.PriorName != "" {
			experiment, ok := tx.Snapshot().GetExperiment(ensemble.ExperimentID)
			if !ok {
				return domain.ExperimentNotFoundError{ExperimentID: ensemble.ExperimentID}
			}
			prior, ok := experiment.Priors[in.PriorName]
			if !ok {
				return domain.ValidationError{Reason: fmt.Sprintf("experiment has no prior named %q", in.PriorName)}
			}
			if class != domain.RecordClassParameter {
				return domain.InvalidPriorAssignmentError{Name: in.Name, EnsembleID: ensembleID, PriorID: prior.ID}
			}
			priorID = &prior.ID
		}

		stored, err := tx.CreateMatrix(matrix)
		if err != nil {
			return err
		}
		created, err = tx.CreateRecord(domain.Record{
			EnsembleID:       ensembleID,
			Name:             in.Name,
			RealizationIndex: in.RealizationIndex,
			Class:            class,
			PriorID:          priorID,
			Payload:          domain.MatrixPayload(stored.ID),
		})
		return err
	})
	if err != nil {
		return domain.Record{}, err
	}
	s.log.Debug("matrix record written",
		zap.String("ensemble_id", ensembleID),
		zap.String("name", in.Name),
		zap.Ints("shape", matrix.Shape))
	return created, nil
}

func deriveClass(ensemble domain.Ensemble, name string) domain.RecordClass {
	for _, p := range ensemble.ParameterNames {
		if p == name {
			return domain.RecordClassParameter
		}
	}
	for _, r := range ensemble.ResponseNames {
		if r == name {
			return domain.RecordClassResponse
		}
	}
	return domain.RecordClassOther
}

// WriteFileInput carries one whole-file record write.
type WriteFileInput struct {
	Name             string
	RealizationIndex *int
	Filename         string
	MimeType         string
	Content          []byte
}

// WriteFile stores a file record. With an external blob backend the content
// goes to the backend and only the locator is stored; otherwise the content
// is kept inline. Conflicts are checked before the backend is touched, so a
// duplicate write surfaces as such instead of as a backend failure.
func (s *Service) WriteFile(ctx context.Context, ensembleID string, in WriteFileInput) (domain.Record, error) {
	body := domain.InlineBody(in.Content)
	key := ""
	if s.blobs != nil {
		if err := s.store.View(ctx, func(view domain.TransactionView) error {
			if _, err := ensembleFor(view, ensembleID, in.RealizationIndex, in.Name); err != nil {
				return err
			}
			return assertRecordCreatable(view, ensembleID, in.Name, in.RealizationIndex)
		}); err != nil {
			return domain.Record{}, err
		}
		key = blobKey(ensembleID, in.Name, in.RealizationIndex)
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(in.Content), blob.PutOptions{ContentType: in.MimeType}); err != nil {
			return domain.Record{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		body = domain.ExternalBody(string(s.blobs.Driver()), key)
	}

	var created domain.Record
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := ensembleFor(tx.Snapshot(), ensembleID, in.RealizationIndex, in.Name); err != nil {
			return err
		}
		file, err := tx.CreateFile(domain.File{
			Filename: in.Filename,
			MimeType: in.MimeType,
			Body:     body,
		})
		if err != nil {
			return err
		}
		created, err = tx.CreateRecord(domain.Record{
			EnsembleID:       ensembleID,
			Name:             in.Name,
			RealizationIndex: in.RealizationIndex,
			Class:            domain.RecordClassOther,
			Payload:          domain.FilePayload(file.ID),
		})
		return err
	})
	if err != nil {
		if s.blobs != nil && key != "" {
			if _, delErr := s.blobs.Delete(ctx, key); delErr != nil {
				s.log.Warn("orphaned blob cleanup failed", zap.String("key", key), zap.Error(delErr))
			}
		}
		return domain.Record{}, err
	}
	s.log.Debug("file record written",
		zap.String("ensemble_id", ensembleID),
		zap.String("name", in.Name),
		zap.Int("size", len(in.Content)))
	return created, nil
}
