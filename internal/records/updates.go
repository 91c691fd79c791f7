package records

import (
	"context"
	"fmt"

	"ensemblestore/pkg/domain"
)

// TransformationInput carries one observation transformation of an update,
// referencing the observation by name within the reference ensemble's
// experiment.
type TransformationInput struct {
	ObservationName string
	Active          []bool
	Scale           []float64
}

// CreateUpdateInput carries the provenance of deriving one ensemble from
// another.
type CreateUpdateInput struct {
	Algorithm           string
	EnsembleReferenceID string
	Transformations     []TransformationInput
}

// CreateUpdate records an update run against the reference ensemble. The
// result ensemble is linked later via LinkUpdateResult once it exists.
func (s *Service) CreateUpdate(ctx context.Context, in CreateUpdateInput) (domain.Update, error) {
	var created domain.Update
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ensemble, ok := tx.Snapshot().GetEnsemble(in.EnsembleReferenceID)
		if !ok {
			return domain.EnsembleNotFoundError{EnsembleID: in.EnsembleReferenceID}
		}
		var err error
		created, err = tx.CreateUpdate(domain.Update{
			Algorithm:           in.Algorithm,
			EnsembleReferenceID: in.EnsembleReferenceID,
		})
		if err != nil {
			return err
		}
		byName := make(map[string]domain.Observation)
		for _, observation := range tx.Snapshot().ListObservations(ensemble.ExperimentID) {
			byName[observation.Name] = observation
		}
		for _, transformation := range in.Transformations {
			observation, ok := byName[transformation.ObservationName]
			if !ok {
				return domain.ValidationError{
					Reason: fmt.Sprintf("experiment has no observation named %q", transformation.ObservationName),
				}
			}
			if _, err := tx.CreateObservationTransformation(domain.ObservationTransformation{
				UpdateID:      created.ID,
				ObservationID: observation.ID,
				Active:        transformation.Active,
				Scale:         transformation.Scale,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

// GetUpdate fetches one update by id.
func (s *Service) GetUpdate(ctx context.Context, id string) (domain.Update, error) {
	var out domain.Update
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		update, ok := view.GetUpdate(id)
		if !ok {
			return domain.ValidationError{Reason: fmt.Sprintf("update %q not found", id)}
		}
		out = update
		return nil
	})
	return out, err
}

// LinkUpdateResult attaches the produced ensemble to an update.
func (s *Service) LinkUpdateResult(ctx context.Context, updateID, ensembleID string) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.LinkUpdateResult(updateID, ensembleID)
	})
}

// EnsembleParent returns the update that produced the ensemble, when one
// exists.
func (s *Service) EnsembleParent(ctx context.Context, ensembleID string) (*domain.Update, error) {
	var out *domain.Update
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.GetEnsemble(ensembleID); !ok {
			return domain.EnsembleNotFoundError{EnsembleID: ensembleID}
		}
		if update, ok := view.FindUpdateByResult(ensembleID); ok {
			out = &update
		}
		return nil
	})
	return out, err
}

// EnsembleChildren lists the updates that used the ensemble as reference.
func (s *Service) EnsembleChildren(ctx context.Context, ensembleID string) ([]domain.Update, error) {
	var out []domain.Update
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.GetEnsemble(ensembleID); !ok {
			return domain.EnsembleNotFoundError{EnsembleID: ensembleID}
		}
		out = view.ListUpdatesByReference(ensembleID)
		return nil
	})
	return out, err
}
