package records

import (
	"context"
	"fmt"

	"ensemblestore/pkg/domain"
)

// CreateObservationInput carries one observation creation request.
type CreateObservationInput struct {
	Name    string
	XAxis   []string
	Values  []float64
	Errors  []float64
	Records []string // record ids this observation was measured against
}

// CreateObservation stores a new observation under the experiment.
func (s *Service) CreateObservation(ctx context.Context, experimentID string, in CreateObservationInput) (domain.Observation, error) {
	var created domain.Observation
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateObservation(domain.Observation{
			ExperimentID: experimentID,
			Name:         in.Name,
			XAxis:        in.XAxis,
			Values:       in.Values,
			Errors:       in.Errors,
			RecordIDs:    in.Records,
		})
		return err
	})
	return created, err
}

// ListObservations returns the experiment's observations.
func (s *Service) ListObservations(ctx context.Context, experimentID string) ([]domain.Observation, error) {
	var out []domain.Observation
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.GetExperiment(experimentID); !ok {
			return domain.ExperimentNotFoundError{ExperimentID: experimentID}
		}
		out = view.ListObservations(experimentID)
		return nil
	})
	return out, err
}

// EnsembleObservations returns the observations linked to any record of the
// ensemble.
func (s *Service) EnsembleObservations(ctx context.Context, ensembleID string) ([]domain.Observation, error) {
	var out []domain.Observation
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		ensemble, ok := view.GetEnsemble(ensembleID)
		if !ok {
			return domain.EnsembleNotFoundError{EnsembleID: ensembleID}
		}
		wanted := make(map[string]bool)
		for _, record := range view.ListRecords(ensembleID) {
			for _, observationID := range record.ObservationIDs {
				wanted[observationID] = true
			}
		}
		for _, observation := range view.ListObservations(ensemble.ExperimentID) {
			if wanted[observation.ID] {
				out = append(out, observation)
			}
		}
		return nil
	})
	return out, err
}

// AttachObservation links an observation to a record, in both directions.
func (s *Service) AttachObservation(ctx context.Context, ensembleID, name string, realizationIndex *int, observationID string) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		record, ok := tx.Snapshot().FindRecord(ensembleID, name, realizationIndex)
		if !ok {
			return domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
		}
		if _, ok := tx.Snapshot().GetObservation(observationID); !ok {
			return domain.ObservationNotFoundError{ObservationID: observationID}
		}
		for _, linked := range record.ObservationIDs {
			if linked == observationID {
				return domain.ValidationError{Reason: fmt.Sprintf("observation %q already attached to record %q", observationID, name)}
			}
		}
		if _, err := tx.UpdateRecord(record.ID, func(r *domain.Record) error {
			r.ObservationIDs = append(r.ObservationIDs, observationID)
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdateObservation(observationID, func(o *domain.Observation) error {
			o.RecordIDs = append(o.RecordIDs, record.ID)
			return nil
		})
		return err
	})
}

// RecordObservations returns the observations attached to one record.
func (s *Service) RecordObservations(ctx context.Context, ensembleID, name string, realizationIndex *int) ([]domain.Observation, error) {
	var out []domain.Observation
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		record, ok := view.FindRecord(ensembleID, name, realizationIndex)
		if !ok && realizationIndex != nil {
			// Observations of an ensemble-wide record apply to every realization.
			record, ok = view.FindRecord(ensembleID, name, nil)
		}
		if !ok {
			return domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
		}
		for _, observationID := range record.ObservationIDs {
			if observation, found := view.GetObservation(observationID); found {
				out = append(out, observation)
			}
		}
		return nil
	})
	return out, err
}
