package records

import (
	"context"

	"ensemblestore/pkg/domain"
)

// Userdata operations. Replace swaps the whole map; Merge upserts the given
// keys and keeps the rest.

func mergeInto(dst map[string]any, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// ReplaceExperimentUserdata overwrites the experiment's userdata.
func (s *Service) ReplaceExperimentUserdata(ctx context.Context, id string, data map[string]any) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateExperiment(id, func(e *domain.Experiment) error {
			e.Userdata = data
			return nil
		})
		return err
	})
}

// MergeExperimentUserdata upserts keys into the experiment's userdata.
func (s *Service) MergeExperimentUserdata(ctx context.Context, id string, data map[string]any) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateExperiment(id, func(e *domain.Experiment) error {
			e.Userdata = mergeInto(e.Userdata, data)
			return nil
		})
		return err
	})
}

// ReplaceEnsembleUserdata overwrites the ensemble's userdata.
func (s *Service) ReplaceEnsembleUserdata(ctx context.Context, id string, data map[string]any) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateEnsemble(id, func(e *domain.Ensemble) error {
			e.Userdata = data
			return nil
		})
		return err
	})
}

// MergeEnsembleUserdata upserts keys into the ensemble's userdata.
func (s *Service) MergeEnsembleUserdata(ctx context.Context, id string, data map[string]any) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateEnsemble(id, func(e *domain.Ensemble) error {
			e.Userdata = mergeInto(e.Userdata, data)
			return nil
		})
		return err
	})
}

func (s *Service) updateRecordUserdata(ctx context.Context, ensembleID, name string, realizationIndex *int, mutate func(*domain.Record)) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		record, ok := tx.Snapshot().FindRecord(ensembleID, name, realizationIndex)
		if !ok {
			return domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
		}
		_, err := tx.UpdateRecord(record.ID, func(r *domain.Record) error {
			mutate(r)
			return nil
		})
		return err
	})
}

// ReplaceRecordUserdata overwrites the record's userdata.
func (s *Service) ReplaceRecordUserdata(ctx context.Context, ensembleID, name string, realizationIndex *int, data map[string]any) error {
	return s.updateRecordUserdata(ctx, ensembleID, name, realizationIndex, func(r *domain.Record) {
		r.Userdata = data
	})
}

// MergeRecordUserdata upserts keys into the record's userdata.
func (s *Service) MergeRecordUserdata(ctx context.Context, ensembleID, name string, realizationIndex *int, data map[string]any) error {
	return s.updateRecordUserdata(ctx, ensembleID, name, realizationIndex, func(r *domain.Record) {
		r.Userdata = mergeInto(r.Userdata, data)
	})
}

// RecordUserdata returns the record's userdata.
func (s *Service) RecordUserdata(ctx context.Context, ensembleID, name string, realizationIndex *int) (map[string]any, error) {
	var out map[string]any
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		record, ok := view.FindRecord(ensembleID, name, realizationIndex)
		if !ok {
			return domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
		}
		out = record.Userdata
		return nil
	})
	return out, err
}

// ReplaceObservationUserdata overwrites the observation's userdata.
func (s *Service) ReplaceObservationUserdata(ctx context.Context, id string, data map[string]any) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateObservation(id, func(o *domain.Observation) error {
			o.Userdata = data
			return nil
		})
		return err
	})
}

// MergeObservationUserdata upserts keys into the observation's userdata.
func (s *Service) MergeObservationUserdata(ctx context.Context, id string, data map[string]any) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateObservation(id, func(o *domain.Observation) error {
			o.Userdata = mergeInto(o.Userdata, data)
			return nil
		})
		return err
	})
}

// ObservationUserdata returns the observation's userdata.
func (s *Service) ObservationUserdata(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		observation, ok := view.GetObservation(id)
		if !ok {
			return domain.ObservationNotFoundError{ObservationID: id}
		}
		out = observation.Userdata
		return nil
	})
	return out, err
}

// SetExperimentMetadata updates the experiment's metadata map, replacing it
// wholesale or upserting the given keys.
func (s *Service) SetExperimentMetadata(ctx context.Context, id string, data map[string]any, replace bool) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateExperiment(id, func(e *domain.Experiment) error {
			if replace {
				e.Metadata = data
			} else {
				e.Metadata = mergeInto(e.Metadata, data)
			}
			return nil
		})
		return err
	})
}

// SetEnsembleMetadata updates the ensemble's metadata map, replacing it
// wholesale or upserting the given keys.
func (s *Service) SetEnsembleMetadata(ctx context.Context, id string, data map[string]any, replace bool) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateEnsemble(id, func(e *domain.Ensemble) error {
			if replace {
				e.Metadata = data
			} else {
				e.Metadata = mergeInto(e.Metadata, data)
			}
			return nil
		})
		return err
	})
}

// SetRecordMetadata updates the record's metadata map, replacing it wholesale
// or upserting the given keys.
func (s *Service) SetRecordMetadata(ctx context.Context, ensembleID, name string, realizationIndex *int, data map[string]any, replace bool) error {
	return s.updateRecordUserdata(ctx, ensembleID, name, realizationIndex, func(r *domain.Record) {
		if replace {
			r.Metadata = data
		} else {
			r.Metadata = mergeInto(r.Metadata, data)
		}
	})
}

// RecordMetadata returns the record's metadata.
func (s *Service) RecordMetadata(ctx context.Context, ensembleID, name string, realizationIndex *int) (map[string]any, error) {
	var out map[string]any
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		record, ok := view.FindRecord(ensembleID, name, realizationIndex)
		if !ok {
			return domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
		}
		out = record.Metadata
		return nil
	})
	return out, err
}

// SetObservationMetadata updates the observation's metadata map, replacing it
// wholesale or upserting the given keys.
func (s *Service) SetObservationMetadata(ctx context.Context, id string, data map[string]any, replace bool) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateObservation(id, func(o *domain.Observation) error {
			if replace {
				o.Metadata = data
			} else {
				o.Metadata = mergeInto(o.Metadata, data)
			}
			return nil
		})
		return err
	})
}

// ObservationMetadata returns the observation's metadata.
func (s *Service) ObservationMetadata(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		observation, ok := view.GetObservation(id)
		if !ok {
			return domain.ObservationNotFoundError{ObservationID: id}
		}
		out = observation.Metadata
		return nil
	})
	return out, err
}
