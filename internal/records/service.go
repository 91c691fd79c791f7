// Package records implements the application service over the entity store
// and the blob backend: experiment and ensemble lifecycle, record
// materialization in the supported wire formats, staged blob uploads, and
// derived views.
package records

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"ensemblestore/internal/blob"
	"ensemblestore/pkg/domain"
)

// Service coordinates the entity store and the optional blob backend. A nil
// blob store keeps file content inline in the entity store.
type Service struct {
	store domain.PersistentStore
	blobs blob.Store
	log   *zap.Logger
}

// New constructs the service. blobs may be nil for inline file storage.
func New(store domain.PersistentStore, blobs blob.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, blobs: blobs, log: log}
}

// ExternalBlobs reports whether file content lives in a blob backend.
func (s *Service) ExternalBlobs() bool { return s.blobs != nil }

// blobKey derives the backend object key for a record. Ensemble-wide
// records use the literal "ensemble" segment so per-realization keys can
// never collide with them.
func blobKey(ensembleID, name string, realizationIndex *int) string {
	segment := "ensemble"
	if realizationIndex != nil {
		segment = strconv.Itoa(*realizationIndex)
	}
	return fmt.Sprintf("%s/%s/%s", ensembleID, segment, name)
}

// CreateExperimentInput carries the experiment creation request.
type CreateExperimentInput struct {
	Name     string
	Priors   map[string]domain.Prior
	Metadata map[string]any
	Userdata map[string]any
}

// CreateExperiment stores a new experiment with its named priors.
func (s *Service) CreateExperiment(ctx context.Context, in CreateExperimentInput) (domain.Experiment, error) {
	var created domain.Experiment
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateExperiment(domain.Experiment{
			Name:     in.Name,
			Priors:   in.Priors,
			Metadata: in.Metadata,
			Userdata: in.Userdata,
		})
		return err
	})
	if err != nil {
		return domain.Experiment{}, err
	}
	s.log.Info("experiment created", zap.String("experiment_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

// GetExperiment fetches one experiment by id.
func (s *Service) GetExperiment(ctx context.Context, id string) (domain.Experiment, error) {
	var out domain.Experiment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		experiment, ok := view.GetExperiment(id)
		if !ok {
			return domain.ExperimentNotFoundError{ExperimentID: id}
		}
		out = experiment
		return nil
	})
	return out, err
}

// ListExperiments returns all experiments in creation order.
func (s *Service) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	var out []domain.Experiment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		out = view.ListExperiments()
		return nil
	})
	return out, err
}

// DeleteExperiment removes the experiment with everything it owns, then
// best-effort deletes the backing blob objects.
func (s *Service) DeleteExperiment(ctx context.Context, id string) error {
	var ensembleIDs []string
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, ensemble := range tx.Snapshot().ListEnsembles(id) {
			ensembleIDs = append(ensembleIDs, ensemble.ID)
		}
		return tx.DeleteExperiment(id)
	})
	if err != nil {
		return err
	}
	if s.blobs != nil {
		for _, ensembleID := range ensembleIDs {
			infos, err := s.blobs.List(ctx, ensembleID+"/")
			if err != nil {
				s.log.Warn("list blobs for cleanup", zap.String("ensemble_id", ensembleID), zap.Error(err))
				continue
			}
			for _, info := range infos {
				if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
					s.log.Warn("delete blob", zap.String("key", info.Key), zap.Error(err))
				}
			}
		}
	}
	s.log.Info("experiment deleted", zap.String("experiment_id", id))
	return nil
}

// CreateEnsembleInput carries the ensemble creation request.
type CreateEnsembleInput struct {
	Size               int
	ParameterNames     []string
	ResponseNames      []string
	ActiveRealizations []int
	Metadata           map[string]any
	Userdata           map[string]any
}

// CreateEnsemble stores a new ensemble under the experiment. Parameter and
// response name sets must be disjoint.
func (s *Service) CreateEnsemble(ctx context.Context, experimentID string, in CreateEnsembleInput) (domain.Ensemble, error) {
	var created domain.Ensemble
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateEnsemble(domain.Ensemble{
			ExperimentID:       experimentID,
			Size:               in.Size,
			ParameterNames:     in.ParameterNames,
			ResponseNames:      in.ResponseNames,
			ActiveRealizations: in.ActiveRealizations,
			Metadata:           in.Metadata,
			Userdata:           in.Userdata,
		})
		return err
	})
	if err != nil {
		return domain.Ensemble{}, err
	}
	s.log.Info("ensemble created",
		zap.String("ensemble_id", created.ID),
		zap.String("experiment_id", experimentID),
		zap.Int("size", created.Size))
	return created, nil
}

// GetEnsemble fetches one ensemble by id.
func (s *Service) GetEnsemble(ctx context.Context, id string) (domain.Ensemble, error) {
	var out domain.Ensemble
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		ensemble, ok := view.GetEnsemble(id)
		if !ok {
			return domain.EnsembleNotFoundError{EnsembleID: id}
		}
		out = ensemble
		return nil
	})
	return out, err
}

// ListEnsembles returns the ensembles of an experiment.
func (s *Service) ListEnsembles(ctx context.Context, experimentID string) ([]domain.Ensemble, error) {
	var out []domain.Ensemble
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.GetExperiment(experimentID); !ok {
			return domain.ExperimentNotFoundError{ExperimentID: experimentID}
		}
		out = view.ListEnsembles(experimentID)
		return nil
	})
	return out, err
}

// ensembleFor looks up the ensemble inside a view and asserts the
// realization index, when present, is addressable.
func ensembleFor(view domain.TransactionView, ensembleID string, realizationIndex *int, name string) (domain.Ensemble, error) {
	ensemble, ok := view.GetEnsemble(ensembleID)
	if !ok {
		return domain.Ensemble{}, domain.EnsembleNotFoundError{EnsembleID: ensembleID}
	}
	if realizationIndex != nil && !ensemble.RealizationInRange(*realizationIndex) {
		return domain.Ensemble{}, domain.RealizationOutOfRangeError{
			Name:             name,
			EnsembleID:       ensembleID,
			RealizationIndex: *realizationIndex,
		}
	}
	return ensemble, nil
}

// assertRecordCreatable reports a conflict when a record of the same name
// already blocks the write: an ensemble-wide record blocks every index and
// vice versa, and an equal index blocks itself. The store re-checks inside
// the transaction; this lets callers fail before side effects.
func assertRecordCreatable(view domain.TransactionView, ensembleID, name string, realizationIndex *int) error {
	for _, existing := range view.ListRecordsByName(ensembleID, name) {
		if existing.RealizationIndex == nil || realizationIndex == nil ||
			*existing.RealizationIndex == *realizationIndex {
			return domain.DuplicateRecordError{Name: name, EnsembleID: ensembleID}
		}
	}
	return nil
}
