package memory

import (
	"sort"

	"ensemblestore/pkg/domain"
)

// stateView adapts a memoryState to the read-only view contract. Listings
// are sorted by creation time and id so iteration order is deterministic.
type stateView struct {
	state *memoryState
}

var _ domain.TransactionView = stateView{}

func (v stateView) GetExperiment(id string) (domain.Experiment, bool) {
	experiment, ok := v.state.experiments[id]
	if !ok {
		return domain.Experiment{}, false
	}
	return cloneExperiment(experiment), true
}

func (v stateView) ListExperiments() []domain.Experiment {
	out := make([]domain.Experiment, 0, len(v.state.experiments))
	for _, experiment := range v.state.experiments {
		out = append(out, cloneExperiment(experiment))
	}
	sortByBase(out, func(e domain.Experiment) domain.Base { return e.Base })
	return out
}

func (v stateView) GetEnsemble(id string) (domain.Ensemble, bool) {
	ensemble, ok := v.state.ensembles[id]
	if !ok {
		return domain.Ensemble{}, false
	}
	return cloneEnsemble(ensemble), true
}

func (v stateView) ListEnsembles(experimentID string) []domain.Ensemble {
	var out []domain.Ensemble
	for _, ensemble := range v.state.ensembles {
		if ensemble.ExperimentID == experimentID {
			out = append(out, cloneEnsemble(ensemble))
		}
	}
	sortByBase(out, func(e domain.Ensemble) domain.Base { return e.Base })
	return out
}

func (v stateView) GetRecord(id string) (domain.Record, bool) {
	record, ok := v.state.records[id]
	if !ok {
		return domain.Record{}, false
	}
	return cloneRecord(record), true
}

func (v stateView) FindRecord(ensembleID, name string, realizationIndex *int) (domain.Record, bool) {
	for _, record := range v.state.records {
		if record.EnsembleID != ensembleID || record.Name != name {
			continue
		}
		if sameIndex(record.RealizationIndex, realizationIndex) {
			return cloneRecord(record), true
		}
	}
	return domain.Record{}, false
}

func (v stateView) ListRecords(ensembleID string) []domain.Record {
	var out []domain.Record
	for _, record := range v.state.records {
		if record.EnsembleID == ensembleID {
			out = append(out, cloneRecord(record))
		}
	}
	sortByBase(out, func(r domain.Record) domain.Base { return r.Base })
	return out
}

func (v stateView) ListRecordsByName(ensembleID, name string) []domain.Record {
	var out []domain.Record
	for _, record := range v.state.records {
		if record.EnsembleID == ensembleID && record.Name == name {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].RealizationIndex, out[j].RealizationIndex
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return *a < *b
	})
	return out
}

func (v stateView) GetMatrix(id string) (domain.FloatMatrix, bool) {
	matrix, ok := v.state.matrices[id]
	if !ok {
		return domain.FloatMatrix{}, false
	}
	return cloneMatrix(matrix), true
}

func (v stateView) GetFile(id string) (domain.File, bool) {
	file, ok := v.state.files[id]
	if !ok {
		return domain.File{}, false
	}
	return file, true
}

func (v stateView) ListFileBlocks(ensembleID, recordName string, realizationIndex *int) []domain.FileBlock {
	var out []domain.FileBlock
	for _, block := range v.state.fileBlocks {
		if block.EnsembleID != ensembleID || block.RecordName != recordName {
			continue
		}
		if sameIndex(block.RealizationIndex, realizationIndex) {
			out = append(out, cloneFileBlock(block))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockIndex < out[j].BlockIndex })
	return out
}

func (v stateView) GetObservation(id string) (domain.Observation, bool) {
	observation, ok := v.state.observations[id]
	if !ok {
		return domain.Observation{}, false
	}
	return cloneObservation(observation), true
}

func (v stateView) ListObservations(experimentID string) []domain.Observation {
	var out []domain.Observation
	for _, observation := range v.state.observations {
		if observation.ExperimentID == experimentID {
			out = append(out, cloneObservation(observation))
		}
	}
	sortByBase(out, func(o domain.Observation) domain.Base { return o.Base })
	return out
}

func (v stateView) GetUpdate(id string) (domain.Update, bool) {
	update, ok := v.state.updates[id]
	if !ok {
		return domain.Update{}, false
	}
	return cloneUpdate(update), true
}

func (v stateView) FindUpdateByResult(ensembleID string) (domain.Update, bool) {
	for _, update := range v.state.updates {
		if update.EnsembleResultID != nil && *update.EnsembleResultID == ensembleID {
			return cloneUpdate(update), true
		}
	}
	return domain.Update{}, false
}

func (v stateView) ListUpdatesByReference(ensembleID string) []domain.Update {
	var out []domain.Update
	for _, update := range v.state.updates {
		if update.EnsembleReferenceID == ensembleID {
			out = append(out, cloneUpdate(update))
		}
	}
	sortByBase(out, func(u domain.Update) domain.Base { return u.Base })
	return out
}

func (v stateView) FindPrior(priorID string) (domain.Prior, bool) {
	for _, experiment := range v.state.experiments {
		for _, prior := range experiment.Priors {
			if prior.ID == priorID {
				return prior, true
			}
		}
	}
	return domain.Prior{}, false
}

func sortByBase[T any](items []T, base func(T) domain.Base) {
	sort.Slice(items, func(i, j int) bool {
		a, b := base(items[i]), base(items[j])
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
