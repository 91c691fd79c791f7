package memory

import (
	"fmt"

	"ensemblestore/pkg/domain"
)

func (tx *transaction) stamp(base *domain.Base) {
	if base.ID == "" {
		base.ID = tx.store.newID()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = tx.now
	}
	base.UpdatedAt = tx.now
}

func (tx *transaction) CreateExperiment(experiment domain.Experiment) (domain.Experiment, error) {
	if experiment.Name == "" {
		return domain.Experiment{}, domain.ValidationError{Reason: "experiment name must not be empty"}
	}
	for name, prior := range experiment.Priors {
		if err := prior.Validate(); err != nil {
			return domain.Experiment{}, domain.ValidationError{Reason: fmt.Sprintf("prior %q: %v", name, err)}
		}
	}
	tx.stamp(&experiment.Base)
	stamped := experiment.Priors
	experiment.Priors = make(map[string]domain.Prior, len(stamped))
	for name, prior := range stamped {
		if prior.ID == "" {
			prior.ID = tx.store.newID()
		}
		if prior.CreatedAt.IsZero() {
			prior.CreatedAt = tx.now
		}
		prior.UpdatedAt = tx.now
		prior.Name = name
		experiment.Priors[name] = prior
	}
	tx.state.experiments[experiment.ID] = cloneExperiment(experiment)
	return experiment, nil
}

func (tx *transaction) UpdateExperiment(id string, mutator func(*domain.Experiment) error) (domain.Experiment, error) {
	existing, ok := tx.state.experiments[id]
	if !ok {
		return domain.Experiment{}, domain.ExperimentNotFoundError{ExperimentID: id}
	}
	updated := cloneExperiment(existing)
	if err := mutator(&updated); err != nil {
		return domain.Experiment{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.experiments[id] = cloneExperiment(updated)
	return updated, nil
}

// DeleteExperiment removes the experiment and everything hanging off it:
// its ensembles, their records with backing matrices and files, staged
// blocks, observations, and update provenance.
func (tx *transaction) DeleteExperiment(id string) error {
	if _, ok := tx.state.experiments[id]; !ok {
		return domain.ExperimentNotFoundError{ExperimentID: id}
	}
	ensembleIDs := make(map[string]bool)
	for ensembleID, ensemble := range tx.state.ensembles {
		if ensemble.ExperimentID == id {
			ensembleIDs[ensembleID] = true
		}
	}
	for recordID, record := range tx.state.records {
		if !ensembleIDs[record.EnsembleID] {
			continue
		}
		if matrixID, ok := record.Payload.MatrixID(); ok {
			delete(tx.state.matrices, matrixID)
		}
		if fileID, ok := record.Payload.FileID(); ok {
			delete(tx.state.files, fileID)
		}
		delete(tx.state.records, recordID)
	}
	for blockID, block := range tx.state.fileBlocks {
		if ensembleIDs[block.EnsembleID] {
			delete(tx.state.fileBlocks, blockID)
		}
	}
	for observationID, observation := range tx.state.observations {
		if observation.ExperimentID == id {
			delete(tx.state.observations, observationID)
		}
	}
	for updateID, update := range tx.state.updates {
		if !ensembleIDs[update.EnsembleReferenceID] && (update.EnsembleResultID == nil || !ensembleIDs[*update.EnsembleResultID]) {
			continue
		}
		for transformationID, transformation := range tx.state.transformations {
			if transformation.UpdateID == updateID {
				delete(tx.state.transformations, transformationID)
			}
		}
		delete(tx.state.updates, updateID)
	}
	for ensembleID := range ensembleIDs {
		delete(tx.state.ensembles, ensembleID)
	}
	delete(tx.state.experiments, id)
	return nil
}

func (tx *transaction) CreateEnsemble(ensemble domain.Ensemble) (domain.Ensemble, error) {
	if _, ok := tx.state.experiments[ensemble.ExperimentID]; !ok {
		return domain.Ensemble{}, domain.ExperimentNotFoundError{ExperimentID: ensemble.ExperimentID}
	}
	if overlap := intersect(ensemble.ParameterNames, ensemble.ResponseNames); len(overlap) > 0 {
		return domain.Ensemble{}, domain.NameOverlapError{Overlap: overlap}
	}
	tx.stamp(&ensemble.Base)
	tx.state.ensembles[ensemble.ID] = cloneEnsemble(ensemble)
	return ensemble, nil
}

func (tx *transaction) UpdateEnsemble(id string, mutator func(*domain.Ensemble) error) (domain.Ensemble, error) {
	existing, ok := tx.state.ensembles[id]
	if !ok {
		return domain.Ensemble{}, domain.EnsembleNotFoundError{EnsembleID: id}
	}
	updated := cloneEnsemble(existing)
	if err := mutator(&updated); err != nil {
		return domain.Ensemble{}, err
	}
	updated.ID = existing.ID
	updated.ExperimentID = existing.ExperimentID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.ensembles[id] = cloneEnsemble(updated)
	return updated, nil
}

// CreateRecord enforces name uniqueness across both record scopes: an
// ensemble-wide record blocks any same-name forward-model record, and vice
// versa, while forward-model records of distinct realizations coexist.
func (tx *transaction) CreateRecord(record domain.Record) (domain.Record, error) {
	if _, ok := tx.state.ensembles[record.EnsembleID]; !ok {
		return domain.Record{}, domain.EnsembleNotFoundError{EnsembleID: record.EnsembleID}
	}
	if record.Name == "" {
		return domain.Record{}, domain.ValidationError{Reason: "record name must not be empty"}
	}
	if record.Payload.Type() == "" {
		return domain.Record{}, domain.ValidationError{Reason: "record payload must reference a matrix or a file"}
	}
	if record.PriorID != nil && record.Class != domain.RecordClassParameter {
		return domain.Record{}, domain.InvalidPriorAssignmentError{
			Name:       record.Name,
			EnsembleID: record.EnsembleID,
			PriorID:    *record.PriorID,
		}
	}
	for _, existing := range tx.state.records {
		if existing.EnsembleID != record.EnsembleID || existing.Name != record.Name {
			continue
		}
		if existing.RealizationIndex == nil || record.RealizationIndex == nil {
			return domain.Record{}, domain.DuplicateRecordError{Name: record.Name, EnsembleID: record.EnsembleID}
		}
		if *existing.RealizationIndex == *record.RealizationIndex {
			return domain.Record{}, domain.DuplicateRecordError{Name: record.Name, EnsembleID: record.EnsembleID}
		}
	}
	tx.stamp(&record.Base)
	tx.state.records[record.ID] = cloneRecord(record)
	return record, nil
}

func (tx *transaction) UpdateRecord(id string, mutator func(*domain.Record) error) (domain.Record, error) {
	existing, ok := tx.state.records[id]
	if !ok {
		return domain.Record{}, domain.RecordNotFoundError{Name: id}
	}
	updated := cloneRecord(existing)
	if err := mutator(&updated); err != nil {
		return domain.Record{}, err
	}
	updated.ID = existing.ID
	updated.EnsembleID = existing.EnsembleID
	updated.Name = existing.Name
	updated.RealizationIndex = cloneIntPtr(existing.RealizationIndex)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.records[id] = cloneRecord(updated)
	return updated, nil
}

func (tx *transaction) CreateMatrix(matrix domain.FloatMatrix) (domain.FloatMatrix, error) {
	want := 1
	for _, dim := range matrix.Shape {
		if dim < 0 {
			return domain.FloatMatrix{}, domain.ValidationError{Reason: fmt.Sprintf("negative dimension in shape %v", matrix.Shape)}
		}
		want *= dim
	}
	if want != len(matrix.Values) {
		return domain.FloatMatrix{}, domain.ValidationError{
			Reason: fmt.Sprintf("shape %v implies %d values, got %d", matrix.Shape, want, len(matrix.Values)),
		}
	}
	tx.stamp(&matrix.Base)
	tx.state.matrices[matrix.ID] = cloneMatrix(matrix)
	return matrix, nil
}

func (tx *transaction) UpdateMatrix(id string, mutator func(*domain.FloatMatrix) error) (domain.FloatMatrix, error) {
	existing, ok := tx.state.matrices[id]
	if !ok {
		return domain.FloatMatrix{}, domain.ValidationError{Reason: fmt.Sprintf("matrix %q not found", id)}
	}
	updated := cloneMatrix(existing)
	if err := mutator(&updated); err != nil {
		return domain.FloatMatrix{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.matrices[id] = cloneMatrix(updated)
	return updated, nil
}

func (tx *transaction) CreateFile(file domain.File) (domain.File, error) {
	tx.stamp(&file.Base)
	tx.state.files[file.ID] = file
	return file, nil
}

func (tx *transaction) UpdateFile(id string, mutator func(*domain.File) error) (domain.File, error) {
	existing, ok := tx.state.files[id]
	if !ok {
		return domain.File{}, domain.ValidationError{Reason: fmt.Sprintf("file %q not found", id)}
	}
	updated := existing
	if err := mutator(&updated); err != nil {
		return domain.File{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.files[id] = updated
	return updated, nil
}

func (tx *transaction) CreateFileBlock(block domain.FileBlock) (domain.FileBlock, error) {
	if _, ok := tx.state.ensembles[block.EnsembleID]; !ok {
		return domain.FileBlock{}, domain.EnsembleNotFoundError{EnsembleID: block.EnsembleID}
	}
	for _, existing := range tx.state.fileBlocks {
		if existing.EnsembleID != block.EnsembleID || existing.RecordName != block.RecordName {
			continue
		}
		if !sameIndex(existing.RealizationIndex, block.RealizationIndex) {
			continue
		}
		if existing.BlockIndex == block.BlockIndex {
			return domain.FileBlock{}, domain.DuplicateFileBlockError{
				RecordName: block.RecordName,
				EnsembleID: block.EnsembleID,
				BlockIndex: block.BlockIndex,
			}
		}
	}
	tx.stamp(&block.Base)
	tx.state.fileBlocks[block.ID] = cloneFileBlock(block)
	return block, nil
}

func (tx *transaction) DeleteFileBlocks(ensembleID, recordName string, realizationIndex *int) error {
	for id, block := range tx.state.fileBlocks {
		if block.EnsembleID != ensembleID || block.RecordName != recordName {
			continue
		}
		if !sameIndex(block.RealizationIndex, realizationIndex) {
			continue
		}
		delete(tx.state.fileBlocks, id)
	}
	return nil
}

func (tx *transaction) CreateObservation(observation domain.Observation) (domain.Observation, error) {
	if _, ok := tx.state.experiments[observation.ExperimentID]; !ok {
		return domain.Observation{}, domain.ExperimentNotFoundError{ExperimentID: observation.ExperimentID}
	}
	if observation.Name == "" {
		return domain.Observation{}, domain.ValidationError{Reason: "observation name must not be empty"}
	}
	for _, existing := range tx.state.observations {
		if existing.ExperimentID == observation.ExperimentID && existing.Name == observation.Name {
			return domain.Observation{}, domain.DuplicateObservationError{
				Name:         observation.Name,
				ExperimentID: observation.ExperimentID,
			}
		}
	}
	if len(observation.Values) != len(observation.XAxis) || len(observation.Errors) != len(observation.XAxis) {
		return domain.Observation{}, domain.ValidationError{
			Reason: fmt.Sprintf("observation %q: x_axis, values and errors must have equal length", observation.Name),
		}
	}
	for _, recordID := range observation.RecordIDs {
		if _, ok := tx.state.records[recordID]; !ok {
			return domain.Observation{}, domain.ValidationError{Reason: fmt.Sprintf("observation %q references unknown record %q", observation.Name, recordID)}
		}
	}
	tx.stamp(&observation.Base)
	tx.state.observations[observation.ID] = cloneObservation(observation)
	return observation, nil
}

func (tx *transaction) UpdateObservation(id string, mutator func(*domain.Observation) error) (domain.Observation, error) {
	existing, ok := tx.state.observations[id]
	if !ok {
		return domain.Observation{}, domain.ObservationNotFoundError{ObservationID: id}
	}
	updated := cloneObservation(existing)
	if err := mutator(&updated); err != nil {
		return domain.Observation{}, err
	}
	updated.ID = existing.ID
	updated.ExperimentID = existing.ExperimentID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.observations[id] = cloneObservation(updated)
	return updated, nil
}

func (tx *transaction) CreateUpdate(update domain.Update) (domain.Update, error) {
	if _, ok := tx.state.ensembles[update.EnsembleReferenceID]; !ok {
		return domain.Update{}, domain.EnsembleNotFoundError{EnsembleID: update.EnsembleReferenceID}
	}
	if update.Algorithm == "" {
		return domain.Update{}, domain.ValidationError{Reason: "update algorithm must not be empty"}
	}
	tx.stamp(&update.Base)
	tx.state.updates[update.ID] = cloneUpdate(update)
	return update, nil
}

func (tx *transaction) LinkUpdateResult(updateID, ensembleID string) error {
	update, ok := tx.state.updates[updateID]
	if !ok {
		return domain.ValidationError{Reason: fmt.Sprintf("update %q not found", updateID)}
	}
	if _, ok := tx.state.ensembles[ensembleID]; !ok {
		return domain.EnsembleNotFoundError{EnsembleID: ensembleID}
	}
	updated := cloneUpdate(update)
	updated.EnsembleResultID = &ensembleID
	updated.UpdatedAt = tx.now
	tx.state.updates[updateID] = updated
	return nil
}

func (tx *transaction) CreateObservationTransformation(transformation domain.ObservationTransformation) (domain.ObservationTransformation, error) {
	if _, ok := tx.state.updates[transformation.UpdateID]; !ok {
		return domain.ObservationTransformation{}, domain.ValidationError{Reason: fmt.Sprintf("update %q not found", transformation.UpdateID)}
	}
	if _, ok := tx.state.observations[transformation.ObservationID]; !ok {
		return domain.ObservationTransformation{}, domain.ObservationNotFoundError{ObservationID: transformation.ObservationID}
	}
	tx.stamp(&transformation.Base)
	tx.state.transformations[transformation.ID] = cloneTransformation(transformation)
	return transformation, nil
}

func intersect(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, name := range a {
		seen[name] = true
	}
	var overlap []string
	for _, name := range b {
		if seen[name] {
			overlap = append(overlap, name)
			seen[name] = false
		}
	}
	return overlap
}

func sameIndex(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
