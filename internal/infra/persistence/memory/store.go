// Package memory provides the in-memory transactional store that the
// durable backends build upon. It is also used directly for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ensemblestore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	experiments     map[string]domain.Experiment
	ensembles       map[string]domain.Ensemble
	records         map[string]domain.Record
	matrices        map[string]domain.FloatMatrix
	files           map[string]domain.File
	fileBlocks      map[string]domain.FileBlock
	observations    map[string]domain.Observation
	updates         map[string]domain.Update
	transformations map[string]domain.ObservationTransformation
}

// Snapshot captures a point-in-time clone of the store state for external
// persistence.
type Snapshot struct {
	Experiments     map[string]domain.Experiment               `json:"experiments"`
	Ensembles       map[string]domain.Ensemble                 `json:"ensembles"`
	Records         map[string]domain.Record                   `json:"records"`
	Matrices        map[string]domain.FloatMatrix              `json:"matrices"`
	Files           map[string]domain.File                     `json:"files"`
	FileBlocks      map[string]domain.FileBlock                `json:"file_blocks"`
	Observations    map[string]domain.Observation              `json:"observations"`
	Updates         map[string]domain.Update                   `json:"updates"`
	Transformations map[string]domain.ObservationTransformation `json:"transformations"`
}

func newMemoryState() memoryState {
	return memoryState{
		experiments:     make(map[string]domain.Experiment),
		ensembles:       make(map[string]domain.Ensemble),
		records:         make(map[string]domain.Record),
		matrices:        make(map[string]domain.FloatMatrix),
		files:           make(map[string]domain.File),
		fileBlocks:      make(map[string]domain.FileBlock),
		observations:    make(map[string]domain.Observation),
		updates:         make(map[string]domain.Update),
		transformations: make(map[string]domain.ObservationTransformation),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.experiments {
		out.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.ensembles {
		out.ensembles[k] = cloneEnsemble(v)
	}
	for k, v := range s.records {
		out.records[k] = cloneRecord(v)
	}
	for k, v := range s.matrices {
		out.matrices[k] = cloneMatrix(v)
	}
	for k, v := range s.files {
		out.files[k] = v
	}
	for k, v := range s.fileBlocks {
		out.fileBlocks[k] = cloneFileBlock(v)
	}
	for k, v := range s.observations {
		out.observations[k] = cloneObservation(v)
	}
	for k, v := range s.updates {
		out.updates[k] = cloneUpdate(v)
	}
	for k, v := range s.transformations {
		out.transformations[k] = cloneTransformation(v)
	}
	return out
}

func snapshotFromState(state memoryState) Snapshot {
	clone := state.clone()
	return Snapshot{
		Experiments:     clone.experiments,
		Ensembles:       clone.ensembles,
		Records:         clone.records,
		Matrices:        clone.matrices,
		Files:           clone.files,
		FileBlocks:      clone.fileBlocks,
		Observations:    clone.observations,
		Updates:         clone.updates,
		Transformations: clone.transformations,
	}
}

func stateFromSnapshot(snapshot Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range snapshot.Experiments {
		state.experiments[k] = cloneExperiment(v)
	}
	for k, v := range snapshot.Ensembles {
		state.ensembles[k] = cloneEnsemble(v)
	}
	for k, v := range snapshot.Records {
		state.records[k] = cloneRecord(v)
	}
	for k, v := range snapshot.Matrices {
		state.matrices[k] = cloneMatrix(v)
	}
	for k, v := range snapshot.Files {
		state.files[k] = v
	}
	for k, v := range snapshot.FileBlocks {
		state.fileBlocks[k] = cloneFileBlock(v)
	}
	for k, v := range snapshot.Observations {
		state.observations[k] = cloneObservation(v)
	}
	for k, v := range snapshot.Updates {
		state.updates[k] = cloneUpdate(v)
	}
	for k, v := range snapshot.Transformations {
		state.transformations[k] = cloneTransformation(v)
	}
	return state
}

// Store provides an in-memory transactional store for the record domain.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string { return uuid.NewString() }

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snapshot)
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy replaces the live state only if fn returns nil, so a
// cancelled or failed request leaves nothing behind.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(stateView{state: &s.state})
}

// Close releases nothing for the in-memory store.
func (s *Store) Close() error { return nil }

// transaction applies mutations to a cloned state, committed by swap.
type transaction struct {
	store *Store
	state memoryState
	now   time.Time
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return stateView{state: &tx.state}
}
