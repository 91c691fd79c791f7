package domain

import "context"

// Transaction exposes the mutations a persistence implementation must
// support within one atomic scope. Invariants (record uniqueness,
// parameter/response disjointness, referential integrity, cascade delete)
// are enforced here so every backend shares one set of semantics.
type Transaction interface {
	Snapshot() TransactionView

	CreateExperiment(Experiment) (Experiment, error)
	UpdateExperiment(id string, mutator func(*Experiment) error) (Experiment, error)
	DeleteExperiment(id string) error

	CreateEnsemble(Ensemble) (Ensemble, error)
	UpdateEnsemble(id string, mutator func(*Ensemble) error) (Ensemble, error)

	CreateRecord(Record) (Record, error)
	UpdateRecord(id string, mutator func(*Record) error) (Record, error)

	CreateMatrix(FloatMatrix) (FloatMatrix, error)
	UpdateMatrix(id string, mutator func(*FloatMatrix) error) (FloatMatrix, error)

	CreateFile(File) (File, error)
	UpdateFile(id string, mutator func(*File) error) (File, error)

	CreateFileBlock(FileBlock) (FileBlock, error)
	DeleteFileBlocks(ensembleID, recordName string, realizationIndex *int) error

	CreateObservation(Observation) (Observation, error)
	UpdateObservation(id string, mutator func(*Observation) error) (Observation, error)

	CreateUpdate(Update) (Update, error)
	LinkUpdateResult(updateID, ensembleID string) error
	CreateObservationTransformation(ObservationTransformation) (ObservationTransformation, error)
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	GetExperiment(id string) (Experiment, bool)
	ListExperiments() []Experiment

	GetEnsemble(id string) (Ensemble, bool)
	ListEnsembles(experimentID string) []Ensemble

	GetRecord(id string) (Record, bool)
	FindRecord(ensembleID, name string, realizationIndex *int) (Record, bool)
	ListRecords(ensembleID string) []Record
	ListRecordsByName(ensembleID, name string) []Record

	GetMatrix(id string) (FloatMatrix, bool)
	GetFile(id string) (File, bool)
	ListFileBlocks(ensembleID, recordName string, realizationIndex *int) []FileBlock

	GetObservation(id string) (Observation, bool)
	ListObservations(experimentID string) []Observation

	GetUpdate(id string) (Update, bool)
	FindUpdateByResult(ensembleID string) (Update, bool)
	ListUpdatesByReference(ensembleID string) []Update

	FindPrior(priorID string) (Prior, bool)
}

// PersistentStore is the minimal abstraction over durable backends. A
// transaction either commits fully or leaves no trace.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
