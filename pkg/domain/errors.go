package domain

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable marks blob backend failures that are fatal for the
// current request. Wrap with %w so callers can match with errors.Is.
var ErrBackendUnavailable = errors.New("blob backend unavailable")

// ExperimentNotFoundError reports a missing experiment.
type ExperimentNotFoundError struct {
	ExperimentID string
}

func (e ExperimentNotFoundError) Error() string {
	return fmt.Sprintf("experiment %q not found", e.ExperimentID)
}

// EnsembleNotFoundError reports a missing ensemble.
type EnsembleNotFoundError struct {
	EnsembleID string
}

func (e EnsembleNotFoundError) Error() string {
	return fmt.Sprintf("ensemble %q not found", e.EnsembleID)
}

// ObservationNotFoundError reports a missing observation.
type ObservationNotFoundError struct {
	ObservationID string
	ExperimentID  string
}

func (e ObservationNotFoundError) Error() string {
	return fmt.Sprintf("observation %q not found", e.ObservationID)
}

// RecordNotFoundError reports a missing record. RealizationIndex nil means
// the ensemble-wide record was requested.
type RecordNotFoundError struct {
	Name             string
	EnsembleID       string
	RealizationIndex *int
}

func (e RecordNotFoundError) Error() string {
	if e.RealizationIndex == nil {
		return fmt.Sprintf("ensemble-wide record %q for ensemble %q not found", e.Name, e.EnsembleID)
	}
	return fmt.Sprintf("forward-model record %q for ensemble %q, realization %d not found", e.Name, e.EnsembleID, *e.RealizationIndex)
}

// DuplicateRecordError reports a write that collides with an existing record
// of the same name.
type DuplicateRecordError struct {
	Name       string
	EnsembleID string
}

func (e DuplicateRecordError) Error() string {
	return fmt.Sprintf("record %q for ensemble %q already exists", e.Name, e.EnsembleID)
}

// DuplicateObservationError reports an observation whose name is already
// taken within its experiment.
type DuplicateObservationError struct {
	Name         string
	ExperimentID string
}

func (e DuplicateObservationError) Error() string {
	return fmt.Sprintf("observation %q for experiment %q already exists", e.Name, e.ExperimentID)
}

// DuplicateFileBlockError reports a staged block whose index is already
// occupied for the pending record.
type DuplicateFileBlockError struct {
	RecordName string
	EnsembleID string
	BlockIndex int
}

func (e DuplicateFileBlockError) Error() string {
	return fmt.Sprintf("block %d for record %q in ensemble %q already staged", e.BlockIndex, e.RecordName, e.EnsembleID)
}

// MalformedMatrixError reports a payload that could not be parsed as a float
// matrix in the submitted content type.
type MalformedMatrixError struct {
	Name             string
	EnsembleID       string
	RealizationIndex *int
	Reason           string
}

func (e MalformedMatrixError) Error() string {
	if e.RealizationIndex == nil {
		return fmt.Sprintf("ensemble-wide record %q for ensemble %q needs to be a matrix: %s", e.Name, e.EnsembleID, e.Reason)
	}
	return fmt.Sprintf("forward-model record %q for ensemble %q, realization %d needs to be a matrix: %s", e.Name, e.EnsembleID, *e.RealizationIndex, e.Reason)
}

// InvalidPriorAssignmentError reports a prior attached to a non-parameter
// record.
type InvalidPriorAssignmentError struct {
	Name       string
	EnsembleID string
	PriorID    string
}

func (e InvalidPriorAssignmentError) Error() string {
	return fmt.Sprintf("priors can only be specified for parameter records (record %q, prior %q)", e.Name, e.PriorID)
}

// NameOverlapError reports overlapping parameter and response name sets at
// ensemble creation.
type NameOverlapError struct {
	Overlap []string
}

func (e NameOverlapError) Error() string {
	return fmt.Sprintf("parameters and responses cannot have a name in common: %v", e.Overlap)
}

// RealizationOutOfRangeError reports a realization index outside the
// ensemble's size or active set.
type RealizationOutOfRangeError struct {
	Name             string
	EnsembleID       string
	RealizationIndex int
}

func (e RealizationOutOfRangeError) Error() string {
	return fmt.Sprintf("realization index %d out of range for ensemble %q", e.RealizationIndex, e.EnsembleID)
}

// ValidationError reports a request that is structurally valid but violates
// a domain rule not covered by a more specific type.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

// NotImplementedError reports an unsupported (record type, accept format)
// combination.
type NotImplementedError struct {
	RecordType   RecordType
	AcceptFormat string
}

func (e NotImplementedError) Error() string {
	return fmt.Sprintf("getting record data for type %q and accept %q not implemented", e.RecordType, e.AcceptFormat)
}

// AlreadyFinalizedError reports a second finalize of the same blob record.
type AlreadyFinalizedError struct {
	Name       string
	EnsembleID string
}

func (e AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("blob record %q for ensemble %q is already finalized", e.Name, e.EnsembleID)
}
