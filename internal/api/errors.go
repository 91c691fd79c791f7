package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"ensemblestore/pkg/domain"
)

// errorDetail is the body of every error response.
type errorDetail struct {
	Error            string `json:"error"`
	Name             string `json:"name,omitempty"`
	EnsembleID       string `json:"ensemble_id,omitempty"`
	RealizationIndex *int   `json:"realization_index,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors to HTTP statuses. Not-found lookups map to
// 404, conflicting writes to 409, out-of-range realizations to 417, rule
// violations to 422, unsupported renderings to 501, and blob backend
// failures to 502.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	detail := errorDetail{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		experimentNotFound  domain.ExperimentNotFoundError
		ensembleNotFound    domain.EnsembleNotFoundError
		observationNotFound domain.ObservationNotFoundError
		recordNotFound      domain.RecordNotFoundError
		duplicate           domain.DuplicateRecordError
		duplicateObs        domain.DuplicateObservationError
		duplicateBlock      domain.DuplicateFileBlockError
		finalized           domain.AlreadyFinalizedError
		outOfRange          domain.RealizationOutOfRangeError
		malformed           domain.MalformedMatrixError
		invalidPrior        domain.InvalidPriorAssignmentError
		overlap             domain.NameOverlapError
		validation          domain.ValidationError
		notImplemented      domain.NotImplementedError
	)
	switch {
	case errors.As(err, &experimentNotFound),
		errors.As(err, &ensembleNotFound),
		errors.As(err, &observationNotFound):
		status = http.StatusNotFound
	case errors.As(err, &recordNotFound):
		status = http.StatusNotFound
		detail.Name = recordNotFound.Name
		detail.EnsembleID = recordNotFound.EnsembleID
		detail.RealizationIndex = recordNotFound.RealizationIndex
	case errors.As(err, &duplicate):
		status = http.StatusConflict
		detail.Name = duplicate.Name
		detail.EnsembleID = duplicate.EnsembleID
	case errors.As(err, &duplicateObs):
		status = http.StatusConflict
		detail.Name = duplicateObs.Name
	case errors.As(err, &duplicateBlock):
		status = http.StatusConflict
		detail.Name = duplicateBlock.RecordName
		detail.EnsembleID = duplicateBlock.EnsembleID
	case errors.As(err, &finalized):
		status = http.StatusConflict
		detail.Name = finalized.Name
		detail.EnsembleID = finalized.EnsembleID
	case errors.As(err, &outOfRange):
		status = http.StatusExpectationFailed
		detail.Name = outOfRange.Name
		detail.EnsembleID = outOfRange.EnsembleID
		detail.RealizationIndex = &outOfRange.RealizationIndex
	case errors.As(err, &malformed):
		status = http.StatusUnprocessableEntity
		detail.Name = malformed.Name
		detail.EnsembleID = malformed.EnsembleID
		detail.RealizationIndex = malformed.RealizationIndex
	case errors.As(err, &invalidPrior):
		status = http.StatusUnprocessableEntity
		detail.Name = invalidPrior.Name
		detail.EnsembleID = invalidPrior.EnsembleID
	case errors.As(err, &overlap), errors.As(err, &validation):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &notImplemented):
		status = http.StatusNotImplemented
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, detail)
}
