package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"ensemblestore/internal/codec"
	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

type transformationRequest struct {
	Name   string    `json:"name"`
	Active []bool    `json:"active"`
	Scale  []float64 `json:"scale"`
}

type createUpdateRequest struct {
	Algorithm           string                  `json:"algorithm"`
	EnsembleReferenceID string                  `json:"ensemble_reference_id"`
	Transformations     []transformationRequest `json:"observation_transformations"`
}

func (h *handler) createUpdate(w http.ResponseWriter, r *http.Request) {
	var req createUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid request body: " + err.Error()})
		return
	}
	in := records.CreateUpdateInput{
		Algorithm:           req.Algorithm,
		EnsembleReferenceID: req.EnsembleReferenceID,
	}
	for _, t := range req.Transformations {
		in.Transformations = append(in.Transformations, records.TransformationInput{
			ObservationName: t.Name,
			Active:          t.Active,
			Scale:           t.Scale,
		})
	}
	update, err := h.svc.CreateUpdate(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (h *handler) getUpdate(w http.ResponseWriter, r *http.Request) {
	update, err := h.svc.GetUpdate(r.Context(), mux.Vars(r)["update_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (h *handler) computeMisfits(w http.ResponseWriter, r *http.Request) {
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	q := r.URL.Query()
	ensembleID := q.Get("ensemble_id")
	responseName := q.Get("response_name")
	if ensembleID == "" || responseName == "" {
		h.writeError(w, domain.ValidationError{Reason: "ensemble_id and response_name are required"})
		return
	}
	summary := q.Get("summary_misfits") == "true"
	frame, err := h.svc.ComputeMisfits(r.Context(), ensembleID, responseName, index, summary)
	if err != nil {
		h.writeError(w, err)
		return
	}
	data, err := codec.EncodeCSV(frame)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write(data)
}
