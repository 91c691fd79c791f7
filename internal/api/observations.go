package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

type createObservationRequest struct {
	Name    string    `json:"name"`
	XAxis   []string  `json:"x_axis"`
	Values  []float64 `json:"values"`
	Errors  []float64 `json:"errors"`
	Records []string  `json:"records"`
}

func (h *handler) createObservation(w http.ResponseWriter, r *http.Request) {
	var req createObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid request body: " + err.Error()})
		return
	}
	observation, err := h.svc.CreateObservation(r.Context(), mux.Vars(r)["experiment_id"], records.CreateObservationInput{
		Name:    req.Name,
		XAxis:   req.XAxis,
		Values:  req.Values,
		Errors:  req.Errors,
		Records: req.Records,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, observation)
}

func (h *handler) listObservations(w http.ResponseWriter, r *http.Request) {
	observations, err := h.svc.ListObservations(r.Context(), mux.Vars(r)["experiment_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if observations == nil {
		observations = []domain.Observation{}
	}
	writeJSON(w, http.StatusOK, observations)
}

func (h *handler) getObservationMetadata(w http.ResponseWriter, r *http.Request) {
	metadata, err := h.svc.ObservationMetadata(r.Context(), mux.Vars(r)["observation_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, metadata)
}

func (h *handler) setObservationMetadata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	replace := r.Method == http.MethodPut
	if err := h.svc.SetObservationMetadata(r.Context(), mux.Vars(r)["observation_id"], data, replace); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getObservationUserdata(w http.ResponseWriter, r *http.Request) {
	userdata, err := h.svc.ObservationUserdata(r.Context(), mux.Vars(r)["observation_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if userdata == nil {
		userdata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, userdata)
}

func (h *handler) putObservationUserdata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.ReplaceObservationUserdata(r.Context(), mux.Vars(r)["observation_id"], data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) patchObservationUserdata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.MergeObservationUserdata(r.Context(), mux.Vars(r)["observation_id"], data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
