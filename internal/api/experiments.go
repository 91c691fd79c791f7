package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

type createExperimentRequest struct {
	Name     string                  `json:"name"`
	Priors   map[string]domain.Prior `json:"priors,omitempty"`
	Metadata map[string]any          `json:"metadata,omitempty"`
	Userdata map[string]any          `json:"userdata,omitempty"`
}

func (h *handler) createExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid request body: " + err.Error()})
		return
	}
	experiment, err := h.svc.CreateExperiment(r.Context(), records.CreateExperimentInput{
		Name:     req.Name,
		Priors:   req.Priors,
		Metadata: req.Metadata,
		Userdata: req.Userdata,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experiment)
}

func (h *handler) listExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := h.svc.ListExperiments(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if experiments == nil {
		experiments = []domain.Experiment{}
	}
	writeJSON(w, http.StatusOK, experiments)
}

func (h *handler) getExperiment(w http.ResponseWriter, r *http.Request) {
	experiment, err := h.svc.GetExperiment(r.Context(), mux.Vars(r)["experiment_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experiment)
}

func (h *handler) deleteExperiment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteExperiment(r.Context(), mux.Vars(r)["experiment_id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getExperimentUserdata(w http.ResponseWriter, r *http.Request) {
	experiment, err := h.svc.GetExperiment(r.Context(), mux.Vars(r)["experiment_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	userdata := experiment.Userdata
	if userdata == nil {
		userdata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, userdata)
}

func decodeUserdata(w http.ResponseWriter, r *http.Request, h *handler) (map[string]any, bool) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid request body: " + err.Error()})
		return nil, false
	}
	return data, true
}

func (h *handler) putExperimentUserdata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.ReplaceExperimentUserdata(r.Context(), mux.Vars(r)["experiment_id"], data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) patchExperimentUserdata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.MergeExperimentUserdata(r.Context(), mux.Vars(r)["experiment_id"], data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getExperimentMetadata(w http.ResponseWriter, r *http.Request) {
	experiment, err := h.svc.GetExperiment(r.Context(), mux.Vars(r)["experiment_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	metadata := experiment.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, metadata)
}

func (h *handler) setExperimentMetadata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	replace := r.Method == http.MethodPut
	if err := h.svc.SetExperimentMetadata(r.Context(), mux.Vars(r)["experiment_id"], data, replace); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
