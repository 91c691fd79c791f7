package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

type createEnsembleRequest struct {
	Size               *int           `json:"size"`
	ParameterNames     []string       `json:"parameter_names"`
	ResponseNames      []string       `json:"response_names"`
	ActiveRealizations []int          `json:"active_realizations,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Userdata           map[string]any `json:"userdata,omitempty"`
	// Update, when set, links the new ensemble as that update's result.
	Update string `json:"update_id,omitempty"`
}

func (h *handler) createEnsemble(w http.ResponseWriter, r *http.Request) {
	var req createEnsembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid request body: " + err.Error()})
		return
	}
	size := -1
	if req.Size != nil {
		size = *req.Size
	}
	ensemble, err := h.svc.CreateEnsemble(r.Context(), mux.Vars(r)["experiment_id"], records.CreateEnsembleInput{
		Size:               size,
		ParameterNames:     req.ParameterNames,
		ResponseNames:      req.ResponseNames,
		ActiveRealizations: req.ActiveRealizations,
		Metadata:           req.Metadata,
		Userdata:           req.Userdata,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.Update != "" {
		if err := h.svc.LinkUpdateResult(r.Context(), req.Update, ensemble.ID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ensemble)
}

func (h *handler) listEnsembles(w http.ResponseWriter, r *http.Request) {
	ensembles, err := h.svc.ListEnsembles(r.Context(), mux.Vars(r)["experiment_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ensembles == nil {
		ensembles = []domain.Ensemble{}
	}
	writeJSON(w, http.StatusOK, ensembles)
}

// ensembleResponse widens the entity with provenance derived from update
// linkage: the ensemble the parent update started from, and the ensembles
// produced by updates that used this one as reference.
type ensembleResponse struct {
	domain.Ensemble
	Parent   *string  `json:"parent_ensemble_id,omitempty"`
	Children []string `json:"child_ensemble_ids"`
}

func (h *handler) getEnsemble(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["ensemble_id"]
	ensemble, err := h.svc.GetEnsemble(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := ensembleResponse{Ensemble: ensemble, Children: []string{}}
	parent, err := h.svc.EnsembleParent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if parent != nil {
		out.Parent = &parent.EnsembleReferenceID
	}
	children, err := h.svc.EnsembleChildren(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	for _, child := range children {
		if child.EnsembleResultID != nil {
			out.Children = append(out.Children, *child.EnsembleResultID)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getEnsembleUserdata(w http.ResponseWriter, r *http.Request) {
	ensemble, err := h.svc.GetEnsemble(r.Context(), mux.Vars(r)["ensemble_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	userdata := ensemble.Userdata
	if userdata == nil {
		userdata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, userdata)
}

func (h *handler) putEnsembleUserdata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.ReplaceEnsembleUserdata(r.Context(), mux.Vars(r)["ensemble_id"], data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) patchEnsembleUserdata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.MergeEnsembleUserdata(r.Context(), mux.Vars(r)["ensemble_id"], data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getEnsembleMetadata(w http.ResponseWriter, r *http.Request) {
	ensemble, err := h.svc.GetEnsemble(r.Context(), mux.Vars(r)["ensemble_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	metadata := ensemble.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, metadata)
}

func (h *handler) setEnsembleMetadata(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	replace := r.Method == http.MethodPut
	if err := h.svc.SetEnsembleMetadata(r.Context(), mux.Vars(r)["ensemble_id"], data, replace); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.ListRecordSummaries(r.Context(), mux.Vars(r)["ensemble_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []records.RecordSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *handler) listParameters(w http.ResponseWriter, r *http.Request) {
	parameters, err := h.svc.Parameters(r.Context(), mux.Vars(r)["ensemble_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if parameters == nil {
		parameters = []records.ParameterInfo{}
	}
	writeJSON(w, http.StatusOK, parameters)
}

func (h *handler) listResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.svc.Responses(r.Context(), mux.Vars(r)["ensemble_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if responses == nil {
		responses = []records.RecordSummary{}
	}
	writeJSON(w, http.StatusOK, responses)
}

func (h *handler) ensembleObservations(w http.ResponseWriter, r *http.Request) {
	observations, err := h.svc.EnsembleObservations(r.Context(), mux.Vars(r)["ensemble_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	if observations == nil {
		observations = []domain.Observation{}
	}
	writeJSON(w, http.StatusOK, observations)
}

func (h *handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportCSV(r.Context(), mux.Vars(r)["ensemble_id"], r.URL.Query()["filter"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)
	_, _ = w.Write(data)
}
