package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"ensemblestore/internal/codec"
	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

func (h *handler) postMatrix(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	format, err := codec.FromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: err.Error()})
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "read body: " + err.Error()})
		return
	}
	record, err := h.svc.WriteMatrix(r.Context(), vars["ensemble_id"], records.WriteMatrixInput{
		Name:             vars["name"],
		RealizationIndex: index,
		Format:           format,
		Data:             data,
		Class:            domain.RecordClass(r.URL.Query().Get("record_class")),
		PriorName:        priorName(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *handler) postFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	filename, mimeType, content, err := fileUpload(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: err.Error()})
		return
	}
	record, err := h.svc.WriteFile(r.Context(), vars["ensemble_id"], records.WriteFileInput{
		Name:             vars["name"],
		RealizationIndex: index,
		Filename:         filename,
		MimeType:         mimeType,
		Content:          content,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// fileUpload accepts either a multipart form with a "file" part or a raw
// body with filename and mime type taken from query and headers.
func fileUpload(r *http.Request) (filename, mimeType string, content []byte, err error) {
	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= 19 && contentType[:19] == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", nil, fmt.Errorf("multipart upload: %w", err)
		}
		defer func() { _ = file.Close() }()
		content, err = io.ReadAll(file)
		if err != nil {
			return "", "", nil, err
		}
		mimeType = header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		return header.Filename, mimeType, content, nil
	}
	content, err = io.ReadAll(r.Body)
	if err != nil {
		return "", "", nil, err
	}
	filename = r.URL.Query().Get("filename")
	if filename == "" {
		filename = mux.Vars(r)["name"]
	}
	mimeType = contentType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return filename, mimeType, content, nil
}

func (h *handler) createBlob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = vars["name"]
	}
	record, err := h.svc.CreateBlob(r.Context(), vars["ensemble_id"], records.CreateBlobInput{
		Name:             vars["name"],
		RealizationIndex: index,
		Filename:         filename,
		MimeType:         r.Header.Get("Content-Type"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *handler) stageBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	blockIndex, err := strconv.Atoi(r.URL.Query().Get("block_index"))
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid block_index: " + err.Error()})
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "read body: " + err.Error()})
		return
	}
	if err := h.svc.StageBlock(r.Context(), vars["ensemble_id"], vars["name"], index, blockIndex, content); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) finalizeBlob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	var blockCount *int
	if raw := r.URL.Query().Get("block_count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, domain.ValidationError{Reason: "invalid block_count: " + err.Error()})
			return
		}
		blockCount = &count
	}
	if err := h.svc.FinalizeBlob(r.Context(), vars["ensemble_id"], vars["name"], index, blockCount); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	accept, err := codec.FromAccept(r.Header.Get("Accept"))
	if err != nil {
		h.writeError(w, domain.NotImplementedError{AcceptFormat: r.Header.Get("Accept")})
		return
	}
	data, err := h.svc.ReadRecord(r.Context(), vars["ensemble_id"], vars["name"], index, accept)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if data.IsFile() {
		defer func() { _ = data.Body.Close() }()
		w.Header().Set("Content-Type", data.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", data.Filename))
		if data.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(data.Size, 10))
		}
		_, _ = io.Copy(w, data.Body)
		return
	}
	w.Header().Set("Content-Type", data.ContentType)
	_, _ = w.Write(data.Data)
}

type labelsRequest struct {
	Columns []string `json:"columns"`
	Rows    []string `json:"rows"`
}

func (h *handler) setLabels(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	var req labelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid request body: " + err.Error()})
		return
	}
	if err := h.svc.SetLabels(r.Context(), vars["ensemble_id"], vars["name"], index, domain.Labels{
		Columns: req.Columns,
		Rows:    req.Rows,
	}); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getLabels(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	labels, err := h.svc.GetLabels(r.Context(), vars["ensemble_id"], vars["name"], index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if labels == nil {
		writeJSON(w, http.StatusOK, labelsRequest{Columns: []string{}, Rows: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (h *handler) getRecordUserdata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	userdata, err := h.svc.RecordUserdata(r.Context(), vars["ensemble_id"], vars["name"], index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if userdata == nil {
		userdata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, userdata)
}

func (h *handler) putRecordUserdata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.ReplaceRecordUserdata(r.Context(), vars["ensemble_id"], vars["name"], index, data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) patchRecordUserdata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	if err := h.svc.MergeRecordUserdata(r.Context(), vars["ensemble_id"], vars["name"], index, data); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) getRecordMetadata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	metadata, err := h.svc.RecordMetadata(r.Context(), vars["ensemble_id"], vars["name"], index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	writeJSON(w, http.StatusOK, metadata)
}

func (h *handler) setRecordMetadata(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	data, ok := decodeUserdata(w, r, h)
	if !ok {
		return
	}
	replace := r.Method == http.MethodPut
	if err := h.svc.SetRecordMetadata(r.Context(), vars["ensemble_id"], vars["name"], index, data, replace); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) attachObservation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	observationID := r.URL.Query().Get("observation_id")
	if observationID == "" {
		h.writeError(w, domain.ValidationError{Reason: "observation_id is required"})
		return
	}
	if err := h.svc.AttachObservation(r.Context(), vars["ensemble_id"], vars["name"], index, observationID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) recordObservations(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := realizationIndex(r)
	if err != nil {
		h.writeError(w, domain.ValidationError{Reason: "invalid realization_index: " + err.Error()})
		return
	}
	observations, err := h.svc.RecordObservations(r.Context(), vars["ensemble_id"], vars["name"], index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if observations == nil {
		observations = []domain.Observation{}
	}
	writeJSON(w, http.StatusOK, observations)
}
