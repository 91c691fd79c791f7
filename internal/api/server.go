// Package api exposes the storage service over HTTP: experiment and
// ensemble lifecycle, multi-format record retrieval and storage, staged
// blob uploads, and derived views.
package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ensemblestore/internal/graphql"
	"ensemblestore/internal/records"
)

// Options configures the HTTP surface.
type Options struct {
	// Token guards every route except /healthcheck and /metrics when
	// non-empty.
	Token string
	Log   *zap.Logger
}

type handler struct {
	svc *records.Service
	log *zap.Logger
}

// NewRouter builds the service router with auth, logging, and metrics
// middleware installed.
func NewRouter(svc *records.Service, opts Options) *mux.Router {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{svc: svc, log: log}

	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.Use(requestLogMiddleware(log))
	r.Use(tokenMiddleware(opts.Token))

	r.HandleFunc("/healthcheck", h.healthcheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/experiments", h.createExperiment).Methods(http.MethodPost)
	r.HandleFunc("/experiments", h.listExperiments).Methods(http.MethodGet)
	r.HandleFunc("/experiments/{experiment_id}", h.getExperiment).Methods(http.MethodGet)
	r.HandleFunc("/experiments/{experiment_id}", h.deleteExperiment).Methods(http.MethodDelete)
	r.HandleFunc("/experiments/{experiment_id}/userdata", h.getExperimentUserdata).Methods(http.MethodGet)
	r.HandleFunc("/experiments/{experiment_id}/userdata", h.putExperimentUserdata).Methods(http.MethodPut)
	r.HandleFunc("/experiments/{experiment_id}/userdata", h.patchExperimentUserdata).Methods(http.MethodPatch)
	r.HandleFunc("/experiments/{experiment_id}/metadata", h.getExperimentMetadata).Methods(http.MethodGet)
	r.HandleFunc("/experiments/{experiment_id}/metadata", h.setExperimentMetadata).Methods(http.MethodPatch, http.MethodPut)

	r.HandleFunc("/experiments/{experiment_id}/ensembles", h.createEnsemble).Methods(http.MethodPost)
	r.HandleFunc("/experiments/{experiment_id}/ensembles", h.listEnsembles).Methods(http.MethodGet)
	r.HandleFunc("/experiments/{experiment_id}/observations", h.createObservation).Methods(http.MethodPost)
	r.HandleFunc("/experiments/{experiment_id}/observations", h.listObservations).Methods(http.MethodGet)

	r.HandleFunc("/ensembles/{ensemble_id}", h.getEnsemble).Methods(http.MethodGet)
	r.HandleFunc("/ensembles/{ensemble_id}/userdata", h.getEnsembleUserdata).Methods(http.MethodGet)
	r.HandleFunc("/ensembles/{ensemble_id}/userdata", h.putEnsembleUserdata).Methods(http.MethodPut)
	r.HandleFunc("/ensembles/{ensemble_id}/userdata", h.patchEnsembleUserdata).Methods(http.MethodPatch)
	r.HandleFunc("/ensembles/{ensemble_id}/metadata", h.getEnsembleMetadata).Methods(http.MethodGet)
	r.HandleFunc("/ensembles/{ensemble_id}/metadata", h.setEnsembleMetadata).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/ensembles/{ensemble_id}/records", h.listRecords).Methods(http.MethodGet)
	r.HandleFunc("/ensembles/{ensemble_id}/parameters", h.listParameters).Methods(http.MethodGet)
	r.HandleFunc("/ensembles/{ensemble_id}/responses", h.listResponses).Methods(http.MethodGet)
	r.HandleFunc("/ensembles/{ensemble_id}/observations", h.ensembleObservations).Methods(http.MethodGet)
	r.HandleFunc("/ensembles/{ensemble_id}/export/csv", h.exportCSV).Methods(http.MethodGet)

	rec := "/ensembles/{ensemble_id}/records/{name}"
	r.HandleFunc(rec+"/matrix", h.postMatrix).Methods(http.MethodPost, http.MethodPut)
	r.HandleFunc(rec+"/file", h.postFile).Methods(http.MethodPost)
	r.HandleFunc(rec+"/blob", h.createBlob).Methods(http.MethodPost)
	r.HandleFunc(rec+"/blob", h.stageBlock).Methods(http.MethodPut)
	r.HandleFunc(rec+"/blob", h.finalizeBlob).Methods(http.MethodPatch)
	r.HandleFunc(rec+"/labels", h.setLabels).Methods(http.MethodPost, http.MethodPut)
	r.HandleFunc(rec+"/labels", h.getLabels).Methods(http.MethodGet)
	r.HandleFunc(rec+"/metadata", h.getRecordMetadata).Methods(http.MethodGet)
	r.HandleFunc(rec+"/metadata", h.setRecordMetadata).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc(rec+"/userdata", h.getRecordUserdata).Methods(http.MethodGet)
	r.HandleFunc(rec+"/userdata", h.putRecordUserdata).Methods(http.MethodPut)
	r.HandleFunc(rec+"/userdata", h.patchRecordUserdata).Methods(http.MethodPatch)
	r.HandleFunc(rec+"/observations", h.attachObservation).Methods(http.MethodPost)
	r.HandleFunc(rec+"/observations", h.recordObservations).Methods(http.MethodGet)
	r.HandleFunc(rec, h.getRecord).Methods(http.MethodGet)

	r.HandleFunc("/observations/{observation_id}/metadata", h.getObservationMetadata).Methods(http.MethodGet)
	r.HandleFunc("/observations/{observation_id}/metadata", h.setObservationMetadata).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/observations/{observation_id}/userdata", h.getObservationUserdata).Methods(http.MethodGet)
	r.HandleFunc("/observations/{observation_id}/userdata", h.putObservationUserdata).Methods(http.MethodPut)
	r.HandleFunc("/observations/{observation_id}/userdata", h.patchObservationUserdata).Methods(http.MethodPatch)

	r.HandleFunc("/updates", h.createUpdate).Methods(http.MethodPost)
	r.HandleFunc("/updates/{update_id}", h.getUpdate).Methods(http.MethodGet)
	r.HandleFunc("/compute/misfits", h.computeMisfits).Methods(http.MethodGet)

	r.Handle("/gql", graphql.NewHandler(svc)).Methods(http.MethodPost, http.MethodGet)

	return r
}

func (h *handler) healthcheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authExempt routes stay reachable without a token so probes and scrapers
// need no credentials.
func authExempt(path string) bool {
	return path == "/healthcheck" || path == "/metrics"
}

func tokenMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || authExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			provided := r.Header.Get("Token")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				writeJSON(w, http.StatusForbidden, errorDetail{Error: "invalid or missing token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogMiddleware(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// realizationIndex parses the optional ?realization_index query parameter.
func realizationIndex(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("realization_index")
	if raw == "" {
		return nil, nil
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &index, nil
}

// priorName accepts both the prior_id and prior query spellings; priors are
// keyed by name within their experiment.
func priorName(r *http.Request) string {
	if v := r.URL.Query().Get("prior_id"); v != "" {
		return v
	}
	return r.URL.Query().Get("prior")
}
