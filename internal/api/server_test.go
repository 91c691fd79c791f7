package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ensemblestore/internal/infra/persistence/memory"
	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

func newTestRouter(t *testing.T, token string) http.Handler {
	t.Helper()
	svc := records.New(memory.NewStore(), nil, nil)
	return NewRouter(svc, Options{Token: token})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
}

func TestHealthcheck(t *testing.T) {
	router := newTestRouter(t, "")
	rec := doJSON(t, router, http.MethodGet, "/healthcheck", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenAuth(t *testing.T) {
	router := newTestRouter(t, "hunter2")

	rec := doJSON(t, router, http.MethodGet, "/experiments", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/experiments", nil)
	req.Header.Set("Token", "wrong")
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusForbidden, out.Code)

	req = httptest.NewRequest(http.MethodGet, "/experiments", nil)
	req.Header.Set("Token", "hunter2")
	out = httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	// probes stay open
	rec = doJSON(t, router, http.MethodGet, "/healthcheck", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func createExperimentAndEnsemble(t *testing.T, router http.Handler, size int) (string, string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/experiments", map[string]any{"name": "exp"})
	require.Equal(t, http.StatusOK, rec.Code)
	var experiment domain.Experiment
	decodeInto(t, rec, &experiment)

	rec = doJSON(t, router, http.MethodPost, "/experiments/"+experiment.ID+"/ensembles", map[string]any{
		"size":            size,
		"parameter_names": []string{"coeffs"},
		"response_names":  []string{"output"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var ensemble domain.Ensemble
	decodeInto(t, rec, &ensemble)
	return experiment.ID, ensemble.ID
}

func TestMatrixRecordScenario(t *testing.T) {
	router := newTestRouter(t, "")
	_, ensembleID := createExperimentAndEnsemble(t, router, 3)

	base := fmt.Sprintf("/ensembles/%s/records/output/matrix", ensembleID)
	post := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`[1,2,3]`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(base + "?realization_index=0")
	require.Equal(t, http.StatusOK, rec.Code)

	// duplicate write conflicts
	rec = post(base + "?realization_index=0")
	require.Equal(t, http.StatusConflict, rec.Code)
	var detail struct {
		Error      string `json:"error"`
		Name       string `json:"name"`
		EnsembleID string `json:"ensemble_id"`
	}
	decodeInto(t, rec, &detail)
	require.Equal(t, "output", detail.Name)
	require.Equal(t, ensembleID, detail.EnsembleID)

	// out-of-range realization
	rec = post(base + "?realization_index=9")
	require.Equal(t, http.StatusExpectationFailed, rec.Code)

	// read it back
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/ensembles/%s/records/output?realization_index=0", ensembleID), nil)
	req.Header.Set("Accept", "application/json")
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	require.JSONEq(t, `[1,2,3]`, out.Body.String())

	// CSV rendering via accept header
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/ensembles/%s/records/output?realization_index=0", ensembleID), nil)
	req.Header.Set("Accept", "text/csv")
	out = httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	require.Equal(t, "text/csv", out.Header().Get("Content-Type"))

	// record listing groups by name
	rec = doJSON(t, router, http.MethodGet, "/ensembles/"+ensembleID+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []records.RecordSummary
	decodeInto(t, rec, &summaries)
	require.Len(t, summaries, 1)
	require.Equal(t, "output", summaries[0].Name)
}

func TestMalformedMatrixBody(t *testing.T) {
	router := newTestRouter(t, "")
	_, ensembleID := createExperimentAndEnsemble(t, router, 3)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/ensembles/%s/records/output/matrix?realization_index=0", ensembleID), strings.NewReader(`[[1,2],[3]]`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRecordNotFoundDetail(t *testing.T) {
	router := newTestRouter(t, "")
	_, ensembleID := createExperimentAndEnsemble(t, router, 3)

	rec := doJSON(t, router, http.MethodGet, "/ensembles/"+ensembleID+"/records/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var detail struct {
		Error string `json:"error"`
		Name  string `json:"name"`
	}
	decodeInto(t, rec, &detail)
	require.Equal(t, "missing", detail.Name)
}

func TestBlobEndpoints(t *testing.T) {
	router := newTestRouter(t, "")
	_, ensembleID := createExperimentAndEnsemble(t, router, 3)

	base := fmt.Sprintf("/ensembles/%s/records/archive/blob", ensembleID)
	rec := doJSON(t, router, http.MethodPost, base+"?filename=archive.bin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for i, chunk := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("%s?block_index=%d", base, i), strings.NewReader(chunk))
		out := httptest.NewRecorder()
		router.ServeHTTP(out, req)
		require.Equal(t, http.StatusOK, out.Code)
	}

	req := httptest.NewRequest(http.MethodPatch, base+"?block_count=3", nil)
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/ensembles/%s/records/archive", ensembleID), nil)
	out = httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	require.Equal(t, "abc", out.Body.String())
	require.Contains(t, out.Header().Get("Content-Disposition"), "archive.bin")
}

func TestFileUploadRawBody(t *testing.T) {
	router := newTestRouter(t, "")
	_, ensembleID := createExperimentAndEnsemble(t, router, 3)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/ensembles/%s/records/report/file?filename=report.txt", ensembleID), strings.NewReader("file-content"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/ensembles/%s/records/report", ensembleID), nil)
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	require.Equal(t, "file-content", out.Body.String())
	require.Equal(t, "text/plain", out.Header().Get("Content-Type"))
}

func TestObservationAndMisfitEndpoints(t *testing.T) {
	router := newTestRouter(t, "")
	experimentID, ensembleID := createExperimentAndEnsemble(t, router, 3)

	rec := doJSON(t, router, http.MethodPost, "/experiments/"+experimentID+"/observations", map[string]any{
		"name":   "obs",
		"x_axis": []string{"0", "1"},
		"values": []float64{1, 1},
		"errors": []float64{1, 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var observation domain.Observation
	decodeInto(t, rec, &observation)

	// reusing the name within the experiment conflicts
	rec = doJSON(t, router, http.MethodPost, "/experiments/"+experimentID+"/observations", map[string]any{
		"name":   "obs",
		"x_axis": []string{"0"},
		"values": []float64{1},
		"errors": []float64{1},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/ensembles/%s/records/output/matrix?realization_index=0", ensembleID), strings.NewReader(`[3,1]`))
	req.Header.Set("Content-Type", "application/json")
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/ensembles/%s/records/output/observations?realization_index=0&observation_id=%s", ensembleID, observation.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/compute/misfits?ensemble_id=%s&response_name=output", ensembleID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "4")
}

func TestUpdateEndpoints(t *testing.T) {
	router := newTestRouter(t, "")
	experimentID, referenceID := createExperimentAndEnsemble(t, router, 3)

	rec := doJSON(t, router, http.MethodPost, "/updates", map[string]any{
		"algorithm":             "ensemble_smoother",
		"ensemble_reference_id": referenceID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var update domain.Update
	decodeInto(t, rec, &update)

	// new ensemble linked as the update result
	rec = doJSON(t, router, http.MethodPost, "/experiments/"+experimentID+"/ensembles", map[string]any{
		"size":      3,
		"update_id": update.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/updates/"+update.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Update
	decodeInto(t, rec, &got)
	require.NotNil(t, got.EnsembleResultID)

	// provenance surfaces on both sides of the linkage
	var child struct {
		Parent *string `json:"parent_ensemble_id"`
	}
	rec = doJSON(t, router, http.MethodGet, "/ensembles/"+*got.EnsembleResultID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &child)
	require.NotNil(t, child.Parent)
	require.Equal(t, referenceID, *child.Parent)

	var reference struct {
		Children []string `json:"child_ensemble_ids"`
	}
	rec = doJSON(t, router, http.MethodGet, "/ensembles/"+referenceID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &reference)
	require.Equal(t, []string{*got.EnsembleResultID}, reference.Children)
}

func TestGraphQLEndpoint(t *testing.T) {
	router := newTestRouter(t, "")
	createExperimentAndEnsemble(t, router, 3)

	rec := doJSON(t, router, http.MethodPost, "/gql", map[string]any{
		"query": `{ experiments { name ensembles { size } } }`,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Data struct {
			Experiments []struct {
				Name      string `json:"name"`
				Ensembles []struct {
					Size int `json:"size"`
				} `json:"ensembles"`
			} `json:"experiments"`
		} `json:"data"`
	}
	decodeInto(t, rec, &result)
	require.Len(t, result.Data.Experiments, 1)
	require.Equal(t, "exp", result.Data.Experiments[0].Name)
	require.Len(t, result.Data.Experiments[0].Ensembles, 1)
	require.Equal(t, 3, result.Data.Experiments[0].Ensembles[0].Size)
}

func TestExportCSVEndpoint(t *testing.T) {
	router := newTestRouter(t, "")
	_, ensembleID := createExperimentAndEnsemble(t, router, 2)

	for index, row := range []string{`[1,2]`, `[3,4]`} {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/ensembles/%s/records/output/matrix?realization_index=%d", ensembleID, index), strings.NewReader(row))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/ensembles/"+ensembleID+"/export/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "export.csv")
	require.Contains(t, rec.Body.String(), "output:0")
}

func TestMetadataAndUserdataEndpoints(t *testing.T) {
	router := newTestRouter(t, "")
	experimentID, ensembleID := createExperimentAndEnsemble(t, router, 3)

	rec := doJSON(t, router, http.MethodPut,
		fmt.Sprintf("/experiments/%s/metadata", experimentID), map[string]any{"origin": "lab"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch,
		fmt.Sprintf("/experiments/%s/metadata", experimentID), map[string]any{"batch": "7"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/experiments/%s/metadata", experimentID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var metadata map[string]any
	decodeInto(t, rec, &metadata)
	require.Equal(t, map[string]any{"origin": "lab", "batch": "7"}, metadata)

	// PUT replaces wholesale
	rec = doJSON(t, router, http.MethodPut,
		fmt.Sprintf("/experiments/%s/metadata", experimentID), map[string]any{"origin": "field"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/experiments/%s/metadata", experimentID), nil)
	metadata = nil
	decodeInto(t, rec, &metadata)
	require.Equal(t, map[string]any{"origin": "field"}, metadata)

	recordPath := fmt.Sprintf("/ensembles/%s/records/output/matrix?realization_index=0", ensembleID)
	req := httptest.NewRequest(http.MethodPost, recordPath, strings.NewReader("[1,2]"))
	req.Header.Set("Content-Type", "application/json")
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	metaPath := fmt.Sprintf("/ensembles/%s/records/output/metadata?realization_index=0", ensembleID)
	rec = doJSON(t, router, http.MethodPatch, metaPath, map[string]any{"unit": "bar"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodGet, metaPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	metadata = nil
	decodeInto(t, rec, &metadata)
	require.Equal(t, map[string]any{"unit": "bar"}, metadata)

	// empty maps come back as {}
	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/ensembles/%s/userdata", ensembleID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{}`, rec.Body.String())
}

func TestObservationUserdataEndpoints(t *testing.T) {
	router := newTestRouter(t, "")
	experimentID, _ := createExperimentAndEnsemble(t, router, 3)

	rec := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/experiments/%s/observations", experimentID), map[string]any{
			"name":   "obs",
			"x_axis": []string{"0"},
			"values": []float64{1},
			"errors": []float64{0.1},
		})
	require.Equal(t, http.StatusOK, rec.Code)
	var observation domain.Observation
	decodeInto(t, rec, &observation)

	rec = doJSON(t, router, http.MethodPut,
		fmt.Sprintf("/observations/%s/userdata", observation.ID), map[string]any{"note": "calibrated"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/observations/%s/userdata", observation.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"note": "calibrated"}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/observations/missing/userdata", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
