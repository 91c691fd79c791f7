package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"ensemblestore/internal/records"
)

// request holds a parsed graphql request.
type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Handler serves graphql requests over HTTP.
type Handler struct {
	schema graphql.Schema
	err    error
}

// NewHandler builds the schema once and returns the endpoint handler.
func NewHandler(service *records.Service) *Handler {
	schema, err := CreateSchema(service)
	return &Handler{schema: schema, err: err}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.err != nil {
		http.Error(w, h.err.Error(), http.StatusInternalServerError)
		return
	}

	req, err := getQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		Context:        r.Context(),
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		RootObject:     make(map[string]interface{}),
	})
	_ = json.NewEncoder(w).Encode(result)
}

// getQuery accepts the query as a URL parameter on GET and as a JSON body
// on POST.
func getQuery(r *http.Request) (request, error) {
	if r.Method == http.MethodGet {
		return request{Query: r.URL.Query().Get("query")}, nil
	}
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return request{}, err
	}
	return req, nil
}
