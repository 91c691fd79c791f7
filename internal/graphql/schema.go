// Package graphql exposes a read-only graph over experiments, ensembles
// and records.
package graphql

import (
	"github.com/graphql-go/graphql"

	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

const (
	// Query is the name of the root query object.
	Query = "query"
	// ExperimentsQuery lists all experiments.
	ExperimentsQuery = "experiments"
	// ExperimentQuery fetches a single experiment by id.
	ExperimentQuery = "experiment"
	// EnsembleQuery fetches a single ensemble by id.
	EnsembleQuery = "ensemble"

	// ExperimentType is the graphql type name for an experiment.
	ExperimentType = "experiment"
	// EnsembleType is the graphql type name for an ensemble.
	EnsembleType = "ensemble"
	// RecordType is the graphql type name for a record summary.
	RecordType = "record"

	// FieldID is the field name for an entity id.
	FieldID = "id"
	// FieldName is the field name for "name".
	FieldName = "name"
	// FieldCreatedAt is the field name for the creation timestamp.
	FieldCreatedAt = "createdAt"
	// FieldEnsembles is the field name for an experiment's ensembles.
	FieldEnsembles = "ensembles"
	// FieldSize is the field name for the ensemble size.
	FieldSize = "size"
	// FieldActiveRealizations is the field name for active realizations.
	FieldActiveRealizations = "activeRealizations"
	// FieldRecords is the field name for an ensemble's records.
	FieldRecords = "records"
	// FieldParameters is the field name for parameter records.
	FieldParameters = "parameters"
	// FieldResponses is the field name for response records.
	FieldResponses = "responses"
	// FieldClass is the field name for the record class.
	FieldClass = "recordClass"
	// FieldType is the field name for the record type.
	FieldType = "recordType"
	// FieldEnsembleWide reports whether a record covers the whole ensemble.
	FieldEnsembleWide = "ensembleWide"
	// FieldRealizationIndexes lists the realizations a record covers.
	FieldRealizationIndexes = "realizationIndexes"
	// ArgID is the argument name for ids.
	ArgID = "id"
)

// graphqlRecord creates the *graphql.Object representation of a record
// summary.
func graphqlRecord() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: RecordType,
		Fields: graphql.Fields{
			FieldName: &graphql.Field{
				Type: graphql.String,
			},
			FieldType: &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					summary, _ := p.Source.(records.RecordSummary)
					return string(summary.Type), nil
				},
			},
			FieldClass: &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					summary, _ := p.Source.(records.RecordSummary)
					return string(summary.Class), nil
				},
			},
			FieldEnsembleWide: &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					summary, _ := p.Source.(records.RecordSummary)
					return summary.EnsembleWide, nil
				},
			},
			FieldRealizationIndexes: &graphql.Field{
				Type: graphql.NewList(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					summary, _ := p.Source.(records.RecordSummary)
					return summary.RealizationIndexes, nil
				},
			},
		},
	})
}

// graphqlEnsemble creates the *graphql.Object representation of an
// ensemble, with record projections resolved on demand.
func graphqlEnsemble(service *records.Service, record *graphql.Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: EnsembleType,
		Fields: graphql.Fields{
			FieldID: &graphql.Field{
				Type: graphql.String,
			},
			FieldSize: &graphql.Field{
				Type: graphql.Int,
			},
			FieldCreatedAt: &graphql.Field{
				Type: graphql.DateTime,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ensemble, _ := p.Source.(domain.Ensemble)
					return ensemble.CreatedAt, nil
				},
			},
			FieldActiveRealizations: &graphql.Field{
				Type: graphql.NewList(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ensemble, _ := p.Source.(domain.Ensemble)
					return ensemble.ActiveRealizations, nil
				},
			},
			FieldRecords: &graphql.Field{
				Type: graphql.NewList(record),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ensemble, _ := p.Source.(domain.Ensemble)
					return service.ListRecordSummaries(p.Context, ensemble.ID)
				},
			},
			FieldResponses: &graphql.Field{
				Type: graphql.NewList(record),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ensemble, _ := p.Source.(domain.Ensemble)
					return service.Responses(p.Context, ensemble.ID)
				},
			},
			FieldParameters: &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ensemble, _ := p.Source.(domain.Ensemble)
					return ensemble.ParameterNames, nil
				},
			},
		},
	})
}

// graphqlExperiment creates the *graphql.Object representation of an
// experiment.
func graphqlExperiment(service *records.Service, ensemble *graphql.Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: ExperimentType,
		Fields: graphql.Fields{
			FieldID: &graphql.Field{
				Type: graphql.String,
			},
			FieldName: &graphql.Field{
				Type: graphql.String,
			},
			FieldCreatedAt: &graphql.Field{
				Type: graphql.DateTime,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					experiment, _ := p.Source.(domain.Experiment)
					return experiment.CreatedAt, nil
				},
			},
			FieldEnsembles: &graphql.Field{
				Type: graphql.NewList(ensemble),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					experiment, _ := p.Source.(domain.Experiment)
					return service.ListEnsembles(p.Context, experiment.ID)
				},
			},
		},
	})
}

// rootQuery creates the query object populated by the records service.
func rootQuery(service *records.Service, experiment, ensemble *graphql.Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: Query,
		Fields: graphql.Fields{
			ExperimentsQuery: &graphql.Field{
				Type: graphql.NewList(experiment),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return service.ListExperiments(p.Context)
				},
			},
			ExperimentQuery: &graphql.Field{
				Type: experiment,
				Args: graphql.FieldConfigArgument{
					ArgID: &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args[ArgID].(string)
					return service.GetExperiment(p.Context, id)
				},
			},
			EnsembleQuery: &graphql.Field{
				Type: ensemble,
				Args: graphql.FieldConfigArgument{
					ArgID: &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.String),
					},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args[ArgID].(string)
					return service.GetEnsemble(p.Context, id)
				},
			},
		},
	})
}

// CreateSchema assembles the graphql schema around the records service.
func CreateSchema(service *records.Service) (graphql.Schema, error) {
	record := graphqlRecord()
	ensemble := graphqlEnsemble(service, record)
	experiment := graphqlExperiment(service, ensemble)
	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery(service, experiment, ensemble),
	})
}
