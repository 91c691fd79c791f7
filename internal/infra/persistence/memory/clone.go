package memory

import "ensemblestore/pkg/domain"

func cloneStringMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	return append([]int(nil), in...)
}

func cloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	return append([]float64(nil), in...)
}

func cloneBools(in []bool) []bool {
	if in == nil {
		return nil
	}
	return append([]bool(nil), in...)
}

func cloneIntPtr(in *int) *int {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func cloneStringPtr(in *string) *string {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func cloneExperiment(in domain.Experiment) domain.Experiment {
	out := in
	if in.Priors != nil {
		out.Priors = make(map[string]domain.Prior, len(in.Priors))
		for k, v := range in.Priors {
			out.Priors[k] = v
		}
	}
	out.Metadata = cloneStringMap(in.Metadata)
	out.Userdata = cloneStringMap(in.Userdata)
	return out
}

func cloneEnsemble(in domain.Ensemble) domain.Ensemble {
	out := in
	out.ParameterNames = cloneStrings(in.ParameterNames)
	out.ResponseNames = cloneStrings(in.ResponseNames)
	out.ActiveRealizations = cloneInts(in.ActiveRealizations)
	out.Metadata = cloneStringMap(in.Metadata)
	out.Userdata = cloneStringMap(in.Userdata)
	return out
}

func cloneRecord(in domain.Record) domain.Record {
	out := in
	out.RealizationIndex = cloneIntPtr(in.RealizationIndex)
	out.PriorID = cloneStringPtr(in.PriorID)
	out.ObservationIDs = cloneStrings(in.ObservationIDs)
	out.Metadata = cloneStringMap(in.Metadata)
	out.Userdata = cloneStringMap(in.Userdata)
	return out
}

func cloneMatrix(in domain.FloatMatrix) domain.FloatMatrix {
	out := in
	out.Shape = cloneInts(in.Shape)
	out.Values = cloneFloats(in.Values)
	if in.Labels != nil {
		out.Labels = &domain.Labels{
			Columns: cloneStrings(in.Labels.Columns),
			Rows:    cloneStrings(in.Labels.Rows),
		}
	}
	return out
}

func cloneFileBlock(in domain.FileBlock) domain.FileBlock {
	out := in
	out.RealizationIndex = cloneIntPtr(in.RealizationIndex)
	out.Content = append([]byte(nil), in.Content...)
	return out
}

func cloneObservation(in domain.Observation) domain.Observation {
	out := in
	out.XAxis = cloneStrings(in.XAxis)
	out.Values = cloneFloats(in.Values)
	out.Errors = cloneFloats(in.Errors)
	out.RecordIDs = cloneStrings(in.RecordIDs)
	out.Metadata = cloneStringMap(in.Metadata)
	out.Userdata = cloneStringMap(in.Userdata)
	return out
}

func cloneUpdate(in domain.Update) domain.Update {
	out := in
	out.EnsembleResultID = cloneStringPtr(in.EnsembleResultID)
	return out
}

func cloneTransformation(in domain.ObservationTransformation) domain.ObservationTransformation {
	out := in
	out.Active = cloneBools(in.Active)
	out.Scale = cloneFloats(in.Scale)
	return out
}
