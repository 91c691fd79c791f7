package domain

import "fmt"

// PriorFunction names a parametric prior distribution.
type PriorFunction string

// Supported prior distribution functions.
const (
	PriorConst       PriorFunction = "const"
	PriorTrig        PriorFunction = "trig"
	PriorNormal      PriorFunction = "normal"
	PriorLogNormal   PriorFunction = "lognormal"
	PriorTruncNormal PriorFunction = "truncnormal"
	PriorStdNormal   PriorFunction = "stdnormal"
	PriorUniform     PriorFunction = "uniform"
	PriorDUniform    PriorFunction = "duniform"
	PriorLogUniform  PriorFunction = "loguniform"
	PriorErf         PriorFunction = "erf"
	PriorDErf        PriorFunction = "derf"
)

// Prior is a parametric distribution descriptor attached to a parameter
// record. Which numeric fields are meaningful depends on Function; Validate
// enforces the pairing.
type Prior struct {
	Base
	Name     string        `json:"name"`
	Function PriorFunction `json:"function"`
	Value    *float64      `json:"value,omitempty"`
	Min      *float64      `json:"min,omitempty"`
	Max      *float64      `json:"max,omitempty"`
	Mode     *float64      `json:"mode,omitempty"`
	Mean     *float64      `json:"mean,omitempty"`
	Std      *float64      `json:"std,omitempty"`
}

// priorFields maps each function to the numeric parameters it requires.
var priorFields = map[PriorFunction][]string{
	PriorConst:       {"value"},
	PriorTrig:        {"min", "max", "mode"},
	PriorNormal:      {"mean", "std"},
	PriorLogNormal:   {"mean", "std"},
	PriorTruncNormal: {"mean", "std", "min", "max"},
	PriorStdNormal:   {},
	PriorUniform:     {"min", "max"},
	PriorDUniform:    {"min", "max"},
	PriorLogUniform:  {"min", "max"},
	PriorErf:         {},
	PriorDErf:        {},
}

// Validate checks that the function is known and all of its required
// parameters are present.
func (p Prior) Validate() error {
	required, ok := priorFields[p.Function]
	if !ok {
		return fmt.Errorf("unknown prior function %q", p.Function)
	}
	have := map[string]bool{
		"value": p.Value != nil,
		"min":   p.Min != nil,
		"max":   p.Max != nil,
		"mode":  p.Mode != nil,
		"mean":  p.Mean != nil,
		"std":   p.Std != nil,
	}
	for _, field := range required {
		if !have[field] {
			return fmt.Errorf("prior function %q requires parameter %q", p.Function, field)
		}
	}
	return nil
}
