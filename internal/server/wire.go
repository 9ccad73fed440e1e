package server

import (
	"encoding/json"
	"fmt"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/config"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
)

// defineRequest is the body of POST /define.
type defineRequest struct {
	Template            json.RawMessage       `json:"template"`
	Populations         config.PopulationSpec `json:"populations"`
	FunctorRanges       rangeList             `json:"functor_ranges"`
	VariablePopulations map[string]string     `json:"variable_populations"`
}

// groundRequest is the body of POST /ground. A missing functor_ranges keeps
// the ranges of the definition.
type groundRequest struct {
	Populations   config.PopulationSpec `json:"populations"`
	PopVars       popVarList            `json:"pop_vars"`
	FunctorRanges *rangeList            `json:"functor_ranges"`
}

// rangeList reads [[functor, [values...]], ...].
type rangeList []database.FunctorRange

func (l *rangeList) UnmarshalJSON(data []byte) error {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("%w: functor_ranges must be a list of [functor, values] pairs", internalerr.ErrInvalidInput)
	}
	out := make(rangeList, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return fmt.Errorf("%w: functor range %d is not a [functor, values] pair", internalerr.ErrInvalidInput, i)
		}
		var fr database.FunctorRange
		if err := json.Unmarshal(p[0], &fr.Functor); err != nil {
			return fmt.Errorf("%w: functor range %d: functor is not a string", internalerr.ErrInvalidInput, i)
		}
		if err := json.Unmarshal(p[1], &fr.Values); err != nil {
			return fmt.Errorf("%w: functor range %d: values are not a list of strings", internalerr.ErrInvalidInput, i)
		}
		out = append(out, fr)
	}
	*l = out
	return nil
}

// popVarList reads a list whose entries are either a variable name,
// grounded over the default population, or a [variable, population] pair.
type popVarList []database.VarSpec

func (l *popVarList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("%w: pop_vars must be a list", internalerr.ErrInvalidInput)
	}
	out := make(popVarList, 0, len(items))
	for i, item := range items {
		var v string
		if err := json.Unmarshal(item, &v); err == nil {
			out = append(out, database.VarSpec{Var: v})
			continue
		}
		var pair []string
		if err := json.Unmarshal(item, &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("%w: pop_vars entry %d is neither a variable nor a [variable, population] pair", internalerr.ErrInvalidInput, i)
		}
		out = append(out, database.VarSpec{Var: pair[0], Pop: pair[1]})
	}
	*l = out
	return nil
}
