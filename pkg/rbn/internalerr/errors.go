package internalerr

import "errors"

// Sentinel errors for the engine's failure kinds. Callers wrap them with
// context and test with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegrity reports a database or template inconsistent with its
	// declared ranges and populations.
	ErrIntegrity = errors.New("integrity violation")

	// ErrLookup reports an undeclared functor, an out-of-range value, an
	// unbound variable or an absent non-boolean fact.
	ErrLookup = errors.New("lookup failure")

	// ErrIncompatible reports a Markov blanket, template or functor range
	// mismatch.
	ErrIncompatible = errors.New("incompatible")

	// ErrMissingProbability reports a (node, parents) pair with no rule and
	// defaults disabled.
	ErrMissingProbability = errors.New("missing probability")

	// ErrNoGroundings reports a non-empty formula over an empty domain.
	ErrNoGroundings = errors.New("no groundings")

	// ErrNoSession reports a ground request made before any template was
	// defined.
	ErrNoSession = errors.New("no template defined")

	// ErrContract reports a caller breaking an API precondition.
	ErrContract = errors.New("contract violation")
)
