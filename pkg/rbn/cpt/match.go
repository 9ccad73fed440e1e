package cpt

import (
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

// Ranges answers the range questions Match needs.
type Ranges interface {
	RangeSize(functor string) (int, error)
	OtherValue(functor, v string) (string, error)
}

// Match finds the probability of node given the parent assignment in a CP
// list. The child must equal node exactly and the parents must equal the
// assignment position by position. When no row matches and the node's
// functor is binary, the row for the other value is looked up and its
// complement returned. The second result is false when neither lookup
// matches.
func Match(cps []CP, r Ranges, node literal.Literal, parents []literal.Literal) (float64, bool, error) {
	if p, ok := find(cps, node, parents); ok {
		return p, true, nil
	}

	n, err := r.RangeSize(node.Functor)
	if err != nil {
		return 0, false, err
	}
	v, bound := node.Value.Get()
	if n != 2 || !bound {
		return 0, false, nil
	}
	other, err := r.OtherValue(node.Functor, v)
	if err != nil {
		return 0, false, err
	}
	if p, ok := find(cps, node.With(other), parents); ok {
		return 1 - p, true, nil
	}
	return 0, false, nil
}

func find(cps []CP, node literal.Literal, parents []literal.Literal) (float64, bool) {
	for _, cp := range cps {
		if !cp.Child.Equal(node) || len(cp.Parents) != len(parents) {
			continue
		}
		same := true
		for i := range parents {
			if !cp.Parents[i].Equal(parents[i]) {
				same = false
				break
			}
		}
		if same {
			return cp.Prob, true
		}
	}
	return 0, false
}
