package bayesnet

import (
	"fmt"
	"sort"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
)

// toposort orders the keys of deps so that every key follows the keys it
// depends on. Keys are emitted in levels, each level sorted. Dependencies on
// names that are not keys are ignored.
func toposort(deps map[string][]string) ([]string, error) {
	pending := make(map[string]map[string]struct{}, len(deps))
	for k, ds := range deps {
		set := make(map[string]struct{}, len(ds))
		for _, d := range ds {
			if _, known := deps[d]; known {
				set[d] = struct{}{}
			}
		}
		pending[k] = set
	}

	out := make([]string, 0, len(deps))
	for len(pending) > 0 {
		var level []string
		for k, ds := range pending {
			if len(ds) == 0 {
				level = append(level, k)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("%w: cycle among %v", internalerr.ErrIncompatible, sortedPending(pending))
		}
		sort.Strings(level)
		for _, k := range level {
			delete(pending, k)
		}
		for _, ds := range pending {
			for _, k := range level {
				delete(ds, k)
			}
		}
		out = append(out, level...)
	}
	return out, nil
}

func sortedPending(pending map[string]map[string]struct{}) []string {
	out := make([]string, 0, len(pending))
	for k := range pending {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
