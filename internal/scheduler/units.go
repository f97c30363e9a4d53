package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rickgao/stock-data/internal/model"
)

var (
	ErrNoSymbols   = errors.New("no symbols")
	ErrNoEndpoints = errors.New("no endpoints")
)

// BuildUnits returns the cross product of the distinct symbols and endpoints,
// symbol-major, in first-seen order. Symbols are trimmed; blanks are dropped.
func BuildUnits(symbols []string, endpoints []model.EndpointKind) ([]model.WorkUnit, error) {
	syms := distinctSymbols(symbols)
	if len(syms) == 0 {
		return nil, ErrNoSymbols
	}

	seen := make(map[model.EndpointKind]bool, len(endpoints))
	kinds := make([]model.EndpointKind, 0, len(endpoints))
	for _, e := range endpoints {
		if !slices.Contains(model.AllEndpoints, e) {
			return nil, fmt.Errorf("unsupported endpoint %s", e)
		}
		if !seen[e] {
			seen[e] = true
			kinds = append(kinds, e)
		}
	}
	if len(kinds) == 0 {
		return nil, ErrNoEndpoints
	}

	units := make([]model.WorkUnit, 0, len(syms)*len(kinds))
	for _, s := range syms {
		for _, k := range kinds {
			units = append(units, model.WorkUnit{Symbol: s, Endpoint: k})
		}
	}
	return units, nil
}

func distinctSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
