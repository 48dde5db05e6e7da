// Package connection decides which directed relations between steps are permitted.
package connection

import (
	"slices"

	"github.com/aretw0/scenaria/pkg/domain"
)

// AllowMap maps a source step type to the step types it may connect to.
type AllowMap map[domain.StepType][]domain.StepType

// Allows reports whether from -> to is listed.
func (m AllowMap) Allows(from, to domain.StepType) bool {
	return slices.Contains(m[from], to)
}

// Invert derives the reverse map: target type -> permitted source types.
func (m AllowMap) Invert() AllowMap {
	out := make(AllowMap, len(m))
	for src, targets := range m {
		for _, dst := range targets {
			if !slices.Contains(out[dst], src) {
				out[dst] = append(out[dst], src)
			}
		}
	}
	for k := range out {
		slices.Sort(out[k])
	}
	return out
}

// Clone returns a deep copy of the map.
func (m AllowMap) Clone() AllowMap {
	out := make(AllowMap, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// DefaultAllowMap lets every listed type connect to every other one.
// Jump steps name their target in params and never own an outgoing relation.
func DefaultAllowMap(types ...domain.StepType) AllowMap {
	if len(types) == 0 {
		types = []domain.StepType{
			domain.StepDelay,
			domain.StepSignal,
			domain.StepJump,
			domain.StepParallel,
			domain.StepCondition,
			domain.StepActivitySystem,
			domain.StepActivityModbus,
		}
	}
	out := make(AllowMap, len(types))
	for _, src := range types {
		if src == domain.StepJump {
			continue
		}
		out[src] = slices.Clone(types)
	}
	return out
}
