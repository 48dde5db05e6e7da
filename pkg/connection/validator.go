package connection

import (
	"github.com/aretw0/scenaria/pkg/domain"
)

// NodeTypeFunc resolves the step type of a node id.
type NodeTypeFunc func(id string) (domain.StepType, bool)

// EdgesFunc lists the relations currently committed.
type EdgesFunc func() []domain.Relation

// Reasons reported in domain.ValidationError.
const (
	ReasonSelfLoop     = "self-loop"
	ReasonUnresolvable = "endpoint type cannot be resolved"
	ReasonNotAllowed   = "type pair not allowed"
	ReasonDuplicate    = "relation already exists"
)

// IsValidConnection reports whether a relation from sourceID to targetID may be created.
//
// Self-loops are always rejected. Both endpoints must resolve to a type, the forward map
// must list target for source and the reverse map must list source for target.
// An existing relation with the same ordered pair rejects the connection, but the
// opposite direction is accepted.
func IsValidConnection(sourceID, targetID string, getNodeType NodeTypeFunc, getEdges EdgesFunc, allow, reverse AllowMap) bool {
	return check(sourceID, targetID, getNodeType, getEdges, allow, reverse) == ""
}

func check(sourceID, targetID string, getNodeType NodeTypeFunc, getEdges EdgesFunc, allow, reverse AllowMap) string {
	if sourceID == targetID {
		return ReasonSelfLoop
	}
	if getNodeType == nil {
		return ReasonUnresolvable
	}
	srcType, ok := getNodeType(sourceID)
	if !ok {
		return ReasonUnresolvable
	}
	dstType, ok := getNodeType(targetID)
	if !ok {
		return ReasonUnresolvable
	}
	if !allow.Allows(srcType, dstType) || !reverse.Allows(dstType, srcType) {
		return ReasonNotAllowed
	}
	if getEdges != nil {
		for _, rel := range getEdges() {
			if rel.ParentStepID == sourceID && rel.ChildStepID == targetID {
				return ReasonDuplicate
			}
		}
	}
	return ""
}

// Validator pairs an allow-map with its reverse map, derived once.
type Validator struct {
	allow   AllowMap
	reverse AllowMap
}

// NewValidator copies allow and derives the reverse map.
func NewValidator(allow AllowMap) *Validator {
	allow = allow.Clone()
	return &Validator{allow: allow, reverse: allow.Invert()}
}

// AllowMap returns a copy of the forward map.
func (v *Validator) AllowMap() AllowMap {
	return v.allow.Clone()
}

// IsValid is IsValidConnection bound to the validator's maps.
func (v *Validator) IsValid(sourceID, targetID string, getNodeType NodeTypeFunc, getEdges EdgesFunc) bool {
	return IsValidConnection(sourceID, targetID, getNodeType, getEdges, v.allow, v.reverse)
}

// AllowsTypes reports whether the forward and reverse maps both permit from -> to.
func (v *Validator) AllowsTypes(from, to domain.StepType) bool {
	return v.allow.Allows(from, to) && v.reverse.Allows(to, from)
}

// Check returns a *domain.ValidationError describing why the connection is rejected, or nil.
func (v *Validator) Check(sourceID, targetID string, getNodeType NodeTypeFunc, getEdges EdgesFunc) error {
	reason := check(sourceID, targetID, getNodeType, getEdges, v.allow, v.reverse)
	if reason == "" {
		return nil
	}
	return &domain.ValidationError{SourceID: sourceID, TargetID: targetID, Reason: reason}
}
