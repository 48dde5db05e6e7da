package nodetype

import (
	"fmt"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// DTO is a node as exchanged with a backing store.
// Kind is the discriminator: a numeric code, a numeric string or a textual tag.
type DTO struct {
	ID       string          `json:"id" mapstructure:"id"`
	Kind     any             `json:"kind" mapstructure:"kind"`
	ParentID string          `json:"parent_id,omitempty" mapstructure:"parent_id"`
	Name     string          `json:"name,omitempty" mapstructure:"name"`
	Order    int             `json:"order" mapstructure:"order"`
	Geometry domain.Geometry `json:"geometry" mapstructure:"geometry"`
	Params   map[string]any  `json:"params,omitempty" mapstructure:"params"`
}

// DecodeDTO decodes an untyped payload into a DTO.
func DecodeDTO(raw map[string]any) (DTO, error) {
	var out DTO
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("failed to decode node: %w", err)
	}
	return out, nil
}

// StepDTO builds the DTO of a step, using its type tag as discriminator.
func StepDTO(s domain.Step) DTO {
	return DTO{
		ID:       s.ID,
		Kind:     string(s.Type),
		ParentID: s.BranchID,
		Name:     s.Name,
		Order:    s.Order,
		Geometry: s.Geometry,
		Params:   clone(s.Params),
	}
}

// BranchDTO builds the DTO of a branch.
func BranchDTO(b domain.Branch) DTO {
	return DTO{
		ID:       b.ID,
		Kind:     TypeBranch,
		ParentID: b.ParentStepID,
		Order:    b.Order,
		Geometry: b.Geometry,
	}
}

// GraphNode is a node as handed to a graph renderer.
type GraphNode struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	ParentID string          `json:"parent_id,omitempty"`
	Label    string          `json:"label"`
	Order    int             `json:"order"`
	Geometry domain.Geometry `json:"geometry"`
	Data     map[string]any  `json:"data,omitempty"`

	// Container is set for branches and for steps that may own branches.
	Container bool `json:"container,omitempty"`
}

func clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any(domain.Snapshot(m).Clone())
}
