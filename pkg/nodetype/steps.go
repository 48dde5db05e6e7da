package nodetype

import (
	"fmt"

	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
)

// StepContract is the contract shared by step variants.
// Steps can be moved, attached to a branch and detached from it.
type StepContract struct {
	tag      domain.StepType
	code     int
	name     string
	validate func(params map[string]any) error
}

// NewStepContract builds a step contract. validate may be nil.
func NewStepContract(tag domain.StepType, code int, displayName string, validate func(map[string]any) error) *StepContract {
	return &StepContract{tag: tag, code: code, name: displayName, validate: validate}
}

func (c *StepContract) Type() string        { return string(c.tag) }
func (c *StepContract) Code() int           { return c.code }
func (c *StepContract) DisplayName() string { return c.name }

func (c *StepContract) MapFromDTO(dto DTO, parentID string) (GraphNode, error) {
	if dto.ID == "" {
		return GraphNode{}, fmt.Errorf("%s node without id", c.tag)
	}
	if parentID == "" {
		parentID = dto.ParentID
	}
	label := dto.Name
	if label == "" {
		label = c.name
	}
	return GraphNode{
		ID:       dto.ID,
		Type:     string(c.tag),
		ParentID: parentID,
		Label:    label,
		Order:    dto.Order,
		Geometry: dto.Geometry,
		Data:     clone(dto.Params),
	}, nil
}

func (c *StepContract) MapToDTO(node GraphNode) (DTO, error) {
	if node.Type != string(c.tag) {
		return DTO{}, fmt.Errorf("node %q is a %s, not a %s", node.ID, node.Type, c.tag)
	}
	name := node.Label
	if name == c.name {
		name = ""
	}
	return DTO{
		ID:       node.ID,
		Kind:     c.code,
		ParentID: node.ParentID,
		Name:     name,
		Order:    node.Order,
		Geometry: node.Geometry,
		Params:   clone(node.Data),
	}, nil
}

func (c *StepContract) ValidateParams(params map[string]any) error {
	if c.validate == nil {
		return nil
	}
	return c.validate(params)
}

func (c *StepContract) MoveCommand(node GraphNode, x, y float64) command.Command {
	return command.New(command.StepMove, "", map[string]any{"id": node.ID, "x": x, "y": y})
}

func (c *StepContract) AttachCommand(node GraphNode, branchID string) command.Command {
	return command.New(command.StepAttach, "", map[string]any{"id": node.ID, "branch_id": branchID})
}

func (c *StepContract) DetachCommand(node GraphNode) command.Command {
	return command.New(command.StepDetach, "", map[string]any{"id": node.ID})
}

// OwnerContract is a step contract whose steps own child branches.
type OwnerContract struct {
	*StepContract
}

func (c OwnerContract) CanHaveChildBranches() bool { return true }

func (c OwnerContract) MapFromDTO(dto DTO, parentID string) (GraphNode, error) {
	node, err := c.StepContract.MapFromDTO(dto, parentID)
	node.Container = true
	return node, err
}

var (
	_ MoveCommandFactory   = (*StepContract)(nil)
	_ AttachCommandFactory = (*StepContract)(nil)
	_ DetachCommandFactory = (*StepContract)(nil)
	_ ParamsValidator      = (*StepContract)(nil)
	_ ChildBranchOwner     = OwnerContract{}
)
