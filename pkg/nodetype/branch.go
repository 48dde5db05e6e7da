package nodetype

import (
	"fmt"

	"github.com/aretw0/scenaria/pkg/command"
)

// TypeBranch is the tag of the branch contract.
const TypeBranch = "branch"

// CodeBranch is the numeric discriminator of branches.
const CodeBranch = 100

// BranchContract maps branches. Branches can be moved and resized but never attached.
type BranchContract struct{}

func (BranchContract) Type() string        { return TypeBranch }
func (BranchContract) Code() int           { return CodeBranch }
func (BranchContract) DisplayName() string { return "Branch" }

func (BranchContract) MapFromDTO(dto DTO, parentID string) (GraphNode, error) {
	if dto.ID == "" {
		return GraphNode{}, fmt.Errorf("branch node without id")
	}
	if parentID == "" {
		parentID = dto.ParentID
	}
	return GraphNode{
		ID:        dto.ID,
		Type:      TypeBranch,
		ParentID:  parentID,
		Label:     fmt.Sprintf("Branch %d", dto.Order+1),
		Order:     dto.Order,
		Geometry:  dto.Geometry,
		Container: true,
	}, nil
}

func (BranchContract) MapToDTO(node GraphNode) (DTO, error) {
	if node.Type != TypeBranch {
		return DTO{}, fmt.Errorf("node %q is a %s, not a branch", node.ID, node.Type)
	}
	return DTO{
		ID:       node.ID,
		Kind:     CodeBranch,
		ParentID: node.ParentID,
		Order:    node.Order,
		Geometry: node.Geometry,
	}, nil
}

func (BranchContract) MoveCommand(node GraphNode, x, y float64) command.Command {
	return command.New(command.BranchUpdate, "", map[string]any{
		"id":       node.ID,
		"geometry": map[string]any{"x": x, "y": y},
	})
}

func (BranchContract) ResizeCommand(node GraphNode, width, height float64) command.Command {
	return command.New(command.BranchResize, "", map[string]any{"id": node.ID, "width": width, "height": height})
}

var (
	_ MoveCommandFactory   = BranchContract{}
	_ ResizeCommandFactory = BranchContract{}
)
