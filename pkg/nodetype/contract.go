// Package nodetype holds the per-variant contracts of steps and branches.
//
// A Contract maps between the DTO a backing store sends and the GraphNode a renderer
// draws. Optional behavior is expressed through capability interfaces that callers
// detect with a type assertion, so the editor never switches over concrete variants:
// it asks the registry whether a node's contract can build a move command and, if so,
// dispatches the command it returns.
package nodetype

import (
	"github.com/aretw0/scenaria/pkg/command"
)

// Contract is implemented by every registered node variant.
type Contract interface {
	// Type is the internal tag, e.g. "delay" or "branch".
	Type() string
	// Code is the numeric discriminator used by external payloads.
	Code() int
	DisplayName() string
	MapFromDTO(dto DTO, parentID string) (GraphNode, error)
	MapToDTO(node GraphNode) (DTO, error)
}

// ChildBranchOwner is implemented by variants that may own child branches.
type ChildBranchOwner interface {
	CanHaveChildBranches() bool
}

// MoveCommandFactory builds the command that moves a node to (x, y).
type MoveCommandFactory interface {
	MoveCommand(node GraphNode, x, y float64) command.Command
}

// ResizeCommandFactory builds the command that resizes a node.
type ResizeCommandFactory interface {
	ResizeCommand(node GraphNode, width, height float64) command.Command
}

// AttachCommandFactory builds the command that moves a node into a branch.
type AttachCommandFactory interface {
	AttachCommand(node GraphNode, branchID string) command.Command
}

// DetachCommandFactory builds the command that moves a node out of its branch.
type DetachCommandFactory interface {
	DetachCommand(node GraphNode) command.Command
}

// ParamsValidator checks the variant-specific params of a step.
type ParamsValidator interface {
	ValidateParams(params map[string]any) error
}
