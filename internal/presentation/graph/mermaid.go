package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/scenaria/pkg/domain"
)

// GraphOverlay marks entities to highlight on the rendered graph.
type GraphOverlay struct {
	// Pending holds ids of steps and branches with unsaved changes.
	Pending []string
	// Selected is the id of the focused step.
	Selected string
}

// GenerateMermaid produces a Mermaid flowchart of a scenario.
// Child branches are rendered as subgraphs nested inside the branch of their owner step.
// Step shapes follow the step type:
// - Condition: {Rhombus}
// - Parallel: [[Subroutine]]
// - Delay: ([Stadium])
// - Signal: >Flag]
// - Jump: ((Circle))
// - Activities and unknown types: [Rectangle]
func GenerateMermaid(g domain.Graph, overlay *GraphOverlay) string {
	r := newRenderer(g)
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	r.branch(&sb, g.Scenario.RootBranchID, 1)

	for _, rel := range g.Relations {
		from, to := sanitizeMermaidID(rel.ParentStepID), sanitizeMermaidID(rel.ChildStepID)
		if rel.Condition != "" {
			safeCondition := strings.ReplaceAll(rel.Condition, "\"", "'")
			sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", from, safeCondition, to))
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
	}

	// Jumps are not relations: draw them dotted.
	for _, s := range g.Steps {
		if target, _ := s.Params["targetStepId"].(string); s.Type == domain.StepJump && target != "" {
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", sanitizeMermaidID(s.ID), sanitizeMermaidID(target)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef pending fill:#fff3e0,stroke:#e65100,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef selected fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Pending {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" && r.known[id] {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s pending;\n", safeID))
			}
		}
		if overlay.Selected != "" && r.known[overlay.Selected] {
			sb.WriteString(fmt.Sprintf("    class %s selected;\n", sanitizeMermaidID(overlay.Selected)))
		}
	}

	return sb.String()
}

type renderer struct {
	steps    map[string][]domain.Step   // by branch id
	branches map[string][]domain.Branch // by owner step id
	known    map[string]bool
}

func newRenderer(g domain.Graph) *renderer {
	r := &renderer{
		steps:    make(map[string][]domain.Step),
		branches: make(map[string][]domain.Branch),
		known:    make(map[string]bool),
	}
	for _, s := range g.Steps {
		r.steps[s.BranchID] = append(r.steps[s.BranchID], s)
		r.known[s.ID] = true
	}
	for _, b := range g.Branches {
		if !b.IsRoot() {
			r.branches[b.ParentStepID] = append(r.branches[b.ParentStepID], b)
		}
		r.known[b.ID] = true
	}
	for _, list := range r.steps {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })
	}
	for _, list := range r.branches {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })
	}
	return r
}

func (r *renderer) branch(sb *strings.Builder, branchID string, depth int) {
	indent := strings.Repeat("    ", depth)
	for _, s := range r.steps[branchID] {
		sb.WriteString(indent + stepNode(s) + "\n")
		for _, child := range r.branches[s.ID] {
			sb.WriteString(fmt.Sprintf("%ssubgraph %s[\"%s / branch %d\"]\n", indent, sanitizeMermaidID(child.ID), label(s), child.Order+1))
			r.branch(sb, child.ID, depth+1)
			sb.WriteString(indent + "end\n")
		}
	}
}

func stepNode(s domain.Step) string {
	opener, closer := "[", "]"
	switch s.Type {
	case domain.StepCondition:
		opener, closer = "{", "}"
	case domain.StepParallel:
		opener, closer = "[[", "]]"
	case domain.StepDelay:
		opener, closer = "([", "])"
	case domain.StepSignal:
		opener, closer = ">", "]"
	case domain.StepJump:
		opener, closer = "((", "))"
	}

	text := label(s)
	switch {
	case s.Type == domain.StepDelay && s.Params["timeSpan"] != nil:
		text = fmt.Sprintf("%s <br/> ⏱️ %v", text, s.Params["timeSpan"])
	case s.Type == domain.StepCondition && s.Params["expression"] != nil:
		text = fmt.Sprintf("%s <br/> %v", text, s.Params["expression"])
	}
	return fmt.Sprintf("%s%s\"%s\"%s", sanitizeMermaidID(s.ID), opener, strings.ReplaceAll(text, "\"", "'"), closer)
}

func label(s domain.Step) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
