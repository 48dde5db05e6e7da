package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/connection"
	"github.com/aretw0/scenaria/pkg/domain"
)

// Options selects the registries a graph is checked against.
type Options struct {
	StepTypes      command.StepTypes
	Connections    *connection.Validator
	StrictGeometry bool
}

// Issue is one structural problem found in a scenario.
type Issue struct {
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Message    string            `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s '%s': %s", i.EntityType, i.EntityID, i.Message)
}

// Check crawls the scenario from its root branch and returns every issue found,
// ordered by entity type then id.
func Check(g domain.Graph, opts Options) []Issue {
	c := &checker{
		opts:     opts,
		branches: make(map[string]domain.Branch, len(g.Branches)),
		steps:    make(map[string]domain.Step, len(g.Steps)),
	}
	for _, b := range g.Branches {
		c.branches[b.ID] = b
	}
	for _, s := range g.Steps {
		c.steps[s.ID] = s
	}

	c.crawl(g.Scenario)
	c.checkSteps(g.Steps)
	c.checkRelations(g.Relations)

	sort.SliceStable(c.issues, func(i, j int) bool {
		if c.issues[i].EntityType != c.issues[j].EntityType {
			return c.issues[i].EntityType < c.issues[j].EntityType
		}
		return c.issues[i].EntityID < c.issues[j].EntityID
	})
	return c.issues
}

// ValidateGraph returns an error listing every issue, or nil for a sound scenario.
func ValidateGraph(g domain.Graph, opts Options) error {
	issues := Check(g, opts)
	if len(issues) == 0 {
		return nil
	}
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = issue.String()
	}
	return fmt.Errorf("found %d errors:\n- %s", len(issues), strings.Join(lines, "\n- "))
}

// CheckEditor checks the current graph of ed against the editor's own registries.
func CheckEditor(ed *scenaria.Editor) ([]Issue, error) {
	g, err := ed.Graph()
	if err != nil {
		return nil, err
	}
	return Check(g, Options{
		StepTypes:      ed.NodeTypes(),
		Connections:    connection.NewValidator(ed.AllowMap()),
		StrictGeometry: ed.StrictGeometry(),
	}), nil
}

type checker struct {
	opts     Options
	branches map[string]domain.Branch
	steps    map[string]domain.Step

	visitedBranches map[string]bool
	visitedSteps    map[string]bool
	issues          []Issue
}

func (c *checker) report(kind domain.EntityType, id, format string, args ...any) {
	c.issues = append(c.issues, Issue{EntityType: kind, EntityID: id, Message: fmt.Sprintf(format, args...)})
}

// crawl walks branch -> steps -> owned branches starting from the root branch.
func (c *checker) crawl(sc domain.Scenario) {
	c.visitedBranches = make(map[string]bool)
	c.visitedSteps = make(map[string]bool)

	if sc.ID == "" {
		c.report(domain.EntityScenario, "", "scenario entity is missing")
	}
	root, ok := c.branches[sc.RootBranchID]
	switch {
	case !ok:
		c.report(domain.EntityScenario, sc.ID, "root branch '%s' not found", sc.RootBranchID)
	case !root.IsRoot():
		c.report(domain.EntityBranch, root.ID, "root branch is owned by step '%s'", root.ParentStepID)
	}

	owned := make(map[string][]string)
	contained := make(map[string][]string)
	for _, b := range c.branches {
		if !b.IsRoot() {
			owned[b.ParentStepID] = append(owned[b.ParentStepID], b.ID)
		}
	}
	for _, s := range c.steps {
		contained[s.BranchID] = append(contained[s.BranchID], s.ID)
	}

	queue := []string{sc.RootBranchID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if c.visitedBranches[id] {
			continue
		}
		c.visitedBranches[id] = true

		b, ok := c.branches[id]
		if !ok {
			continue
		}
		c.checkGeometry(b)

		for _, stepID := range contained[id] {
			c.visitedSteps[stepID] = true
			for _, child := range owned[stepID] {
				if !c.visitedBranches[child] {
					queue = append(queue, child)
				}
			}
		}
	}

	for id, b := range c.branches {
		if c.visitedBranches[id] {
			continue
		}
		if b.IsRoot() {
			c.report(domain.EntityBranch, id, "second root branch")
			continue
		}
		owner, ok := c.steps[b.ParentStepID]
		if !ok {
			c.report(domain.EntityBranch, id, "owner step '%s' not found", b.ParentStepID)
			continue
		}
		c.report(domain.EntityBranch, id, "unreachable from the root branch (owner '%s' is in '%s')", owner.ID, owner.BranchID)
	}
}

func (c *checker) checkGeometry(b domain.Branch) {
	if !c.opts.StrictGeometry && !b.Geometry.Mounted() {
		return
	}
	if !b.Geometry.Valid() {
		c.report(domain.EntityBranch, b.ID, "geometry %gx%g is not positive", b.Geometry.Width, b.Geometry.Height)
	}
}

func (c *checker) checkSteps(steps []domain.Step) {
	for _, s := range steps {
		if _, ok := c.branches[s.BranchID]; !ok {
			c.report(domain.EntityStep, s.ID, "branch '%s' not found", s.BranchID)
		} else if !c.visitedSteps[s.ID] {
			c.report(domain.EntityStep, s.ID, "unreachable from the root branch")
		}

		if c.opts.StepTypes != nil {
			if !c.opts.StepTypes.Known(s.Type) {
				c.report(domain.EntityStep, s.ID, "unknown step type '%s'", s.Type)
				continue
			}
			if err := c.opts.StepTypes.ValidateParams(s.Type, s.Params); err != nil {
				c.report(domain.EntityStep, s.ID, "invalid params: %v", err)
			}
		}

		if target, _ := s.Params["targetStepId"].(string); s.Type == domain.StepJump && target != "" {
			if _, ok := c.steps[target]; !ok {
				c.report(domain.EntityStep, s.ID, "jump target '%s' not found", target)
			}
		}
	}

	for _, b := range c.branches {
		if b.IsRoot() || c.opts.StepTypes == nil {
			continue
		}
		if owner, ok := c.steps[b.ParentStepID]; ok && !c.opts.StepTypes.CanHaveChildBranches(owner.Type) {
			c.report(domain.EntityBranch, b.ID, "step '%s' of type '%s' cannot own branches", owner.ID, owner.Type)
		}
	}
}

// checkRelations re-runs the connection rules against the relations seen so far,
// so each duplicate is reported once.
func (c *checker) checkRelations(rels []domain.Relation) {
	nodeType := func(id string) (domain.StepType, bool) {
		s, ok := c.steps[id]
		return s.Type, ok
	}
	var seen []domain.Relation
	edges := func() []domain.Relation { return seen }

	for _, r := range rels {
		resolved := true
		for _, id := range []string{r.ParentStepID, r.ChildStepID} {
			if _, ok := c.steps[id]; !ok {
				c.report(domain.EntityRelation, r.ID, "endpoint step '%s' not found", id)
				resolved = false
			}
		}
		if resolved && c.opts.Connections != nil {
			if err := c.opts.Connections.Check(r.ParentStepID, r.ChildStepID, nodeType, edges); err != nil {
				c.report(domain.EntityRelation, r.ID, "%v", err)
			}
		}
		seen = append(seen, r)
	}
}
