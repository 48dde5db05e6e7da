package domain

// EntityType identifies an entity family tracked by the editor.
type EntityType string

const (
	EntityScenario EntityType = "scenario"
	EntityBranch   EntityType = "branch"
	EntityStep     EntityType = "step"
	EntityRelation EntityType = "relation"
)

// StepType is the variant tag of a step.
type StepType string

// Built-in step variants. The node-type registry may register more.
const (
	StepDelay          StepType = "delay"
	StepSignal         StepType = "signal"
	StepJump           StepType = "jump"
	StepParallel       StepType = "parallel"
	StepCondition      StepType = "condition"
	StepActivitySystem StepType = "activity_system"
	StepActivityModbus StepType = "activity_modbus"
)

// ScenarioStatus describes the publication state of a scenario.
type ScenarioStatus string

const (
	StatusDraft     ScenarioStatus = "draft"
	StatusPublished ScenarioStatus = "published"
	StatusArchived  ScenarioStatus = "archived"
)

// Entity is implemented by every type the history engine can track.
type Entity interface {
	EntityType() EntityType
	EntityID() string
}

// Geometry is the layout box of a step or branch in graph coordinates.
type Geometry struct {
	X      float64 `json:"x" mapstructure:"x"`
	Y      float64 `json:"y" mapstructure:"y"`
	Width  float64 `json:"width" mapstructure:"width"`
	Height float64 `json:"height" mapstructure:"height"`
}

// Mounted reports whether the geometry has been laid out at least once.
// A zero box is only valid before the first layout pass.
func (g Geometry) Mounted() bool {
	return g.Width != 0 || g.Height != 0
}

// Valid reports whether a mounted box has a positive size.
func (g Geometry) Valid() bool {
	return g.Width > 0 && g.Height > 0
}

// Scenario is the aggregate root: it references one top-level branch.
type Scenario struct {
	ID           string         `json:"id" mapstructure:"id"`
	Name         string         `json:"name" mapstructure:"name"`
	RootBranchID string         `json:"root_branch_id" mapstructure:"root_branch_id"`
	Status       ScenarioStatus `json:"status" mapstructure:"status"`

	// Version is assigned by the persistence collaborator on every successful save.
	// It is not part of the editable snapshot.
	Version int `json:"version" mapstructure:"-"`
}

func (s Scenario) EntityType() EntityType { return EntityScenario }
func (s Scenario) EntityID() string       { return s.ID }

// Branch is an ordered container of steps.
// The root branch has no parent step; child branches belong to a Parallel or Condition step.
type Branch struct {
	ID           string   `json:"id" mapstructure:"id"`
	ScenarioID   string   `json:"scenario_id" mapstructure:"scenario_id"`
	ParentStepID string   `json:"parent_step_id,omitempty" mapstructure:"parent_step_id"`
	Order        int      `json:"order" mapstructure:"order"`
	Geometry     Geometry `json:"geometry" mapstructure:"geometry"`
}

func (b Branch) EntityType() EntityType { return EntityBranch }
func (b Branch) EntityID() string       { return b.ID }

// IsRoot reports whether the branch is the top-level container of its scenario.
func (b Branch) IsRoot() bool {
	return b.ParentStepID == ""
}

// Step is an atomic workflow unit.
// Params holds the variant-specific fields (e.g. "timeSpan" for a delay).
type Step struct {
	ID         string         `json:"id" mapstructure:"id"`
	ScenarioID string         `json:"scenario_id" mapstructure:"scenario_id"`
	BranchID   string         `json:"branch_id" mapstructure:"branch_id"`
	Type       StepType       `json:"type" mapstructure:"type"`
	Name       string         `json:"name,omitempty" mapstructure:"name"`
	Order      int            `json:"order" mapstructure:"order"`
	Geometry   Geometry       `json:"geometry" mapstructure:"geometry"`
	Params     map[string]any `json:"params,omitempty" mapstructure:"params"`
}

func (s Step) EntityType() EntityType { return EntityStep }
func (s Step) EntityID() string       { return s.ID }

// Relation is a directed edge between two steps.
// Lower Priority values are evaluated first.
type Relation struct {
	ID           string `json:"id" mapstructure:"id"`
	ScenarioID   string `json:"scenario_id" mapstructure:"scenario_id"`
	ParentStepID string `json:"parent_step_id" mapstructure:"parent_step_id"`
	ChildStepID  string `json:"child_step_id" mapstructure:"child_step_id"`
	Condition    string `json:"condition,omitempty" mapstructure:"condition"`
	Priority     int    `json:"priority" mapstructure:"priority"`
	SourceAnchor string `json:"source_anchor,omitempty" mapstructure:"source_anchor"`
	TargetAnchor string `json:"target_anchor,omitempty" mapstructure:"target_anchor"`
}

func (r Relation) EntityType() EntityType { return EntityRelation }
func (r Relation) EntityID() string       { return r.ID }

// Graph is a typed read view of one scenario's committed state.
type Graph struct {
	Scenario  Scenario   `json:"scenario"`
	Branches  []Branch   `json:"branches"`
	Steps     []Step     `json:"steps"`
	Relations []Relation `json:"relations"`
}
