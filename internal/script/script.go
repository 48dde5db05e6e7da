// Package script loads and replays command scripts against an editor.
//
// A script is a YAML or JSON document listing editing actions:
//
//	scenario: boiler
//	name: Boiler start-up
//	actions:
//	  - type: STEP_CREATE
//	    payload: {id: wait, type: delay, params: {timeSpan: PT5S}}
//	  - type: BATCH
//	    description: Insert pair
//	    commands:
//	      - type: STEP_CREATE
//	        payload: {id: a, type: signal}
//	  - type: UNDO
//	  - type: SAVE
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/pkg/command"
	"gopkg.in/yaml.v3"
)

// Editor-level actions that are not commands.
const (
	ActionUndo = "UNDO"
	ActionRedo = "REDO"
	ActionSave = "SAVE"
)

// Action is one line of a script: a command, a batch or an editor action.
type Action struct {
	Type        string         `yaml:"type" json:"type"`
	Payload     map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Commands    []Action       `yaml:"commands,omitempty" json:"commands,omitempty"`
}

// Script is a replayable list of actions for one scenario.
type Script struct {
	Scenario string   `yaml:"scenario" json:"scenario"`
	Name     string   `yaml:"name,omitempty" json:"name,omitempty"`
	Actions  []Action `yaml:"actions" json:"actions"`
}

// Load reads a script file (YAML or JSON, chosen by extension).
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return ParseJSON(data)
	}
	return Parse(data)
}

// Parse decodes a YAML script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &s, s.validate()
}

// ParseJSON decodes a JSON script.
func ParseJSON(data []byte) (*Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &s, s.validate()
}

func (s *Script) validate() error {
	if s.Scenario == "" {
		return fmt.Errorf("script has no scenario id")
	}
	for i, a := range s.Actions {
		if a.Type == "" {
			return fmt.Errorf("action %d has no type", i)
		}
	}
	return nil
}

// Command converts a command or batch action.
func (a Action) Command() command.Command {
	if a.Type != command.TypeBatch {
		cmd := command.New(a.Type, "", a.Payload)
		if a.Description != "" {
			cmd.Metadata = &command.Metadata{Description: a.Description}
		}
		return cmd
	}
	subs := make([]command.Command, len(a.Commands))
	for i, sub := range a.Commands {
		subs[i] = sub.Command()
	}
	return command.NewBatch("", a.Description, subs...)
}

// Bootstrap returns the command that creates the script's scenario and the script
// without it. A leading SCENARIO_CREATE action is used as is; otherwise the scenario
// is created with the script name.
func (s *Script) Bootstrap() (command.Command, *Script) {
	rest := *s
	if len(s.Actions) > 0 && strings.EqualFold(s.Actions[0].Type, command.ScenarioCreate) {
		rest.Actions = s.Actions[1:]
		create := s.Actions[0].Command()
		create.Type = command.ScenarioCreate
		create.ScenarioID = s.Scenario
		return create, &rest
	}
	name := s.Name
	if name == "" {
		name = s.Scenario
	}
	return command.New(command.ScenarioCreate, s.Scenario, map[string]any{"name": name}), &rest
}

// Result summarizes one replay.
type Result struct {
	Executed int     `json:"executed"`
	Failed   []error `json:"-"`
	Version  int     `json:"version"`
}

// Options controls Replay.
type Options struct {
	// ContinueOnError records failing actions and keeps going instead of stopping.
	ContinueOnError bool
}

// Replay runs the script's actions on ed in order.
func Replay(ctx context.Context, ed *scenaria.Editor, s *Script, opts Options) (Result, error) {
	var res Result
	for i, a := range s.Actions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := run(ctx, ed, a, &res)
		if err == nil {
			res.Executed++
			continue
		}
		err = fmt.Errorf("action %d (%s): %w", i, a.Type, err)
		if !opts.ContinueOnError {
			return res, err
		}
		res.Failed = append(res.Failed, err)
	}
	return res, nil
}

func run(ctx context.Context, ed *scenaria.Editor, a Action, res *Result) error {
	switch strings.ToUpper(a.Type) {
	case ActionUndo:
		_, err := ed.Undo()
		return err
	case ActionRedo:
		_, err := ed.Redo()
		return err
	case ActionSave:
		v, err := ed.Save(ctx)
		if err == nil {
			res.Version = v
		}
		return err
	}
	return ed.Execute(a.Command())
}
