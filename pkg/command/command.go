// Package command routes editing intents to the handlers that mutate a scenario.
//
// A Command is a tagged, untyped intent. The Dispatcher looks its handler up in a
// Registry, runs it against an overlay of the committed store and records the
// resulting changes into the history engine in the same call.
package command

import (
	"fmt"
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// TypeBatch wraps an ordered list of sub-commands committed as one history entry.
const TypeBatch = "BATCH"

// Built-in command types.
const (
	ScenarioCreate = "SCENARIO_CREATE"
	ScenarioUpdate = "SCENARIO_UPDATE"

	StepCreate = "STEP_CREATE"
	StepUpdate = "STEP_UPDATE"
	StepDelete = "STEP_DELETE"
	StepMove   = "STEP_MOVE"
	StepAttach = "STEP_ATTACH"
	StepDetach = "STEP_DETACH"

	BranchCreate = "BRANCH_CREATE"
	BranchUpdate = "BRANCH_UPDATE"
	BranchResize = "BRANCH_RESIZE"
	BranchDelete = "BRANCH_DELETE"

	RelationCreate = "RELATION_CREATE"
	RelationUpdate = "RELATION_UPDATE"
	RelationDelete = "RELATION_DELETE"
)

// Metadata carries optional context about a command.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty" mapstructure:"timestamp"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Batch       bool      `json:"batch,omitempty" yaml:"batch,omitempty" mapstructure:"batch"`
}

// Command is a discrete editing intent.
type Command struct {
	Type       string         `json:"type" yaml:"type" mapstructure:"type"`
	ScenarioID string         `json:"scenario_id,omitempty" yaml:"scenario_id,omitempty" mapstructure:"scenario_id"`
	Payload    map[string]any `json:"payload,omitempty" yaml:"payload,omitempty" mapstructure:"payload"`
	Metadata   *Metadata      `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// New builds a command with the given payload.
func New(typ, scenarioID string, payload map[string]any) Command {
	return Command{Type: typ, ScenarioID: scenarioID, Payload: payload}
}

// Description returns the metadata description, or the command type.
func (c Command) Description() string {
	if c.Metadata != nil && c.Metadata.Description != "" {
		return c.Metadata.Description
	}
	return c.Type
}

// BatchPayload is the payload of a BATCH command.
type BatchPayload struct {
	Commands    []Command `json:"commands" mapstructure:"commands"`
	Description string    `json:"description,omitempty" mapstructure:"description"`
}

// NewBatch wraps commands into a BATCH command.
func NewBatch(scenarioID, description string, cmds ...Command) Command {
	return Command{
		Type:       TypeBatch,
		ScenarioID: scenarioID,
		Payload: map[string]any{
			"commands":    cmds,
			"description": description,
		},
		Metadata: &Metadata{Description: description, Batch: true},
	}
}

// Batch decodes the payload of a BATCH command.
// Sub-commands inherit the batch's scenario id when they have none.
func (c Command) Batch() (BatchPayload, error) {
	if c.Type != TypeBatch {
		return BatchPayload{}, &domain.PayloadError{CommandType: c.Type, Err: fmt.Errorf("not a batch")}
	}

	var out BatchPayload
	if cmds, ok := c.Payload["commands"].([]Command); ok {
		out.Commands = append([]Command(nil), cmds...)
		out.Description, _ = c.Payload["description"].(string)
	} else {
		p, err := Decode[BatchPayload](c)
		if err != nil {
			return BatchPayload{}, err
		}
		out = p
	}

	if out.Description == "" && c.Metadata != nil {
		out.Description = c.Metadata.Description
	}
	for i := range out.Commands {
		if out.Commands[i].ScenarioID == "" {
			out.Commands[i].ScenarioID = c.ScenarioID
		}
	}
	return out, nil
}

// Decode decodes a command payload into T.
// Input is weakly typed so payloads that went through JSON or YAML decode the same way.
func Decode[T any](c Command) (T, error) {
	var out T
	if err := decodeInto(c.Payload, &out); err != nil {
		return out, &domain.PayloadError{CommandType: c.Type, Err: err}
	}
	return out, nil
}

func decodeInto(input any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Fields returns the payload keys present in c, excluding the id.
func (c Command) Fields() map[string]any {
	out := make(map[string]any, len(c.Payload))
	for k, v := range c.Payload {
		if k == domain.FieldID {
			continue
		}
		out[k] = v
	}
	return out
}

// TargetID returns the "id" field of the payload.
func (c Command) TargetID() string {
	return domain.Snapshot(c.Payload).ID()
}
