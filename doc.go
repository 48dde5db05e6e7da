/*
Package scenaria is the editing core of a visual workflow-scenario editor.

A scenario is a graph of steps (delays, signals, jumps, parallels, conditions and
activities) placed inside branches and linked by relations. Every edit is a Command
dispatched to a registered handler; each handler records before/after snapshots of the
entities it touches so that the edit can be undone, redone and later persisted as a
minimal list of net operations.

# Concept

The Editor owns three things: the committed entity store, the history engine and the
node-type registry. Commands never touch the store directly. They run against an
overlay that is flushed only when the handler succeeds, so a rejected command leaves
the scenario exactly as it was.

Persistence is optimistic. Save computes the pending operations, sends them to a
ports.ScenarioRepository together with the version the editor was based on, and only
advances its sync pointer when the repository accepts them. Edits made while a save is
in flight stay pending for the next one.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/scenaria"
		"github.com/aretw0/scenaria/pkg/adapters/memory"
		"github.com/aretw0/scenaria/pkg/command"
	)

	func main() {
		ed, err := scenaria.New("boiler", scenaria.WithRepository(memory.NewRepository()))
		if err != nil {
			log.Fatal(err)
		}

		_ = ed.Execute(command.New(command.ScenarioCreate, "", map[string]any{"name": "Boiler"}))
		_ = ed.Execute(command.New(command.StepCreate, "", map[string]any{
			"id": "wait", "type": "delay", "params": map[string]any{"timeSpan": "PT5S"},
		}))

		if _, err := ed.Save(context.Background()); err != nil {
			log.Fatal(err)
		}
	}

# Architecture

  - pkg/domain: entities, snapshots, changes, operations and typed errors.
  - pkg/history: the undo/redo engine, the change optimizer and sync tickets.
  - pkg/command: commands, handlers, the registry and the dispatcher.
  - pkg/nodetype: node-type contracts (DTO mapping, capabilities, params validation).
  - pkg/connection: the allow-map connection validator.
  - pkg/adapters: repositories (memory, file, sqlite, redis) plus HTTP and MCP surfaces.
*/
package scenaria
