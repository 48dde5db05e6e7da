/*
Package domain contains the core domain models of the scenario editor.

It defines the entities of a scenario graph, the change records the history engine
keeps for them, and the field-level diff used by audit views. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Scenario: the aggregate root, referencing one top-level Branch.
  - Branch: an ordered container of Steps, optionally owned by a Parallel or Condition step.
  - Step: a typed workflow unit (delay, signal, jump, parallel, condition, activity variants).
  - Relation: a directed edge between two Steps with condition and priority metadata.
  - Snapshot: the untyped field map of an entity, used by history, diff and persistence.
  - EntityChange: the before/after snapshot pair behind one undoable mutation.
  - Operation: a net per-entity instruction for the persistence collaborator.
*/
package domain
