/*
Package ports defines the driven ports (interfaces) of the scenario editor.

These interfaces decouple the editing core from storage and coordination backends.

# Key Interfaces

  - EntityStore: the synchronous committed store that command handlers mutate.
  - ScenarioRepository: the asynchronous persistence collaborator fed by the sync pointer.
  - DistributedLocker: exclusive access to a scenario across replicas.
*/
package ports
