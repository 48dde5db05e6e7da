/*
Package session implements editor lifecycle and persistence orchestration.

It keeps one editor per open scenario and serializes the operations that reach the
repository, combining local per-scenario mutexes with an optional distributed lock so
that several editor replicas can share one store.
*/
package session
