// Package runtime provides the execution context for gitgate commands.
//
// It loads the repository config and wires the shared services every command
// needs: the logger, the repository resolver and the orchestrator with its
// terminal collaborators.
package runtime
