// Package tui provides the terminal user interface for gitgate.
//
// It handles:
//   - Interactive prompts and selections (using survey and bubbletea)
//   - The terminal implementations of the orchestrator's collaborators
//   - Structured logging and status reporting (Splog)
//   - Operation progress display (using bubbles and lipgloss)
package tui
