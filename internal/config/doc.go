// Package config manages gitgate configuration stored next to the
// repository's control directory.
//
// It handles:
//   - Scheduler and gate timing
//   - Stash behaviour of compound operations
//   - Remembered answers to prompts
//   - Log file rotation settings
package config
