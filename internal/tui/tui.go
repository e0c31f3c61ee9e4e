package tui

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Interactive reports whether the live progress view and prompts can be
// used: stdin and stdout are both terminals and GITGATE_NO_INTERACTIVE is
// unset.
func Interactive() bool {
	if interactiveDisabled() {
		return false
	}
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
