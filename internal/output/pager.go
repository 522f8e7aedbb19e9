package output

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const defaultTermHeight = 40

// TermHeight returns $LINES, or a conservative default.
func TermHeight() int {
	if n, err := strconv.Atoi(os.Getenv("LINES")); err == nil && n > 0 {
		return n
	}
	return defaultTermHeight
}

// ShouldPage reports whether content is taller than the terminal and stdout
// is interactive.
func ShouldPage(content string, termHeight int) bool {
	if !isTerminal() {
		return false
	}
	return strings.Count(content, "\n") > termHeight
}

// Page pipes content through $PAGER, or less.
func Page(content string) error {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}

	cmd := exec.Command(pager)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
