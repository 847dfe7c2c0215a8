// Package ui provides the interactive prompts. fzf is used when installed;
// otherwise a built-in terminal picker takes over. Items reach fzf as plain
// text on stdin, never as shell-evaluated preview strings.
package ui

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrCancelled is returned when the user dismisses a prompt.
var ErrCancelled = errors.New("selection cancelled")

// hasFzf is swapped in tests.
var hasFzf = func() bool {
	_, err := exec.LookPath("fzf")
	return err == nil
}

// Select presents items to the user and returns the selected item's index.
func Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, fmt.Errorf("no items to select from")
	}
	if !hasFzf() {
		return pick(prompt, items)
	}

	// Numbered items make index extraction reliable.
	var input strings.Builder
	for i, item := range items {
		fmt.Fprintf(&input, "%d\t%s\n", i, item)
	}

	cmd := exec.Command("fzf",
		"--prompt", prompt+" > ",
		"--height", "40%",
		"--reverse",
		"--with-nth", "2..", // hide the index
		"--delimiter", "\t",
		"--no-multi",
		"--cycle",
	)
	cmd.Stdin = strings.NewReader(input.String())
	cmd.Stderr = os.Stderr
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && (exitErr.ExitCode() == 130 || exitErr.ExitCode() == 1) {
			return -1, ErrCancelled
		}
		return -1, fmt.Errorf("fzf failed: %w", err)
	}
	return parseSelection(stdout.String(), len(items))
}

// parseSelection extracts the index fzf echoed back.
func parseSelection(out string, n int) (int, error) {
	selected := strings.TrimSpace(out)
	if selected == "" {
		return -1, ErrCancelled
	}
	field, _, _ := strings.Cut(selected, "\t")

	var idx int
	if _, err := fmt.Sscanf(field, "%d", &idx); err != nil {
		return -1, fmt.Errorf("parsing selection index: %w", err)
	}
	if idx < 0 || idx >= n {
		return -1, fmt.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}

// Confirm asks the user a yes/no question.
func Confirm(prompt string) (bool, error) {
	idx, err := Select(prompt, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}

// Input prompts the user for free text.
func Input(prompt string) (string, error) {
	return input(prompt, false)
}

// Secret prompts for text without echoing it.
func Secret(prompt string) (string, error) {
	return input(prompt, true)
}

func input(prompt string, masked bool) (string, error) {
	if masked || !hasFzf() {
		return readLine(prompt, masked)
	}

	cmd := exec.Command("fzf",
		"--prompt", prompt+" > ",
		"--height", "10%",
		"--reverse",
		"--print-query",
		"--no-info",
	)
	cmd.Stdin = strings.NewReader("")
	cmd.Stderr = os.Stderr
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	// fzf exits 1 with --print-query and no match, which is expected.
	_ = cmd.Run()

	query, _, _ := strings.Cut(stdout.String(), "\n")
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("no input provided")
	}
	return query, nil
}
