package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// MigrationPolicy decides how Load handles a persisted config whose schema
// version does not match the executable.
type MigrationPolicy string

const (
	// PolicyFail refuses to start.
	PolicyFail MigrationPolicy = "fail"
	// PolicyOverwrite backs up the old file and regenerates defaults.
	PolicyOverwrite MigrationPolicy = "overwrite"
	// PolicyPrompt asks the operator; only usable on an interactive terminal.
	PolicyPrompt MigrationPolicy = "prompt"
)

// ParseMigrationPolicy validates a policy name.
func ParseMigrationPolicy(s string) (MigrationPolicy, error) {
	switch p := MigrationPolicy(s); p {
	case PolicyFail, PolicyOverwrite, PolicyPrompt:
		return p, nil
	case "":
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown migration policy %q (want fail, overwrite or prompt)", s)
	}
}

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// TerminalPrompter confirms through promptui on stdin.
type TerminalPrompter struct{}

func (TerminalPrompter) Confirm(question string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     question,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsInteractive reports whether stdin is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
