package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/charmbracelet/huh"
)

// createNewBranch is the select value for the "create new branch" entry. It
// contains a space, so it can never collide with a real branch name.
const createNewBranch = "+ create new branch"

// pickBranch asks the user for a target branch. created reports whether the
// user chose to name a new branch, which allows creation where it is absent.
func pickBranch(names []string) (branch string, created bool, err error) {
	options := make([]huh.Option[string], 0, len(names)+1)
	options = append(options, huh.NewOption(createNewBranch, createNewBranch))
	for _, n := range names {
		options = append(options, huh.NewOption(n, n))
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Switch all repositories to").
				Options(options...).
				Height(min(len(options)+2, 15)).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", false, fmt.Errorf("prompt failed: %w", err)
	}
	if choice != createNewBranch {
		return choice, false, nil
	}

	var name string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("New branch name").
				Validate(validateBranchName).
				Value(&name),
		),
	)
	if err := form.Run(); err != nil {
		return "", false, fmt.Errorf("prompt failed: %w", err)
	}
	return strings.TrimSpace(name), true, nil
}

// validateBranchName rejects names git would refuse or misread as a flag.
func validateBranchName(name string) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return errors.New("branch name must not be empty")
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return errors.New("branch name must not contain spaces")
	case strings.HasPrefix(name, "-"):
		return errors.New("branch name must not start with '-'")
	case strings.Contains(name, ".."):
		return errors.New("branch name must not contain '..'")
	}
	return nil
}

// confirm asks a yes/no question. A prompt that cannot be shown declines.
func confirm(title string) bool {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		slog.Debug("confirmation declined", "title", title, "error", err)
		return false
	}
	return ok
}
