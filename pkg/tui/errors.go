package tui

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("tui: aborted")
	// ErrNoCategories is returned when the schema offers nothing to fill.
	ErrNoCategories = errors.New("tui: schema has no categories")
)
