package registry

import "errors"

var (
	// ErrNotReady is returned by queries on a store that is not populated.
	ErrNotReady = errors.New("Projects aren't loaded yet")
	// ErrPopulating is returned when population is re-entered.
	ErrPopulating = errors.New("populate isn't reentrant")
	// ErrLookup is returned when no installed config matches a label or name.
	ErrLookup = errors.New("lookup error")
	// ErrNoActiveProject is returned when no project was named or configured.
	ErrNoActiveProject = errors.New("no active project")
)
