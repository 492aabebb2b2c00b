package manager

import "errors"

var (
	// ErrHookNotFound is returned when no config in the search chain holds a hook.
	ErrHookNotFound = errors.New("hook not found")
	// ErrNotHooked is returned when a manager has no hooks at all.
	ErrNotHooked = errors.New("manager not hooked")
	// ErrDuplicateHook is returned when one config declares a hook name twice.
	ErrDuplicateHook = errors.New("duplicate hook")
	// ErrHookImport wraps failures to load a hook source.
	ErrHookImport = errors.New("hook import error")
	// ErrManagerNotFound is returned by Registry.Get for unknown names.
	ErrManagerNotFound = errors.New("manager not found")
)
