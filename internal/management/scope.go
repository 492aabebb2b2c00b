package management

import (
	"fmt"
	"slices"
	"strings"

	"github.com/zjrosen/socon/internal/registry"
)

// ForbiddenError is returned when a project is outside a command's
// allow-list. It matches ErrForbidden.
type ForbiddenError struct {
	Project    string
	Authorized []string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("'%s' project does not have access to this command.\nList of authorized projects:\n%s",
		e.Project, strings.Join(e.Authorized, "\n"))
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// CheckAllowed enforces the allow-list of a project command. installed is
// the list of installed project labels, used to report who may run it.
func CheckAllowed(h ProjectHandler, project *registry.Config, installed []string) error {
	allowed := h.AllowedProjects()
	if Unrestricted(allowed) || slices.Contains(allowed, project.Label()) {
		return nil
	}
	var authorized []string
	for _, label := range installed {
		if slices.Contains(allowed, label) {
			authorized = append(authorized, label)
		}
	}
	return &ForbiddenError{Project: project.Label(), Authorized: authorized}
}
