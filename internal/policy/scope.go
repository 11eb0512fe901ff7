// Package policy derives the effective department scope for a caller.
package policy

import "github.com/gajahealth/reportdesk/internal/models"

// IsPrivileged reports whether the caller's department may see every
// department.
func IsPrivileged(department string) bool {
	return department == models.AdminDepartment
}

// ScopeFor computes the set of departments a caller may see. Privileged
// callers get the selector if one is supplied, otherwise every department.
// Everyone else gets exactly their own department; the selector is ignored so
// a crafted query cannot widen access.
func ScopeFor(callerDepartment, selector string) []string {
	if IsPrivileged(callerDepartment) {
		if selector != "" {
			return []string{selector}
		}
		return models.AllDepartments()
	}
	return []string{callerDepartment}
}

// InScope reports whether a department falls inside a computed scope.
func InScope(scope []string, department string) bool {
	for _, d := range scope {
		if d == department {
			return true
		}
	}
	return false
}
