package models

// AdminDepartment is the privileged department. Its users can see every
// department and may narrow the list with an explicit selector.
const AdminDepartment = "관리자"

// Departments is the fixed set of regular departments that own reports.
var Departments = []string{"외래", "병동", "수술실", "상담실"}

// AllDepartments returns the regular departments plus the privileged one,
// i.e. every department that owns an upload subdirectory.
func AllDepartments() []string {
	all := make([]string, 0, len(Departments)+1)
	all = append(all, Departments...)
	all = append(all, AdminDepartment)
	return all
}

// ValidDepartment reports whether d is one of the enumerated departments.
func ValidDepartment(d string) bool {
	if d == AdminDepartment {
		return true
	}
	for _, dep := range Departments {
		if dep == d {
			return true
		}
	}
	return false
}
