package services

import "errors"

// Sentinel errors returned by the service layer. Handlers map these to status
// codes; anything else is a storage failure and surfaces as a 500.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidDepartment = errors.New("invalid department")
)
