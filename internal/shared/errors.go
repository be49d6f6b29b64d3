package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing or unverifiable credential.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrUnknownRole indicates a role outside the enumerated set. Fatal at
	// startup validation, never expected at request time.
	ErrUnknownRole = errors.New("unknown role")
	// ErrUnknownPermission indicates a permission outside the enumerated set.
	ErrUnknownPermission = errors.New("unknown permission")

	// ErrNoRoleAssigned denies a principal that carries no role.
	ErrNoRoleAssigned = errors.New("no role assigned")
	// ErrInsufficientPermission denies a principal missing a required permission.
	ErrInsufficientPermission = errors.New("insufficient permission")
	// ErrInsufficientRole denies a principal below the required role level.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrInsufficientCredit rejects a billable operation on an exhausted balance.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
)
