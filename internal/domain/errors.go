package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
)

// Conflict errors: a unique name is already held by an active row.
var (
	ErrConflict          = errors.New("conflict")
	ErrAlreadyExists     = fmt.Errorf("%w: already exists", ErrConflict)
	ErrDuplicateUsername = fmt.Errorf("%w: username already exists", ErrConflict)
)

// Validation errors are raised before any write.
var (
	ErrValidation      = errors.New("invalid input")
	ErrEmptySale       = fmt.Errorf("%w: sale needs at least one item", ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", ErrValidation)
)
