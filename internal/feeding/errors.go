package feeding

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrorKind classifies service failures for transport mapping.
type ErrorKind string

const (
	KindNotFound ErrorKind = "not_found"
	KindConflict ErrorKind = "conflict"
	KindInternal ErrorKind = "internal"
)

var (
	// ErrFoodNotFound reports a food id with no stored row.
	ErrFoodNotFound = errors.New("feeding: food not found")
	// ErrMealNotFound reports a meal id with no stored row.
	ErrMealNotFound = errors.New("feeding: meal not found")
	// ErrFoodReferenced reports a delete blocked by meals that still reference the food.
	ErrFoodReferenced = errors.New("feeding: food is referenced by meals")
	// ErrDuplicateMeal reports a second meal for the same date, time and food.
	ErrDuplicateMeal = errors.New("feeding: meal already logged for this date, time and food")
	// ErrUnknownFood reports a meal pointing at a food that does not exist.
	ErrUnknownFood = errors.New("feeding: referenced food does not exist")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries a stable "<operation>.<reason>" code alongside its kind.
type ServiceError struct {
	code string
	kind ErrorKind
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the error classification.
func (e *ServiceError) Kind() ErrorKind {
	return e.kind
}

func newServiceError(operation, reason string, kind ErrorKind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}

type storeViolation int

const (
	violationNone storeViolation = iota
	violationUnique
	violationForeignKey
)

// classifyStoreError recognises constraint violations from either supported driver.
func classifyStoreError(err error) storeViolation {
	if err == nil {
		return violationNone
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return violationUnique
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return violationForeignKey
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique constraint failed"),
		strings.Contains(message, "duplicate key value"),
		strings.Contains(message, "sqlstate 23505"):
		return violationUnique
	case strings.Contains(message, "foreign key constraint failed"),
		strings.Contains(message, "violates foreign key constraint"),
		strings.Contains(message, "sqlstate 23503"):
		return violationForeignKey
	default:
		return violationNone
	}
}
