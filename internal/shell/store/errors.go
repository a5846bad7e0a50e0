// Package store persists landing pages, their ordered sections and the
// metadata of uploaded files.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("entity not found")

	// Constraint violations. Callers map these to 409 / 400 responses.
	ErrDuplicateID     = errors.New("entity with this ID already exists")
	ErrDuplicateSlug   = errors.New("page with this slug already exists")
	ErrDuplicateDomain = errors.New("custom domain is already used by another page")
	ErrForeignKey      = errors.New("referenced page does not exist")

	ErrConnectionFailed = errors.New("database connection failed")
	ErrMigrationFailed  = errors.New("database migration failed")
	ErrInvalidData      = errors.New("stored row is malformed")
	ErrTxFailed         = errors.New("transaction failed")
)

// uniqueViolations maps the first column SQLite names in a UNIQUE failure
// to the sentinel callers match on.
var uniqueViolations = map[string]error{
	"landing_pages.id":            ErrDuplicateID,
	"landing_pages.slug":          ErrDuplicateSlug,
	"landing_pages.custom_domain": ErrDuplicateDomain,
	"page_sections.id":            ErrDuplicateID,
	"files.id":                    ErrDuplicateID,
	"files.user_id":               ErrDuplicateID, // UNIQUE (user_id, object_key)
}

// StoreError records which operation failed on which entity.
type StoreError struct {
	Op      string // e.g. "SetCustomDomain"
	Entity  string // "page", "section" or "file"
	ID      string // ID, slug or hostname the operation was keyed by
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Entity != "" {
		b.WriteString(" " + e.Entity)
	}
	if e.ID != "" {
		b.WriteString(" " + e.ID)
	}
	b.WriteString(": " + e.Message)
	return b.String()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrDuplicateSlug) ||
		errors.Is(err, ErrDuplicateDomain)
}

// writeError classifies a failed INSERT or UPDATE. Constraint failures
// become the matching sentinel; anything else is wrapped as is.
func writeError(op, entity, id string, err error) error {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) || sqlErr.Code != sqlite3.ErrConstraint {
		return NewStoreError(op, entity, id, err.Error(), err)
	}

	switch sqlErr.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return NewStoreError(op, entity, id, ErrForeignKey.Error(), ErrForeignKey)
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		if sentinel, ok := uniqueViolations[violatedColumn(sqlErr.Error())]; ok {
			return NewStoreError(op, entity, id, sentinel.Error(), sentinel)
		}
	}
	return NewStoreError(op, entity, id, fmt.Sprintf("constraint failed: %v", err), err)
}

// violatedColumn extracts "table.column" from
// "UNIQUE constraint failed: table.column[, table.column2]".
func violatedColumn(msg string) string {
	_, cols, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return ""
	}
	first, _, _ := strings.Cut(cols, ",")
	return strings.TrimSpace(first)
}
