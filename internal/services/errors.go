package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStaleWrite       = errors.New("product was changed by someone else; reloaded the latest version")
	ErrLockConflict     = errors.New("product is being edited by someone else")
	ErrLockNotHeld      = errors.New("edit lock is no longer held; start editing again")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrBadCreds         = errors.New("invalid email or password")
	ErrEmailTaken       = errors.New("email already registered")
)

// LockConflictError names the session holding the lock.
type LockConflictError struct {
	HolderID    string
	HolderEmail string
}

func (e *LockConflictError) Error() string {
	switch {
	case e.HolderEmail != "":
		return "product is being edited by " + e.HolderEmail
	case e.HolderID != "":
		return "product is being edited by another user"
	}
	return ErrLockConflict.Error()
}

func (e *LockConflictError) Is(target error) bool { return target == ErrLockConflict }

// StoreError is a read or write failure from the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// storeErr maps a repository error: missing rows become ErrNotFound,
// errors that already carry a kind pass through,
// as does cancellation; everything else is a StoreError.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isKind(err):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func isKind(err error) bool {
	for _, k := range []error{ErrNotFound, ErrStaleWrite, ErrLockConflict, ErrLockNotHeld,
		ErrForbidden, ErrInvalidInput, ErrStoreUnavailable} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
