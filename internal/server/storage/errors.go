package storage

import "errors"

// Common storage errors
var (
	// ErrPropertyNotFound indicates that no update was accepted for the property yet
	ErrPropertyNotFound = errors.New("property not found")

	// ErrRevisionConflict indicates that the property changed between read and write
	ErrRevisionConflict = errors.New("property revision conflict")
)
