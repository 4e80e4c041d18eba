package storage

import "errors"

var (
	// ErrNotFound is returned when a record with the given id does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateID is returned when inserting a record whose id already exists
	ErrDuplicateID = errors.New("duplicate id")
)
