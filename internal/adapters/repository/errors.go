package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRecord  = errors.New("invalid record")
	ErrFixturesFailed = errors.New("load fixtures failed")
)
