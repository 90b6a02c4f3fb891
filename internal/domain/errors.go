package domain

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("not found")
)
