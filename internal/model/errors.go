package model

import (
	"errors"
)

var (
	// skippable per-file input problems, never fatal to a whole walk
	ErrNoTimestamp = errors.New("filename has no timestamp")
	ErrTitlePrefix = errors.New("title lacks Evaluate-STIG prefix")

	// per-profile problem during the tabular merge
	ErrMissingSheet = errors.New("sheet not found")

	// remote generation capability
	ErrConnection = errors.New("generation service unreachable")
	ErrTimeout    = errors.New("generation request timed out")
	ErrServer     = errors.New("generation service error")
)
