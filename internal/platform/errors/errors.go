package apperrors

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrExpired             = errors.New("session expired")
	ErrInvalidDatabase     = errors.New("invalid statistics database")
	ErrUnknownBook         = errors.New("unknown book")
	ErrConflict            = errors.New("merge group conflict")
	ErrEmpty               = errors.New("no merge groups to remove")
	ErrNoGroups            = errors.New("no merge groups to execute")
	ErrAlreadyExecuted     = errors.New("merge already executed")
	ErrExecutionInProgress = errors.New("merge execution in progress")
	ErrNotExecuted         = errors.New("merge not executed")
	ErrFileMissing         = errors.New("session file no longer available")
	ErrIOFailure           = errors.New("storage failure")
)
