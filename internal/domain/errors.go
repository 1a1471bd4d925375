package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrBatchRunning   = errors.New("a batch is already running")
	ErrInvalidPlan    = errors.New("invalid batch plan")
	ErrChannelOpen    = errors.New("stream channel could not be opened")
	ErrAttemptTimeout = errors.New("attempt timed out")
	ErrStreamClosed   = errors.New("stream closed before completion")
)
