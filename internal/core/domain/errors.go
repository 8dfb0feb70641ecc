package domain

import "errors"

var (
	ErrModelNotFound     = errors.New("model not found")
	ErrNoSuitableModel   = errors.New("no suitable model")
	ErrInvalidDescriptor = errors.New("invalid model descriptor")
	ErrProviderNotFound  = errors.New("provider not found")
	ErrTaskNotFound      = errors.New("task not found")
)
