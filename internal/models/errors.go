package models

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("authentication required")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation failed")
	ErrUpstream         = errors.New("upstream fetch failed")
	ErrAIUnavailable    = errors.New("ai analysis failed")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
