package registry

import "errors"

var (
	ErrIDRequired         = errors.New("document id is required")
	ErrDuplicateID        = errors.New("document id already registered")
	ErrNotFound           = errors.New("document not found")
	ErrGenerationInFlight = errors.New("document is generating")
	ErrInvalidTransition  = errors.New("invalid status transition")
)
