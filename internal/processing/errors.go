package processing

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnreachable covers transport failures and timeouts.
	ErrServiceUnreachable = errors.New("processing service unreachable")
	// ErrEmptyArtifact is returned when generation succeeds with a zero-length body.
	ErrEmptyArtifact = errors.New("generated blueprint is empty")
)

// UploadRejectedError reports a file the service did not accept.
type UploadRejectedError struct {
	Filename   string
	Reason     string
	StatusCode int
	Err        error
}

func (e *UploadRejectedError) Error() string {
	return fmt.Sprintf("upload %q rejected: %s", e.Filename, e.Reason)
}

func (e *UploadRejectedError) Unwrap() error { return e.Err }

// GenerationFailedError is a non-success generate response.
// Detail is the service's message verbatim, or a generic one naming the status code.
type GenerationFailedError struct {
	StatusCode int
	Detail     string
}

func (e *GenerationFailedError) Error() string { return e.Detail }

// FailureDetail returns the user-facing message for a generation error.
func FailureDetail(err error) string {
	var gf *GenerationFailedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &gf):
		return gf.Detail
	case errors.Is(err, ErrEmptyArtifact):
		return ErrEmptyArtifact.Error()
	case errors.Is(err, ErrServiceUnreachable):
		return ErrServiceUnreachable.Error()
	default:
		return "blueprint generation failed"
	}
}

func genericGenerationDetail(status int) string {
	return fmt.Sprintf("generation failed with status %d", status)
}
