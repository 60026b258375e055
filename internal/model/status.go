package model

import "fmt"

// Status is the lifecycle state of a Document.
type Status uint8

const (
	StatusUploading Status = iota + 1
	StatusUploadFailed
	StatusGenerating
	StatusSuccess
	StatusFailed
)

var statusLabels = map[Status]string{
	StatusUploading:    "Uploading",
	StatusUploadFailed: "Upload Failed",
	StatusGenerating:   "Generating",
	StatusSuccess:      "Success",
	StatusFailed:       "Failed",
}

// String returns the display label used by listings and search.
func (s Status) String() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the enumerated states.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Terminal reports whether no further automatic transition occurs from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusUploadFailed, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

// IsFailure reports whether s carries a failure detail.
func (s Status) IsFailure() bool {
	return s == StatusUploadFailed || s == StatusFailed
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStatus maps a display label back to its Status.
func ParseStatus(label string) (Status, error) {
	for s, l := range statusLabels {
		if l == label {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", label)
}
