package catalog

import (
	"strings"

	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
)

// BuildStatus is the closed three-variant build state tag.
// in_progress is the initial state set at claim; success and failure are
// terminal with no outbound transitions.
type BuildStatus string

const (
	StatusInProgress BuildStatus = "in_progress"
	StatusSuccess    BuildStatus = "success"
	StatusFailure    BuildStatus = "failure"
)

// IsTerminal reports whether the status ends the build lifecycle.
func (s BuildStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// IsSuccess reports whether the build produced usable documentation.
func (s BuildStatus) IsSuccess() bool {
	return s == StatusSuccess
}

func (s BuildStatus) String() string { return string(s) }

// ErrUnknownBuildStatus is returned when a raw status string does not map to
// one of the three variants. Unrecognized values are rejected at the boundary
// rather than propagated as open strings.
var ErrUnknownBuildStatus = errors.ValidationError("unknown build status").Build()

// ParseBuildStatus normalizes a raw status string to a BuildStatus.
func ParseBuildStatus(raw string) (BuildStatus, error) {
	switch BuildStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusSuccess:
		return StatusSuccess, nil
	case StatusFailure:
		return StatusFailure, nil
	default:
		return "", ErrUnknownBuildStatus.WithContext("raw", raw)
	}
}
