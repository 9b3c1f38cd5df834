// Package apperr classifies the failures a request can end in and maps
// them to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	InternalFault Kind = iota
	NoFileProvided
	EmptySelection
	NoValidFiles
	UnknownTool
	InvalidParameter
	OperationFailure
	ArtifactNotFound
)

var kindNames = [...]string{
	InternalFault:    "internal_fault",
	NoFileProvided:   "no_file_provided",
	EmptySelection:   "empty_selection",
	NoValidFiles:     "no_valid_files",
	UnknownTool:      "unknown_tool",
	InvalidParameter: "invalid_parameter",
	OperationFailure: "operation_failure",
	ArtifactNotFound: "artifact_not_found",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Message is shown to the client as is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it reachable through errors.Is and As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// InternalFault when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalFault
}

// HTTPStatus maps a kind to the status code of its response.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NoFileProvided, EmptySelection, NoValidFiles, UnknownTool, InvalidParameter:
		return http.StatusBadRequest
	case ArtifactNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
