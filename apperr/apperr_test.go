package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfFollowsWrapping(t *testing.T) {
	base := errors.New("disk full")
	err := fmt.Errorf("persist: %w", Wrap(NoValidFiles, "No valid files uploaded", base))

	assert.Equal(t, NoValidFiles, KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, InternalFault, KindOf(base))
	assert.Equal(t, "persist: No valid files uploaded", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		NoFileProvided:   http.StatusBadRequest,
		EmptySelection:   http.StatusBadRequest,
		NoValidFiles:     http.StatusBadRequest,
		UnknownTool:      http.StatusBadRequest,
		InvalidParameter: http.StatusBadRequest,
		ArtifactNotFound: http.StatusNotFound,
		OperationFailure: http.StatusInternalServerError,
		InternalFault:    http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind.String())
	}
}

func TestErrorMessageFallsBackToCause(t *testing.T) {
	err := &Error{Kind: OperationFailure, Err: errors.New("boom")}
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "operation_failure", OperationFailure.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
