package usecase

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"rag-chat/internal/domain"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, ErrorInvalidInput.HTTPStatus())
	require.Equal(t, http.StatusNotFound, ErrorNotFound.HTTPStatus())
	require.Equal(t, http.StatusTooManyRequests, ErrorRateLimited.HTTPStatus())
	require.Equal(t, http.StatusBadGateway, ErrorUpstream.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, ErrorInternal.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, ErrorCode("OTHER").HTTPStatus())
}

func TestError_Message(t *testing.T) {
	require.Equal(t, "usecase: NOT_FOUND (thread_not_found)", newError(ErrorNotFound, "thread_not_found", nil).Error())

	cause := errors.New("boom")
	err := newError(ErrorInternal, "thread_write_error", cause)
	require.Equal(t, "usecase: INTERNAL_ERROR (thread_write_error): boom", err.Error())
	require.ErrorIs(t, err, cause)

	var nilErr *Error
	require.Empty(t, nilErr.Error())
	require.NoError(t, nilErr.Unwrap())
}

func TestUpstreamError(t *testing.T) {
	err := upstreamError("generation", fmt.Errorf("wrapped: %w", &statusErr{code: 429}))
	require.Equal(t, ErrorRateLimited, err.Code)
	require.Equal(t, "generation_rate_limited", err.Reason)

	err = upstreamError("generation", &statusErr{code: 500})
	require.Equal(t, ErrorUpstream, err.Code)
	require.Equal(t, "generation_error", err.Reason)

	status, ok := upstreamStatusCode(errors.New("plain"))
	require.False(t, ok)
	require.Zero(t, status)
}

func TestListError(t *testing.T) {
	err := listError("entry_list_error", fmt.Errorf("store: %w", domain.ErrBadCursor))
	require.Equal(t, ErrorInvalidInput, err.Code)
	require.Equal(t, "bad_cursor", err.Reason)

	err = listError("entry_list_error", errors.New("disk"))
	require.Equal(t, ErrorInternal, err.Code)
	require.Equal(t, "entry_list_error", err.Reason)
}
