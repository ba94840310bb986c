package errutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseErrorUnwrapChain(t *testing.T) {
	sentinel := errors.New("downstream unavailable")
	err := Internal("something broke", WithErr(sentinel))

	require.True(t, errors.Is(err, sentinel))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, StatusInternal, be.Status())
	require.Contains(t, err.Error(), "something broke")
	require.Contains(t, err.Error(), "downstream unavailable")
}

func TestWithDetails(t *testing.T) {
	err := NotFound("principal not found", WithDetails(Detail{Field: "principal_id", Message: "p-1"}))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Details, 1)
	require.Equal(t, "principal_id", be.Details[0].Field)
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		status CoreStatus
		want   int
	}{
		{StatusBadRequest, 400},
		{StatusValidationFailed, 400},
		{StatusUnauthorized, 401},
		{StatusForbidden, 403},
		{StatusNotFound, 404},
		{StatusConflict, 409},
		{StatusUnprocessableEntity, 422},
		{StatusTooManyRequests, 429},
		{StatusTimeout, 504},
		{StatusServiceUnavailable, 503},
		{StatusInternal, 500},
		{StatusUnknown, 500},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, tc.status.HTTPStatus(), "status=%s", tc.status)
	}
}
