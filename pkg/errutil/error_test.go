package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errMissing = NotFound("entitlement not found", nil)

func TestSentinelMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve 12: %w", errMissing)
	require.ErrorIs(t, err, errMissing)
	require.Equal(t, StatusNotFound, StatusOf(err))
	require.Equal(t, http.StatusNotFound, StatusOf(err).HTTPStatus())
	require.NotErrorIs(t, err, Conflict("entitlement not found", nil))
}

func TestConstructorsKeepCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Internal("payout failed", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "dial tcp: refused")
}

func TestStatusOfFallbacks(t *testing.T) {
	require.Equal(t, CoreStatus(""), StatusOf(nil))
	require.Equal(t, StatusInternal, StatusOf(errors.New("x")))
	require.Equal(t, StatusTimeout, StatusOf(context.DeadlineExceeded))
}

func TestGRPCCode(t *testing.T) {
	require.Equal(t, codes.NotFound, StatusNotFound.GRPCCode())
	require.Equal(t, codes.FailedPrecondition, StatusConflict.GRPCCode())
	require.Equal(t, codes.Unknown, CoreStatus("teapot").GRPCCode())
}

func TestToGRPCErrorHidesInternals(t *testing.T) {
	st, ok := status.FromError(ToGRPCError(Internal("internal error", errors.New("dsn=secret"))))
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
	require.NotContains(t, st.Message(), "secret")

	st, _ = status.FromError(ToGRPCError(fmt.Errorf("approve: %w", Conflict("invalid entitlement transition", nil))))
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Equal(t, "invalid entitlement transition", st.Message())

	require.Nil(t, ToGRPCError(nil))
}
